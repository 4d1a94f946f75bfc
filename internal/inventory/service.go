package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// Service allocates warehouse stock to seller custody.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService builds Service.
func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AssignCustody loans qty units of a product to a seller. Custody does not
// decrement warehouse stock; availability is stock minus everything already
// loaned out.
func (s *Service) AssignCustody(ctx context.Context, caller shared.Identity, in AssignInput) (CustodyResult, error) {
	if err := rbac.Authorize(caller, rbac.OpAssignCustody); err != nil {
		return CustodyResult{}, err
	}
	if err := in.validate(); err != nil {
		return CustodyResult{}, err
	}
	var custody ledger.Custody
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		product, err := tx.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return ledger.Resolve(err, "product", in.ProductID)
		}
		assigned, err := tx.SumCustody(ctx, product.ID)
		if err != nil {
			return err
		}
		if available := product.Stock - assigned; available < in.Quantity {
			return shared.InsufficientStock(product.ID, product.Name, max(available, 0), in.Quantity)
		}
		custody, err = Restore(ctx, tx, in.SellerID, product.ID, in.Quantity, s.now())
		return err
	})
	if err != nil {
		return CustodyResult{}, shared.Storage("assign custody", err)
	}
	return CustodyResult{
		Custody: custody,
		Events: []events.Event{events.CustodyAssigned{
			SellerID:  custody.SellerID,
			ProductID: custody.ProductID,
			Quantity:  in.Quantity,
			Holding:   custody.Quantity,
		}},
	}, nil
}

// ReclaimCustody takes qty units back from a seller into the warehouse pool.
func (s *Service) ReclaimCustody(ctx context.Context, caller shared.Identity, in ReclaimInput) (CustodyResult, error) {
	if err := rbac.Authorize(caller, rbac.OpReclaimCustody); err != nil {
		return CustodyResult{}, err
	}
	if err := in.validate(); err != nil {
		return CustodyResult{}, err
	}
	var custody ledger.Custody
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		custody, err = Reclaim(ctx, tx, in.SellerID, in.ProductID, in.Quantity, s.now())
		return err
	})
	if err != nil {
		return CustodyResult{}, shared.Storage("reclaim custody", err)
	}
	return CustodyResult{
		Custody: custody,
		Events: []events.Event{events.CustodyReclaimed{
			SellerID:  custody.SellerID,
			ProductID: custody.ProductID,
			Quantity:  in.Quantity,
			Holding:   custody.Quantity,
		}},
	}, nil
}

// Reclaim decrements a seller's custody inside tx, deleting the row when it
// reaches zero. Missing or short custody fails with InsufficientCustody.
func Reclaim(ctx context.Context, tx ledger.Tx, sellerID, productID int64, qty int, at time.Time) (ledger.Custody, error) {
	current, err := tx.GetCustodyForUpdate(ctx, sellerID, productID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Custody{}, err
	}
	if current.Quantity < qty {
		return ledger.Custody{}, shared.InsufficientCustody(sellerID, productID, current.Quantity, qty)
	}
	current.SellerID, current.ProductID = sellerID, productID
	current.Quantity -= qty
	current.UpdatedAt = at
	if current.Quantity == 0 {
		if err := tx.DeleteCustody(ctx, sellerID, productID); err != nil {
			return ledger.Custody{}, fmt.Errorf("delete custody: %w", err)
		}
		return current, nil
	}
	if err := tx.UpsertCustody(ctx, current); err != nil {
		return ledger.Custody{}, err
	}
	return current, nil
}

// Restore creates or grows a seller's custody inside tx without checking
// warehouse availability.
func Restore(ctx context.Context, tx ledger.Tx, sellerID, productID int64, qty int, at time.Time) (ledger.Custody, error) {
	current, err := tx.GetCustodyForUpdate(ctx, sellerID, productID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Custody{}, err
	}
	current.SellerID, current.ProductID = sellerID, productID
	current.Quantity += qty
	current.UpdatedAt = at
	if err := tx.UpsertCustody(ctx, current); err != nil {
		return ledger.Custody{}, err
	}
	return current, nil
}

// ListCustody lists the products a seller holds. Sellers only see their own.
func (s *Service) ListCustody(ctx context.Context, caller shared.Identity, sellerID int64) ([]HeldProduct, error) {
	if err := rbac.Authorize(caller, rbac.OpListCustody); err != nil {
		return nil, err
	}
	if caller.Role == shared.RoleSeller {
		if err := rbac.RequireSelf(caller, rbac.OpListCustody, sellerID); err != nil {
			return nil, err
		}
	}
	rows, err := s.store.ListCustody(ctx, sellerID)
	if err != nil {
		return nil, shared.Storage("list custody", err)
	}
	ids := make([]int64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ProductID)
	}
	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, shared.Storage("list custody products", err)
	}
	held := make([]HeldProduct, 0, len(rows))
	for _, c := range rows {
		p := products[c.ProductID]
		held = append(held, HeldProduct{
			ProductID: c.ProductID,
			SKU:       p.SKU,
			Name:      p.Name,
			SalePrice: p.SalePrice,
			Quantity:  c.Quantity,
		})
	}
	return held, nil
}

// CreateProduct registers a product. Active follows stock.
func (s *Service) CreateProduct(ctx context.Context, caller shared.Identity, in ProductInput) (ProductResult, error) {
	if err := rbac.Authorize(caller, rbac.OpCreateProduct); err != nil {
		return ProductResult{}, err
	}
	if err := in.validate(); err != nil {
		return ProductResult{}, err
	}
	now := s.now()
	product := ledger.Product{
		SKU:           strings.TrimSpace(in.SKU),
		Name:          strings.TrimSpace(in.Name),
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		Stock:         in.Stock,
		Active:        in.Stock > 0,
		Warranty:      in.Warranty,
		CategoryIDs:   in.CategoryIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if product.SKU == "" {
		product.SKU = GenerateSKU(now)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return nil
	})
	if err != nil {
		return ProductResult{}, shared.Storage("create product", err)
	}
	return ProductResult{
		Product: product,
		Events: []events.Event{events.ProductCreated{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			Stock:     product.Stock,
		}},
	}, nil
}

// AdjustStock sets the warehouse count after a physical recount. The count may
// not drop below what is currently loaned to sellers.
func (s *Service) AdjustStock(ctx context.Context, caller shared.Identity, productID int64, stock int) (ProductResult, error) {
	if err := rbac.Authorize(caller, rbac.OpAdjustStock); err != nil {
		return ProductResult{}, err
	}
	if productID <= 0 {
		return ProductResult{}, shared.Validation("product_id", "must be positive")
	}
	if stock < 0 {
		return ProductResult{}, shared.Validation("stock", "must not be negative")
	}
	var (
		product  ledger.Product
		previous int
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		product, err = tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return ledger.Resolve(err, "product", productID)
		}
		assigned, err := tx.SumCustody(ctx, productID)
		if err != nil {
			return err
		}
		if stock < assigned {
			return shared.Validation("stock", fmt.Sprintf("%d units of product %d are loaned to sellers", assigned, productID))
		}
		previous = product.Stock
		product.Stock = stock
		product.Active = stock > 0
		product.UpdatedAt = s.now()
		return tx.UpdateProductStock(ctx, productID, product.Stock, product.Active)
	})
	if err != nil {
		return ProductResult{}, shared.Storage("adjust stock", err)
	}
	return ProductResult{
		Product: product,
		Events: []events.Event{events.StockAdjusted{
			ProductID: productID,
			Previous:  previous,
			Stock:     product.Stock,
			Active:    product.Active,
		}},
	}, nil
}

// GenerateSKU builds HEX-<year>-<4 hex chars>.
func GenerateSKU(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("HEX-%d-%s", at.Year(), suffix)
}
