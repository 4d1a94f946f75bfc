package sales

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/inventory"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Config groups service settings.
type Config struct {
	// PhoneRegion is the default region for buyer phones without a country code.
	PhoneRegion string
}

// Service records sales and their reversals.
type Service struct {
	store  ledger.Store
	region string
	now    func() time.Time
}

// NewService constructs a sales service.
func NewService(store ledger.Store, cfg Config) *Service {
	region := cfg.PhoneRegion
	if region == "" {
		region = "CU"
	}
	return &Service{store: store, region: region, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type lockedLine struct {
	product ledger.Product
	qty     int
}

// CreateSale validates custody and warehouse stock for every line, then in the
// same transaction records the sale, decrements both ledgers and deactivates
// depleted products. Nothing is written unless every line passes.
func (s *Service) CreateSale(ctx context.Context, caller shared.Identity, in CreateSaleInput) (SaleResult, error) {
	if err := rbac.Authorize(caller, rbac.OpCreateSale); err != nil {
		return SaleResult{}, err
	}
	if err := rbac.RequireSelf(caller, rbac.OpCreateSale, in.SellerID); err != nil {
		return SaleResult{}, err
	}
	in, err := in.normalize(s.region)
	if err != nil {
		return SaleResult{}, err
	}
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return SaleResult{}, shared.Storage("load configuration", ledger.Resolve(err, "system_configuration", 1))
	}
	if in.ExchangeRate.IsZero() {
		in.ExchangeRate = cfg.DefaultExchangeRate
	}
	if !in.ExchangeRate.IsPositive() {
		return SaleResult{}, shared.Validation("exchange_rate", "must be positive")
	}

	var (
		sale     ledger.Sale
		locked   []lockedLine
		depleted []ledger.Product
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked = locked[:0]
		depleted = depleted[:0]
		for _, line := range in.Lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return ledger.Resolve(err, "product", line.ProductID)
			}
			held, err := heldQuantity(ctx, tx, in.SellerID, product.ID)
			if err != nil {
				return err
			}
			if held < line.Quantity {
				return shared.InsufficientStock(product.ID, product.Name, held, line.Quantity)
			}
			if product.Stock < line.Quantity {
				return shared.InsufficientStock(product.ID, product.Name, product.Stock, line.Quantity)
			}
			locked = append(locked, lockedLine{product: product, qty: line.Quantity})
		}

		now := s.now()
		sale = ledger.Sale{
			SellerID:      in.SellerID,
			ExchangeRate:  in.ExchangeRate,
			TotalLocal:    in.TotalLocal,
			Status:        ledger.SaleCompleted,
			BuyerPhone:    in.BuyerPhone,
			PaymentMethod: in.PaymentMethod,
			SaleDate:      now,
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id

		for _, l := range locked {
			lineID, err := tx.InsertSaleLine(ctx, ledger.SaleLine{SaleID: id, ProductID: l.product.ID, Quantity: l.qty})
			if err != nil {
				return err
			}
			sale.Lines = append(sale.Lines, ledger.SaleLine{ID: lineID, SaleID: id, ProductID: l.product.ID, Quantity: l.qty})

			stock := l.product.Stock - l.qty
			active := l.product.Active
			if stock <= 0 {
				active = false
				depleted = append(depleted, l.product)
			}
			if err := tx.UpdateProductStock(ctx, l.product.ID, stock, active); err != nil {
				return err
			}
			if _, err := inventory.Reclaim(ctx, tx, in.SellerID, l.product.ID, l.qty, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SaleResult{}, shared.Storage("create sale", err)
	}

	evts := make([]events.Event, 0, len(depleted)+1)
	for _, p := range depleted {
		evts = append(evts, events.StockDepleted{ProductID: p.ID, SKU: p.SKU, Name: p.Name})
	}
	evts = append(evts, saleConfirmed(sale, locked, cfg))
	return SaleResult{Sale: sale, Events: evts}, nil
}

func heldQuantity(ctx context.Context, tx ledger.Tx, sellerID, productID int64) (int, error) {
	custody, err := tx.GetCustodyForUpdate(ctx, sellerID, productID)
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return custody.Quantity, nil
}

// saleConfirmed estimates the realised profit of a sale: USD income minus
// merchandise cost minus seller commission.
func saleConfirmed(sale ledger.Sale, lines []lockedLine, cfg ledger.Config) events.SaleConfirmed {
	income := decimal.Zero
	if sale.ExchangeRate.IsPositive() {
		income = sale.TotalLocal.Div(sale.ExchangeRate)
	}
	cost := decimal.Zero
	summary := make([]events.SaleLine, 0, len(lines))
	for _, l := range lines {
		lineCost := l.product.PurchasePrice.Mul(decimal.NewFromInt(int64(l.qty)))
		cost = cost.Add(lineCost)
		summary = append(summary, events.SaleLine{
			ProductID: l.product.ID,
			Name:      l.product.Name,
			Quantity:  l.qty,
			CostUSD:   lineCost,
		})
	}
	commission := income.Mul(cfg.SellerCommissionPercent).Div(hundred)
	return events.SaleConfirmed{
		SaleID:             sale.ID,
		SellerID:           sale.SellerID,
		TotalLocal:         sale.TotalLocal,
		ExchangeRate:       sale.ExchangeRate,
		PaymentMethod:      string(sale.PaymentMethod),
		Lines:              summary,
		EstimatedProfitUSD: income.Sub(cost).Sub(commission).Round(2),
	}
}

// GetSale loads a sale with its lines. Sellers only see their own sales.
func (s *Service) GetSale(ctx context.Context, caller shared.Identity, id int64) (ledger.Sale, error) {
	if err := rbac.Authorize(caller, rbac.OpGetSale); err != nil {
		return ledger.Sale{}, err
	}
	if id <= 0 {
		return ledger.Sale{}, shared.Validation("sale_id", "must be positive")
	}
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return ledger.Sale{}, shared.Storage("get sale", ledger.Resolve(err, "sale", id))
	}
	if caller.Role == shared.RoleSeller {
		if err := rbac.RequireSelf(caller, rbac.OpGetSale, sale.SellerID); err != nil {
			return ledger.Sale{}, err
		}
	}
	return sale, nil
}
