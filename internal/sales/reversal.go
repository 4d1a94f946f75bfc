package sales

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/inventory"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// CancelSale fully reverses a completed sale: stock and custody go back to
// their pre-sale values and the sale is marked CANCELLED. Lines are kept.
func (s *Service) CancelSale(ctx context.Context, caller shared.Identity, saleID int64) (SaleResult, error) {
	if err := rbac.Authorize(caller, rbac.OpCancelSale); err != nil {
		return SaleResult{}, err
	}
	if saleID <= 0 {
		return SaleResult{}, shared.Validation("sale_id", "must be positive")
	}
	var sale ledger.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return ledger.Resolve(err, "sale", saleID)
		}
		if sale.Status == ledger.SaleCancelled {
			return shared.AlreadyCancelled(saleID)
		}
		lines := append([]ledger.SaleLine(nil), sale.Lines...)
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		now := s.now()
		for _, line := range lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return ledger.Resolve(err, "product", line.ProductID)
			}
			if err := tx.UpdateProductStock(ctx, product.ID, product.Stock+line.Quantity, true); err != nil {
				return err
			}
			if _, err := inventory.Restore(ctx, tx, sale.SellerID, product.ID, line.Quantity, now); err != nil {
				return err
			}
		}
		sale.Status = ledger.SaleCancelled
		return tx.UpdateSale(ctx, sale.ID, sale.Status, sale.TotalLocal)
	})
	if err != nil {
		return SaleResult{}, shared.Storage("cancel sale", err)
	}
	return SaleResult{
		Sale: sale,
		Events: []events.Event{events.SaleCancelled{
			SaleID:   sale.ID,
			SellerID: sale.SellerID,
			ActorID:  caller.ID,
			Units:    sale.Units(),
		}},
	}, nil
}

// CreateReturn takes units of one product back from a sale. Refund and loss
// use the product's current prices. A return that empties the sale, or drives
// its total to zero, cancels it.
func (s *Service) CreateReturn(ctx context.Context, caller shared.Identity, in ReturnInput) (ReturnResult, error) {
	if err := rbac.Authorize(caller, rbac.OpCreateReturn); err != nil {
		return ReturnResult{}, err
	}
	if err := in.validate(); err != nil {
		return ReturnResult{}, err
	}
	var (
		result  ReturnResult
		product ledger.Product
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		sale, err := tx.GetSaleForUpdate(ctx, in.SaleID)
		if err != nil {
			return ledger.Resolve(err, "sale", in.SaleID)
		}
		if sale.Status == ledger.SaleCancelled {
			return shared.AlreadyCancelled(sale.ID)
		}
		line, ok := sale.Line(in.ProductID)
		if !ok || line.Quantity < in.Quantity {
			return shared.InvalidReturnQuantity(sale.ID, in.ProductID, line.Quantity, in.Quantity)
		}
		product, err = tx.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return ledger.Resolve(err, "product", in.ProductID)
		}

		qty := decimal.NewFromInt(int64(in.Quantity))
		refund := product.SalePrice.Mul(qty)
		loss := decimal.Zero
		if !in.RestockToWarehouse {
			loss = product.PurchasePrice.Mul(qty)
		}

		ret := ledger.Return{
			SaleID:     sale.ID,
			ProductID:  product.ID,
			Quantity:   in.Quantity,
			LossUSD:    loss,
			Reason:     in.Reason,
			Restocked:  in.RestockToWarehouse,
			ReturnDate: s.now(),
		}
		if ret.ID, err = tx.InsertReturn(ctx, ret); err != nil {
			return err
		}

		if in.RestockToWarehouse {
			if err := tx.UpdateProductStock(ctx, product.ID, product.Stock+in.Quantity, true); err != nil {
				return err
			}
		}

		remaining := make([]ledger.SaleLine, 0, len(sale.Lines))
		for _, l := range sale.Lines {
			if l.ID != line.ID {
				remaining = append(remaining, l)
				continue
			}
			if left := l.Quantity - in.Quantity; left > 0 {
				if err := tx.UpdateSaleLineQuantity(ctx, l.ID, left); err != nil {
					return err
				}
				l.Quantity = left
				remaining = append(remaining, l)
			} else if err := tx.DeleteSaleLine(ctx, l.ID); err != nil {
				return err
			}
		}
		sale.Lines = remaining

		sale.TotalLocal = sale.TotalLocal.Sub(refund)
		if len(sale.Lines) == 0 || !sale.TotalLocal.IsPositive() {
			sale.Status = ledger.SaleCancelled
			sale.TotalLocal = decimal.Zero
		}
		if err := tx.UpdateSale(ctx, sale.ID, sale.Status, sale.TotalLocal); err != nil {
			return err
		}

		result = ReturnResult{Return: ret, Sale: sale, RefundLocal: refund}
		return nil
	})
	if err != nil {
		return ReturnResult{}, shared.Storage("create return", err)
	}
	result.Events = []events.Event{events.ReturnRecorded{
		ReturnID:      result.Return.ID,
		SaleID:        result.Sale.ID,
		ProductID:     product.ID,
		ProductName:   product.Name,
		Quantity:      result.Return.Quantity,
		RefundLocal:   result.RefundLocal,
		LossUSD:       result.Return.LossUSD,
		Restocked:     result.Return.Restocked,
		Reason:        result.Return.Reason,
		SaleCancelled: result.Sale.Status == ledger.SaleCancelled,
	}}
	return result, nil
}
