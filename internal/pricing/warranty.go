package pricing

import (
	"context"
	"time"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// DefaultWarrantyDays is the warranty length for products sold with one.
const DefaultWarrantyDays = 7

// WarrantyChecker finds sales whose warranty ends today.
type WarrantyChecker struct {
	store ledger.Reader
	days  int
	loc   *time.Location
}

// NewWarrantyChecker constructs a checker. days below 1 use the default.
func NewWarrantyChecker(store ledger.Reader, days int, loc *time.Location) *WarrantyChecker {
	if days < 1 {
		days = DefaultWarrantyDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return &WarrantyChecker{store: store, days: days, loc: loc}
}

// Check returns one WarrantyExpired event per completed sale made exactly
// days calendar days before today that includes a warranty product.
func (c *WarrantyChecker) Check(ctx context.Context, caller shared.Identity, today time.Time) ([]events.Event, error) {
	if err := rbac.Authorize(caller, rbac.OpWarrantyCheck); err != nil {
		return nil, err
	}
	local := today.In(c.loc)
	start := time.Date(local.Year(), local.Month(), local.Day()-c.days, 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Microsecond)

	sales, err := c.store.SalesInRange(ctx, start, end)
	if err != nil {
		return nil, shared.Storage("load sales", err)
	}
	ids := make(map[int64]struct{})
	for _, s := range sales {
		for _, l := range s.Lines {
			ids[l.ProductID] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	products, err := c.store.GetProducts(ctx, list)
	if err != nil {
		return nil, shared.Storage("load products", err)
	}

	var out []events.Event
	for _, s := range sales {
		if s.Status != ledger.SaleCompleted {
			continue
		}
		var names []string
		for _, l := range s.Lines {
			if p, ok := products[l.ProductID]; ok && p.Warranty {
				names = append(names, p.Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		out = append(out, events.WarrantyExpired{
			SaleID: s.ID, SellerID: s.SellerID, BuyerPhone: s.BuyerPhone, SaleDate: s.SaleDate, Products: names,
		})
	}
	return out, nil
}
