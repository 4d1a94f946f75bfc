// Package pricing keeps sale prices aligned with the market exchange rate and
// runs the warranty expiry scan.
package pricing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// SalePrice is twice the purchase cost converted at rate, rounded to the
// nearest hundred.
func SalePrice(cost, rate decimal.Decimal) decimal.Decimal {
	return cost.Mul(two).Mul(rate).Div(hundred).Round(0).Mul(hundred)
}

// RefreshResult summarizes one price refresh.
type RefreshResult struct {
	Rate     decimal.Decimal `json:"rate"`
	Products int             `json:"products"`
	Events   []events.Event  `json:"-"`
}

// Refresher recomputes sale prices.
type Refresher struct {
	store ledger.Store
}

// NewRefresher constructs a refresher.
func NewRefresher(store ledger.Store) *Refresher {
	return &Refresher{store: store}
}

// Refresh stores rate as the default exchange rate and reprices every active
// product in one transaction. Sellers holding custody get their price list.
func (r *Refresher) Refresh(ctx context.Context, caller shared.Identity, rate decimal.Decimal) (RefreshResult, error) {
	if err := rbac.Authorize(caller, rbac.OpRefreshPrices); err != nil {
		return RefreshResult{}, err
	}
	if !rate.IsPositive() {
		return RefreshResult{}, shared.Validation("rate", "must be positive")
	}

	prices := make(map[int64]ledger.Product)
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.UpdateDefaultExchangeRate(ctx, rate); err != nil {
			return err
		}
		products, err := tx.ListActiveProductsForUpdate(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			p.SalePrice = SalePrice(p.PurchasePrice, rate)
			if err := tx.UpdateSalePrice(ctx, p.ID, p.SalePrice); err != nil {
				return err
			}
			prices[p.ID] = p
		}
		return nil
	})
	if err != nil {
		return RefreshResult{}, shared.Storage("refresh prices", err)
	}

	res := RefreshResult{Rate: rate, Products: len(prices)}
	res.Events = append(res.Events, events.PricesRefreshed{Rate: rate, Products: len(prices)})
	lists, err := r.priceLists(ctx, prices)
	if err != nil {
		return RefreshResult{}, err
	}
	for _, l := range lists {
		res.Events = append(res.Events, l)
	}
	return res, nil
}

func (r *Refresher) priceLists(ctx context.Context, prices map[int64]ledger.Product) ([]events.SellerPriceList, error) {
	custody, err := r.store.ListAllCustody(ctx)
	if err != nil {
		return nil, shared.Storage("load custody", err)
	}
	var missing []int64
	for _, c := range custody {
		if _, ok := prices[c.ProductID]; !ok {
			missing = append(missing, c.ProductID)
		}
	}
	if len(missing) > 0 {
		extra, err := r.store.GetProducts(ctx, missing)
		if err != nil {
			return nil, shared.Storage("load products", err)
		}
		for id, p := range extra {
			prices[id] = p
		}
	}

	bySeller := make(map[int64][]events.PriceItem)
	for _, c := range custody {
		p, ok := prices[c.ProductID]
		if !ok || c.Quantity <= 0 {
			continue
		}
		bySeller[c.SellerID] = append(bySeller[c.SellerID], events.PriceItem{
			ProductID: p.ID, Name: p.Name, SalePrice: p.SalePrice, Quantity: c.Quantity,
		})
	}
	out := make([]events.SellerPriceList, 0, len(bySeller))
	for sellerID, items := range bySeller {
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		out = append(out, events.SellerPriceList{SellerID: sellerID, Items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out, nil
}
