package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// Summarize computes a Period from ledger rows. It has no side effects: rows
// outside the window and non-completed sales are ignored.
//
// income     = Σ totalLocal / sale.exchangeRate
// investment = Σ shipping + merchandise + customs / shipment.exchangeRate
// commission = income × commission% / 100
// net        = income − investment − returnLosses − commission
func Summarize(in PeriodInput) Period {
	income := decimal.Zero
	count := 0
	for _, s := range in.Sales {
		if s.Status != ledger.SaleCompleted || !in.Window.Contains(s.SaleDate) {
			continue
		}
		count++
		if s.ExchangeRate.IsPositive() {
			income = income.Add(s.TotalLocal.Div(s.ExchangeRate))
		}
	}

	investment := decimal.Zero
	for _, sh := range in.Shipments {
		if !in.Window.Contains(sh.ShipmentDate) {
			continue
		}
		investment = investment.Add(ShipmentCostUSD(sh))
	}

	losses := decimal.Zero
	for _, r := range in.Returns {
		if !in.Window.Contains(r.ReturnDate) {
			continue
		}
		losses = losses.Add(r.LossUSD)
	}

	commission := income.Mul(in.Config.SellerCommissionPercent).Div(hundred)
	net := income.Sub(investment).Sub(losses).Sub(commission)

	return Period{
		Window:       in.Window,
		Sales:        count,
		Income:       income.Round(2),
		Investment:   investment.Round(2),
		ReturnLosses: losses.Round(2),
		Commission:   commission.Round(2),
		NetProfit:    net.Round(0),
		ROI:          ROI(net, investment),
	}
}

// ShipmentCostUSD converts one shipment into USD investment.
func ShipmentCostUSD(sh ledger.Shipment) decimal.Decimal {
	total := sh.ShippingCostUSD.Add(sh.MerchandiseCostUSD)
	if sh.ExchangeRate.IsPositive() {
		total = total.Add(sh.CustomsFeeLocal.Div(sh.ExchangeRate))
	}
	return total
}

// ROI returns net/investment × 100 rounded to two places, 0 when nothing was
// invested and never below 0.
func ROI(net, investment decimal.Decimal) decimal.Decimal {
	if !investment.IsPositive() {
		return decimal.Zero
	}
	roi := net.Div(investment).Mul(hundred).Round(2)
	if roi.IsNegative() {
		return decimal.Zero
	}
	return roi
}

// MonthWindow spans the whole calendar month of t in loc. End is the last
// representable microsecond of the month.
func MonthWindow(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Microsecond)}
}

// MonthToDate spans the first day of now's month until now.
func MonthToDate(now time.Time, loc *time.Location) Window {
	return Window{Start: MonthWindow(now, loc).Start, End: now}
}

// YearToDate spans January 1st of now's year until now.
func YearToDate(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	return Window{Start: time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc), End: now}
}

// RankingWindow resolves a ranking period ending at now. Weeks start Monday.
func RankingWindow(period RankingPeriod, now time.Time, loc *time.Location) (Window, bool) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch period {
	case RankDay:
		return Window{Start: today, End: now}, true
	case RankWeek:
		offset := (int(today.Weekday()) + 6) % 7
		return Window{Start: today.AddDate(0, 0, -offset), End: now}, true
	case RankMonth, "":
		return MonthToDate(now, loc), true
	case RankYear:
		return YearToDate(now, loc), true
	case RankAll:
		return Window{Start: time.Unix(0, 0).In(loc), End: now}, true
	}
	return Window{}, false
}
