package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/shared"
)

// Window is an inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Period is the financial summary of one window. Amounts are USD.
type Period struct {
	Window
	Sales        int             `json:"sales"`
	Income       decimal.Decimal `json:"income"`
	Investment   decimal.Decimal `json:"investment"`
	ReturnLosses decimal.Decimal `json:"return_losses"`
	Commission   decimal.Decimal `json:"commission"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	ROI          decimal.Decimal `json:"roi_percent"`
}

// PeriodInput is everything Summarize needs. Config is the snapshot the
// caller loaded for the whole report.
type PeriodInput struct {
	Window    Window
	Sales     []ledger.Sale
	Shipments []ledger.Shipment
	Returns   []ledger.Return
	Config    ledger.Config
}

// MonthBreakdown is one month of an annual report.
type MonthBreakdown struct {
	Month time.Month `json:"month"`
	Period
}

// AnnualReport is the year to date total plus one entry per calendar month.
type AnnualReport struct {
	Year   int              `json:"year"`
	Total  Period           `json:"total"`
	Months []MonthBreakdown `json:"months"`
}

// TopSeller ranks a seller within a period.
type TopSeller struct {
	SellerID int64           `json:"seller_id"`
	Name     string          `json:"name"`
	TotalUSD decimal.Decimal `json:"total_usd"`
	Units    int             `json:"units"`
	Sales    int             `json:"sales"`
}

// RankingPeriod selects the TopSellers window.
type RankingPeriod string

const (
	RankDay   RankingPeriod = "day"
	RankWeek  RankingPeriod = "week"
	RankMonth RankingPeriod = "month"
	RankYear  RankingPeriod = "year"
	RankAll   RankingPeriod = "all"
)

// ShipmentInput records one investment event.
type ShipmentInput struct {
	ShippingCostUSD    decimal.Decimal `json:"shipping_cost_usd"`
	MerchandiseCostUSD decimal.Decimal `json:"merchandise_cost_usd"`
	CustomsFeeLocal    decimal.Decimal `json:"customs_fee_local"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	ShipmentDate       time.Time       `json:"shipment_date"`
	Notes              string          `json:"notes" validate:"max=1000"`
}

func (in ShipmentInput) validate() error {
	switch {
	case in.ShippingCostUSD.IsNegative():
		return shared.Validation("shipping_cost_usd", "must not be negative")
	case in.MerchandiseCostUSD.IsNegative():
		return shared.Validation("merchandise_cost_usd", "must not be negative")
	case in.CustomsFeeLocal.IsNegative():
		return shared.Validation("customs_fee_local", "must not be negative")
	case in.ExchangeRate.IsNegative():
		return shared.Validation("exchange_rate", "must not be negative")
	case in.CustomsFeeLocal.IsPositive() && !in.ExchangeRate.IsPositive():
		return shared.Validation("exchange_rate", "required when a customs fee is set")
	}
	return nil
}

// ShipmentResult is the stored shipment.
type ShipmentResult struct {
	Shipment ledger.Shipment `json:"shipment"`
	Events   []events.Event  `json:"-"`
}
