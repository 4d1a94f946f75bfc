package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/habana-express/market-engine/internal/ledger"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func tenPercent() ledger.Config {
	return ledger.Config{SellerCommissionPercent: dec("10"), DefaultExchangeRate: dec("320")}
}

func TestSummarizeSingleSale(t *testing.T) {
	day := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	p := Summarize(PeriodInput{
		Window: Window{Start: day.AddDate(0, 0, -1), End: day.AddDate(0, 0, 1)},
		Sales: []ledger.Sale{{
			ID: 1, Status: ledger.SaleCompleted, TotalLocal: dec("52000"), ExchangeRate: dec("520"), SaleDate: day,
		}},
		Config: tenPercent(),
	})
	require.Equal(t, 1, p.Sales)
	requireDec(t, "100", p.Income)
	requireDec(t, "0", p.Investment)
	requireDec(t, "10", p.Commission)
	requireDec(t, "90", p.NetProfit)
	requireDec(t, "0", p.ROI)
}

func TestSummarizeSkipsCancelledZeroRateAndOutOfWindow(t *testing.T) {
	day := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	w := Window{Start: day.Add(-time.Hour), End: day.Add(time.Hour)}
	p := Summarize(PeriodInput{
		Window: w,
		Sales: []ledger.Sale{
			{Status: ledger.SaleCancelled, TotalLocal: dec("52000"), ExchangeRate: dec("520"), SaleDate: day},
			{Status: ledger.SaleCompleted, TotalLocal: dec("1000"), ExchangeRate: decimal.Zero, SaleDate: day},
			{Status: ledger.SaleCompleted, TotalLocal: dec("52000"), ExchangeRate: dec("520"), SaleDate: day.Add(2 * time.Hour)},
		},
		Config: tenPercent(),
	})
	require.Equal(t, 1, p.Sales)
	requireDec(t, "0", p.Income)
	requireDec(t, "0", p.NetProfit)
}

func TestSummarizeInvestmentLossesAndROI(t *testing.T) {
	day := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	w := Window{Start: day.AddDate(0, 0, -1), End: day.AddDate(0, 0, 1)}
	p := Summarize(PeriodInput{
		Window: w,
		Sales: []ledger.Sale{
			{Status: ledger.SaleCompleted, TotalLocal: dec("104000"), ExchangeRate: dec("520"), SaleDate: day},
		},
		Shipments: []ledger.Shipment{
			{ShippingCostUSD: dec("10"), MerchandiseCostUSD: dec("40"), CustomsFeeLocal: dec("5200"), ExchangeRate: dec("520"), ShipmentDate: day},
			{ShippingCostUSD: dec("5"), CustomsFeeLocal: dec("999"), ExchangeRate: decimal.Zero, ShipmentDate: day},
		},
		Returns: []ledger.Return{{LossUSD: dec("15"), ReturnDate: day}},
		Config:  tenPercent(),
	})
	requireDec(t, "200", p.Income)
	requireDec(t, "65", p.Investment)
	requireDec(t, "15", p.ReturnLosses)
	requireDec(t, "20", p.Commission)
	requireDec(t, "100", p.NetProfit)
	requireDec(t, "153.85", p.ROI)
}

func TestSummarizeRoundsFromUnroundedValues(t *testing.T) {
	day := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	p := Summarize(PeriodInput{
		Window: Window{Start: day, End: day},
		Sales: []ledger.Sale{
			{Status: ledger.SaleCompleted, TotalLocal: dec("1000"), ExchangeRate: dec("7"), SaleDate: day},
		},
		Config: tenPercent(),
	})
	requireDec(t, "142.86", p.Income)
	requireDec(t, "14.29", p.Commission)
	requireDec(t, "129", p.NetProfit)
}

func TestROIClampsAndHandlesZeroInvestment(t *testing.T) {
	requireDec(t, "0", ROI(dec("50"), decimal.Zero))
	requireDec(t, "0", ROI(dec("-50"), dec("100")))
	requireDec(t, "33.33", ROI(dec("1"), dec("3")))
}

func TestMonthWindowCoversLeapFebruary(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	w := MonthWindow(time.Date(2028, 2, 14, 8, 0, 0, 0, loc), loc)
	require.Equal(t, time.Date(2028, 2, 1, 0, 0, 0, 0, loc), w.Start)
	require.Equal(t, time.Date(2028, 2, 29, 23, 59, 59, 999999000, loc), w.End)
	require.False(t, w.Contains(time.Date(2028, 3, 1, 0, 0, 0, 0, loc)))
}

func TestRankingWindow(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	now := time.Date(2026, 5, 20, 15, 30, 0, 0, loc) // Wednesday

	cases := map[RankingPeriod]time.Time{
		RankDay:   time.Date(2026, 5, 20, 0, 0, 0, 0, loc),
		RankWeek:  time.Date(2026, 5, 18, 0, 0, 0, 0, loc),
		RankMonth: time.Date(2026, 5, 1, 0, 0, 0, 0, loc),
		RankYear:  time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
		"":        time.Date(2026, 5, 1, 0, 0, 0, 0, loc),
	}
	for period, start := range cases {
		w, ok := RankingWindow(period, now, loc)
		require.True(t, ok, period)
		require.True(t, start.Equal(w.Start), "%s: %s", period, w.Start)
		require.Equal(t, now, w.End)
	}

	w, ok := RankingWindow(RankAll, now, loc)
	require.True(t, ok)
	require.True(t, w.Start.Before(time.Date(1971, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, ok = RankingWindow("fortnight", now, loc)
	require.False(t, ok)
}
