package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/ledger/ledgertest"
	"github.com/habana-express/market-engine/internal/sales"
	"github.com/habana-express/market-engine/internal/shared"
)

var (
	admin   = shared.Identity{ID: 99, Role: shared.RoleAdmin}
	sellerA = shared.Identity{ID: 1, Role: shared.RoleSeller}
	keeper  = shared.Identity{ID: 50, Role: shared.RoleStorekeeper}
)

type fixture struct {
	svc   *Service
	store *ledgertest.Memory
	loc   *time.Location
	now   time.Time
}

func newFixture(t *testing.T, cache *Cache) fixture {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	now := time.Date(2026, 5, 20, 15, 30, 0, 0, loc)
	store := ledgertest.New()
	svc := NewService(store, cache, Config{Location: loc}).WithClock(func() time.Time { return now })
	return fixture{svc: svc, store: store, loc: loc, now: now}
}

func (f fixture) sale(sellerID int64, local, rate string, at time.Time, status ledger.SaleStatus, units int) int64 {
	return f.store.PutSale(ledger.Sale{
		SellerID: sellerID, TotalLocal: dec(local), ExchangeRate: dec(rate),
		Status: status, SaleDate: at, PaymentMethod: ledger.PaymentCash,
		Lines: []ledger.SaleLine{{ProductID: 1000, Quantity: units}},
	})
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Hour), mr
}

// ============================================================================
// PERIOD REPORT
// ============================================================================

func TestComputePeriodReport(t *testing.T) {
	f := newFixture(t, nil)
	f.sale(1, "52000", "520", time.Date(2026, 5, 3, 10, 0, 0, 0, f.loc), ledger.SaleCompleted, 2)

	p, err := f.svc.ComputePeriodReport(context.Background(), admin,
		time.Date(2026, 5, 1, 0, 0, 0, 0, f.loc), time.Date(2026, 5, 10, 0, 0, 0, 0, f.loc))
	require.NoError(t, err)
	requireDec(t, "100", p.Income)
	requireDec(t, "10", p.Commission)
	requireDec(t, "90", p.NetProfit)
}

func TestComputePeriodReportGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, f.loc)

	_, err := f.svc.ComputePeriodReport(ctx, shared.Identity{}, start, f.now)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.ComputePeriodReport(ctx, sellerA, start, f.now)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.ComputePeriodReport(ctx, admin, f.now, start)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ComputePeriodReport(ctx, admin, time.Time{}, f.now)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestComputePeriodReportStorageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailOn("ShipmentsInRange", errors.New("connection reset"))

	_, err := f.svc.ComputePeriodReport(context.Background(), admin,
		time.Date(2026, 5, 1, 0, 0, 0, 0, f.loc), f.now)
	require.ErrorIs(t, err, shared.ErrStorage)
}

func TestMonthlyReportStartsAtFirstOfMonth(t *testing.T) {
	f := newFixture(t, nil)
	f.sale(1, "52000", "520", time.Date(2026, 4, 30, 23, 59, 0, 0, f.loc), ledger.SaleCompleted, 1)
	f.sale(1, "26000", "520", time.Date(2026, 5, 1, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	f.sale(1, "26000", "520", f.now.Add(time.Minute), ledger.SaleCompleted, 1)

	p, err := f.svc.MonthlyReport(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, 1, p.Sales)
	requireDec(t, "50", p.Income)
	require.True(t, time.Date(2026, 5, 1, 0, 0, 0, 0, f.loc).Equal(p.Start))
	require.True(t, f.now.Equal(p.End))
}

// ============================================================================
// ANNUAL REPORT
// ============================================================================

func TestAnnualReportBreakdown(t *testing.T) {
	f := newFixture(t, nil)
	f.sale(1, "52000", "520", time.Date(2026, 1, 31, 23, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	f.sale(2, "104000", "520", time.Date(2026, 3, 15, 9, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	f.store.PutShipment(ledger.Shipment{ShippingCostUSD: dec("20"), MerchandiseCostUSD: dec("30"),
		ShipmentDate: time.Date(2026, 3, 1, 0, 0, 0, 0, f.loc)})
	f.sale(1, "52000", "520", time.Date(2025, 12, 31, 23, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)

	report, err := f.svc.AnnualReport(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, 2026, report.Year)
	require.Len(t, report.Months, 12)

	requireDec(t, "300", report.Total.Income)
	requireDec(t, "50", report.Total.Investment)
	requireDec(t, "220", report.Total.NetProfit)

	jan := report.Months[0]
	require.Equal(t, time.January, jan.Month)
	requireDec(t, "100", jan.Income)
	requireDec(t, "0", jan.ROI)

	mar := report.Months[2]
	requireDec(t, "200", mar.Income)
	requireDec(t, "130", mar.NetProfit)
	requireDec(t, "260", mar.ROI)
	require.True(t, time.Date(2026, 3, 31, 23, 59, 59, 999999000, f.loc).Equal(mar.End))

	for _, m := range report.Months[5:] {
		require.True(t, m.Start.After(f.now), m.Month)
		require.Zero(t, m.Sales)
		requireDec(t, "0", m.Income)
		requireDec(t, "0", m.NetProfit)
	}
}

func TestAnnualReportForbiddenForSeller(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.AnnualReport(context.Background(), sellerA)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

// ============================================================================
// TOP SELLERS
// ============================================================================

func TestTopSellersRanksByUSD(t *testing.T) {
	f := newFixture(t, nil)
	f.store.PutSeller(1, "Ana")
	f.store.PutSeller(2, "Luis")
	day := time.Date(2026, 5, 19, 10, 0, 0, 0, f.loc)
	f.sale(1, "52000", "520", day, ledger.SaleCompleted, 2)
	f.sale(2, "104000", "520", day, ledger.SaleCompleted, 3)
	f.sale(3, "52000", "520", day, ledger.SaleCompleted, 1)
	f.sale(1, "999999", "520", day, ledger.SaleCancelled, 9)
	f.sale(1, "26000", "520", time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)

	rows, err := f.svc.TopSellers(context.Background(), sellerA, RankMonth)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, int64(2), rows[0].SellerID)
	require.Equal(t, "Luis", rows[0].Name)
	requireDec(t, "200", rows[0].TotalUSD)
	require.Equal(t, 3, rows[0].Units)
	// Ties break on seller id.
	require.Equal(t, int64(1), rows[1].SellerID)
	require.Equal(t, 2, rows[1].Units)
	require.Equal(t, int64(3), rows[2].SellerID)
	require.Equal(t, "seller #3", rows[2].Name)

	rows, err = f.svc.TopSellers(context.Background(), keeper, RankAll)
	require.NoError(t, err)
	requireDec(t, "150", rows[1].TotalUSD)
}

func TestTopSellersRejectsUnknownPeriod(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.TopSellers(context.Background(), sellerA, "decade")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.TopSellers(context.Background(), shared.Identity{}, RankDay)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestTopSellersEmpty(t *testing.T) {
	f := newFixture(t, nil)
	rows, err := f.svc.TopSellers(context.Background(), admin, RankDay)
	require.NoError(t, err)
	require.Empty(t, rows)
}

// ============================================================================
// SHIPMENTS
// ============================================================================

func TestRecordShipment(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.RecordShipment(context.Background(), admin, ShipmentInput{
		ShippingCostUSD: dec("10"), MerchandiseCostUSD: dec("40"),
		CustomsFeeLocal: dec("5200"), ExchangeRate: dec("520"),
	})
	require.NoError(t, err)
	require.NotZero(t, res.Shipment.ID)
	require.True(t, f.now.Equal(res.Shipment.ShipmentDate))
	require.Len(t, f.store.Shipments(), 1)

	require.Len(t, res.Events, 1)
	evt, ok := res.Events[0].(events.ShipmentRecorded)
	require.True(t, ok)
	requireDec(t, "60", evt.TotalUSD)
}

func TestRecordShipmentValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordShipment(ctx, admin, ShipmentInput{ShippingCostUSD: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RecordShipment(ctx, admin, ShipmentInput{CustomsFeeLocal: dec("100")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RecordShipment(ctx, keeper, ShipmentInput{ShippingCostUSD: dec("1")})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, f.store.Shipments())
}

func TestRecordShipmentStorageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailOn("InsertShipment", errors.New("disk full"))
	_, err := f.svc.RecordShipment(context.Background(), admin, ShipmentInput{ShippingCostUSD: decimal.NewFromInt(3)})
	require.ErrorIs(t, err, shared.ErrStorage)
	require.Empty(t, f.store.Shipments())
}

// ============================================================================
// CACHING
// ============================================================================

func TestClosedWindowsAreCachedPerLedgerVersion(t *testing.T) {
	cache, _ := newCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()
	april := MonthWindow(time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), f.loc)
	f.sale(1, "52000", "520", time.Date(2026, 4, 10, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)

	p, err := f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)

	// a row written outside a ledger transaction leaves the version alone
	f.sale(1, "52000", "520", time.Date(2026, 4, 11, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	p, err = f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)

	_, err = f.svc.RecordShipment(ctx, admin, ShipmentInput{
		ShippingCostUSD: dec("20"),
		ShipmentDate:    time.Date(2026, 4, 12, 0, 0, 0, 0, f.loc),
	})
	require.NoError(t, err)
	p, err = f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "200", p.Income)
	requireDec(t, "20", p.Investment)
}

// aprilSaleOfTwo seeds a completed April sale of two units priced 26000 each
// at rate 520, so the sale is worth 100 USD.
func aprilSaleOfTwo(f fixture) (saleID, productID int64) {
	productID = f.store.PutProduct(ledger.Product{
		SKU: "HEX-9", Name: "Fan", PurchasePrice: dec("20"), SalePrice: dec("26000"), Stock: 3, Active: true,
	})
	saleID = f.store.PutSale(ledger.Sale{
		SellerID: 1, TotalLocal: dec("52000"), ExchangeRate: dec("520"),
		Status: ledger.SaleCompleted, SaleDate: time.Date(2026, 4, 10, 0, 0, 0, 0, f.loc),
		PaymentMethod: ledger.PaymentCash,
		Lines:         []ledger.SaleLine{{ProductID: productID, Quantity: 2}},
	})
	return saleID, productID
}

func TestReturnOnCachedClosedWindowIsReflected(t *testing.T) {
	cache, _ := newCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()
	april := MonthWindow(time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), f.loc)
	saleID, productID := aprilSaleOfTwo(f)

	p, err := f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)

	// events are deliberately not dispatched
	res, err := sales.NewService(f.store, sales.Config{}).WithClock(func() time.Time { return f.now }).
		CreateReturn(ctx, admin, sales.ReturnInput{SaleID: saleID, ProductID: productID, Quantity: 1, RestockToWarehouse: true})
	require.NoError(t, err)
	requireDec(t, "26000", res.Sale.TotalLocal)

	p, err = f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "50", p.Income)
	requireDec(t, "5", p.Commission)
}

func TestCancelOnCachedClosedWindowIsReflected(t *testing.T) {
	cache, _ := newCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()
	april := MonthWindow(time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), f.loc)
	saleID, _ := aprilSaleOfTwo(f)

	p, err := f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)

	_, err = sales.NewService(f.store, sales.Config{}).CancelSale(ctx, admin, saleID)
	require.NoError(t, err)

	p, err = f.svc.ComputePeriodReport(ctx, admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "0", p.Income)
}

func TestComputePeriodReportIsRepeatable(t *testing.T) {
	withCache, _ := newCache(t)
	for name, cache := range map[string]*Cache{"uncached": nil, "cached": withCache} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, cache)
			ctx := context.Background()
			f.sale(1, "52000", "520", time.Date(2026, 4, 10, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 2)
			f.sale(2, "10400", "520", time.Date(2026, 4, 11, 0, 0, 0, 0, f.loc), ledger.SaleCancelled, 1)
			f.store.PutShipment(ledger.Shipment{ShippingCostUSD: dec("12"), MerchandiseCostUSD: dec("30"), ShipmentDate: time.Date(2026, 4, 2, 0, 0, 0, 0, f.loc)})
			saleID, productID := aprilSaleOfTwo(f)
			f.store.PutReturn(ledger.Return{SaleID: saleID, ProductID: productID, Quantity: 1, LossUSD: dec("20"), ReturnDate: time.Date(2026, 4, 15, 0, 0, 0, 0, f.loc)})

			// closed and still-open windows
			for _, w := range []Window{
				MonthWindow(time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), f.loc),
				MonthToDate(f.now, f.loc),
			} {
				first, err := f.svc.ComputePeriodReport(ctx, admin, w.Start, w.End)
				require.NoError(t, err)
				second, err := f.svc.ComputePeriodReport(ctx, admin, w.Start, w.End)
				require.NoError(t, err)
				require.Equal(t, first, second)
			}
			require.Zero(t, f.store.Commits, "reports never write")
		})
	}
}

func TestOpenWindowsBypassCache(t *testing.T) {
	cache, _ := newCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()
	f.sale(1, "52000", "520", time.Date(2026, 5, 2, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)

	p, err := f.svc.MonthlyReport(ctx, admin)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)

	f.sale(1, "52000", "520", time.Date(2026, 5, 3, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	p, err = f.svc.MonthlyReport(ctx, admin)
	require.NoError(t, err)
	requireDec(t, "200", p.Income)
}

func TestCacheOutageFallsBackToLedger(t *testing.T) {
	cache, mr := newCache(t)
	f := newFixture(t, cache)
	april := MonthWindow(time.Date(2026, 4, 1, 0, 0, 0, 0, f.loc), f.loc)
	f.sale(1, "52000", "520", time.Date(2026, 4, 10, 0, 0, 0, 0, f.loc), ledger.SaleCompleted, 1)
	mr.Close()

	p, err := f.svc.ComputePeriodReport(context.Background(), admin, april.Start, april.End)
	require.NoError(t, err)
	requireDec(t, "100", p.Income)
}
