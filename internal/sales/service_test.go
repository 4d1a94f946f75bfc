package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/ledger/ledgertest"
	"github.com/habana-express/market-engine/internal/shared"
)

// ============================================================================
// FIXTURES
// ============================================================================

var (
	seller = shared.Identity{ID: 1, Role: shared.RoleSeller}
	admin  = shared.Identity{ID: 99, Role: shared.RoleAdmin}
	keeper = shared.Identity{ID: 50, Role: shared.RoleStorekeeper}
	fixed  = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)
)

type fixture struct {
	svc   *Service
	store *ledgertest.Memory
	a, b  int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledgertest.New()
	a := store.PutProduct(ledger.Product{
		SKU: "A", Name: "Power bank", PurchasePrice: decimal.NewFromInt(4),
		SalePrice: decimal.NewFromInt(100), Stock: 10, Active: true,
	})
	b := store.PutProduct(ledger.Product{
		SKU: "B", Name: "Cable", PurchasePrice: decimal.NewFromInt(1),
		SalePrice: decimal.NewFromInt(50), Stock: 5, Active: true,
	})
	svc := NewService(store, Config{PhoneRegion: "US"}).WithClock(func() time.Time { return fixed })
	return fixture{svc: svc, store: store, a: a, b: b}
}

func (f fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok)
	return p.Stock
}

func (f fixture) held(sellerID, productID int64) int {
	c, ok := f.store.Custody(sellerID, productID)
	if !ok {
		return 0
	}
	return c.Quantity
}

func saleInput(lines ...LineInput) CreateSaleInput {
	return CreateSaleInput{
		SellerID:      seller.ID,
		Lines:         lines,
		ExchangeRate:  decimal.NewFromInt(520),
		TotalLocal:    decimal.NewFromInt(52000),
		PaymentMethod: ledger.PaymentCash,
	}
}

// ============================================================================
// CREATE SALE
// ============================================================================

func TestCreateSaleConsumesCustodyAndStock(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 2})

	res, err := f.svc.CreateSale(context.Background(), seller, saleInput(LineInput{ProductID: f.a, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, ledger.SaleCompleted, res.Sale.Status)
	require.Equal(t, fixed, res.Sale.SaleDate)
	require.Len(t, res.Sale.Lines, 1)
	require.Equal(t, 8, f.stock(t, f.a))
	_, ok := f.store.Custody(1, f.a)
	require.False(t, ok, "custody reaching zero is deleted")

	stored, ok := f.store.Sale(res.Sale.ID)
	require.True(t, ok)
	require.Equal(t, 2, stored.Units())

	require.Len(t, res.Events, 1)
	confirmed, ok := res.Events[0].(events.SaleConfirmed)
	require.True(t, ok)
	require.Equal(t, res.Sale.ID, confirmed.SaleID)
	// 52000/520 = 100 income, 8 cost, 10 commission.
	require.True(t, decimal.NewFromInt(82).Equal(confirmed.EstimatedProfitUSD), confirmed.EstimatedProfitUSD.String())
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 3})
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.b, Quantity: 1})

	_, err := f.svc.CreateSale(context.Background(), seller, saleInput(
		LineInput{ProductID: f.a, Quantity: 2},
		LineInput{ProductID: f.b, Quantity: 2},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var typed *shared.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, f.b, typed.ID)
	require.Contains(t, err.Error(), "Cable")

	require.Equal(t, 10, f.stock(t, f.a))
	require.Equal(t, 5, f.stock(t, f.b))
	require.Equal(t, 3, f.held(1, f.a))
	require.Equal(t, 1, f.held(1, f.b))
	require.Zero(t, f.store.Commits)
}

func TestLedgerVersionAdvancesOnlyWithCommittedSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 3})
	version := func() int64 {
		cfg, err := f.store.GetConfig(ctx)
		require.NoError(t, err)
		return cfg.LedgerVersion
	}
	require.Zero(t, version())

	_, err := f.svc.CreateSale(ctx, seller, saleInput(LineInput{ProductID: f.a, Quantity: 9}))
	require.Error(t, err)
	require.Zero(t, version(), "rolled back sale keeps the version")

	res, err := f.svc.CreateSale(ctx, seller, saleInput(LineInput{ProductID: f.a, Quantity: 2}))
	require.NoError(t, err)
	require.EqualValues(t, 1, version())

	_, err = f.svc.CreateReturn(ctx, admin, ReturnInput{SaleID: res.Sale.ID, ProductID: f.a, Quantity: 1, RestockToWarehouse: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, version())

	_, err = f.svc.CancelSale(ctx, admin, res.Sale.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, version())
}

func TestCreateSaleMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 3})

	_, err := f.svc.CreateSale(context.Background(), seller, saleInput(
		LineInput{ProductID: f.a, Quantity: 2},
		LineInput{ProductID: f.a, Quantity: 2},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	res, err := f.svc.CreateSale(context.Background(), seller, saleInput(
		LineInput{ProductID: f.a, Quantity: 1},
		LineInput{ProductID: f.a, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, res.Sale.Lines, 1)
	require.Equal(t, 3, res.Sale.Lines[0].Quantity)
	require.Equal(t, 7, f.stock(t, f.a))
}

func TestCreateSaleChecksWarehouseIndependently(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.b, Quantity: 8})

	_, err := f.svc.CreateSale(context.Background(), seller, saleInput(LineInput{ProductID: f.b, Quantity: 6}))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 5, f.stock(t, f.b))
	require.Equal(t, 8, f.held(1, f.b))
}

func TestCreateSaleDepletesProduct(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.b, Quantity: 5})

	res, err := f.svc.CreateSale(context.Background(), seller, saleInput(LineInput{ProductID: f.b, Quantity: 5}))
	require.NoError(t, err)

	p, _ := f.store.Product(f.b)
	require.Equal(t, 0, p.Stock)
	require.False(t, p.Active)

	require.Len(t, res.Events, 2)
	depleted, ok := res.Events[0].(events.StockDepleted)
	require.True(t, ok)
	require.Equal(t, f.b, depleted.ProductID)
	require.Equal(t, events.KindSaleConfirmed, res.Events[1].Kind())
}

func TestCreateSaleIdentityRules(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 4})
	ctx := context.Background()

	other := shared.Identity{ID: 2, Role: shared.RoleSeller}
	_, err := f.svc.CreateSale(ctx, other, saleInput(LineInput{ProductID: f.a, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.CreateSale(ctx, keeper, saleInput(LineInput{ProductID: f.a, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.CreateSale(ctx, shared.Identity{}, saleInput(LineInput{ProductID: f.a, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	res, err := f.svc.CreateSale(ctx, admin, saleInput(LineInput{ProductID: f.a, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, seller.ID, res.Sale.SellerID)
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := saleInput(LineInput{ProductID: f.a, Quantity: 0})
	_, err := f.svc.CreateSale(ctx, seller, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = saleInput()
	_, err = f.svc.CreateSale(ctx, seller, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = saleInput(LineInput{ProductID: f.a, Quantity: 1})
	in.PaymentMethod = "BARTER"
	_, err = f.svc.CreateSale(ctx, seller, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = saleInput(LineInput{ProductID: f.a, Quantity: 1})
	in.TotalLocal = decimal.NewFromInt(-5)
	_, err = f.svc.CreateSale(ctx, seller, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = saleInput(LineInput{ProductID: f.a, Quantity: 1})
	in.BuyerPhone = "12"
	_, err = f.svc.CreateSale(ctx, seller, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateSaleNormalizesPhoneAndDefaultsRate(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 1})

	in := saleInput(LineInput{ProductID: f.a, Quantity: 1})
	in.ExchangeRate = decimal.Zero
	in.BuyerPhone = "+1 650-253-0000"
	res, err := f.svc.CreateSale(context.Background(), seller, in)
	require.NoError(t, err)
	require.Equal(t, "+16502530000", res.Sale.BuyerPhone)
	require.True(t, decimal.NewFromInt(320).Equal(res.Sale.ExchangeRate))
}

func TestCreateSaleStorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.a, Quantity: 2})
	f.store.PutCustody(ledger.Custody{SellerID: 1, ProductID: f.b, Quantity: 2})
	f.store.FailOn("DeleteCustody", errors.New("connection lost"))

	_, err := f.svc.CreateSale(context.Background(), seller, saleInput(
		LineInput{ProductID: f.a, Quantity: 1},
		LineInput{ProductID: f.b, Quantity: 2},
	))
	require.ErrorIs(t, err, shared.ErrStorage)
	require.Equal(t, 10, f.stock(t, f.a))
	require.Equal(t, 2, f.held(1, f.a))
	require.Equal(t, 2, f.held(1, f.b))
	_, ok := f.store.Sale(3)
	require.False(t, ok)
}

func TestGetSaleScopesSellers(t *testing.T) {
	f := newFixture(t)
	id := f.store.PutSale(ledger.Sale{SellerID: 1, Status: ledger.SaleCompleted, TotalLocal: decimal.NewFromInt(100), ExchangeRate: decimal.NewFromInt(100)})
	ctx := context.Background()

	sale, err := f.svc.GetSale(ctx, seller, id)
	require.NoError(t, err)
	require.Equal(t, id, sale.ID)

	_, err = f.svc.GetSale(ctx, shared.Identity{ID: 2, Role: shared.RoleSeller}, id)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.GetSale(ctx, admin, 4040)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
