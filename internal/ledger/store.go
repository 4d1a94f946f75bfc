package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Reader exposes the read side used outside transactions.
type Reader interface {
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListCustody(ctx context.Context, sellerID int64) ([]Custody, error)
	ListAllCustody(ctx context.Context) ([]Custody, error)
	GetConfig(ctx context.Context) (Config, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	ListActiveProducts(ctx context.Context) ([]Product, error)
	// SalesInRange returns sales of any status with SaleDate in [from, to], lines included.
	SalesInRange(ctx context.Context, from, to time.Time) ([]Sale, error)
	ShipmentsInRange(ctx context.Context, from, to time.Time) ([]Shipment, error)
	ReturnsInRange(ctx context.Context, from, to time.Time) ([]Return, error)
	SellerNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Store is the transactional ledger.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes row level operations inside one transaction. Methods suffixed
// ForUpdate lock the rows they return until commit.
type Tx interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	ListActiveProductsForUpdate(ctx context.Context) ([]Product, error)
	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProductStock(ctx context.Context, id int64, stock int, active bool) error
	UpdateSalePrice(ctx context.Context, id int64, price decimal.Decimal) error

	GetCustodyForUpdate(ctx context.Context, sellerID, productID int64) (Custody, error)
	SumCustody(ctx context.Context, productID int64) (int, error)
	UpsertCustody(ctx context.Context, c Custody) error
	DeleteCustody(ctx context.Context, sellerID, productID int64) error

	InsertSale(ctx context.Context, s Sale) (int64, error)
	InsertSaleLine(ctx context.Context, l SaleLine) (int64, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateSaleLineQuantity(ctx context.Context, lineID int64, qty int) error
	DeleteSaleLine(ctx context.Context, lineID int64) error
	UpdateSale(ctx context.Context, id int64, status SaleStatus, total decimal.Decimal) error

	InsertReturn(ctx context.Context, r Return) (int64, error)
	InsertShipment(ctx context.Context, s Shipment) (int64, error)

	GetConfig(ctx context.Context) (Config, error)
	UpdateDefaultExchangeRate(ctx context.Context, rate decimal.Decimal) error
}
