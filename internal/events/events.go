// Package events defines the outbox entries returned by engine operations.
// Callers hand them to the notification dispatcher once the owning
// transaction has committed.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindStockDepleted     Kind = "stock.depleted"
	KindSaleConfirmed     Kind = "sale.confirmed"
	KindSaleCancelled     Kind = "sale.cancelled"
	KindReturnRecorded    Kind = "sale.return_recorded"
	KindCustodyAssigned   Kind = "custody.assigned"
	KindCustodyReclaimed  Kind = "custody.reclaimed"
	KindProductCreated    Kind = "product.created"
	KindStockAdjusted     Kind = "product.stock_adjusted"
	KindShipmentRecorded  Kind = "shipment.recorded"
	KindPricesRefreshed   Kind = "pricing.refreshed"
	KindSellerPriceList   Kind = "pricing.seller_price_list"
	KindWarrantyExpired   Kind = "warranty.expired"
	KindPeriodReportReady Kind = "finance.report_ready"
)

// Event is one outbox entry.
type Event interface {
	Kind() Kind
	// Subject names the entity the event is about.
	Subject() (entity string, id int64)
}

// StockDepleted fires when a sale drives warehouse stock to zero.
type StockDepleted struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
}

func (StockDepleted) Kind() Kind { return KindStockDepleted }
func (e StockDepleted) Subject() (string, int64) { return "product", e.ProductID }

// SaleLine is the line summary carried by sale events.
type SaleLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
}

// SaleConfirmed fires after a sale commits.
type SaleConfirmed struct {
	SaleID        int64           `json:"sale_id"`
	SellerID      int64           `json:"seller_id"`
	TotalLocal    decimal.Decimal `json:"total_local"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []SaleLine      `json:"lines"`

	// EstimatedProfitUSD is income minus merchandise cost minus commission.
	EstimatedProfitUSD decimal.Decimal `json:"estimated_profit_usd"`
}

func (SaleConfirmed) Kind() Kind { return KindSaleConfirmed }
func (e SaleConfirmed) Subject() (string, int64) { return "sale", e.SaleID }

// SaleCancelled fires after a cancellation commits.
type SaleCancelled struct {
	SaleID   int64 `json:"sale_id"`
	SellerID int64 `json:"seller_id"`
	ActorID  int64 `json:"actor_id"`
	Units    int   `json:"units"`
}

func (SaleCancelled) Kind() Kind { return KindSaleCancelled }
func (e SaleCancelled) Subject() (string, int64) { return "sale", e.SaleID }

// ReturnRecorded fires after a return commits.
type ReturnRecorded struct {
	ReturnID      int64           `json:"return_id"`
	SaleID        int64           `json:"sale_id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	RefundLocal   decimal.Decimal `json:"refund_local"`
	LossUSD       decimal.Decimal `json:"loss_usd"`
	Restocked     bool            `json:"restocked"`
	Reason        string          `json:"reason"`
	SaleCancelled bool            `json:"sale_cancelled"`
}

func (ReturnRecorded) Kind() Kind { return KindReturnRecorded }
func (e ReturnRecorded) Subject() (string, int64) { return "return", e.ReturnID }

// CustodyAssigned fires after stock is loaned to a seller.
type CustodyAssigned struct {
	SellerID  int64 `json:"seller_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Holding   int   `json:"holding"`
}

func (CustodyAssigned) Kind() Kind { return KindCustodyAssigned }
func (e CustodyAssigned) Subject() (string, int64) { return "product", e.ProductID }

// CustodyReclaimed fires after stock is taken back from a seller.
type CustodyReclaimed struct {
	SellerID  int64 `json:"seller_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Holding   int   `json:"holding"`
}

func (CustodyReclaimed) Kind() Kind { return KindCustodyReclaimed }
func (e CustodyReclaimed) Subject() (string, int64) { return "product", e.ProductID }

// ProductCreated fires after a product is registered.
type ProductCreated struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

func (ProductCreated) Kind() Kind { return KindProductCreated }
func (e ProductCreated) Subject() (string, int64) { return "product", e.ProductID }

// StockAdjusted fires after a manual stock correction.
type StockAdjusted struct {
	ProductID int64 `json:"product_id"`
	Previous  int   `json:"previous"`
	Stock     int   `json:"stock"`
	Active    bool  `json:"active"`
}

func (StockAdjusted) Kind() Kind { return KindStockAdjusted }
func (e StockAdjusted) Subject() (string, int64) { return "product", e.ProductID }

// ShipmentRecorded fires after an investment shipment is stored.
type ShipmentRecorded struct {
	ShipmentID int64           `json:"shipment_id"`
	TotalUSD   decimal.Decimal `json:"total_usd"`
}

func (ShipmentRecorded) Kind() Kind { return KindShipmentRecorded }
func (e ShipmentRecorded) Subject() (string, int64) { return "shipment", e.ShipmentID }

// PricesRefreshed fires after sale prices were recomputed from a new rate.
type PricesRefreshed struct {
	Rate     decimal.Decimal `json:"rate"`
	Products int             `json:"products"`
}

func (PricesRefreshed) Kind() Kind { return KindPricesRefreshed }
func (PricesRefreshed) Subject() (string, int64) { return "system_configuration", 1 }

// PriceItem is one product on a seller price list.
type PriceItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Quantity  int             `json:"quantity"`
}

// SellerPriceList carries refreshed prices for the stock a seller holds.
type SellerPriceList struct {
	SellerID int64       `json:"seller_id"`
	Items    []PriceItem `json:"items"`
}

func (SellerPriceList) Kind() Kind { return KindSellerPriceList }
func (e SellerPriceList) Subject() (string, int64) { return "seller", e.SellerID }

// WarrantyExpired fires for sales whose warranty window closed today.
type WarrantyExpired struct {
	SaleID     int64     `json:"sale_id"`
	SellerID   int64     `json:"seller_id"`
	BuyerPhone string    `json:"buyer_phone"`
	SaleDate   time.Time `json:"sale_date"`
	Products   []string  `json:"products"`
}

func (WarrantyExpired) Kind() Kind { return KindWarrantyExpired }
func (e WarrantyExpired) Subject() (string, int64) { return "sale", e.SaleID }

// PeriodReportReady carries an automatically generated financial report.
type PeriodReportReady struct {
	Scope      string          `json:"scope"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Income     decimal.Decimal `json:"income"`
	Investment decimal.Decimal `json:"investment"`
	Commission decimal.Decimal `json:"commission"`
	NetProfit  decimal.Decimal `json:"net_profit"`
}

func (PeriodReportReady) Kind() Kind { return KindPeriodReportReady }
func (PeriodReportReady) Subject() (string, int64) { return "report", 0 }

// Dispatcher delivers committed events. Implementations must not block the
// caller on delivery and must not report delivery failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, evts ...Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Dispatch(context.Context, ...Event) {}
