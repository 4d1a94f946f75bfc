package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/shared"
)

// SaleStatus enumerates the lifecycle of a sale.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "COMPLETED"
	SaleCancelled SaleStatus = "CANCELLED"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

// Valid reports whether the payment method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentTransfer
}

// Product is a warehouse stock item. PurchasePrice is USD, SalePrice local currency.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Stock         int             `json:"stock"`
	Active        bool            `json:"active"`
	Warranty      bool            `json:"warranty"`
	CategoryIDs   []int64         `json:"category_ids"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Custody is stock held by a seller. Rows exist only while Quantity > 0.
type Custody struct {
	SellerID  int64     `json:"seller_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sale is a sale header owning its lines.
type Sale struct {
	ID            int64           `json:"id"`
	SellerID      int64           `json:"seller_id"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	TotalLocal    decimal.Decimal `json:"total_local"`
	Status        SaleStatus      `json:"status"`
	BuyerPhone    string          `json:"buyer_phone"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SaleDate      time.Time       `json:"sale_date"`
	Lines         []SaleLine      `json:"lines"`
}

// Line returns the line for productID.
func (s Sale) Line(productID int64) (SaleLine, bool) {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return SaleLine{}, false
}

// Units sums line quantities.
func (s Sale) Units() int {
	total := 0
	for _, l := range s.Lines {
		total += l.Quantity
	}
	return total
}

// SaleLine is one product/quantity entry of a sale.
type SaleLine struct {
	ID        int64 `json:"id"`
	SaleID    int64 `json:"sale_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Return records units coming back from a sale.
type Return struct {
	ID         int64           `json:"id"`
	SaleID     int64           `json:"sale_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	LossUSD    decimal.Decimal `json:"loss_usd"`
	Reason     string          `json:"reason"`
	Restocked  bool            `json:"restocked"`
	ReturnDate time.Time       `json:"return_date"`
}

// Shipment is one investment event.
type Shipment struct {
	ID                 int64           `json:"id"`
	ShippingCostUSD    decimal.Decimal `json:"shipping_cost_usd"`
	MerchandiseCostUSD decimal.Decimal `json:"merchandise_cost_usd"`
	CustomsFeeLocal    decimal.Decimal `json:"customs_fee_local"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	ShipmentDate       time.Time       `json:"shipment_date"`
	Notes              string          `json:"notes"`
}

// Config is a snapshot of the system configuration row.
type Config struct {
	SellerCommissionPercent decimal.Decimal `json:"seller_commission_percent"`
	DefaultExchangeRate     decimal.Decimal `json:"default_exchange_rate"`
	UpdatedAt               time.Time       `json:"updated_at"`
	// LedgerVersion advances in the same transaction as every write to sales,
	// sale lines, returns or shipments.
	LedgerVersion int64 `json:"ledger_version"`
}

// ErrNotFound indicates a missing row.
var ErrNotFound = errors.New("ledger: row not found")

// Resolve translates ErrNotFound into the engine's typed NotFound for entity.
// Other errors pass through.
func Resolve(err error, entity string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return shared.NotFound(entity, id)
	}
	return err
}
