package sales

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/shared"
)

// ============================================================================
// SALE
// ============================================================================

// LineInput is one requested product/quantity pair.
type LineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CreateSaleInput describes a sale drawn against a seller's custody. A zero
// ExchangeRate falls back to the configured default rate.
type CreateSaleInput struct {
	SellerID      int64                `json:"seller_id" validate:"omitempty,gt=0"`
	Lines         []LineInput          `json:"lines" validate:"required,min=1,dive"`
	ExchangeRate  decimal.Decimal      `json:"exchange_rate"`
	TotalLocal    decimal.Decimal      `json:"total_local"`
	BuyerPhone    string               `json:"buyer_phone" validate:"omitempty,max=32"`
	PaymentMethod ledger.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER"`
}

// SaleResult is the sale graph after a mutation.
type SaleResult struct {
	Sale   ledger.Sale    `json:"sale"`
	Events []events.Event `json:"-"`
}

// normalize validates the input and merges duplicate products, returning
// lines ordered by product id so row locks are always taken in that order.
func (in CreateSaleInput) normalize(region string) (CreateSaleInput, error) {
	if in.SellerID <= 0 {
		return in, shared.Validation("seller_id", "must be positive")
	}
	if len(in.Lines) == 0 {
		return in, shared.Validation("lines", "at least one line required")
	}
	merged := make(map[int64]int, len(in.Lines))
	for _, l := range in.Lines {
		if l.ProductID <= 0 {
			return in, shared.Validation("product_id", "must be positive")
		}
		if l.Quantity <= 0 {
			return in, shared.Validation("quantity", "must be positive")
		}
		merged[l.ProductID] += l.Quantity
	}
	lines := make([]LineInput, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, LineInput{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	in.Lines = lines

	if in.ExchangeRate.IsNegative() {
		return in, shared.Validation("exchange_rate", "must be positive")
	}
	if in.TotalLocal.IsNegative() {
		return in, shared.Validation("total_local", "must not be negative")
	}
	if !in.PaymentMethod.Valid() {
		return in, shared.Validation("payment_method", "must be CASH or TRANSFER")
	}
	phone, err := NormalizePhone(in.BuyerPhone, region)
	if err != nil {
		return in, err
	}
	in.BuyerPhone = phone
	return in, nil
}

// NormalizePhone validates a buyer phone and formats it as E.164. Empty input
// is allowed.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", shared.Validation("buyer_phone", err.Error())
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", shared.Validation("buyer_phone", "not a valid phone number")
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// ============================================================================
// RETURN
// ============================================================================

// ReturnInput describes units coming back from a sale.
type ReturnInput struct {
	SaleID             int64  `json:"-"`
	ProductID          int64  `json:"product_id" validate:"required,gt=0"`
	Quantity           int    `json:"quantity" validate:"required,gt=0"`
	Reason             string `json:"reason" validate:"max=500"`
	RestockToWarehouse bool   `json:"restock_to_warehouse"`
}

func (in ReturnInput) validate() error {
	switch {
	case in.SaleID <= 0:
		return shared.Validation("sale_id", "must be positive")
	case in.ProductID <= 0:
		return shared.Validation("product_id", "must be positive")
	case in.Quantity <= 0:
		return shared.Validation("quantity", "must be positive")
	case len(in.Reason) > 500:
		return shared.Validation("reason", "too long")
	}
	return nil
}

// ReturnResult is the return row and the sale it adjusted.
type ReturnResult struct {
	Return      ledger.Return   `json:"return"`
	Sale        ledger.Sale     `json:"sale"`
	RefundLocal decimal.Decimal `json:"refund_local"`
	Events      []events.Event  `json:"-"`
}
