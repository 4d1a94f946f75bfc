package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/shared"
)

// AssignInput loans warehouse units to a seller.
type AssignInput struct {
	SellerID  int64 `json:"seller_id" validate:"required,gt=0"`
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

func (in AssignInput) validate() error {
	return validateMove(in.SellerID, in.ProductID, in.Quantity)
}

// ReclaimInput takes units back from a seller.
type ReclaimInput struct {
	SellerID  int64 `json:"seller_id" validate:"required,gt=0"`
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

func (in ReclaimInput) validate() error {
	return validateMove(in.SellerID, in.ProductID, in.Quantity)
}

func validateMove(sellerID, productID int64, qty int) error {
	switch {
	case sellerID <= 0:
		return shared.Validation("seller_id", "must be positive")
	case productID <= 0:
		return shared.Validation("product_id", "must be positive")
	case qty <= 0:
		return shared.Validation("quantity", "must be positive")
	}
	return nil
}

// CustodyResult is the custody row after a move. A reclaim that empties the
// row reports Quantity 0; the row itself is gone.
type CustodyResult struct {
	Custody ledger.Custody `json:"custody"`
	Events  []events.Event `json:"-"`
}

// HeldProduct is a custody row joined with its product.
type HeldProduct struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Quantity  int             `json:"quantity"`
}

// ProductInput registers a product.
type ProductInput struct {
	SKU           string          `json:"sku" validate:"omitempty,max=40"`
	Name          string          `json:"name" validate:"required,max=200"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Stock         int             `json:"stock" validate:"gte=0"`
	Warranty      bool            `json:"warranty"`
	CategoryIDs   []int64         `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

func (in ProductInput) validate() error {
	switch {
	case in.Name == "":
		return shared.Validation("name", "required")
	case in.PurchasePrice.IsNegative():
		return shared.Validation("purchase_price", "must not be negative")
	case in.SalePrice.IsNegative():
		return shared.Validation("sale_price", "must not be negative")
	case in.Stock < 0:
		return shared.Validation("stock", "must not be negative")
	}
	return nil
}

// ProductResult is the product after a catalogue change.
type ProductResult struct {
	Product ledger.Product `json:"product"`
	Events  []events.Event `json:"-"`
}
