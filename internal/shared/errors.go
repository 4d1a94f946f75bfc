package shared

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Concrete errors wrap one of these.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInsufficientCustody   = errors.New("insufficient custody")
	ErrInvalidReturnQuantity = errors.New("invalid return quantity")
	ErrAlreadyCancelled      = errors.New("sale already cancelled")
	ErrValidation            = errors.New("validation failed")
	ErrStorage               = errors.New("storage failure")
)

// Error carries a kind plus the entity it concerns so callers can render
// an actionable message.
type Error struct {
	Kind   error
	Entity string
	ID     int64
	Detail string
	cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		if e.ID != 0 {
			msg = fmt.Sprintf("%s: %s %d", msg, e.Entity, e.ID)
		} else {
			msg = fmt.Sprintf("%s: %s", msg, e.Entity)
		}
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// Unauthorized reports a missing or malformed caller identity.
func Unauthorized(detail string) error {
	return &Error{Kind: ErrUnauthorized, Detail: detail}
}

// Forbidden reports a caller whose role may not run the operation.
func Forbidden(operation string, detail string) error {
	return &Error{Kind: ErrForbidden, Entity: operation, Detail: detail}
}

// NotFound reports an unresolved entity id.
func NotFound(entity string, id int64) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InsufficientStock names the product and the quantities involved.
func InsufficientStock(productID int64, name string, available, requested int) error {
	detail := fmt.Sprintf("available %d, requested %d", available, requested)
	if name != "" {
		detail = name + ": " + detail
	}
	return &Error{Kind: ErrInsufficientStock, Entity: "product", ID: productID, Detail: detail}
}

// InsufficientCustody names the product a seller does not hold enough of.
func InsufficientCustody(sellerID, productID int64, held, requested int) error {
	return &Error{
		Kind:   ErrInsufficientCustody,
		Entity: "product",
		ID:     productID,
		Detail: fmt.Sprintf("seller %d holds %d, requested %d", sellerID, held, requested),
	}
}

// InvalidReturnQuantity reports a return exceeding what the sale line holds.
func InvalidReturnQuantity(saleID, productID int64, sold, requested int) error {
	return &Error{
		Kind:   ErrInvalidReturnQuantity,
		Entity: "sale",
		ID:     saleID,
		Detail: fmt.Sprintf("product %d sold %d, requested %d", productID, sold, requested),
	}
}

// AlreadyCancelled reports a reversal against a cancelled sale.
func AlreadyCancelled(saleID int64) error {
	return &Error{Kind: ErrAlreadyCancelled, Entity: "sale", ID: saleID}
}

// Validation reports malformed input on a named field.
func Validation(field, detail string) error {
	return &Error{Kind: ErrValidation, Entity: field, Detail: detail}
}

// Storage wraps a store failure. Engine errors pass through untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: ErrStorage, Detail: op, cause: err}
}
