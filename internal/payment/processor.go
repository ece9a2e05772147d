package payment

import (
	"context"
	"errors"
	"fmt"

	"bakery-backend/internal/apperr"

	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadyCaptured is returned by Capture for an intent that was captured earlier.
	// Callers treat it as success.
	ErrAlreadyCaptured = errors.New("payment already captured")
	// ErrAlreadyCancelled is returned by Cancel for an intent that is already released.
	ErrAlreadyCancelled = errors.New("payment already cancelled")
)

type AuthorizeRequest struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Authorization is the handle of a placed hold. ClientSecret is handed to the storefront
// so the customer can confirm the payment method.
type Authorization struct {
	Handle       string
	ClientSecret string
}

type Processor interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	Capture(ctx context.Context, handle string) error
	Cancel(ctx context.Context, handle string) error
}

// Error carries the processor's message for a failed operation. It unwraps to
// apperr.ErrPayment.
type Error struct {
	Op      string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment %s failed", e.Op)
	}
	return fmt.Sprintf("payment %s failed: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return apperr.ErrPayment
}

// MinorUnits converts a two-decimal money amount to integer minor units (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
