package invoice

import (
	"errors"
	"fmt"

	"github.com/router-for-me/QRMenuBilling/internal/models"
)

var (
	// ErrNotFound indicates the referenced invoice or line item does not exist.
	ErrNotFound = errors.New("invoice: not found")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invoice: invalid status transition")

	// ErrSequenceExhausted indicates no free invoice number was found within the retry budget.
	ErrSequenceExhausted = errors.New("invoice: could not allocate a free invoice number")

	// ErrInconsistentTotals indicates stored totals disagree with the line items.
	ErrInconsistentTotals = errors.New("invoice: totals do not match line items")

	// ErrInvoiceLocked indicates line items cannot change once the invoice left draft.
	ErrInvoiceLocked = errors.New("invoice: line items can only change while draft")

	// ErrInvalidInput indicates a malformed request parameter.
	ErrInvalidInput = errors.New("invoice: invalid input")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From   models.InvoiceStatus
	To     models.InvoiceStatus
	Reason string
}

// Error implements error.
func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s -> %s (%s)", ErrInvalidTransition, e.From, e.To, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
