package invoice

import (
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
)

// Decimal places used for stored amounts and rates.
const (
	moneyPlaces = 2
	ratePlaces  = 4
)

// totalsTolerance is the largest drift accepted between stored and computed totals.
var totalsTolerance = decimal.New(1, -moneyPlaces)

func roundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(moneyPlaces) }

func roundRate(d decimal.Decimal) decimal.Decimal { return d.Round(ratePlaces) }

// Totals holds the derived invoice amounts.
type Totals struct {
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
}

// ComputeTotals derives invoice totals from its lines, the invoice tax rate,
// and the invoice level discount. Discount lines carry negative totals and
// need no special casing.
func ComputeTotals(lines []models.InvoiceLineItem, taxRate, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].NetAmount())
	}
	subtotal = roundMoney(subtotal)
	tax := roundMoney(subtotal.Mul(taxRate))
	return Totals{
		Subtotal:    subtotal,
		TaxAmount:   tax,
		TotalAmount: roundMoney(subtotal.Add(tax).Sub(discount)),
	}
}

// priceLine fills the derived amounts of a line: its total, unless the caller
// fixed it explicitly, and its own tax.
func priceLine(line *models.InvoiceLineItem) {
	line.UnitPrice = roundMoney(line.UnitPrice)
	line.DiscountAmount = roundMoney(line.DiscountAmount)
	line.TaxRate = roundRate(line.TaxRate)
	if line.ExplicitTotal {
		line.TotalPrice = roundMoney(line.TotalPrice)
	} else {
		line.TotalPrice = roundMoney(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if line.IsTaxExempt {
		line.TaxAmount = decimal.Zero
		return
	}
	line.TaxAmount = roundMoney(line.NetAmount().Mul(line.TaxRate))
}

// VerifyTotals checks the stored totals of inv against inv.Items.
func VerifyTotals(inv *models.Invoice) error {
	if inv == nil {
		return ErrNotFound
	}
	want := ComputeTotals(inv.Items, inv.TaxRate, inv.DiscountAmount)
	if drift(inv.Subtotal, want.Subtotal) || drift(inv.TaxAmount, want.TaxAmount) || drift(inv.TotalAmount, want.TotalAmount) {
		return &TotalsError{InvoiceNumber: inv.InvoiceNumber, Stored: storedTotals(inv), Computed: want}
	}
	return nil
}

func drift(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(totalsTolerance)
}

func storedTotals(inv *models.Invoice) Totals {
	return Totals{Subtotal: inv.Subtotal, TaxAmount: inv.TaxAmount, TotalAmount: inv.TotalAmount}
}

// TotalsError reports a mismatch found by VerifyTotals.
type TotalsError struct {
	InvoiceNumber string
	Stored        Totals
	Computed      Totals
}

// Error implements error.
func (e *TotalsError) Error() string {
	return ErrInconsistentTotals.Error() + ": " + e.InvoiceNumber +
		" stored total " + e.Stored.TotalAmount.StringFixed(moneyPlaces) +
		", lines give " + e.Computed.TotalAmount.StringFixed(moneyPlaces)
}

// Unwrap lets errors.Is match ErrInconsistentTotals.
func (e *TotalsError) Unwrap() error { return ErrInconsistentTotals }
