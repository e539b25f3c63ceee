package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// LineItemType classifies an invoice line.
type LineItemType string

// LineItemType constants define the supported line kinds.
const (
	LineItemTypeSubscription LineItemType = "subscription"
	LineItemTypeSetupFee     LineItemType = "setup_fee"
	LineItemTypeAddon        LineItemType = "addon"
	LineItemTypeOverage      LineItemType = "overage"
	LineItemTypeDiscount     LineItemType = "discount"
	LineItemTypeTax          LineItemType = "tax"
	LineItemTypeRefund       LineItemType = "refund"
	LineItemTypeCustom       LineItemType = "custom"
)

// Valid reports whether t is a known line item type.
func (t LineItemType) Valid() bool {
	switch t {
	case LineItemTypeSubscription, LineItemTypeSetupFee, LineItemTypeAddon, LineItemTypeOverage,
		LineItemTypeDiscount, LineItemTypeTax, LineItemTypeRefund, LineItemTypeCustom:
		return true
	default:
		return false
	}
}

// InvoiceLineItem is one billable row owned by an invoice.
type InvoiceLineItem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InvoiceID uint64 `gorm:"not null;index:idx_invoice_items_order,priority:1"` // Owning invoice ID.

	ItemType    LineItemType `gorm:"type:varchar(16);not null;default:subscription"` // Line kind.
	Description string       `gorm:"type:text"`                                      // Printed description.
	ItemCode    string       `gorm:"type:varchar(64)"`                               // SKU or product code.

	Quantity       int             `gorm:"not null;default:1"`                    // Units billed.
	UnitPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Price per unit.
	TotalPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Quantity times unit price unless overridden.
	ExplicitTotal  bool            `gorm:"not null;default:false"`                // TotalPrice was set by the caller.
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Line discount.

	PeriodStart *time.Time // Service period start.
	PeriodEnd   *time.Time // Service period end.
	IsProrated  bool       `gorm:"not null;default:false"` // Prorated amount flag.

	TaxRate     decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0"`  // Line tax rate.
	TaxAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Line tax amount.
	IsTaxExempt bool            `gorm:"not null;default:false"`                // Tax exemption flag.

	Metadata   datatypes.JSON `gorm:"type:jsonb"`        // Free-form metadata.
	ExternalID string         `gorm:"type:varchar(255)"` // Reference in an external system.

	SortOrder int `gorm:"not null;default:0;index:idx_invoice_items_order,priority:2"` // Display order.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// NetAmount returns the line total after its own discount.
func (l *InvoiceLineItem) NetAmount() decimal.Decimal {
	return l.TotalPrice.Sub(l.DiscountAmount)
}
