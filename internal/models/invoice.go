package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

// InvoiceStatus constants define invoice lifecycle states.
const (
	// InvoiceStatusDraft marks an invoice that has not been sent.
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusSent marks an invoice delivered to the customer.
	InvoiceStatusSent InvoiceStatus = "sent"
	// InvoiceStatusViewed marks an invoice the customer opened.
	InvoiceStatusViewed InvoiceStatus = "viewed"
	// InvoiceStatusPaid marks a fully paid invoice.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusPartiallyPaid marks a partially paid invoice.
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	// InvoiceStatusOverdue marks an unpaid invoice past its due date.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	// InvoiceStatusFailed marks an invoice whose last payment attempt failed.
	InvoiceStatusFailed InvoiceStatus = "failed"
	// InvoiceStatusCancelled marks a cancelled invoice.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	// InvoiceStatusRefunded marks a refunded invoice.
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// InvoiceStatuses lists every valid invoice status.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusSent,
	InvoiceStatusViewed,
	InvoiceStatusPaid,
	InvoiceStatusPartiallyPaid,
	InvoiceStatusOverdue,
	InvoiceStatusFailed,
	InvoiceStatusCancelled,
	InvoiceStatusRefunded,
}

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	for _, known := range InvoiceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Invoice stores the invoice header, its totals, and delivery state.
type Invoice struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InvoiceNumber string `gorm:"type:varchar(32);not null;uniqueIndex"` // Human facing number, e.g. QR202501007.
	InvoiceSeries string `gorm:"type:varchar(10);not null;default:QR"`  // Numbering series.
	PublicID      string `gorm:"type:varchar(36);not null;uniqueIndex"` // Opaque ID for customer links.

	UserID uint64 `gorm:"not null;index:idx_invoices_user_status,priority:1"` // Billed user ID.
	User   User   `gorm:"foreignKey:UserID"`                                  // Billed user record.

	SubscriptionID *uint64       `gorm:"index"`                     // Related subscription ID.
	Subscription   *Subscription `gorm:"foreignKey:SubscriptionID"` // Related subscription.

	Subtotal       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Sum of line nets.
	TaxRate        decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0"`  // Tax rate, 0.18 for 18%.
	TaxAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Computed tax.
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Invoice level discount.
	TotalAmount    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // Amount due.
	Currency       string          `gorm:"type:varchar(3);not null;default:USD"`  // ISO currency code.

	InvoiceDate        time.Time  `gorm:"not null"`                                          // Issue timestamp.
	DueDate            time.Time  `gorm:"not null;index:idx_invoices_status_due,priority:2"` // Payment deadline.
	PaidAt             *time.Time // Payment timestamp.
	PaymentAttemptedAt *time.Time // Last payment attempt timestamp.
	PaymentAttempts    int        `gorm:"not null;default:0"` // Number of payment attempts.

	Status InvoiceStatus `gorm:"type:varchar(16);not null;default:draft;index:idx_invoices_user_status,priority:2;index:idx_invoices_status_due,priority:1"` // Lifecycle state.

	CustomerData   datatypes.JSON `gorm:"type:jsonb"` // Customer snapshot at issue time.
	BillingAddress datatypes.JSON `gorm:"type:jsonb"` // Billing address snapshot.
	CompanyData    datatypes.JSON `gorm:"type:jsonb"` // Issuer snapshot.

	Notes     string `gorm:"type:text"`                  // Free-form notes.
	Reference string `gorm:"type:varchar(255)"`          // Customer reference.
	Locale    string `gorm:"type:varchar(5);default:en"` // Invoice language.

	LastReminderSentAt *time.Time     // Last reminder timestamp.
	ReminderCount      int            `gorm:"not null;default:0"` // Reminders sent so far.
	EmailLog           datatypes.JSON `gorm:"type:jsonb"`         // Delivery log entries.
	Metadata           datatypes.JSON `gorm:"type:jsonb"`         // Transition timestamps and reasons.

	Items []InvoiceLineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"` // Line items.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
