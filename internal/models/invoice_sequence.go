package models

import "time"

// InvoiceSequence is the counter row backing invoice numbers for one
// series in one calendar month.
type InvoiceSequence struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Series string `gorm:"type:varchar(10);not null;uniqueIndex:idx_invoice_sequences_scope,priority:1"` // Numbering series.
	Year   int    `gorm:"not null;uniqueIndex:idx_invoice_sequences_scope,priority:2"`                  // Calendar year.
	Month  int    `gorm:"not null;uniqueIndex:idx_invoice_sequences_scope,priority:3"`                  // Calendar month.

	LastValue int64 `gorm:"not null;default:0"` // Last issued sequence value.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
