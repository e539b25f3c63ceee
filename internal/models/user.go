package models

import "time"

// User represents a restaurant owner account that receives invoices.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name  string `gorm:"type:text"`             // Display name.
	Email string `gorm:"type:text;uniqueIndex"` // Billing email address.

	RestaurantName string `gorm:"type:text"`                  // Company name printed on invoices.
	TaxNumber      string `gorm:"type:varchar(64)"`           // Tax identification number.
	Locale         string `gorm:"type:varchar(5);default:en"` // Preferred invoice language.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
