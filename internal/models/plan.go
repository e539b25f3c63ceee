package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod represents the plan billing cadence.
type BillingPeriod string

// BillingPeriod constants define plan billing cadences.
const (
	// BillingPeriodMonthly charges monthly.
	BillingPeriodMonthly BillingPeriod = "monthly"
	// BillingPeriodYearly charges yearly.
	BillingPeriodYearly BillingPeriod = "yearly"
)

// SubscriptionPlan represents a sellable plan and its resource limits.
// A nil limit means the resource is unlimited on the plan.
type SubscriptionPlan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Slug          string          `gorm:"type:varchar(64);not null;uniqueIndex"`     // Stable plan key (free, standard, pro).
	Name          string          `gorm:"type:varchar(255);not null"`                // Display name.
	BillingPeriod BillingPeriod   `gorm:"type:varchar(16);not null;default:monthly"` // Billing cadence.
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`     // Price per period.
	Currency      string          `gorm:"type:varchar(3);not null;default:USD"`      // ISO currency code.

	MaxRestaurants    *int `gorm:"type:integer"` // Restaurant limit.
	MaxBranches       *int `gorm:"type:integer"` // Branch limit.
	MaxMenuItems      *int `gorm:"type:integer"` // Menu item limit.
	MaxUsers          *int `gorm:"type:integer"` // Staff user limit.
	MaxQRScansMonthly *int `gorm:"type:integer"` // Monthly QR scan limit.

	IsActive  bool `gorm:"not null;default:true"` // Whether the plan can be sold.
	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
