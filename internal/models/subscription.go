package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

// SubscriptionStatus constants define subscription lifecycle states.
const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// Subscription binds a user to a plan and tracks resource usage against it.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	PlanID uint64           `gorm:"not null;index"`    // Related plan ID.
	Plan   SubscriptionPlan `gorm:"foreignKey:PlanID"` // Related plan record.

	Status SubscriptionStatus `gorm:"type:varchar(16);not null;default:active"` // Current status.

	CurrentPeriodStart time.Time  `gorm:"not null"` // Current period start.
	CurrentPeriodEnd   time.Time  `gorm:"not null"` // Current period end.
	CanceledAt         *time.Time // Cancellation timestamp.
	EndsAt             *time.Time // When access actually ends.

	CurrentRestaurants int        `gorm:"not null;default:0"`                         // Restaurants in use.
	CurrentBranches    int        `gorm:"not null;default:0"`                         // Branches in use.
	CurrentMenuItems   int        `gorm:"not null;default:0"`                         // Menu items in use.
	CurrentUsers       int        `gorm:"not null;default:0"`                         // Staff users in use.
	MonthlyQRScans     int        `gorm:"column:monthly_qr_scans;not null;default:0"` // QR scans this month.
	UsageResetAt       *time.Time // Last monthly usage reset.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Free-form metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsActive reports whether the subscription grants access at now.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndsAt == nil || s.EndsAt.After(now)
}
