package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Resource names a plan-limited counter on a subscription.
type Resource string

// Resource constants name the limited resources.
const (
	ResourceRestaurants    Resource = "restaurants"
	ResourceBranches       Resource = "branches"
	ResourceMenuItems      Resource = "menu_items"
	ResourceUsers          Resource = "users"
	ResourceQRScansMonthly Resource = "qr_scans_monthly"
)

// Resources lists every limited resource in display order.
var Resources = []Resource{
	ResourceRestaurants,
	ResourceBranches,
	ResourceMenuItems,
	ResourceUsers,
	ResourceQRScansMonthly,
}

// columns maps a resource to its subscription counter and plan limit columns.
var columns = map[Resource]struct{ counter, limit string }{
	ResourceRestaurants:    {"current_restaurants", "max_restaurants"},
	ResourceBranches:       {"current_branches", "max_branches"},
	ResourceMenuItems:      {"current_menu_items", "max_menu_items"},
	ResourceUsers:          {"current_users", "max_users"},
	ResourceQRScansMonthly: {"monthly_qr_scans", "max_qr_scans_monthly"},
}

var (
	// ErrNotFound indicates the subscription does not exist.
	ErrNotFound = errors.New("usage: subscription not found")
	// ErrLimitExceeded indicates an increment would pass the plan limit.
	ErrLimitExceeded = errors.New("usage: plan limit exceeded")
	// ErrUnknownResource indicates a resource name outside Resources.
	ErrUnknownResource = errors.New("usage: unknown resource")
	// ErrInvalidAmount indicates a non-positive increment or decrement.
	ErrInvalidAmount = errors.New("usage: amount must be positive")
	// ErrInactiveSubscription indicates a canceled or ended subscription.
	ErrInactiveSubscription = errors.New("usage: subscription is not active")
)

// LimitError reports a rejected increment.
type LimitError struct {
	Resource  Resource
	Limit     int
	Current   int
	Requested int
}

// Error implements error.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s at %d of %d, requested %d", ErrLimitExceeded, e.Resource, e.Current, e.Limit, e.Requested)
}

// Unwrap lets errors.Is match ErrLimitExceeded.
func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// ParseResource validates a resource name.
func ParseResource(name string) (Resource, error) {
	r := Resource(name)
	if _, ok := columns[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, nil
}

// Counter enforces plan limits on subscription usage counters.
type Counter struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCounter constructs a Counter. A nil nowFn uses time.Now.
func NewCounter(db *gorm.DB, nowFn func() time.Time) *Counter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Counter{db: db, now: nowFn}
}

func (c *Counter) loadSubscription(db *gorm.DB, subscriptionID uint64) (*models.Subscription, error) {
	var sub models.Subscription
	if errFind := db.Preload("Plan").Where("id = ?", subscriptionID).First(&sub).Error; errFind != nil {
		if dbutil.IsNotFound(errFind) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("usage: load subscription: %w", errFind)
	}
	return &sub, nil
}

// CanAdd reports whether one more unit of resource fits the plan. An inactive
// subscription never has room.
func (c *Counter) CanAdd(ctx context.Context, subscriptionID uint64, resource Resource) (bool, error) {
	if _, ok := columns[resource]; !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	sub, errLoad := c.loadSubscription(c.db.WithContext(ctx), subscriptionID)
	if errLoad != nil {
		return false, errLoad
	}
	if !sub.IsActive(c.now()) {
		return false, nil
	}
	limit := planLimit(&sub.Plan, resource)
	return limit == nil || counterValue(sub, resource)+1 <= *limit, nil
}

// Increment adds amount to the resource counter. The check and the write are
// one conditional UPDATE, so concurrent callers cannot overshoot the limit.
// Canceled or ended subscriptions fail with ErrInactiveSubscription.
func (c *Counter) Increment(ctx context.Context, subscriptionID uint64, resource Resource, amount int) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.incrementTx(tx, subscriptionID, resource, amount)
	})
}

func (c *Counter) incrementTx(tx *gorm.DB, subscriptionID uint64, resource Resource, amount int) error {
	cols, ok := columns[resource]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	sub, errLoad := c.loadSubscription(tx, subscriptionID)
	if errLoad != nil {
		return errLoad
	}
	if !sub.IsActive(c.now()) {
		return ErrInactiveSubscription
	}
	bound := fmt.Sprintf(
		"%[1]s + ? <= COALESCE((SELECT %[2]s FROM subscription_plans WHERE subscription_plans.id = subscriptions.plan_id), %[1]s + ?)",
		cols.counter, cols.limit,
	)
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusActive).
		Where(bound, amount, amount).
		Updates(map[string]any{
			cols.counter: gorm.Expr(cols.counter+" + ?", amount),
			"updated_at": c.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("usage: increment %s: %w", resource, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	sub, errLoad = c.loadSubscription(tx, subscriptionID)
	if errLoad != nil {
		return errLoad
	}
	if sub.Status != models.SubscriptionStatusActive {
		return ErrInactiveSubscription
	}
	limitErr := &LimitError{Resource: resource, Current: counterValue(sub, resource), Requested: amount}
	if limit := planLimit(&sub.Plan, resource); limit != nil {
		limitErr.Limit = *limit
	}
	return limitErr
}

// Decrement subtracts amount from the resource counter, flooring at zero.
func (c *Counter) Decrement(ctx context.Context, subscriptionID uint64, resource Resource, amount int) error {
	cols, ok := columns[resource]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := c.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]any{
			cols.counter: gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s >= ? THEN %[1]s - ? ELSE 0 END", cols.counter), amount, amount),
			"updated_at": c.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("usage: decrement %s: %w", resource, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reserve increments the counter and runs fn in the same transaction. When fn
// fails the increment is rolled back with it.
func (c *Counter) Reserve(ctx context.Context, subscriptionID uint64, resource Resource, amount int, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errInc := c.incrementTx(tx, subscriptionID, resource, amount); errInc != nil {
			return errInc
		}
		if fn == nil {
			return nil
		}
		return fn(tx)
	})
}

// RecordScan counts one QR menu scan against the monthly allowance.
func (c *Counter) RecordScan(ctx context.Context, subscriptionID uint64) error {
	return c.Increment(ctx, subscriptionID, ResourceQRScansMonthly, 1)
}

// ResetMonthly zeroes the monthly scan counter of one subscription.
func (c *Counter) ResetMonthly(ctx context.Context, subscriptionID uint64) error {
	now := c.now().UTC()
	res := c.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]any{"monthly_qr_scans": 0, "usage_reset_at": now, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("usage: reset monthly: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStaleMonthly zeroes monthly scans for every subscription not reset
// since the start of the current UTC month and returns how many were reset.
func (c *Counter) ResetStaleMonthly(ctx context.Context) (int, error) {
	now := c.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	res := c.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("(usage_reset_at IS NULL AND created_at < ?) OR usage_reset_at < ?", monthStart, monthStart).
		Updates(map[string]any{"monthly_qr_scans": 0, "usage_reset_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("usage: reset stale monthly: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.WithField("month", monthStart.Format("2006-01")).Infof("usage: reset monthly scans for %d subscriptions", res.RowsAffected)
	}
	return int(res.RowsAffected), nil
}

// ResourceUsage is the state of one counter. Nil Limit and Remaining mean
// unlimited.
type ResourceUsage struct {
	Resource  Resource `json:"resource"`
	Used      int      `json:"used"`
	Limit     *int     `json:"limit"`
	Remaining *int     `json:"remaining"`
}

// Snapshot is the usage of every resource on a subscription.
type Snapshot struct {
	SubscriptionID uint64          `json:"subscription_id"`
	PlanSlug       string          `json:"plan"`
	UsageResetAt   *time.Time      `json:"usage_reset_at,omitempty"`
	Resources      []ResourceUsage `json:"resources"`
}

// Lookup returns the entry for resource.
func (s Snapshot) Lookup(resource Resource) (ResourceUsage, bool) {
	for _, r := range s.Resources {
		if r.Resource == resource {
			return r, true
		}
	}
	return ResourceUsage{}, false
}

// Usage returns the counters, limits, and remaining allowance of a subscription.
func (c *Counter) Usage(ctx context.Context, subscriptionID uint64) (Snapshot, error) {
	sub, errLoad := c.loadSubscription(c.db.WithContext(ctx), subscriptionID)
	if errLoad != nil {
		return Snapshot{}, errLoad
	}
	snap := Snapshot{SubscriptionID: sub.ID, PlanSlug: sub.Plan.Slug, UsageResetAt: sub.UsageResetAt}
	for _, resource := range Resources {
		entry := ResourceUsage{Resource: resource, Used: counterValue(sub, resource), Limit: planLimit(&sub.Plan, resource)}
		if entry.Limit != nil {
			remaining := *entry.Limit - entry.Used
			if remaining < 0 {
				remaining = 0
			}
			entry.Remaining = &remaining
		}
		snap.Resources = append(snap.Resources, entry)
	}
	return snap, nil
}

func counterValue(sub *models.Subscription, resource Resource) int {
	switch resource {
	case ResourceRestaurants:
		return sub.CurrentRestaurants
	case ResourceBranches:
		return sub.CurrentBranches
	case ResourceMenuItems:
		return sub.CurrentMenuItems
	case ResourceUsers:
		return sub.CurrentUsers
	case ResourceQRScansMonthly:
		return sub.MonthlyQRScans
	default:
		return 0
	}
}

func planLimit(plan *models.SubscriptionPlan, resource Resource) *int {
	if plan == nil || plan.ID == 0 {
		return nil
	}
	switch resource {
	case ResourceRestaurants:
		return plan.MaxRestaurants
	case ResourceBranches:
		return plan.MaxBranches
	case ResourceMenuItems:
		return plan.MaxMenuItems
	case ResourceUsers:
		return plan.MaxUsers
	case ResourceQRScansMonthly:
		return plan.MaxQRScansMonthly
	default:
		return nil
	}
}
