package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// billingModels lists the tables managed by AutoMigrate, parents first.
var billingModels = []any{
	&models.User{},
	&models.SubscriptionPlan{},
	&models.Subscription{},
	&models.InvoiceSequence{},
	&models.Invoice{},
	&models.InvoiceLineItem{},
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(billingModels...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errCounters := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_subscriptions_counters_non_negative'
			) THEN
				ALTER TABLE subscriptions ADD CONSTRAINT chk_subscriptions_counters_non_negative CHECK (
					current_restaurants >= 0 AND current_branches >= 0 AND current_menu_items >= 0
					AND current_users >= 0 AND monthly_qr_scans >= 0
				);
			END IF;
		END $$;
	`).Error; errCounters != nil {
		return fmt.Errorf("db: add counter check: %w", errCounters)
	}
	if errQuantity := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_invoice_line_items_quantity'
			) THEN
				ALTER TABLE invoice_line_items ADD CONSTRAINT chk_invoice_line_items_quantity CHECK (quantity >= 1);
			END IF;
		END $$;
	`).Error; errQuantity != nil {
		return fmt.Errorf("db: add quantity check: %w", errQuantity)
	}
	if errSweepIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_invoices_unpaid_due
		ON invoices (due_date)
		WHERE status IN ('sent', 'viewed')
	`).Error; errSweepIdx != nil {
		return fmt.Errorf("db: create sweep index: %w", errSweepIdx)
	}

	return ensureDefaultPlan(conn)
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(billingModels...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSweepIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_invoices_unpaid_due
		ON invoices (due_date)
		WHERE status IN ('sent', 'viewed')
	`).Error; errSweepIdx != nil {
		return fmt.Errorf("db: create sweep index: %w", errSweepIdx)
	}

	return ensureDefaultPlan(conn)
}

// Default plan limits seeded on first migration.
const (
	defaultPlanSlug          = "free"
	defaultPlanRestaurants   = 1
	defaultPlanBranches      = 1
	defaultPlanMenuItems     = 50
	defaultPlanUsers         = 1
	defaultPlanQRScansPerMon = 1000
)

// ensureDefaultPlan ensures the free plan exists so new accounts can subscribe.
func ensureDefaultPlan(conn *gorm.DB) error {
	var existing models.SubscriptionPlan
	errFind := conn.Where("slug = ?", defaultPlanSlug).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query default plan: %w", errFind)
	}

	restaurants, branches, menuItems, users, scans :=
		defaultPlanRestaurants, defaultPlanBranches, defaultPlanMenuItems, defaultPlanUsers, defaultPlanQRScansPerMon
	now := time.Now().UTC()
	plan := models.SubscriptionPlan{
		Slug:              defaultPlanSlug,
		Name:              "Free",
		BillingPeriod:     models.BillingPeriodMonthly,
		Price:             decimal.Zero,
		Currency:          "USD",
		MaxRestaurants:    &restaurants,
		MaxBranches:       &branches,
		MaxMenuItems:      &menuItems,
		MaxUsers:          &users,
		MaxQRScansMonthly: &scans,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if errCreate := conn.Create(&plan).Error; errCreate != nil {
		return fmt.Errorf("db: create default plan: %w", errCreate)
	}
	return nil
}
