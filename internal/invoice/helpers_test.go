package invoice

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	dbutil "github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// testClock is a settable clock shared by a service under test.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := dbutil.Open("file:" + filepath.Join(t.TempDir(), "invoice-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// postgresDSNEnv names a PostgreSQL DSN for tests that need concurrent
// connections. SQLite runs on a single connection.
const postgresDSNEnv = "BILLING_TEST_POSTGRES_DSN"

func openPostgresTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(postgresDSNEnv))
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	conn, err := dbutil.Open(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// uniqueSeries returns a letters-only series so runs against a shared
// database never reuse a counter.
func uniqueSeries() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "T" + strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return 'g' + (r - '0')
		}
		return r
	}, hex))
}

func newTestService(t *testing.T) (*Service, *testClock, models.User) {
	t.Helper()
	conn := openTestDB(t)
	clock := &testClock{t: time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)}
	user := models.User{Name: "Ada Owner", Email: "ada@example.com", RestaurantName: "Ada's Diner"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return NewService(conn, Options{}, clock.Now), clock, user
}

func mustCreateInvoice(t *testing.T, svc *Service, userID uint64, taxRate string) *models.Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceParams{
		UserID:  userID,
		TaxRate: decimal.RequireFromString(taxRate),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func mustAddLine(t *testing.T, svc *Service, invoiceID uint64, unit string, qty int) *models.InvoiceLineItem {
	t.Helper()
	line, err := svc.AddLineItem(context.Background(), invoiceID, LineItemParams{
		ItemType:    models.LineItemTypeSubscription,
		Description: "Plan",
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(unit),
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	return line
}

func mustTransition(t *testing.T, svc *Service, id uint64, target models.InvoiceStatus) *models.Invoice {
	t.Helper()
	inv, err := svc.TransitionStatus(context.Background(), id, target, "")
	if err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
	return inv
}

func expectAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s=%s, got %s", name, want, got.StringFixed(2))
	}
}
