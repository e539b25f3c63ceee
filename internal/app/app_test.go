package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/QRMenuBilling/internal/config"
	"github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
)

func TestRunSweepOnceMarksPastDueInvoices(t *testing.T) {
	t.Setenv(config.EnvDBConnection, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dsn := buildSQLiteDSN(filepath.Join(dir, "billing.db"))
	if err := WriteConfigFile(configPath, dsn, 0, SetupRequest{Series: "QR", Currency: "USD"}); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}
	cfg := config.AppConfig{ConfigPath: configPath}
	if err := Migrate(context.Background(), cfg); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	user := models.User{Name: "Owner", Email: "owner@example.com"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	past := time.Now().UTC().AddDate(0, 0, -30)
	inv := models.Invoice{
		InvoiceNumber: "QR202401001",
		InvoiceSeries: "QR",
		PublicID:      uuid.NewString(),
		UserID:        user.ID,
		Status:        models.InvoiceStatusSent,
		Currency:      "USD",
		InvoiceDate:   past,
		DueDate:       past.AddDate(0, 0, 14),
	}
	if errCreate := conn.Create(&inv).Error; errCreate != nil {
		t.Fatalf("create invoice: %v", errCreate)
	}
	sqlDB, _ := conn.DB()
	_ = sqlDB.Close()

	if err = RunSweepOnce(context.Background(), cfg); err != nil {
		t.Fatalf("RunSweepOnce: %v", err)
	}

	conn, err = db.Open(dsn)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	var got models.Invoice
	if errFind := conn.First(&got, inv.ID).Error; errFind != nil {
		t.Fatalf("reload invoice: %v", errFind)
	}
	if got.Status != models.InvoiceStatusOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
}

func TestComponentsCloseReleasesDatabase(t *testing.T) {
	t.Setenv(config.EnvDBConnection, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dsn := buildSQLiteDSN(filepath.Join(dir, "billing.db"))
	if err := WriteConfigFile(configPath, dsn, 0, SetupRequest{Series: "QR", Currency: "USD"}); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}

	comps, err := openComponents(configPath)
	if err != nil {
		t.Fatalf("openComponents: %v", err)
	}
	if errClose := comps.Close(); errClose != nil {
		t.Fatalf("close: %v", errClose)
	}
	sqlDB, err := comps.conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if errPing := sqlDB.Ping(); errPing == nil {
		t.Fatalf("expected ping to fail after close")
	}
	if stats := sqlDB.Stats(); stats.OpenConnections != 0 {
		t.Fatalf("expected no open connections after close, got %d", stats.OpenConnections)
	}
}
