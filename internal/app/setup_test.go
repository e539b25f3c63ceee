package app

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/QRMenuBilling/internal/config"
	"github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
)

func TestBuildDSN_Postgres(t *testing.T) {
	dsn, err := BuildDSN(SetupRequest{
		DatabaseType:     "postgres",
		DatabaseHost:     "localhost",
		DatabasePort:     5432,
		DatabaseUser:     "billing",
		DatabasePassword: "p@ss",
		DatabaseName:     "billing",
		DatabaseSSLMode:  "require",
	})
	if err != nil {
		t.Fatalf("BuildDSN: %v", err)
	}
	target, err := db.DescribeDSN(dsn)
	if err != nil {
		t.Fatalf("DescribeDSN: %v", err)
	}
	if target.Host != "localhost" || target.Port != 5432 || target.Name != "billing" || target.SSLMode != "require" {
		t.Fatalf("unexpected target %+v from %q", target, dsn)
	}
	if !target.Password {
		t.Fatalf("expected password to be present")
	}
}

func TestBuildDSN_SQLite(t *testing.T) {
	dsn, err := BuildDSN(SetupRequest{DatabaseType: "sqlite", DatabasePath: "data/billing.db"})
	if err != nil {
		t.Fatalf("BuildDSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:data/billing.db?") {
		t.Fatalf("expected file DSN, got %q", dsn)
	}
	if _, err = BuildDSN(SetupRequest{DatabaseType: "mysql"}); err == nil {
		t.Fatalf("expected unsupported database type error")
	}
}

func TestValidateSetupRequest(t *testing.T) {
	req := SetupRequest{DatabaseHost: "db", DatabasePort: 5432, DatabaseName: "billing"}
	if err := validateSetupRequest(&req); err == nil {
		t.Fatalf("expected missing username error")
	}
	req = SetupRequest{DatabaseType: "SQLite", Series: " inv "}
	if err := validateSetupRequest(&req); err != nil {
		t.Fatalf("validateSetupRequest: %v", err)
	}
	if req.DatabaseType != "sqlite" || req.DatabasePath != defaultSQLitePath || req.Series != "INV" {
		t.Fatalf("unexpected normalized request %+v", req)
	}
}

func TestSetupWritesLoadableConfig(t *testing.T) {
	t.Setenv(config.EnvDBConnection, "")
	t.Setenv(config.EnvBillingSeries, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	err := Setup(configPath, 8400, SetupRequest{
		DatabaseType: "sqlite",
		DatabasePath: filepath.Join(dir, "billing.db"),
		Series:       "inv",
		Currency:     "eur",
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		t.Fatalf("LoadDatabaseDSN: %v", err)
	}
	billing, err := config.LoadBillingConfig(configPath)
	if err != nil {
		t.Fatalf("LoadBillingConfig: %v", err)
	}
	if billing.DefaultSeries != "INV" || billing.DefaultCurrency != "EUR" {
		t.Fatalf("expected INV/EUR, got %s/%s", billing.DefaultSeries, billing.DefaultCurrency)
	}
	server, err := config.LoadServerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if server.Port != 8400 {
		t.Fatalf("expected port 8400, got %d", server.Port)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	var plans int64
	if errCount := conn.Model(&models.SubscriptionPlan{}).Count(&plans).Error; errCount != nil {
		t.Fatalf("count plans: %v", errCount)
	}
	if plans != 1 {
		t.Fatalf("expected seeded plan after setup, got %d", plans)
	}

	if err = Setup(configPath, 8400, SetupRequest{DatabaseType: "sqlite"}); err == nil {
		t.Fatalf("expected setup to refuse an existing config")
	}
}
