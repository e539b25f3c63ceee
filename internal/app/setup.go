package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/config"
	"github.com/router-for-me/QRMenuBilling/internal/db"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SetupRequest contains parameters for generating the first config file.
type SetupRequest struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	Series           string
	Currency         string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "billing.db"

// BuildDSN builds a database DSN from the setup request.
func BuildDSN(req SetupRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(req.DatabaseUser, req.DatabasePassword),
			Host:     fmt.Sprintf("%s:%d", req.DatabaseHost, req.DatabasePort),
			Path:     "/" + req.DatabaseName,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil
	case "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN in WAL mode.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=journal_mode(WAL)"
}

// validateSetupRequest normalizes and validates setup input.
func validateSetupRequest(req *SetupRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "postgres"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if req.DatabasePort <= 0 {
			return fmt.Errorf("invalid database port")
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}
	req.Series = strings.ToUpper(strings.TrimSpace(req.Series))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string                 `yaml:"host"`
	Port        int                    `yaml:"port"`
	Debug       bool                   `yaml:"debug"`
	DatabaseDSN string                 `yaml:"database-dsn"`
	Billing     config.BillingConfig   `yaml:"billing"`
	RateLimit   config.RateLimitConfig `yaml:"rate-limit"`
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int, req SetupRequest) error {
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		Billing: config.BillingConfig{
			DefaultSeries:   req.Series,
			DefaultCurrency: req.Currency,
			DueInDays:       14,
			MaxReminders:    3,
			SweepInterval:   time.Hour,
		},
		RateLimit: config.RateLimitConfig{ScanLimit: 20},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// CheckDatabaseConnection validates that the DSN can connect and ping.
func CheckDatabaseConnection(dsn string) (err error) {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// Setup validates req, checks the database, writes the config file and
// runs the initial migration.
func Setup(configPath string, port int, req SetupRequest) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("config already exists at %s", configPath)
	}
	if errValidate := validateSetupRequest(&req); errValidate != nil {
		return errValidate
	}
	dsn, errDSN := BuildDSN(req)
	if errDSN != nil {
		return errDSN
	}
	if errCheck := CheckDatabaseConnection(dsn); errCheck != nil {
		return errCheck
	}
	if errWrite := WriteConfigFile(configPath, dsn, port, req); errWrite != nil {
		return errWrite
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if target, errDescribe := db.DescribeDSN(dsn); errDescribe == nil {
		log.Infof("wrote %s for %s", configPath, target)
	}
	return nil
}
