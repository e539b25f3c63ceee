package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteBusyTimeout bounds how long a SQLite writer waits for the lock.
const sqliteBusyTimeout = 5 * time.Second

// Open connects to the database described by dsn.
// DSNs starting with "file:" open SQLite; everything else is PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if isSQLiteDSN(trimmed) {
		conn, errOpen := gorm.Open(sqlite.Open(withSQLitePragmas(trimmed)), cfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
		}
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			return nil, fmt.Errorf("db: sqlite handle: %w", errDB)
		}
		// SQLite allows a single writer; one connection keeps transactions serialized.
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	}

	conn, errOpen := gorm.Open(postgres.Open(trimmed), cfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open postgres: %w", errOpen)
	}
	return conn, nil
}

func isSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), "file:")
}

// withSQLitePragmas appends foreign key and busy timeout pragmas to a SQLite DSN.
func withSQLitePragmas(dsn string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(" + strconv.FormatInt(sqliteBusyTimeout.Milliseconds(), 10) + ")",
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// Target describes a DSN without credentials, for logging.
type Target struct {
	Type     string // sqlite or postgres
	Host     string
	Port     int
	User     string
	Name     string
	SSLMode  string
	Path     string
	Password bool // whether a password is present
}

// String renders the target without secrets.
func (t Target) String() string {
	if t.Type == DialectSQLite {
		return "sqlite:" + t.Path
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", t.User, t.Host, t.Port, t.Name, t.SSLMode)
}

// DescribeDSN parses dsn into a Target.
func DescribeDSN(dsn string) (Target, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return Target{}, fmt.Errorf("empty dsn")
	}

	if isSQLiteDSN(trimmed) {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return Target{Type: DialectSQLite, Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return Target{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return Target{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		username := ""
		passwordSet := false
		if u.User != nil {
			username = strings.TrimSpace(u.User.Username())
			_, passwordSet = u.User.Password()
		}

		sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}

		return Target{
			Type:     DialectPostgres,
			Host:     strings.TrimSpace(u.Hostname()),
			Port:     port,
			User:     username,
			Name:     strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode:  sslMode,
			Password: passwordSet,
		}, nil
	default:
		return Target{}, fmt.Errorf("unsupported dsn scheme")
	}
}
