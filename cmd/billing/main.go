package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/QRMenuBilling/internal/app"
	"github.com/router-for-me/QRMenuBilling/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := run(ctx, os.Args[1:])
	stop()
	if errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to the selected mode.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("billing", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8320, "server port when the config file sets none")
	migrateOnly := fs.Bool("migrate-only", false, "run database migrations and exit")
	sweepOnce := fs.Bool("sweep-once", false, "run the overdue and usage reset jobs once and exit")
	setup := fs.Bool("setup", false, "write a new config file and initialize the database")
	dbType := fs.String("db-type", "sqlite", "setup: database type (sqlite or postgres)")
	dbPath := fs.String("db-path", "billing.db", "setup: SQLite database file")
	dbHost := fs.String("db-host", "localhost", "setup: PostgreSQL host")
	dbPort := fs.Int("db-port", 5432, "setup: PostgreSQL port")
	dbUser := fs.String("db-user", "", "setup: PostgreSQL user (password from env DB_PASSWORD)")
	dbName := fs.String("db-name", "billing", "setup: PostgreSQL database")
	dbSSLMode := fs.String("db-sslmode", "disable", "setup: PostgreSQL sslmode")
	series := fs.String("series", "QR", "setup: default invoice series")
	currency := fs.String("currency", "USD", "setup: default currency")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	switch {
	case *setup:
		return app.Setup(configPath, *port, app.SetupRequest{
			DatabaseType:     *dbType,
			DatabaseHost:     *dbHost,
			DatabasePort:     *dbPort,
			DatabaseUser:     *dbUser,
			DatabasePassword: os.Getenv("DB_PASSWORD"),
			DatabaseName:     *dbName,
			DatabasePath:     *dbPath,
			DatabaseSSLMode:  *dbSSLMode,
			Series:           *series,
			Currency:         *currency,
		})
	case *migrateOnly:
		return app.Migrate(ctx, appCfg)
	case *sweepOnce:
		return app.RunSweepOnce(ctx, appCfg)
	}

	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		return fmt.Errorf("config file %s not found; run with -setup or set %s", configPath, config.EnvDBConnection)
	}
	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
