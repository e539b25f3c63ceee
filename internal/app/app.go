package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/QRMenuBilling/internal/config"
	"github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/http/api"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/ratelimit"
	"github.com/router-for-me/QRMenuBilling/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// components groups the services built from one config file.
type components struct {
	conn     *gorm.DB
	invoices *invoice.Service
	usage    *usage.Counter
	billing  config.BillingConfig
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }

// openComponents opens and migrates the database and builds the billing services.
func openComponents(configPath string) (*components, error) {
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, err
	}
	billing, err := config.LoadBillingConfig(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		closeConn(conn)
		return nil, errMigrate
	}
	if target, errDescribe := db.DescribeDSN(dsn); errDescribe == nil {
		log.Infof("database ready: %s", target)
	}

	invoices := invoice.NewService(conn, invoice.Options{
		DefaultSeries:   billing.DefaultSeries,
		DefaultCurrency: billing.DefaultCurrency,
		DueInDays:       billing.DueInDays,
		MaxReminders:    billing.MaxReminders,
	}, nowUTC)
	return &components{
		conn:     conn,
		invoices: invoices,
		usage:    usage.NewCounter(conn, nowUTC),
		billing:  billing,
	}, nil
}

// Close releases the database connection pool.
func (c *components) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeConn(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Warn("close database")
	}
}

// closeComponents closes c and logs a failure.
func closeComponents(c *components) {
	if errClose := c.Close(); errClose != nil {
		log.WithError(errClose).Warn("close database")
	}
}

// jobs lists the periodic maintenance jobs.
func (c *components) jobs() []invoice.Job {
	return []invoice.Job{
		{Name: "sweep-overdue", Run: c.invoices.SweepOverdue},
		{Name: "reset-monthly-usage", Run: c.usage.ResetStaleMonthly},
	}
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	comps, err := openComponents(configPath)
	if err != nil {
		return err
	}
	return comps.Close()
}

// RunSweepOnce runs every maintenance job a single time and returns.
func RunSweepOnce(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	comps, err := openComponents(configPath)
	if err != nil {
		return err
	}
	defer closeComponents(comps)
	sweeper := invoice.NewSweeper(comps.billing.SweepInterval, comps.jobs()...)
	for name, affected := range sweeper.RunOnce(ctx) {
		log.Infof("job %s affected %d rows", name, affected)
	}
	return ctx.Err()
}

// newLimiter builds the scan rate limiter from config.
func newLimiter(configPath string) (*ratelimit.Manager, error) {
	rl, err := config.LoadRateLimitConfig(configPath)
	if err != nil {
		return nil, err
	}
	settings := ratelimit.Settings{
		Limit:         rl.ScanLimit,
		RedisEnabled:  rl.Redis.Enabled,
		RedisAddr:     rl.Redis.Addr,
		RedisPassword: rl.Redis.Password,
		RedisDB:       rl.Redis.DB,
		RedisPrefix:   rl.Redis.Prefix,
	}
	return ratelimit.NewManager(ratelimit.StaticSettings(settings), nil, redis.NewClient), nil
}

// RunServer boots the billing API and the maintenance sweeper.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if serverCfg.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	port := serverCfg.Port
	if port <= 0 {
		if defaultPort <= 0 {
			defaultPort = 8320
		}
		port = defaultPort
	}

	comps, err := openComponents(configPath)
	if err != nil {
		return err
	}
	defer closeComponents(comps)
	limiter, err := newLimiter(configPath)
	if err != nil {
		return err
	}
	defer limiter.Close()

	sweeper := invoice.NewSweeper(comps.billing.SweepInterval, comps.jobs()...)
	sweeper.Start(ctx)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	api.RegisterRoutes(engine, api.Deps{
		DB:       comps.conn,
		Invoices: comps.invoices,
		Usage:    comps.usage,
		Limiter:  limiter,
		Now:      nowUTC,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(serverCfg.Host, strconv.Itoa(port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("billing server listening on %s (config=%s)", server.Addr, configPath)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down billing server")
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

// requestLogger logs each request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
