package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/http/api/handlers"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/ratelimit"
	"github.com/router-for-me/QRMenuBilling/internal/usage"
	"gorm.io/gorm"
)

// Deps bundles the services the HTTP API routes to.
type Deps struct {
	DB       *gorm.DB
	Invoices *invoice.Service
	Usage    *usage.Counter
	Limiter  *ratelimit.Manager
	Now      func() time.Time
}

// RegisterRoutes registers the billing API on r.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Invoices == nil || deps.Usage == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")

	invoiceHandler := handlers.NewInvoiceHandler(deps.Invoices, deps.Now)
	v0.POST("/invoices", invoiceHandler.Create)
	v0.GET("/invoices", invoiceHandler.List)
	v0.GET("/invoices/:id", invoiceHandler.Get)
	v0.DELETE("/invoices/:id", invoiceHandler.Delete)
	v0.POST("/invoices/:id/status", invoiceHandler.Transition)
	v0.POST("/invoices/:id/payment-attempts", invoiceHandler.RecordPaymentAttempt)
	v0.POST("/invoices/:id/reminders", invoiceHandler.SendReminder)
	v0.POST("/invoices/:id/recalculate", invoiceHandler.Recalculate)
	v0.POST("/invoices/:id/items", invoiceHandler.AddItems)
	v0.POST("/invoices/:id/setup-fees", invoiceHandler.AddSetupFee)
	v0.POST("/invoices/:id/discounts", invoiceHandler.AddDiscount)
	v0.GET("/invoice-numbers/:number", invoiceHandler.GetByNumber)
	v0.POST("/invoice-numbers", invoiceHandler.AllocateNumber)
	v0.PUT("/invoice-items/:id", invoiceHandler.UpdateItem)
	v0.DELETE("/invoice-items/:id", invoiceHandler.DeleteItem)
	v0.POST("/invoice-items/:id/discount", invoiceHandler.DiscountItem)
	v0.POST("/invoice-items/:id/move", invoiceHandler.MoveItem)
	v0.GET("/reports/revenue", invoiceHandler.Revenue)
	v0.GET("/public/invoices/:public_id", invoiceHandler.PublicView)

	usageHandler := handlers.NewUsageHandler(deps.Usage, deps.Limiter)
	v0.GET("/subscriptions/:id/usage", usageHandler.Get)
	v0.GET("/subscriptions/:id/usage/:resource/can-add", usageHandler.CanAdd)
	v0.POST("/subscriptions/:id/usage/:resource/increment", usageHandler.Increment)
	v0.POST("/subscriptions/:id/usage/:resource/decrement", usageHandler.Decrement)
	v0.POST("/subscriptions/:id/scans", usageHandler.RecordScan)

	jobHandler := handlers.NewJobHandler(deps.Invoices.SweepOverdue, deps.Usage.ResetStaleMonthly)
	v0.POST("/jobs/sweep-overdue", jobHandler.SweepOverdue)
	v0.POST("/jobs/reset-monthly-usage", jobHandler.ResetMonthlyUsage)
}
