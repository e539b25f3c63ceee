package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JobHandler exposes maintenance jobs for external schedulers.
type JobHandler struct {
	sweepOverdue func(ctx context.Context) (int, error)
	resetUsage   func(ctx context.Context) (int, error)
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(sweepOverdue, resetUsage func(ctx context.Context) (int, error)) *JobHandler {
	return &JobHandler{sweepOverdue: sweepOverdue, resetUsage: resetUsage}
}

// SweepOverdue marks past-due invoices as overdue.
func (h *JobHandler) SweepOverdue(c *gin.Context) {
	run(c, h.sweepOverdue, "sweep overdue failed")
}

// ResetMonthlyUsage zeroes monthly counters not yet reset this month.
func (h *JobHandler) ResetMonthlyUsage(c *gin.Context) {
	run(c, h.resetUsage, "reset monthly usage failed")
}

func run(c *gin.Context, job func(ctx context.Context) (int, error), fallback string) {
	if job == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "job not configured"})
		return
	}
	affected, errRun := job(c.Request.Context())
	if errRun != nil {
		writeError(c, errRun, fallback)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}
