package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/ratelimit"
	"github.com/router-for-me/QRMenuBilling/internal/usage"
)

// UsageHandler serves subscription usage endpoints.
type UsageHandler struct {
	counter *usage.Counter
	limiter *ratelimit.Manager
}

// NewUsageHandler constructs a UsageHandler. A nil limiter disables scan
// rate limiting.
func NewUsageHandler(counter *usage.Counter, limiter *ratelimit.Manager) *UsageHandler {
	return &UsageHandler{counter: counter, limiter: limiter}
}

// Get returns counters, limits, and remaining allowance.
func (h *UsageHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	snap, errUsage := h.counter.Usage(c.Request.Context(), id)
	if errUsage != nil {
		writeError(c, errUsage, "query usage failed")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *UsageHandler) resource(c *gin.Context) (usage.Resource, bool) {
	resource, errParse := usage.ParseResource(c.Param("resource"))
	if errParse != nil {
		writeError(c, errParse, "invalid resource")
		return "", false
	}
	return resource, true
}

// CanAdd reports whether one more unit of the resource fits the plan.
func (h *UsageHandler) CanAdd(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	resource, ok := h.resource(c)
	if !ok {
		return
	}
	allowed, errCheck := h.counter.CanAdd(c.Request.Context(), id, resource)
	if errCheck != nil {
		writeError(c, errCheck, "check usage failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource": resource, "can_add": allowed})
}

// amountBody carries an optional unit count, defaulting to 1.
type amountBody struct {
	Amount int `json:"amount"`
}

func bindAmount(c *gin.Context) (int, bool) {
	var body amountBody
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return 0, false
		}
	}
	if body.Amount == 0 {
		body.Amount = 1
	}
	return body.Amount, true
}

// Increment adds units to a resource counter.
func (h *UsageHandler) Increment(c *gin.Context) {
	h.adjust(c, h.counter.Increment)
}

// Decrement removes units from a resource counter.
func (h *UsageHandler) Decrement(c *gin.Context) {
	h.adjust(c, h.counter.Decrement)
}

func (h *UsageHandler) adjust(c *gin.Context, apply func(ctx context.Context, subscriptionID uint64, resource usage.Resource, amount int) error) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	resource, ok := h.resource(c)
	if !ok {
		return
	}
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	if errApply := apply(c.Request.Context(), id, resource, amount); errApply != nil {
		writeError(c, errApply, "update usage failed")
		return
	}
	snap, errUsage := h.counter.Usage(c.Request.Context(), id)
	if errUsage != nil {
		writeError(c, errUsage, "query usage failed")
		return
	}
	entry, _ := snap.Lookup(resource)
	c.JSON(http.StatusOK, entry)
}

// RecordScan counts a QR menu scan. Scans are rate limited per client.
func (h *UsageHandler) RecordScan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if h.limiter != nil {
		res, errAllow := h.limiter.AllowScan(c.Request.Context(), id, c.ClientIP())
		if errAllow != nil {
			writeError(c, errAllow, "rate limit check failed")
			return
		}
		if limit := h.limiter.Limit(); limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
		}
		if !res.Allowed {
			retry := time.Until(res.Reset)
			if retry < time.Second {
				retry = time.Second
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many scans"})
			return
		}
	}
	if errScan := h.counter.RecordScan(c.Request.Context(), id); errScan != nil {
		writeError(c, errScan, "record scan failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
