package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
)

// InvoiceHandler serves invoice endpoints.
type InvoiceHandler struct {
	svc *invoice.Service
	now func() time.Time
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(svc *invoice.Service, nowFn func() time.Time) *InvoiceHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &InvoiceHandler{svc: svc, now: nowFn}
}

// createInvoiceRequest captures the fields accepted for a new invoice.
type createInvoiceRequest struct {
	UserID         uint64            `json:"user_id"`
	SubscriptionID *uint64           `json:"subscription_id"`
	Series         string            `json:"series"`
	Currency       string            `json:"currency"`
	TaxRate        decimal.Decimal   `json:"tax_rate"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	DueInDays      int               `json:"due_in_days"`
	Notes          string            `json:"notes"`
	Reference      string            `json:"reference"`
	Locale         string            `json:"locale"`
	CustomerData   map[string]any    `json:"customer_data"`
	BillingAddress map[string]any    `json:"billing_address"`
	CompanyData    map[string]any    `json:"company_data"`
	Items          []lineItemRequest `json:"items"`
}

// Create creates a draft invoice.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var body createInvoiceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	params := invoice.CreateInvoiceParams{
		UserID:         body.UserID,
		SubscriptionID: body.SubscriptionID,
		Series:         body.Series,
		Currency:       body.Currency,
		TaxRate:        body.TaxRate,
		DiscountAmount: body.DiscountAmount,
		DueInDays:      body.DueInDays,
		Notes:          body.Notes,
		Reference:      body.Reference,
		Locale:         body.Locale,
		CustomerData:   body.CustomerData,
		BillingAddress: body.BillingAddress,
		CompanyData:    body.CompanyData,
	}
	for _, item := range body.Items {
		params.Items = append(params.Items, item.params())
	}
	inv, errCreate := h.svc.CreateInvoice(c.Request.Context(), params)
	if errCreate != nil {
		writeError(c, errCreate, "create invoice failed")
		return
	}
	c.JSON(http.StatusCreated, formatInvoiceWithState(inv, h))
}

// List returns invoices matching the query filters.
func (h *InvoiceHandler) List(c *gin.Context) {
	filter := invoice.ListFilter{
		Status:        models.InvoiceStatus(strings.TrimSpace(c.Query("status"))),
		Series:        c.Query("series"),
		Search:        c.Query("search"),
		CustomerEmail: c.Query("customer_email"),
	}
	for name, dst := range map[string]*int{"year": &filter.Year, "month": &filter.Month, "limit": &filter.Limit, "offset": &filter.Offset} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		v, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return
		}
		*dst = v
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		filter.UserID = userID
	}
	if raw := strings.TrimSpace(c.Query("overdue")); raw != "" {
		overdue, errParse := strconv.ParseBool(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid overdue"})
			return
		}
		filter.Overdue = overdue
	}

	rows, total, errList := h.svc.ListInvoices(c.Request.Context(), filter)
	if errList != nil {
		writeError(c, errList, "list invoices failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatInvoiceWithState(&rows[i], h))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out, "total": total})
}

// Get fetches an invoice with its line items.
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	inv, errGet := h.svc.GetInvoice(c.Request.Context(), id)
	h.respondInvoice(c, inv, errGet, "query failed")
}

// GetByNumber fetches an invoice by its number.
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	inv, errGet := h.svc.GetInvoiceByNumber(c.Request.Context(), c.Param("number"))
	h.respondInvoice(c, inv, errGet, "query failed")
}

// respondInvoice writes inv, or a conflict carrying inv when its stored
// totals disagree with its lines.
func (h *InvoiceHandler) respondInvoice(c *gin.Context, inv *models.Invoice, err error, fallback string) {
	var totalsErr *invoice.TotalsError
	if errors.As(err, &totalsErr) && inv != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":    err.Error(),
			"computed": gin.H{"subtotal": money(totalsErr.Computed.Subtotal), "tax_amount": money(totalsErr.Computed.TaxAmount), "total_amount": money(totalsErr.Computed.TotalAmount)},
			"invoice":  formatInvoice(inv),
		})
		return
	}
	if err != nil {
		writeError(c, err, fallback)
		return
	}
	c.JSON(http.StatusOK, formatInvoiceWithState(inv, h))
}

// Delete removes a draft or cancelled invoice.
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.svc.DeleteInvoice(c.Request.Context(), id); errDelete != nil {
		writeError(c, errDelete, "delete failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// transitionRequest names the target status and an optional reason.
type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Transition moves an invoice to another status.
func (h *InvoiceHandler) Transition(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body transitionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	target := models.InvoiceStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if !target.Valid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown status"})
		return
	}
	inv, errTransition := h.svc.TransitionStatus(c.Request.Context(), id, target, body.Reason)
	h.respondInvoice(c, inv, errTransition, "update status failed")
}

// RecordPaymentAttempt counts a payment attempt.
func (h *InvoiceHandler) RecordPaymentAttempt(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	inv, errRecord := h.svc.RecordPaymentAttempt(c.Request.Context(), id)
	h.respondInvoice(c, inv, errRecord, "record payment attempt failed")
}

// SendReminder records a payment reminder when the cadence allows it.
func (h *InvoiceHandler) SendReminder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	sent, errSend := h.svc.SendReminder(c.Request.Context(), id)
	if errSend != nil {
		writeError(c, errSend, "send reminder failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// Recalculate recomputes stored totals from the line items.
func (h *InvoiceHandler) Recalculate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	inv, errRecalc := h.svc.Recalculate(c.Request.Context(), id)
	h.respondInvoice(c, inv, errRecalc, "recalculate failed")
}

// PublicView serves the customer link and marks sent invoices as viewed.
func (h *InvoiceHandler) PublicView(c *gin.Context) {
	inv, errOpen := h.svc.OpenPublicInvoice(c.Request.Context(), c.Param("public_id"))
	if errOpen != nil && inv == nil {
		writeError(c, errOpen, "query failed")
		return
	}
	if inv.Status == models.InvoiceStatusDraft {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	out := formatInvoice(inv)
	delete(out, "metadata")
	delete(out, "user_id")
	delete(out, "subscription_id")
	c.JSON(http.StatusOK, out)
}

// Revenue sums paid invoices over a trailing window.
func (h *InvoiceHandler) Revenue(c *gin.Context) {
	days := 30
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}
	currency := c.Query("currency")
	sum, errRevenue := h.svc.Revenue(c.Request.Context(), currency, days)
	if errRevenue != nil {
		writeError(c, errRevenue, "revenue query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": strings.ToUpper(strings.TrimSpace(currency)), "days": days, "revenue": money(sum)})
}

// allocateNumberRequest names the sequence to draw from.
type allocateNumberRequest struct {
	Series string `json:"series"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
}

// AllocateNumber reserves an invoice number without creating an invoice.
func (h *InvoiceHandler) AllocateNumber(c *gin.Context) {
	var body allocateNumberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Series) == "" {
		body.Series = h.svc.DefaultSeries()
	}
	now := h.now().UTC()
	if body.Year == 0 && body.Month == 0 {
		body.Year, body.Month = now.Year(), int(now.Month())
	}
	number, errAlloc := h.svc.Allocator().Allocate(c.Request.Context(), body.Series, body.Year, body.Month)
	if errAlloc != nil {
		writeError(c, errAlloc, "allocate number failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice_number": number})
}
