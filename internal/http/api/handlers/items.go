package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
)

// lineItemRequest captures the fields accepted for a new line item.
type lineItemRequest struct {
	ItemType       string           `json:"item_type"`
	Description    string           `json:"description"`
	ItemCode       string           `json:"item_code"`
	Quantity       int              `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	TotalPrice     *decimal.Decimal `json:"total_price"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	IsTaxExempt    bool             `json:"is_tax_exempt"`
	PeriodStart    *time.Time       `json:"period_start"`
	PeriodEnd      *time.Time       `json:"period_end"`
	IsProrated     bool             `json:"is_prorated"`
	ExternalID     string           `json:"external_id"`
	Metadata       map[string]any   `json:"metadata"`
	SortOrder      *int             `json:"sort_order"`
}

func (r lineItemRequest) params() invoice.LineItemParams {
	return invoice.LineItemParams{
		ItemType:       models.LineItemType(strings.ToLower(strings.TrimSpace(r.ItemType))),
		Description:    r.Description,
		ItemCode:       r.ItemCode,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		TotalPrice:     r.TotalPrice,
		DiscountAmount: r.DiscountAmount,
		TaxRate:        r.TaxRate,
		IsTaxExempt:    r.IsTaxExempt,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		IsProrated:     r.IsProrated,
		ExternalID:     r.ExternalID,
		Metadata:       r.Metadata,
		SortOrder:      r.SortOrder,
	}
}

// updateLineItemRequest captures optional fields for line updates.
type updateLineItemRequest struct {
	Description    *string          `json:"description"`     // Optional description.
	ItemCode       *string          `json:"item_code"`       // Optional product code.
	Quantity       *int             `json:"quantity"`        // Optional quantity.
	UnitPrice      *decimal.Decimal `json:"unit_price"`      // Optional unit price.
	TotalPrice     *decimal.Decimal `json:"total_price"`     // Optional explicit total.
	DiscountAmount *decimal.Decimal `json:"discount_amount"` // Optional line discount.
	TaxRate        *decimal.Decimal `json:"tax_rate"`        // Optional line tax rate.
	IsTaxExempt    *bool            `json:"is_tax_exempt"`   // Optional exemption flag.
	SortOrder      *int             `json:"sort_order"`      // Optional display order.
}

// AddItems appends one line, or a batch under "items", to a draft invoice.
func (h *InvoiceHandler) AddItems(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		lineItemRequest
		Items []lineItemRequest `json:"items"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	requests := body.Items
	if len(requests) == 0 {
		requests = []lineItemRequest{body.lineItemRequest}
	}
	params := make([]invoice.LineItemParams, 0, len(requests))
	for _, r := range requests {
		params = append(params, r.params())
	}
	lines, errAdd := h.svc.AddLineItems(c.Request.Context(), id, params)
	if errAdd != nil {
		writeError(c, errAdd, "add line items failed")
		return
	}
	out := make([]gin.H, 0, len(lines))
	for i := range lines {
		out = append(out, formatLine(&lines[i]))
	}
	c.JSON(http.StatusCreated, gin.H{"items": out})
}

// amountRequest carries a positive amount and an optional description.
type amountRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// AddSetupFee appends a setup fee line.
func (h *InvoiceHandler) AddSetupFee(c *gin.Context) {
	h.addAmountLine(c, h.svc.AddSetupFee)
}

// AddDiscount appends a discount line.
func (h *InvoiceHandler) AddDiscount(c *gin.Context) {
	h.addAmountLine(c, h.svc.AddDiscount)
}

func (h *InvoiceHandler) addAmountLine(c *gin.Context, add func(ctx context.Context, invoiceID uint64, description string, amount decimal.Decimal) (*models.InvoiceLineItem, error)) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body amountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	line, errAdd := add(c.Request.Context(), id, body.Description, body.Amount)
	if errAdd != nil {
		writeError(c, errAdd, "add line item failed")
		return
	}
	c.JSON(http.StatusCreated, formatLine(line))
}

// UpdateItem changes a line item.
func (h *InvoiceHandler) UpdateItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateLineItemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	line, errUpdate := h.svc.UpdateLineItem(c.Request.Context(), id, invoice.LineItemUpdate{
		Description:    body.Description,
		ItemCode:       body.ItemCode,
		Quantity:       body.Quantity,
		UnitPrice:      body.UnitPrice,
		TotalPrice:     body.TotalPrice,
		DiscountAmount: body.DiscountAmount,
		TaxRate:        body.TaxRate,
		IsTaxExempt:    body.IsTaxExempt,
		SortOrder:      body.SortOrder,
	})
	if errUpdate != nil {
		writeError(c, errUpdate, "update line item failed")
		return
	}
	c.JSON(http.StatusOK, formatLine(line))
}

// DeleteItem removes a line item.
func (h *InvoiceHandler) DeleteItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errRemove := h.svc.RemoveLineItem(c.Request.Context(), id); errRemove != nil {
		writeError(c, errRemove, "delete line item failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// lineDiscountRequest sets either a fixed amount or a percentage.
type lineDiscountRequest struct {
	Amount  *decimal.Decimal `json:"amount"`
	Percent *decimal.Decimal `json:"percent"`
}

// DiscountItem applies a discount to one line.
func (h *InvoiceHandler) DiscountItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body lineDiscountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var (
		line   *models.InvoiceLineItem
		errApp error
	)
	switch {
	case body.Amount != nil && body.Percent == nil:
		line, errApp = h.svc.ApplyLineDiscount(c.Request.Context(), id, *body.Amount)
	case body.Percent != nil && body.Amount == nil:
		line, errApp = h.svc.ApplyLinePercentageDiscount(c.Request.Context(), id, *body.Percent)
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "exactly one of amount or percent is required"})
		return
	}
	if errApp != nil {
		writeError(c, errApp, "discount line item failed")
		return
	}
	c.JSON(http.StatusOK, formatLine(line))
}

// MoveItem moves a line one position up or down.
func (h *InvoiceHandler) MoveItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Direction string `json:"direction"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var errMove error
	switch strings.ToLower(strings.TrimSpace(body.Direction)) {
	case "up":
		errMove = h.svc.MoveLineUp(c.Request.Context(), id)
	case "down":
		errMove = h.svc.MoveLineDown(c.Request.Context(), id)
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "direction must be up or down"})
		return
	}
	if errMove != nil {
		writeError(c, errMove, "move line item failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
