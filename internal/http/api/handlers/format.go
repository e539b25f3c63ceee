package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func rawJSON(v datatypes.JSON) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	return json.RawMessage(v)
}

func formatInvoice(inv *models.Invoice) gin.H {
	out := gin.H{
		"id":                    inv.ID,
		"invoice_number":        inv.InvoiceNumber,
		"invoice_series":        inv.InvoiceSeries,
		"public_id":             inv.PublicID,
		"user_id":               inv.UserID,
		"subscription_id":       inv.SubscriptionID,
		"status":                inv.Status,
		"currency":              inv.Currency,
		"subtotal":              money(inv.Subtotal),
		"tax_rate":              inv.TaxRate.StringFixed(4),
		"tax_amount":            money(inv.TaxAmount),
		"discount_amount":       money(inv.DiscountAmount),
		"total_amount":          money(inv.TotalAmount),
		"invoice_date":          inv.InvoiceDate,
		"due_date":              inv.DueDate,
		"paid_at":               inv.PaidAt,
		"payment_attempted_at":  inv.PaymentAttemptedAt,
		"payment_attempts":      inv.PaymentAttempts,
		"customer_data":         rawJSON(inv.CustomerData),
		"billing_address":       rawJSON(inv.BillingAddress),
		"company_data":          rawJSON(inv.CompanyData),
		"notes":                 inv.Notes,
		"reference":             inv.Reference,
		"locale":                inv.Locale,
		"reminder_count":        inv.ReminderCount,
		"last_reminder_sent_at": inv.LastReminderSentAt,
		"metadata":              rawJSON(inv.Metadata),
		"created_at":            inv.CreatedAt,
		"updated_at":            inv.UpdatedAt,
	}
	if inv.Items != nil {
		items := make([]gin.H, 0, len(inv.Items))
		for i := range inv.Items {
			items = append(items, formatLine(&inv.Items[i]))
		}
		out["items"] = items
	}
	return out
}

func formatInvoiceWithState(inv *models.Invoice, h *InvoiceHandler) gin.H {
	out := formatInvoice(inv)
	now := h.now()
	out["is_overdue"] = invoice.IsOverdue(inv, now)
	out["days_overdue"] = invoice.DaysOverdue(inv, now)
	out["can_be_paid"] = invoice.CanBePaid(inv.Status)
	out["can_be_cancelled"] = invoice.CanBeCancelled(inv.Status)
	out["can_send_reminder"] = invoice.CanSendReminder(inv, now, h.svc.MaxReminders())
	return out
}

func formatLine(line *models.InvoiceLineItem) gin.H {
	return gin.H{
		"id":              line.ID,
		"invoice_id":      line.InvoiceID,
		"item_type":       line.ItemType,
		"description":     line.Description,
		"item_code":       line.ItemCode,
		"quantity":        line.Quantity,
		"unit_price":      money(line.UnitPrice),
		"total_price":     money(line.TotalPrice),
		"explicit_total":  line.ExplicitTotal,
		"discount_amount": money(line.DiscountAmount),
		"net_amount":      money(line.NetAmount()),
		"tax_rate":        line.TaxRate.StringFixed(4),
		"tax_amount":      money(line.TaxAmount),
		"is_tax_exempt":   line.IsTaxExempt,
		"period_start":    line.PeriodStart,
		"period_end":      line.PeriodEnd,
		"is_prorated":     line.IsProrated,
		"external_id":     line.ExternalID,
		"metadata":        rawJSON(line.Metadata),
		"sort_order":      line.SortOrder,
	}
}
