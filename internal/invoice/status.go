package invoice

import (
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	"gorm.io/gorm"
)

// payableStatuses permit payment attempts and reminders.
var payableStatuses = []models.InvoiceStatus{
	models.InvoiceStatusSent,
	models.InvoiceStatusViewed,
	models.InvoiceStatusOverdue,
	models.InvoiceStatusFailed,
	models.InvoiceStatusPartiallyPaid,
}

// overdueCandidates are the statuses that become overdue once the due date passes.
var overdueCandidates = []models.InvoiceStatus{
	models.InvoiceStatusSent,
	models.InvoiceStatusViewed,
}

func statusIn(status models.InvoiceStatus, set []models.InvoiceStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// CanBePaid reports whether status accepts a payment attempt.
func CanBePaid(status models.InvoiceStatus) bool {
	return statusIn(status, payableStatuses)
}

// CanBeCancelled reports whether status may move to cancelled.
func CanBeCancelled(status models.InvoiceStatus) bool {
	switch status {
	case models.InvoiceStatusPaid, models.InvoiceStatusCancelled, models.InvoiceStatusRefunded:
		return false
	default:
		return true
	}
}

// IsOverdue reports whether inv is overdue at now. Sent and viewed invoices
// past their due date count as overdue before the sweep has marked them.
func IsOverdue(inv *models.Invoice, now time.Time) bool {
	if inv == nil {
		return false
	}
	if inv.Status == models.InvoiceStatusOverdue {
		return true
	}
	return statusIn(inv.Status, overdueCandidates) && inv.DueDate.Before(now)
}

// DaysOverdue returns whole days past the due date, or 0.
func DaysOverdue(inv *models.Invoice, now time.Time) int {
	if inv == nil || inv.Status == models.InvoiceStatusPaid || !inv.DueDate.Before(now) {
		return 0
	}
	return int(now.Sub(inv.DueDate) / (24 * time.Hour))
}

// transitionPlan is the column set written by one status change.
type transitionPlan struct {
	updates  map[string]any
	metadata map[string]any
}

// planTransition validates inv.Status -> target at now and returns the
// columns to write. It does not touch the database.
func planTransition(inv *models.Invoice, target models.InvoiceStatus, reason string, now time.Time) (transitionPlan, error) {
	from := inv.Status
	reject := func(why string) (transitionPlan, error) {
		return transitionPlan{}, &TransitionError{From: from, To: target, Reason: why}
	}
	if !target.Valid() {
		return reject("unknown status")
	}

	plan := transitionPlan{updates: map[string]any{"status": target, "updated_at": now}}
	stamp := now.Format(time.RFC3339)

	switch target {
	case models.InvoiceStatusSent:
		if from != models.InvoiceStatusDraft {
			return reject("only draft invoices can be sent")
		}
		plan.metadata = map[string]any{"sent_at": stamp}
	case models.InvoiceStatusViewed:
		if from != models.InvoiceStatusSent {
			return reject("only sent invoices can be viewed")
		}
		plan.metadata = map[string]any{"viewed_at": stamp}
	case models.InvoiceStatusPaid:
		if !CanBePaid(from) {
			return reject("invoice is not payable")
		}
		plan.updates["paid_at"] = now
	case models.InvoiceStatusPartiallyPaid:
		if !CanBePaid(from) {
			return reject("invoice is not payable")
		}
	case models.InvoiceStatusOverdue:
		if !statusIn(from, overdueCandidates) {
			return reject("only sent or viewed invoices can become overdue")
		}
		if !inv.DueDate.Before(now) {
			return reject("due date has not passed")
		}
	case models.InvoiceStatusFailed:
		if !CanBePaid(from) {
			return reject("invoice is not payable")
		}
		plan.updates["payment_attempts"] = gorm.Expr("payment_attempts + ?", 1)
		plan.updates["payment_attempted_at"] = now
		plan.metadata = map[string]any{"payment_failed_at": stamp, "failure_reason": reason}
	case models.InvoiceStatusCancelled:
		if !CanBeCancelled(from) {
			return reject("invoice is already settled or closed")
		}
		plan.metadata = map[string]any{"cancelled_at": stamp, "cancellation_reason": reason}
	case models.InvoiceStatusRefunded:
		if from != models.InvoiceStatusPaid && from != models.InvoiceStatusPartiallyPaid {
			return reject("only paid invoices can be refunded")
		}
		plan.metadata = map[string]any{"refunded_at": stamp, "refund_reason": reason}
	default:
		return reject("target status cannot be requested")
	}
	return plan, nil
}

// CanSendReminder reports whether a reminder may go out at now: the invoice
// must be payable, below maxReminders, and not reminded on the same
// calendar day in now's location.
func CanSendReminder(inv *models.Invoice, now time.Time, maxReminders int) bool {
	if inv == nil || !CanBePaid(inv.Status) {
		return false
	}
	if inv.ReminderCount >= maxReminders {
		return false
	}
	if inv.LastReminderSentAt != nil && sameDay(inv.LastReminderSentAt.In(now.Location()), now) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
