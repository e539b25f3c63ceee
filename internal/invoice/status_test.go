package invoice

import (
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
)

func TestPlanTransition_Table(t *testing.T) {
	now := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	pastDue := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		from   models.InvoiceStatus
		to     models.InvoiceStatus
		due    time.Time
		wantOK bool
	}{
		{models.InvoiceStatusDraft, models.InvoiceStatusSent, future, true},
		{models.InvoiceStatusViewed, models.InvoiceStatusSent, future, false},
		{models.InvoiceStatusPaid, models.InvoiceStatusSent, future, false},
		{models.InvoiceStatusSent, models.InvoiceStatusViewed, future, true},
		{models.InvoiceStatusDraft, models.InvoiceStatusViewed, future, false},
		{models.InvoiceStatusDraft, models.InvoiceStatusPaid, future, false},
		{models.InvoiceStatusFailed, models.InvoiceStatusPaid, future, true},
		{models.InvoiceStatusOverdue, models.InvoiceStatusPartiallyPaid, future, true},
		{models.InvoiceStatusSent, models.InvoiceStatusOverdue, pastDue, true},
		{models.InvoiceStatusViewed, models.InvoiceStatusOverdue, future, false},
		{models.InvoiceStatusFailed, models.InvoiceStatusOverdue, pastDue, false},
		{models.InvoiceStatusDraft, models.InvoiceStatusFailed, future, false},
		{models.InvoiceStatusPartiallyPaid, models.InvoiceStatusFailed, future, true},
		{models.InvoiceStatusDraft, models.InvoiceStatusCancelled, future, true},
		{models.InvoiceStatusRefunded, models.InvoiceStatusCancelled, future, false},
		{models.InvoiceStatusPartiallyPaid, models.InvoiceStatusRefunded, future, true},
		{models.InvoiceStatusSent, models.InvoiceStatusRefunded, future, false},
		{models.InvoiceStatusSent, models.InvoiceStatusDraft, future, false},
		{models.InvoiceStatusSent, "archived", future, false},
	}
	for _, tc := range cases {
		inv := &models.Invoice{Status: tc.from, DueDate: tc.due}
		_, err := planTransition(inv, tc.to, "", now)
		if tc.wantOK && err != nil {
			t.Fatalf("%s -> %s: expected allowed, got %v", tc.from, tc.to, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected invalid transition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestCanSendReminder_UsesCallerDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC on Jan 10 is already Jan 11 in UTC+3.
	last := time.Date(2025, time.January, 10, 22, 30, 0, 0, time.UTC)
	inv := &models.Invoice{Status: models.InvoiceStatusSent, ReminderCount: 1, LastReminderSentAt: &last}

	sameLocalDay := time.Date(2025, time.January, 11, 9, 0, 0, 0, loc)
	if CanSendReminder(inv, sameLocalDay, 3) {
		t.Fatalf("expected no second reminder on the same local day")
	}
	nextLocalDay := time.Date(2025, time.January, 12, 0, 30, 0, 0, loc)
	if !CanSendReminder(inv, nextLocalDay, 3) {
		t.Fatalf("expected reminder to be allowed on the next local day")
	}
	inv.ReminderCount = 3
	if CanSendReminder(inv, nextLocalDay, 3) {
		t.Fatalf("expected reminder cap to apply")
	}
}

func TestDaysOverdue(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	inv := &models.Invoice{Status: models.InvoiceStatusSent, DueDate: now.Add(-49 * time.Hour)}
	if got := DaysOverdue(inv, now); got != 2 {
		t.Fatalf("expected 2 days overdue, got %d", got)
	}
	inv.Status = models.InvoiceStatusPaid
	if got := DaysOverdue(inv, now); got != 0 {
		t.Fatalf("expected paid invoice to report 0 days, got %d", got)
	}
}
