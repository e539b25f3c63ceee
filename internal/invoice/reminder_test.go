package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
)

func TestSendReminder_Cadence(t *testing.T) {
	svc, clock, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")

	sent, err := svc.SendReminder(ctx, inv.ID)
	if err != nil || sent {
		t.Fatalf("expected draft reminder to be refused, got %v %v", sent, err)
	}

	mustTransition(t, svc, inv.ID, models.InvoiceStatusSent)
	for day := 1; day <= 3; day++ {
		sent, err = svc.SendReminder(ctx, inv.ID)
		if err != nil || !sent {
			t.Fatalf("day %d: expected reminder to be sent, got %v %v", day, sent, err)
		}
		sent, err = svc.SendReminder(ctx, inv.ID)
		if err != nil || sent {
			t.Fatalf("day %d: expected second reminder the same day to be refused, got %v %v", day, sent, err)
		}
		clock.Advance(24 * time.Hour)
	}

	sent, err = svc.SendReminder(ctx, inv.ID)
	if err != nil || sent {
		t.Fatalf("expected fourth reminder to be refused, got %v %v", sent, err)
	}

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if got.ReminderCount != 3 {
		t.Fatalf("expected reminder_count=3, got %d", got.ReminderCount)
	}
	entries := EmailLog(got.EmailLog)
	if len(entries) != 3 {
		t.Fatalf("expected 3 email log entries, got %d", len(entries))
	}
	if entries[2].Type != "reminder" || entries[2].ReminderNumber != 3 {
		t.Fatalf("unexpected last log entry %+v", entries[2])
	}
}
