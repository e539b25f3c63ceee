package invoice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/QRMenuBilling/internal/models"
)

func TestAllocate_Sequential(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Allocator().Allocate(ctx, "qr", 2025, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	second, err := svc.Allocator().Allocate(ctx, "QR", 2025, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if first != "QR202501001" || second != "QR202501002" {
		t.Fatalf("expected QR202501001/QR202501002, got %s/%s", first, second)
	}

	other, err := svc.Allocator().Allocate(ctx, "QR", 2025, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if other != "QR202502001" {
		t.Fatalf("expected a fresh sequence per month, got %s", other)
	}
}

// SQLite serializes these goroutines on its single connection, so this
// covers the allocation path but not lock contention. The Postgres variant
// below exercises real row locking.
func TestAllocate_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	svc, _, _ := newTestService(t)
	assertConcurrentAllocation(t, svc.Allocator(), "QR")
}

func TestAllocate_ConcurrentCallersGetDistinctNumbersPostgres(t *testing.T) {
	conn := openPostgresTestDB(t)
	clock := &testClock{t: time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)}
	svc := NewService(conn, Options{}, clock.Now)
	assertConcurrentAllocation(t, svc.Allocator(), uniqueSeries())
}

func assertConcurrentAllocation(t *testing.T, alloc *Allocator, series string) {
	t.Helper()
	const workers = 20

	var wg sync.WaitGroup
	results := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := alloc.Allocate(context.Background(), series, 2025, 1)
			if err != nil {
				errs <- err
				return
			}
			results <- number
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("allocate: %v", err)
	}
	seen := make(map[string]bool, workers)
	for number := range results {
		if seen[number] {
			t.Fatalf("number %s allocated twice", number)
		}
		seen[number] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d numbers, got %d", workers, len(seen))
	}
	for i := int64(1); i <= workers; i++ {
		if !seen[FormatNumber(series, 2025, 1, i)] {
			t.Fatalf("expected %s to be allocated", FormatNumber(series, 2025, 1, i))
		}
	}
}

func TestCreateInvoice_SkipsDeletedGap(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	var created []*models.Invoice
	for i := 0; i < 5; i++ {
		created = append(created, mustCreateInvoice(t, svc, user.ID, "0"))
	}
	if created[2].InvoiceNumber != "QR202501003" {
		t.Fatalf("expected third invoice QR202501003, got %s", created[2].InvoiceNumber)
	}
	if errDelete := svc.DeleteInvoice(ctx, created[2].ID); errDelete != nil {
		t.Fatalf("delete invoice: %v", errDelete)
	}

	next := mustCreateInvoice(t, svc, user.ID, "0")
	if next.InvoiceNumber != "QR202501006" {
		t.Fatalf("expected QR202501006, got %s", next.InvoiceNumber)
	}
}

func TestAllocate_StepsOverExistingNumbers(t *testing.T) {
	svc, clock, user := newTestService(t)
	now := clock.Now()
	manual := models.Invoice{
		InvoiceNumber: "QR202501042",
		InvoiceSeries: "QR",
		PublicID:      uuid.NewString(),
		UserID:        user.ID,
		Currency:      "USD",
		InvoiceDate:   now,
		DueDate:       now.Add(24 * time.Hour),
		Status:        models.InvoiceStatusDraft,
	}
	if errCreate := svc.db.Create(&manual).Error; errCreate != nil {
		t.Fatalf("create manual invoice: %v", errCreate)
	}

	number, err := svc.Allocator().Allocate(context.Background(), "QR", 2025, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if number != "QR202501043" {
		t.Fatalf("expected QR202501043, got %s", number)
	}
}

func TestAllocate_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		series string
		year   int
		month  int
	}{
		{"QR", 2025, 13},
		{"QR", 2025, 0},
		{"", 2025, 1},
		{"QR-1", 2025, 1},
		{"ABCDEFGHIJK", 2025, 1},
	}
	for _, tc := range cases {
		if _, err := svc.Allocator().Allocate(ctx, tc.series, tc.year, tc.month); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q %d-%d, got %v", tc.series, tc.year, tc.month, err)
		}
	}
}

func TestParseSequence(t *testing.T) {
	cases := []struct {
		number string
		want   int64
		ok     bool
	}{
		{"QR202501007", 7, true},
		{"QR2025011000", 1000, true},
		{"QR202502007", 0, false},
		{"QR202501", 0, false},
		{"QR202501A07", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseSequence(tc.number, "QR", 2025, 1)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseSequence(%q): expected (%d, %v), got (%d, %v)", tc.number, tc.want, tc.ok, got, ok)
		}
	}
}
