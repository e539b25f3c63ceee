package invoice

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	dbutil "github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultAllocationAttempts bounds the collision probe for one allocation.
const defaultAllocationAttempts = 50

// maxSeriesLength matches the invoice_series column width.
const maxSeriesLength = 10

// Allocator issues invoice numbers of the form {series}{YYYY}{MM}{seq:%03d}.
// Each (series, year, month) has one counter row; allocation locks that row
// for the duration of the caller's transaction.
type Allocator struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// NewAllocator constructs an Allocator.
func NewAllocator(db *gorm.DB, nowFn func() time.Time) *Allocator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Allocator{db: db, maxAttempts: defaultAllocationAttempts, now: nowFn}
}

// Allocate reserves the next invoice number for series in year/month.
// Numbers reserved here but never attached to an invoice leave a gap.
func (a *Allocator) Allocate(ctx context.Context, series string, year, month int) (string, error) {
	if a == nil || a.db == nil {
		return "", fmt.Errorf("invoice allocator: not initialized")
	}
	var number string
	errTx := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errAlloc error
		number, errAlloc = a.AllocateTx(tx, series, year, month)
		return errAlloc
	})
	if errTx != nil {
		return "", errTx
	}
	return number, nil
}

// AllocateTx reserves the next number inside tx. The counter row stays
// locked until tx commits, so the invoice insert that uses the number must
// happen in the same transaction.
func (a *Allocator) AllocateTx(tx *gorm.DB, series string, year, month int) (string, error) {
	series, errSeries := NormalizeSeries(series)
	if errSeries != nil {
		return "", errSeries
	}
	if year < 1 || year > 9999 {
		return "", invalidInput("year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return "", invalidInput("month %d out of range", month)
	}

	now := a.now().UTC()
	seed := models.InvoiceSequence{Series: series, Year: year, Month: month, CreatedAt: now, UpdatedAt: now}
	if errSeed := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "series"}, {Name: "year"}, {Name: "month"}},
		DoNothing: true,
	}).Create(&seed).Error; errSeed != nil {
		return "", fmt.Errorf("invoice allocator: seed counter: %w", errSeed)
	}

	var seq models.InvoiceSequence
	if errLock := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("series = ? AND year = ? AND month = ?", series, year, month).
		First(&seq).Error; errLock != nil {
		return "", fmt.Errorf("invoice allocator: lock counter: %w", errLock)
	}

	// Existing numbers win over the counter so imported or hand-made
	// invoices are never shadowed.
	issued, errMax := maxIssuedSequence(tx, series, year, month)
	if errMax != nil {
		return "", errMax
	}
	next := seq.LastValue
	if issued > next {
		next = issued
	}

	attempts := a.maxAttempts
	if attempts <= 0 {
		attempts = defaultAllocationAttempts
	}
	for i := 0; i < attempts; i++ {
		next++
		number := FormatNumber(series, year, month, next)
		var count int64
		if errCount := tx.Model(&models.Invoice{}).Where("invoice_number = ?", number).Count(&count).Error; errCount != nil {
			return "", fmt.Errorf("invoice allocator: probe %s: %w", number, errCount)
		}
		if count > 0 {
			continue
		}
		if errUpdate := tx.Model(&models.InvoiceSequence{}).
			Where("id = ?", seq.ID).
			Updates(map[string]any{"last_value": next, "updated_at": now}).Error; errUpdate != nil {
			return "", fmt.Errorf("invoice allocator: advance counter: %w", errUpdate)
		}
		return number, nil
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrSequenceExhausted, NumberPrefix(series, year, month), attempts)
}

// maxIssuedSequence returns the highest numeric suffix among invoices already
// numbered in the series/year/month, or 0 when none exist.
func maxIssuedSequence(tx *gorm.DB, series string, year, month int) (int64, error) {
	prefix := NumberPrefix(series, year, month)
	var numbers []string
	if errPluck := tx.Model(&models.Invoice{}).
		Where("invoice_series = ?", series).
		Where(dbutil.PrefixLikeExpr("invoice_number"), dbutil.EscapeLike(prefix)+"%").
		Pluck("invoice_number", &numbers).Error; errPluck != nil {
		return 0, fmt.Errorf("invoice allocator: scan issued numbers: %w", errPluck)
	}
	var highest int64
	for _, number := range numbers {
		seq, ok := ParseSequence(number, series, year, month)
		if ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

// NormalizeSeries trims and upper-cases a series tag and validates it.
func NormalizeSeries(series string) (string, error) {
	series = strings.ToUpper(strings.TrimSpace(series))
	if series == "" {
		return "", invalidInput("series is required")
	}
	if len(series) > maxSeriesLength {
		return "", invalidInput("series %q longer than %d characters", series, maxSeriesLength)
	}
	for _, r := range series {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", invalidInput("series %q must be alphanumeric", series)
		}
	}
	return series, nil
}

// NumberPrefix returns the {series}{YYYY}{MM} prefix shared by a month's numbers.
func NumberPrefix(series string, year, month int) string {
	return fmt.Sprintf("%s%04d%02d", series, year, month)
}

// FormatNumber renders an invoice number.
func FormatNumber(series string, year, month int, seq int64) string {
	return fmt.Sprintf("%s%03d", NumberPrefix(series, year, month), seq)
}

// ParseSequence extracts the numeric suffix from an invoice number that
// belongs to series/year/month.
func ParseSequence(number, series string, year, month int) (int64, bool) {
	suffix, ok := strings.CutPrefix(number, NumberPrefix(series, year, month))
	if !ok || suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, errParse := strconv.ParseInt(suffix, 10, 64)
	if errParse != nil {
		return 0, false
	}
	return seq, true
}
