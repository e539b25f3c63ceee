package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	dbutil "github.com/router-for-me/QRMenuBilling/internal/db"
	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultSeries       = "QR"
	defaultCurrency     = "USD"
	defaultDueInDays    = 14
	defaultMaxReminders = 3
	// createAttempts bounds retries when an insert hits a unique violation.
	createAttempts = 3
)

// Options configures a Service.
type Options struct {
	DefaultSeries   string
	DefaultCurrency string
	DueInDays       int
	MaxReminders    int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.DefaultSeries) == "" {
		o.DefaultSeries = defaultSeries
	}
	if strings.TrimSpace(o.DefaultCurrency) == "" {
		o.DefaultCurrency = defaultCurrency
	}
	if o.DueInDays <= 0 {
		o.DueInDays = defaultDueInDays
	}
	if o.MaxReminders <= 0 {
		o.MaxReminders = defaultMaxReminders
	}
	return o
}

// Service manages invoices and their line items.
type Service struct {
	db        *gorm.DB
	now       func() time.Time
	opts      Options
	allocator *Allocator
}

// NewService constructs an invoice Service. A nil nowFn uses time.Now.
func NewService(db *gorm.DB, opts Options, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		db:        db,
		now:       nowFn,
		opts:      opts.withDefaults(),
		allocator: NewAllocator(db, nowFn),
	}
}

// Allocator returns the number allocator shared with invoice creation.
func (s *Service) Allocator() *Allocator { return s.allocator }

// DefaultSeries returns the series used when a caller names none.
func (s *Service) DefaultSeries() string { return s.opts.DefaultSeries }

// MaxReminders returns the configured reminder cap.
func (s *Service) MaxReminders() int { return s.opts.MaxReminders }

func (s *Service) clock() time.Time { return s.now().UTC() }

// CreateInvoiceParams describes a new draft invoice.
type CreateInvoiceParams struct {
	UserID         uint64
	SubscriptionID *uint64
	Series         string
	Currency       string
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
	DueInDays      int
	Notes          string
	Reference      string
	Locale         string
	CustomerData   map[string]any
	BillingAddress map[string]any
	CompanyData    map[string]any
	Items          []LineItemParams
}

// CreateInvoice creates a draft invoice, numbered in the same transaction.
func (s *Service) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*models.Invoice, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("invoice service: not initialized")
	}
	if params.UserID == 0 {
		return nil, invalidInput("user_id is required")
	}
	if params.TaxRate.IsNegative() || params.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, invalidInput("tax rate %s outside [0, 1]", params.TaxRate)
	}
	if params.DiscountAmount.IsNegative() {
		return nil, invalidInput("discount amount must not be negative")
	}
	series := params.Series
	if strings.TrimSpace(series) == "" {
		series = s.opts.DefaultSeries
	}
	series, errSeries := NormalizeSeries(series)
	if errSeries != nil {
		return nil, errSeries
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, invalidInput("currency %q is not an ISO 4217 code", currency)
	}
	dueIn := params.DueInDays
	if dueIn <= 0 {
		dueIn = s.opts.DueInDays
	}
	lines := make([]models.InvoiceLineItem, 0, len(params.Items))
	for i := range params.Items {
		line, errLine := buildLine(params.Items[i])
		if errLine != nil {
			return nil, errLine
		}
		lines = append(lines, line)
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		inv, errCreate := s.createOnce(ctx, params, series, currency, dueIn, lines)
		if errCreate == nil {
			return s.GetInvoice(ctx, inv.ID)
		}
		if !dbutil.IsUniqueViolation(errCreate) {
			return nil, errCreate
		}
		lastErr = errCreate
	}
	return nil, fmt.Errorf("%w: %v", ErrSequenceExhausted, lastErr)
}

func (s *Service) createOnce(ctx context.Context, params CreateInvoiceParams, series, currency string, dueIn int, lines []models.InvoiceLineItem) (*models.Invoice, error) {
	now := s.clock()
	var inv models.Invoice
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errUser := tx.First(&user, params.UserID).Error; errUser != nil {
			if errors.Is(errUser, gorm.ErrRecordNotFound) {
				return invalidInput("user %d does not exist", params.UserID)
			}
			return fmt.Errorf("invoice: load user: %w", errUser)
		}

		customer := params.CustomerData
		if customer == nil {
			customer = map[string]any{"name": user.Name, "email": user.Email}
			if user.RestaurantName != "" {
				customer["company"] = user.RestaurantName
			}
			if user.TaxNumber != "" {
				customer["tax_number"] = user.TaxNumber
			}
		}
		customerJSON, errCustomer := snapshot(customer)
		if errCustomer != nil {
			return errCustomer
		}
		addressJSON, errAddress := snapshot(params.BillingAddress)
		if errAddress != nil {
			return errAddress
		}
		companyJSON, errCompany := snapshot(params.CompanyData)
		if errCompany != nil {
			return errCompany
		}
		locale := strings.TrimSpace(params.Locale)
		if locale == "" {
			locale = user.Locale
		}
		if locale == "" {
			locale = "en"
		}

		number, errAlloc := s.allocator.AllocateTx(tx, series, now.Year(), int(now.Month()))
		if errAlloc != nil {
			return errAlloc
		}

		inv = models.Invoice{
			InvoiceNumber:  number,
			InvoiceSeries:  series,
			PublicID:       uuid.NewString(),
			UserID:         params.UserID,
			SubscriptionID: params.SubscriptionID,
			TaxRate:        roundRate(params.TaxRate),
			DiscountAmount: roundMoney(params.DiscountAmount),
			Currency:       currency,
			InvoiceDate:    now,
			DueDate:        now.AddDate(0, 0, dueIn),
			Status:         models.InvoiceStatusDraft,
			CustomerData:   customerJSON,
			BillingAddress: addressJSON,
			CompanyData:    companyJSON,
			Notes:          params.Notes,
			Reference:      params.Reference,
			Locale:         locale,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		totals := ComputeTotals(nil, inv.TaxRate, inv.DiscountAmount)
		inv.Subtotal, inv.TaxAmount, inv.TotalAmount = totals.Subtotal, totals.TaxAmount, totals.TotalAmount
		if errInsert := tx.Omit(clause.Associations).Create(&inv).Error; errInsert != nil {
			return errInsert
		}
		if len(lines) == 0 {
			return nil
		}
		if errLines := insertLines(tx, inv.ID, lines, now); errLines != nil {
			return errLines
		}
		_, errTotals := recalculateTotals(tx, &inv)
		return errTotals
	})
	if errTx != nil {
		return nil, errTx
	}
	return &inv, nil
}

// GetInvoice loads an invoice with its ordered lines. When the stored totals
// disagree with the lines the invoice is returned together with a
// *TotalsError.
func (s *Service) GetInvoice(ctx context.Context, id uint64) (*models.Invoice, error) {
	inv, errLoad := loadInvoice(s.db.WithContext(ctx), "id = ?", id)
	if errLoad != nil {
		return nil, errLoad
	}
	return inv, VerifyTotals(inv)
}

// GetInvoiceByNumber loads an invoice by its number.
func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, ErrNotFound
	}
	inv, errLoad := loadInvoice(s.db.WithContext(ctx), "invoice_number = ?", number)
	if errLoad != nil {
		return nil, errLoad
	}
	return inv, VerifyTotals(inv)
}

// GetInvoiceByPublicID loads an invoice by its customer facing identifier.
func (s *Service) GetInvoiceByPublicID(ctx context.Context, publicID string) (*models.Invoice, error) {
	parsed, errParse := uuid.Parse(strings.TrimSpace(publicID))
	if errParse != nil {
		return nil, ErrNotFound
	}
	inv, errLoad := loadInvoice(s.db.WithContext(ctx), "public_id = ?", parsed.String())
	if errLoad != nil {
		return nil, errLoad
	}
	return inv, VerifyTotals(inv)
}

// OpenPublicInvoice returns the invoice behind a customer link and marks a
// sent invoice as viewed.
func (s *Service) OpenPublicInvoice(ctx context.Context, publicID string) (*models.Invoice, error) {
	inv, errGet := s.GetInvoiceByPublicID(ctx, publicID)
	if inv == nil {
		return nil, errGet
	}
	if inv.Status != models.InvoiceStatusSent {
		return inv, errGet
	}
	viewed, errView := s.TransitionStatus(ctx, inv.ID, models.InvoiceStatusViewed, "")
	if viewed != nil {
		return viewed, errGet
	}
	if errView != nil {
		var transitionErr *TransitionError
		if errors.As(errView, &transitionErr) {
			// Another request changed the status first.
			return s.GetInvoice(ctx, inv.ID)
		}
	}
	return nil, errView
}

func loadInvoice(db *gorm.DB, query string, arg any) (*models.Invoice, error) {
	var inv models.Invoice
	errFind := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Where(query, arg).First(&inv).Error
	if errFind != nil {
		if dbutil.IsNotFound(errFind) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("invoice: load: %w", errFind)
	}
	return &inv, nil
}

// reloadInvoice returns the committed state after a write. Totals are not
// verified, so a stale total never masks a write that succeeded.
func (s *Service) reloadInvoice(ctx context.Context, id uint64) (*models.Invoice, error) {
	return loadInvoice(s.db.WithContext(ctx), "id = ?", id)
}

// lockInvoice loads the invoice row with a row lock held until tx ends.
func lockInvoice(tx *gorm.DB, id uint64) (*models.Invoice, error) {
	var inv models.Invoice
	errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&inv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("invoice: lock: %w", errFind)
	}
	return &inv, nil
}

// ListFilter narrows ListInvoices.
type ListFilter struct {
	UserID  uint64
	Status  models.InvoiceStatus
	Series  string
	Year    int
	Month   int
	Overdue bool
	// Search matches invoice number or reference, case-insensitively.
	Search string
	// CustomerEmail matches the email in the customer snapshot.
	CustomerEmail string
	Limit         int
	Offset        int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListInvoices returns invoices matching filter, newest first, without line
// items, plus the total number of matches.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]models.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, invalidInput("unknown status %q", filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if strings.TrimSpace(filter.Series) != "" {
		series, errSeries := NormalizeSeries(filter.Series)
		if errSeries != nil {
			return nil, 0, errSeries
		}
		q = q.Where("invoice_series = ?", series)
	}
	if filter.Year != 0 || filter.Month != 0 {
		if filter.Year < 1 || filter.Month < 1 || filter.Month > 12 {
			return nil, 0, invalidInput("year and month must be given together")
		}
		start := time.Date(filter.Year, time.Month(filter.Month), 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("invoice_date >= ? AND invoice_date < ?", start, start.AddDate(0, 1, 0))
	}
	if filter.Overdue {
		q = q.Where("(status = ? OR (status IN ? AND due_date < ?))",
			models.InvoiceStatusOverdue, overdueCandidates, s.clock())
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+dbutil.EscapeLike(search)+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(s.db, "invoice_number")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "reference"),
			pattern,
			pattern,
		)
	}
	if email := strings.TrimSpace(filter.CustomerEmail); email != "" {
		q = q.Where("LOWER("+dbutil.JSONExtractTextExpr(s.db, "customer_data", "email")+") = ?", strings.ToLower(email))
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("invoice: count: %w", errCount)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var rows []models.Invoice
	if errFind := q.Order("invoice_date DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("invoice: list: %w", errFind)
	}
	return rows, total, nil
}

// TransitionStatus moves an invoice to target. reason is stored for failed,
// cancelled, and refunded transitions.
func (s *Service) TransitionStatus(ctx context.Context, id uint64, target models.InvoiceStatus, reason string) (*models.Invoice, error) {
	reason = strings.TrimSpace(reason)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, id)
		if errLock != nil {
			return errLock
		}
		now := s.clock()
		plan, errPlan := planTransition(inv, target, reason, now)
		if errPlan != nil {
			return errPlan
		}
		if plan.metadata != nil {
			merged, errMerge := mergeMetadata(inv.Metadata, plan.metadata)
			if errMerge != nil {
				return errMerge
			}
			plan.updates["metadata"] = merged
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, inv.Status).
			Updates(plan.updates)
		if res.Error != nil {
			return fmt.Errorf("invoice: update status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &TransitionError{From: inv.Status, To: target, Reason: "status changed concurrently"}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return s.reloadInvoice(ctx, id)
}

// RecordPaymentAttempt counts a payment attempt without changing status.
func (s *Service) RecordPaymentAttempt(ctx context.Context, id uint64) (*models.Invoice, error) {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, id)
		if errLock != nil {
			return errLock
		}
		if !CanBePaid(inv.Status) {
			return &TransitionError{From: inv.Status, To: inv.Status, Reason: "invoice is not payable"}
		}
		now := s.clock()
		return tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
			"payment_attempts":     gorm.Expr("payment_attempts + ?", 1),
			"payment_attempted_at": now,
			"updated_at":           now,
		}).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return s.reloadInvoice(ctx, id)
}

// DeleteInvoice removes a draft or cancelled invoice and its lines. The
// sequence counter is left untouched.
func (s *Service) DeleteInvoice(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, id)
		if errLock != nil {
			return errLock
		}
		if inv.Status != models.InvoiceStatusDraft && inv.Status != models.InvoiceStatusCancelled {
			return &TransitionError{From: inv.Status, To: inv.Status, Reason: "only draft or cancelled invoices can be deleted"}
		}
		if errLines := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLineItem{}).Error; errLines != nil {
			return fmt.Errorf("invoice: delete lines: %w", errLines)
		}
		if errDelete := tx.Delete(&models.Invoice{}, inv.ID).Error; errDelete != nil {
			return fmt.Errorf("invoice: delete: %w", errDelete)
		}
		return nil
	})
}

// Revenue sums paid invoices in currency whose payment landed in the last
// days days.
func (s *Service) Revenue(ctx context.Context, currency string, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, invalidInput("days must be positive")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}
	since := s.clock().AddDate(0, 0, -days)
	var rows []models.Invoice
	if errFind := s.db.WithContext(ctx).
		Select("id", "total_amount").
		Where("status = ? AND currency = ? AND paid_at >= ?", models.InvoiceStatusPaid, currency, since).
		Find(&rows).Error; errFind != nil {
		return decimal.Zero, fmt.Errorf("invoice: revenue: %w", errFind)
	}
	sum := decimal.Zero
	for i := range rows {
		sum = sum.Add(rows[i].TotalAmount)
	}
	return roundMoney(sum), nil
}
