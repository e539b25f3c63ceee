package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineItemParams describes a new invoice line.
type LineItemParams struct {
	ItemType       models.LineItemType
	Description    string
	ItemCode       string
	Quantity       int
	UnitPrice      decimal.Decimal
	TotalPrice     *decimal.Decimal // Overrides Quantity x UnitPrice when set.
	DiscountAmount decimal.Decimal
	TaxRate        decimal.Decimal
	IsTaxExempt    bool
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	IsProrated     bool
	ExternalID     string
	Metadata       map[string]any
	SortOrder      *int
}

// LineItemUpdate changes selected fields of a line. Nil fields are kept.
// An explicit total is kept across Quantity or UnitPrice edits until a
// new TotalPrice replaces it.
type LineItemUpdate struct {
	Description    *string
	ItemCode       *string
	Quantity       *int
	UnitPrice      *decimal.Decimal
	TotalPrice     *decimal.Decimal
	DiscountAmount *decimal.Decimal
	TaxRate        *decimal.Decimal
	IsTaxExempt    *bool
	SortOrder      *int
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// allowsNegative reports whether lines of type t may carry negative prices.
func allowsNegative(t models.LineItemType) bool {
	return t == models.LineItemTypeDiscount || t == models.LineItemTypeRefund
}

func validateLine(line *models.InvoiceLineItem) error {
	if !line.ItemType.Valid() {
		return invalidInput("unknown line type %q", line.ItemType)
	}
	if line.Quantity < 1 {
		return invalidInput("quantity must be at least 1")
	}
	if !allowsNegative(line.ItemType) {
		if line.UnitPrice.IsNegative() {
			return invalidInput("unit price must not be negative for %s lines", line.ItemType)
		}
		if line.ExplicitTotal && line.TotalPrice.IsNegative() {
			return invalidInput("total price must not be negative for %s lines", line.ItemType)
		}
	}
	if line.DiscountAmount.IsNegative() {
		return invalidInput("line discount must not be negative")
	}
	if line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(one) {
		return invalidInput("line tax rate %s outside [0, 1]", line.TaxRate)
	}
	if line.PeriodStart != nil && line.PeriodEnd != nil && line.PeriodEnd.Before(*line.PeriodStart) {
		return invalidInput("period end precedes period start")
	}
	return nil
}

// buildLine validates params and returns a priced line without an owner.
func buildLine(params LineItemParams) (models.InvoiceLineItem, error) {
	itemType := params.ItemType
	if itemType == "" {
		itemType = models.LineItemTypeSubscription
	}
	quantity := params.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return models.InvoiceLineItem{}, invalidInput("quantity must be at least 1")
	}
	meta, errMeta := snapshot(params.Metadata)
	if errMeta != nil {
		return models.InvoiceLineItem{}, errMeta
	}
	line := models.InvoiceLineItem{
		ItemType:       itemType,
		Description:    strings.TrimSpace(params.Description),
		ItemCode:       strings.TrimSpace(params.ItemCode),
		Quantity:       quantity,
		UnitPrice:      params.UnitPrice,
		DiscountAmount: params.DiscountAmount,
		TaxRate:        params.TaxRate,
		IsTaxExempt:    params.IsTaxExempt,
		PeriodStart:    utcPtr(params.PeriodStart),
		PeriodEnd:      utcPtr(params.PeriodEnd),
		IsProrated:     params.IsProrated,
		ExternalID:     strings.TrimSpace(params.ExternalID),
		Metadata:       meta,
		SortOrder:      -1,
	}
	if params.TotalPrice != nil {
		line.ExplicitTotal = true
		line.TotalPrice = *params.TotalPrice
	}
	if params.SortOrder != nil {
		line.SortOrder = *params.SortOrder
	}
	if errValidate := validateLine(&line); errValidate != nil {
		return models.InvoiceLineItem{}, errValidate
	}
	priceLine(&line)
	return line, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// insertLines stores lines under invoiceID. Lines without a sort order are
// appended after the current last line.
func insertLines(tx *gorm.DB, invoiceID uint64, lines []models.InvoiceLineItem, now time.Time) error {
	var maxOrder sql.NullInt64
	if errMax := tx.Model(&models.InvoiceLineItem{}).
		Where("invoice_id = ?", invoiceID).
		Select("MAX(sort_order)").
		Row().Scan(&maxOrder); errMax != nil {
		return fmt.Errorf("invoice: read sort order: %w", errMax)
	}
	next := 0
	if maxOrder.Valid {
		next = int(maxOrder.Int64) + 1
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].InvoiceID = invoiceID
		if lines[i].SortOrder < 0 {
			lines[i].SortOrder = next
			next++
		} else if lines[i].SortOrder >= next {
			next = lines[i].SortOrder + 1
		}
		lines[i].CreatedAt = now
		lines[i].UpdatedAt = now
	}
	if errCreate := tx.Create(&lines).Error; errCreate != nil {
		return fmt.Errorf("invoice: insert lines: %w", errCreate)
	}
	return nil
}

// recalculateTotals recomputes and stores inv's totals from its persisted
// lines. It is the only writer of subtotal, tax_amount, and total_amount.
func recalculateTotals(tx *gorm.DB, inv *models.Invoice) (Totals, error) {
	var lines []models.InvoiceLineItem
	if errFind := tx.Where("invoice_id = ?", inv.ID).Order("sort_order ASC, id ASC").Find(&lines).Error; errFind != nil {
		return Totals{}, fmt.Errorf("invoice: load lines: %w", errFind)
	}
	totals := ComputeTotals(lines, inv.TaxRate, inv.DiscountAmount)
	if errUpdate := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"subtotal":     totals.Subtotal,
		"tax_amount":   totals.TaxAmount,
		"total_amount": totals.TotalAmount,
	}).Error; errUpdate != nil {
		return Totals{}, fmt.Errorf("invoice: store totals: %w", errUpdate)
	}
	inv.Subtotal, inv.TaxAmount, inv.TotalAmount = totals.Subtotal, totals.TaxAmount, totals.TotalAmount
	inv.Items = lines
	return totals, nil
}

// mutateDraft runs fn under the invoice row lock and recomputes totals
// afterwards. Non-draft invoices reject the mutation.
func (s *Service) mutateDraft(ctx context.Context, invoiceID uint64, fn func(tx *gorm.DB, inv *models.Invoice) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, invoiceID)
		if errLock != nil {
			return errLock
		}
		if inv.Status != models.InvoiceStatusDraft {
			return fmt.Errorf("%w: %s is %s", ErrInvoiceLocked, inv.InvoiceNumber, inv.Status)
		}
		if errFn := fn(tx, inv); errFn != nil {
			return errFn
		}
		_, errTotals := recalculateTotals(tx, inv)
		return errTotals
	})
}

// mutateLine resolves the owner of lineID and runs fn on the line under the
// owner's lock.
func (s *Service) mutateLine(ctx context.Context, lineID uint64, fn func(tx *gorm.DB, inv *models.Invoice, line *models.InvoiceLineItem) error) error {
	var owner models.InvoiceLineItem
	if errFind := s.db.WithContext(ctx).Select("id", "invoice_id").Where("id = ?", lineID).First(&owner).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("invoice: find line: %w", errFind)
	}
	return s.mutateDraft(ctx, owner.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		var line models.InvoiceLineItem
		if errFind := tx.Where("id = ? AND invoice_id = ?", lineID, inv.ID).First(&line).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("invoice: reload line: %w", errFind)
		}
		return fn(tx, inv, &line)
	})
}

// AddLineItem appends a line to a draft invoice and recomputes its totals.
func (s *Service) AddLineItem(ctx context.Context, invoiceID uint64, params LineItemParams) (*models.InvoiceLineItem, error) {
	added, errAdd := s.AddLineItems(ctx, invoiceID, []LineItemParams{params})
	if errAdd != nil {
		return nil, errAdd
	}
	return &added[0], nil
}

// AddLineItems appends lines in one transaction. Either all lines are added
// or none.
func (s *Service) AddLineItems(ctx context.Context, invoiceID uint64, params []LineItemParams) ([]models.InvoiceLineItem, error) {
	if len(params) == 0 {
		return nil, invalidInput("no line items given")
	}
	lines := make([]models.InvoiceLineItem, 0, len(params))
	for i := range params {
		line, errLine := buildLine(params[i])
		if errLine != nil {
			return nil, errLine
		}
		lines = append(lines, line)
	}
	errMutate := s.mutateDraft(ctx, invoiceID, func(tx *gorm.DB, _ *models.Invoice) error {
		return insertLines(tx, invoiceID, lines, s.clock())
	})
	if errMutate != nil {
		return nil, errMutate
	}
	return lines, nil
}

// AddSetupFee appends a one-off setup fee line.
func (s *Service) AddSetupFee(ctx context.Context, invoiceID uint64, description string, amount decimal.Decimal) (*models.InvoiceLineItem, error) {
	if !amount.IsPositive() {
		return nil, invalidInput("setup fee must be positive")
	}
	if strings.TrimSpace(description) == "" {
		description = "Setup fee"
	}
	return s.AddLineItem(ctx, invoiceID, LineItemParams{
		ItemType:    models.LineItemTypeSetupFee,
		Description: description,
		Quantity:    1,
		UnitPrice:   amount,
	})
}

// AddDiscount appends a discount line worth amount, stored as a negative
// explicit total.
func (s *Service) AddDiscount(ctx context.Context, invoiceID uint64, description string, amount decimal.Decimal) (*models.InvoiceLineItem, error) {
	if !amount.IsPositive() {
		return nil, invalidInput("discount must be positive")
	}
	if strings.TrimSpace(description) == "" {
		description = "Discount"
	}
	negative := amount.Neg()
	return s.AddLineItem(ctx, invoiceID, LineItemParams{
		ItemType:    models.LineItemTypeDiscount,
		Description: description,
		Quantity:    1,
		UnitPrice:   negative,
		TotalPrice:  &negative,
		IsTaxExempt: true,
	})
}

// UpdateLineItem changes a line of a draft invoice and recomputes totals.
func (s *Service) UpdateLineItem(ctx context.Context, lineID uint64, update LineItemUpdate) (*models.InvoiceLineItem, error) {
	var updated models.InvoiceLineItem
	errMutate := s.mutateLine(ctx, lineID, func(tx *gorm.DB, _ *models.Invoice, line *models.InvoiceLineItem) error {
		if update.Description != nil {
			line.Description = strings.TrimSpace(*update.Description)
		}
		if update.ItemCode != nil {
			line.ItemCode = strings.TrimSpace(*update.ItemCode)
		}
		if update.Quantity != nil {
			line.Quantity = *update.Quantity
		}
		if update.UnitPrice != nil {
			line.UnitPrice = *update.UnitPrice
		}
		// An explicit total set at creation is kept; only a new explicit
		// total replaces it.
		if update.TotalPrice != nil {
			line.TotalPrice = *update.TotalPrice
			line.ExplicitTotal = true
		}
		if update.DiscountAmount != nil {
			line.DiscountAmount = *update.DiscountAmount
		}
		if update.TaxRate != nil {
			line.TaxRate = *update.TaxRate
		}
		if update.IsTaxExempt != nil {
			line.IsTaxExempt = *update.IsTaxExempt
		}
		if update.SortOrder != nil {
			line.SortOrder = *update.SortOrder
		}
		if errValidate := validateLine(line); errValidate != nil {
			return errValidate
		}
		priceLine(line)
		line.UpdatedAt = s.clock()
		if errSave := tx.Save(line).Error; errSave != nil {
			return fmt.Errorf("invoice: save line: %w", errSave)
		}
		updated = *line
		return nil
	})
	if errMutate != nil {
		return nil, errMutate
	}
	return &updated, nil
}

// RemoveLineItem deletes a line of a draft invoice and recomputes totals.
func (s *Service) RemoveLineItem(ctx context.Context, lineID uint64) error {
	return s.mutateLine(ctx, lineID, func(tx *gorm.DB, _ *models.Invoice, line *models.InvoiceLineItem) error {
		if errDelete := tx.Delete(&models.InvoiceLineItem{}, line.ID).Error; errDelete != nil {
			return fmt.Errorf("invoice: delete line: %w", errDelete)
		}
		return nil
	})
}

// ApplyLineDiscount sets a fixed discount on a line, capped at its total.
func (s *Service) ApplyLineDiscount(ctx context.Context, lineID uint64, amount decimal.Decimal) (*models.InvoiceLineItem, error) {
	if amount.IsNegative() {
		return nil, invalidInput("discount must not be negative")
	}
	return s.discountLine(ctx, lineID, func(line *models.InvoiceLineItem) decimal.Decimal { return amount })
}

// ApplyLinePercentageDiscount sets a discount of percent (0..100) of the
// line total.
func (s *Service) ApplyLinePercentageDiscount(ctx context.Context, lineID uint64, percent decimal.Decimal) (*models.InvoiceLineItem, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, invalidInput("percentage %s outside [0, 100]", percent)
	}
	return s.discountLine(ctx, lineID, func(line *models.InvoiceLineItem) decimal.Decimal {
		return line.TotalPrice.Mul(percent).Div(hundred)
	})
}

func (s *Service) discountLine(ctx context.Context, lineID uint64, amountFn func(line *models.InvoiceLineItem) decimal.Decimal) (*models.InvoiceLineItem, error) {
	var updated models.InvoiceLineItem
	errMutate := s.mutateLine(ctx, lineID, func(tx *gorm.DB, _ *models.Invoice, line *models.InvoiceLineItem) error {
		if !line.TotalPrice.IsPositive() {
			return invalidInput("line %d has no positive total to discount", line.ID)
		}
		amount := roundMoney(amountFn(line))
		if amount.GreaterThan(line.TotalPrice) {
			amount = line.TotalPrice
		}
		line.DiscountAmount = amount
		priceLine(line)
		line.UpdatedAt = s.clock()
		if errSave := tx.Save(line).Error; errSave != nil {
			return fmt.Errorf("invoice: save line: %w", errSave)
		}
		updated = *line
		return nil
	})
	if errMutate != nil {
		return nil, errMutate
	}
	return &updated, nil
}

// MoveLineUp swaps a line with its predecessor.
func (s *Service) MoveLineUp(ctx context.Context, lineID uint64) error {
	return s.moveLine(ctx, lineID, -1)
}

// MoveLineDown swaps a line with its successor.
func (s *Service) MoveLineDown(ctx context.Context, lineID uint64) error {
	return s.moveLine(ctx, lineID, 1)
}

func (s *Service) moveLine(ctx context.Context, lineID uint64, delta int) error {
	return s.mutateLine(ctx, lineID, func(tx *gorm.DB, inv *models.Invoice, _ *models.InvoiceLineItem) error {
		var lines []models.InvoiceLineItem
		if errFind := tx.Select("id", "sort_order").
			Where("invoice_id = ?", inv.ID).
			Order("sort_order ASC, id ASC").
			Find(&lines).Error; errFind != nil {
			return fmt.Errorf("invoice: load lines: %w", errFind)
		}
		pos := -1
		for i := range lines {
			if lines[i].ID == lineID {
				pos = i
				break
			}
		}
		target := pos + delta
		if pos < 0 || target < 0 || target >= len(lines) {
			return nil
		}
		lines[pos], lines[target] = lines[target], lines[pos]
		for i := range lines {
			if lines[i].SortOrder == i {
				continue
			}
			if errUpdate := tx.Model(&models.InvoiceLineItem{}).
				Where("id = ?", lines[i].ID).
				Update("sort_order", i).Error; errUpdate != nil {
				return fmt.Errorf("invoice: reorder lines: %w", errUpdate)
			}
		}
		return nil
	})
}

// Recalculate recomputes the stored totals of an invoice from its lines.
// Running it twice yields the same totals.
func (s *Service) Recalculate(ctx context.Context, invoiceID uint64) (*models.Invoice, error) {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, invoiceID)
		if errLock != nil {
			return errLock
		}
		_, errTotals := recalculateTotals(tx, inv)
		return errTotals
	})
	if errTx != nil {
		return nil, errTx
	}
	return s.reloadInvoice(ctx, invoiceID)
}
