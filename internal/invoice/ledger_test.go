package invoice

import (
	"context"
	"errors"
	"testing"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	"github.com/shopspring/decimal"
)

func TestAddLineItem_RecomputesTotals(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0.18")

	mustAddLine(t, svc, inv.ID, "29.99", 1)
	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "subtotal", got.Subtotal, "29.99")
	expectAmount(t, "tax", got.TaxAmount, "5.40")
	expectAmount(t, "total", got.TotalAmount, "35.39")

	mustAddLine(t, svc, inv.ID, "15.00", 1)
	got, err = svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "subtotal", got.Subtotal, "44.99")
	expectAmount(t, "tax", got.TaxAmount, "8.10")
	expectAmount(t, "total", got.TotalAmount, "53.09")
}

func TestRecalculate_Idempotent(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0.18")
	mustAddLine(t, svc, inv.ID, "12.345", 3)

	first, err := svc.Recalculate(ctx, inv.ID)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	second, err := svc.Recalculate(ctx, inv.ID)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if !first.TotalAmount.Equal(second.TotalAmount) || !first.Subtotal.Equal(second.Subtotal) {
		t.Fatalf("expected identical totals, got %s and %s", first.TotalAmount, second.TotalAmount)
	}
	// 12.345 rounds to 12.35 per unit.
	expectAmount(t, "subtotal", second.Subtotal, "37.05")
}

func TestAddLineItem_Validation(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")

	cases := []LineItemParams{
		{Quantity: -1, UnitPrice: decimal.NewFromInt(1)},
		{UnitPrice: decimal.NewFromInt(-5)},
		{ItemType: "bogus", UnitPrice: decimal.NewFromInt(1)},
		{UnitPrice: decimal.NewFromInt(1), TaxRate: decimal.RequireFromString("1.5")},
	}
	for i, params := range cases {
		if _, err := svc.AddLineItem(ctx, inv.ID, params); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}

	line, err := svc.AddLineItem(ctx, inv.ID, LineItemParams{UnitPrice: decimal.NewFromInt(7)})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if line.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", line.Quantity)
	}
	if _, err := svc.AddLineItem(ctx, 9999, LineItemParams{UnitPrice: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing invoice, got %v", err)
	}
}

func TestAddLineItems_AllOrNothing(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")

	_, err := svc.AddLineItems(ctx, inv.ID, []LineItemParams{
		{UnitPrice: decimal.NewFromInt(10)},
		{UnitPrice: decimal.NewFromInt(-10)},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	got, errGet := svc.GetInvoice(ctx, inv.ID)
	if errGet != nil {
		t.Fatalf("get invoice: %v", errGet)
	}
	if len(got.Items) != 0 {
		t.Fatalf("expected no lines after a rejected batch, got %d", len(got.Items))
	}

	added, err := svc.AddLineItems(ctx, inv.ID, []LineItemParams{
		{UnitPrice: decimal.NewFromInt(10)},
		{UnitPrice: decimal.NewFromInt(5), Quantity: 2},
	})
	if err != nil {
		t.Fatalf("add lines: %v", err)
	}
	if added[0].SortOrder != 0 || added[1].SortOrder != 1 {
		t.Fatalf("expected sort orders 0 and 1, got %d and %d", added[0].SortOrder, added[1].SortOrder)
	}
}

func TestAddDiscount_ReducesSubtotal(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0.10")
	mustAddLine(t, svc, inv.ID, "100.00", 1)

	line, err := svc.AddDiscount(ctx, inv.ID, "", decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("add discount: %v", err)
	}
	if line.ItemType != models.LineItemTypeDiscount || !line.TotalPrice.IsNegative() {
		t.Fatalf("expected negative discount line, got %s %s", line.ItemType, line.TotalPrice)
	}
	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "subtotal", got.Subtotal, "80")
	expectAmount(t, "tax", got.TaxAmount, "8")
	expectAmount(t, "total", got.TotalAmount, "88")

	if _, err := svc.AddSetupFee(ctx, inv.ID, "", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("add setup fee: %v", err)
	}
	got, err = svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "total", got.TotalAmount, "143")
}

func TestUpdateLineItem_ExplicitTotalSurvivesEdits(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")

	fixed := decimal.RequireFromString("25.00")
	line, err := svc.AddLineItem(ctx, inv.ID, LineItemParams{
		Description: "Prorated plan",
		Quantity:    1,
		UnitPrice:   decimal.RequireFromString("29.99"),
		TotalPrice:  &fixed,
		IsProrated:  true,
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}

	desc := "Prorated plan (Jan)"
	updated, err := svc.UpdateLineItem(ctx, line.ID, LineItemUpdate{Description: &desc})
	if err != nil {
		t.Fatalf("update line: %v", err)
	}
	expectAmount(t, "line total", updated.TotalPrice, "25.00")

	qty := 2
	updated, err = svc.UpdateLineItem(ctx, line.ID, LineItemUpdate{Quantity: &qty})
	if err != nil {
		t.Fatalf("update line: %v", err)
	}
	if !updated.ExplicitTotal {
		t.Fatalf("expected explicit total to be kept after quantity edit")
	}
	expectAmount(t, "line total", updated.TotalPrice, "25.00")

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "total", got.TotalAmount, "25.00")

	replaced := decimal.RequireFromString("40.00")
	updated, err = svc.UpdateLineItem(ctx, line.ID, LineItemUpdate{TotalPrice: &replaced})
	if err != nil {
		t.Fatalf("update line: %v", err)
	}
	expectAmount(t, "line total", updated.TotalPrice, "40.00")
}

func TestUpdateLineItem_DiscountLineKeepsAmountOnUnitPriceEdit(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")
	mustAddLine(t, svc, inv.ID, "50.00", 1)

	discount, err := svc.AddDiscount(ctx, inv.ID, "Promo", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("add discount: %v", err)
	}

	unit := decimal.RequireFromString("-4")
	updated, err := svc.UpdateLineItem(ctx, discount.ID, LineItemUpdate{UnitPrice: &unit})
	if err != nil {
		t.Fatalf("update discount: %v", err)
	}
	expectAmount(t, "discount total", updated.TotalPrice, "-10.00")

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "total", got.TotalAmount, "40.00")
}

func TestApplyLineDiscount_CapsAtTotal(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")
	line := mustAddLine(t, svc, inv.ID, "40.00", 1)

	updated, err := svc.ApplyLinePercentageDiscount(ctx, line.ID, decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("percentage discount: %v", err)
	}
	expectAmount(t, "line discount", updated.DiscountAmount, "10")

	updated, err = svc.ApplyLineDiscount(ctx, line.ID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("fixed discount: %v", err)
	}
	expectAmount(t, "line discount", updated.DiscountAmount, "40")

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	expectAmount(t, "total", got.TotalAmount, "0")
}

func TestLineMutationsLockedAfterSend(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")
	line := mustAddLine(t, svc, inv.ID, "10.00", 1)
	mustTransition(t, svc, inv.ID, models.InvoiceStatusSent)

	if _, err := svc.AddLineItem(ctx, inv.ID, LineItemParams{UnitPrice: decimal.NewFromInt(1)}); !errors.Is(err, ErrInvoiceLocked) {
		t.Fatalf("expected locked invoice on add, got %v", err)
	}
	if err := svc.RemoveLineItem(ctx, line.ID); !errors.Is(err, ErrInvoiceLocked) {
		t.Fatalf("expected locked invoice on remove, got %v", err)
	}
}

func TestRemoveLineItem(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")
	keep := mustAddLine(t, svc, inv.ID, "10.00", 1)
	drop := mustAddLine(t, svc, inv.ID, "5.00", 1)

	if err := svc.RemoveLineItem(ctx, drop.ID); err != nil {
		t.Fatalf("remove line: %v", err)
	}
	if err := svc.RemoveLineItem(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ID != keep.ID {
		t.Fatalf("expected only the kept line to remain")
	}
	expectAmount(t, "total", got.TotalAmount, "10")
}

func TestMoveLine_SwapsNeighbours(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	inv := mustCreateInvoice(t, svc, user.ID, "0")
	a := mustAddLine(t, svc, inv.ID, "1.00", 1)
	b := mustAddLine(t, svc, inv.ID, "2.00", 1)
	c := mustAddLine(t, svc, inv.ID, "3.00", 1)

	if err := svc.MoveLineUp(ctx, c.ID); err != nil {
		t.Fatalf("move up: %v", err)
	}
	if err := svc.MoveLineUp(ctx, a.ID); err != nil {
		t.Fatalf("move first line up: %v", err)
	}
	if err := svc.MoveLineDown(ctx, a.ID); err != nil {
		t.Fatalf("move down: %v", err)
	}

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	want := []uint64{c.ID, a.ID, b.ID}
	for i, id := range want {
		if got.Items[i].ID != id {
			t.Fatalf("expected line %d at position %d, got %d", id, i, got.Items[i].ID)
		}
	}
}
