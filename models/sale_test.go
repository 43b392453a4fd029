package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validSaleInput() *NewOfflineSale {
	return &NewOfflineSale{
		CashierID: "cashier-1",
		Total:     decimal.RequireFromString("99.999"),
		Items: []NewSaleItem{
			{ProductID: "p1", Name: "Widget", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("49.995"), Tracked: true},
		},
		Payments: []NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(100)},
		},
		SaleType: "retail",
	}
}

func TestValidateGeneratesReceiptIdentity(t *testing.T) {
	sale, err := validSaleInput().Validate()
	if err != nil {
		t.Fatal(err)
	}
	if sale.Meta.ReceiptID == "" {
		t.Fatal("receipt id not generated")
	}
	if sale.Meta.Timestamp.IsZero() || sale.Meta.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v", sale.Meta.Timestamp)
	}

	other, _ := validSaleInput().Validate()
	if other.Meta.ReceiptID == sale.Meta.ReceiptID {
		t.Fatal("receipt ids must be unique per checkout")
	}
}

func TestValidateNormalizesAmounts(t *testing.T) {
	sale, err := validSaleInput().Validate()
	if err != nil {
		t.Fatal(err)
	}
	if sale.Total.String() != "100" {
		t.Fatalf("total = %s", sale.Total)
	}
	if sale.Items[0].UnitPrice.String() != "50" {
		t.Fatalf("unit price = %s", sale.Items[0].UnitPrice)
	}
	// Quantities are not currency and keep their precision.
	if !sale.Items[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("quantity = %s", sale.Items[0].Quantity)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*NewOfflineSale)
	}{
		{"missing cashier", func(s *NewOfflineSale) { s.CashierID = "" }},
		{"no items", func(s *NewOfflineSale) { s.Items = nil }},
		{"negative total", func(s *NewOfflineSale) { s.Total = decimal.NewFromInt(-1) }},
		{"zero quantity", func(s *NewOfflineSale) { s.Items[0].Quantity = decimal.Zero }},
		{"negative quantity", func(s *NewOfflineSale) { s.Items[0].Quantity = decimal.NewFromInt(-3) }},
		{"item without product", func(s *NewOfflineSale) { s.Items[0].ProductID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validSaleInput()
			tc.mutate(input)
			if _, err := input.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestExpenseValidateDefaults(t *testing.T) {
	input := &NewExpense{Amount: decimal.RequireFromString("10.555"), Category: " supplies "}
	expense, err := input.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if expense.ID == "" {
		t.Fatal("id not generated")
	}
	if expense.Kind != ExpenseKindExpense {
		t.Fatalf("kind = %s", expense.Kind)
	}
	if expense.Category != "supplies" {
		t.Fatalf("category = %q", expense.Category)
	}
	if expense.Amount.String() != "10.56" {
		t.Fatalf("amount = %s", expense.Amount)
	}
	if expense.OccurredAt.IsZero() {
		t.Fatal("occurred at not defaulted")
	}
}

func TestExpenseValidateRejections(t *testing.T) {
	if _, err := (&NewExpense{Amount: decimal.Zero, Category: "x"}).Validate(); err == nil {
		t.Fatal("zero amount must be rejected")
	}
	if _, err := (&NewExpense{Amount: decimal.NewFromInt(5), Category: "x", Kind: "bogus"}).Validate(); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
	if _, err := (&NewExpense{Amount: decimal.NewFromInt(5)}).Validate(); err == nil {
		t.Fatal("missing category must be rejected")
	}
}

func TestExpenseValidateKeepsExistingID(t *testing.T) {
	input := &NewExpense{ID: "e-77", Amount: decimal.NewFromInt(5), Category: "x"}
	expense, err := input.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if expense.ID != "e-77" {
		t.Fatalf("id = %q", expense.ID)
	}
}

func TestBookingValidateDefaultsStatus(t *testing.T) {
	input := &NewServiceBooking{
		CustomerName: "Aye Aye",
		Service:      "haircut",
		StartsAt:     time.Now().Add(time.Hour),
	}
	booking, err := input.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != BookingStatusBooked {
		t.Fatalf("status = %s", booking.Status)
	}
	if booking.ID == "" {
		t.Fatal("id not generated")
	}
}

func TestBookingValidateRequiresStart(t *testing.T) {
	input := &NewServiceBooking{CustomerName: "Aye Aye", Service: "haircut"}
	if _, err := input.Validate(); err == nil {
		t.Fatal("missing start time must be rejected")
	}
}

func TestInventoryValidateRejectsNegativePrice(t *testing.T) {
	input := &NewInventoryMutation{ProductID: "p1", Name: "Widget", SellingPrice: decimal.NewFromInt(-1)}
	if _, err := input.Validate(); err == nil {
		t.Fatal("negative price must be rejected")
	}
}
