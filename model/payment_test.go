package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicedesk/invoicedesk/fixtures"
	"github.com/invoicedesk/invoicedesk/model"
)

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		method  model.PaymentMethod
		wantErr bool
	}{
		{"positive bank transfer", "50.00", model.PaymentMethodBankTransfer, false},
		{"cash", "0.01", model.PaymentMethodCash, false},
		{"empty method tolerated", "10.00", "", false},
		{"zero amount", "0", model.PaymentMethodCash, true},
		{"negative amount", "-5.00", model.PaymentMethodCash, true},
		{"unknown method", "10.00", "bitcoin", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.Payment{
				InvoiceID: 1,
				Amount:    decimal.RequireFromString(tt.amount),
				Method:    tt.method,
			}
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if tt.wantErr && err != nil && !model.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

func TestParsePaymentMethod(t *testing.T) {
	if m, ok := model.ParsePaymentMethod(""); !ok || m != model.PaymentMethodOther {
		t.Errorf("ParsePaymentMethod(\"\") = %q, %v; want other, true", m, ok)
	}
	if _, ok := model.ParsePaymentMethod("check"); !ok {
		t.Error("ParsePaymentMethod(check) should be valid")
	}
	if _, ok := model.ParsePaymentMethod("iou"); ok {
		t.Error("ParsePaymentMethod(iou) should be invalid")
	}
}

func TestPayment_SaveLoadDelete(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)

	first := fixtures.NewPayment(t, data.Invoice.ID, "60.00")
	first.PaymentDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	second := fixtures.NewPayment(t, data.Invoice.ID, "59.00")
	second.PaymentDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []*model.Payment{first, second} {
		if err := store.SavePayment(p); err != nil {
			t.Fatalf("SavePayment failed: %v", err)
		}
	}

	payments, err := store.LoadPaymentsForInvoice(data.Invoice.ID)
	if err != nil {
		t.Fatalf("LoadPaymentsForInvoice failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments count = %d, want 2", len(payments))
	}
	// ordered by payment date, not insertion
	if payments[0].ID != second.ID {
		t.Errorf("payments[0].ID = %d, want %d (earlier date first)", payments[0].ID, second.ID)
	}

	loaded, err := store.LoadPayment(first.ID)
	if err != nil {
		t.Fatalf("LoadPayment failed: %v", err)
	}
	if !loaded.Amount.Equal(decimal.RequireFromString("60.00")) {
		t.Errorf("Amount = %s, want 60.00", loaded.Amount)
	}

	if err := store.DeletePayment(first.ID); err != nil {
		t.Fatalf("DeletePayment failed: %v", err)
	}
	if err := store.DeletePayment(first.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("DeletePayment twice = %v, want ErrNotFound", err)
	}
	if _, err := store.LoadPayment(first.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadPayment after delete = %v, want ErrNotFound", err)
	}
}
