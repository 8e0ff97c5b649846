// Package fixtures provides test helpers for an in-memory store and seeded
// domain data. It is imported only from _test files.
package fixtures

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicedesk/invoicedesk/model"
)

// NewTestStore opens a fresh in-memory SQLite store with migrations applied.
func NewTestStore(t *testing.T) *model.Store {
	t.Helper()
	cfg := &model.Config{
		Mode: "test",
		Servers: map[string]model.DatabaseServer{
			"test": {Database: "sqlite3", DBName: ":memory:", DBLogger: "silent"},
		},
	}
	cfg.Invoice.DueDays = 14
	store, err := model.InitDatabase(cfg)
	if err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}
	return store
}

// TestData is what SeedTestData creates.
type TestData struct {
	Client  *model.Client
	Item    *model.Item
	Invoice *model.Invoice // finalized, one line item, no payments
}

// SeedTestData inserts a client, a catalog item, and a finalized invoice
// with a single line item worth 100.00 plus 19.00 tax.
func SeedTestData(t *testing.T, store *model.Store) *TestData {
	t.Helper()
	client := &model.Client{
		Name:    "Acme GmbH",
		Email:   "billing@acme.example",
		City:    "Berlin",
		Country: "Germany",
		Active:  true,
	}
	if err := store.SaveClient(client); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}
	item := &model.Item{
		Name:  "Consulting hour",
		Price: decimal.RequireFromString("100.00"),
	}
	if err := store.SaveItem(item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	inv := NewInvoice(t, client.ID,
		WithNumber("INV-202501-0001"),
		WithLineItem("Consulting", "1", "100.00"),
		WithTax("19.00"),
	)
	if err := store.SaveInvoice(inv); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}
	return &TestData{Client: client, Item: item, Invoice: inv}
}

// InvoiceOption mutates an invoice under construction.
type InvoiceOption func(*model.Invoice)

// WithNumber finalizes the invoice with the given number.
func WithNumber(number string) InvoiceOption {
	return func(inv *model.Invoice) { inv.Number = number }
}

// WithLineItem appends a line item; quantity and unitPrice are decimal
// strings.
func WithLineItem(description, quantity, unitPrice string) InvoiceOption {
	return func(inv *model.Invoice) {
		inv.LineItems = append(inv.LineItems, model.LineItem{
			Description: description,
			Quantity:    decimal.RequireFromString(quantity),
			UnitPrice:   decimal.RequireFromString(unitPrice),
		})
	}
}

// WithTax sets the invoice tax amount from a decimal string.
func WithTax(amount string) InvoiceOption {
	return func(inv *model.Invoice) { inv.TaxAmount = decimal.RequireFromString(amount) }
}

// WithDiscount sets the invoice discount from a decimal string.
func WithDiscount(amount string) InvoiceOption {
	return func(inv *model.Invoice) { inv.Discount = decimal.RequireFromString(amount) }
}

// WithCommissionRate sets the commission rate in percent from a decimal
// string.
func WithCommissionRate(rate string) InvoiceOption {
	return func(inv *model.Invoice) { inv.CommissionRate = decimal.RequireFromString(rate) }
}

// WithDueDate sets the due date.
func WithDueDate(due time.Time) InvoiceOption {
	return func(inv *model.Invoice) { inv.DueDate = &due }
}

// WithCancelled marks the invoice cancelled.
func WithCancelled() InvoiceOption {
	return func(inv *model.Invoice) { inv.Cancelled = true }
}

// NewInvoice builds an invoice with totals and status derived, without
// persisting it.
func NewInvoice(t *testing.T, clientID uint, opts ...InvoiceOption) *model.Invoice {
	t.Helper()
	inv := &model.Invoice{
		ClientID:  clientID,
		IssueDate: time.Now(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.Reconcile(time.Now())
	return inv
}

// NewPayment builds a bank transfer payment over amount (a decimal string)
// without persisting it.
func NewPayment(t *testing.T, invoiceID uint, amount string) *model.Payment {
	t.Helper()
	return &model.Payment{
		InvoiceID:   invoiceID,
		Amount:      decimal.RequireFromString(amount),
		PaymentDate: time.Now(),
		Method:      model.PaymentMethodBankTransfer,
	}
}
