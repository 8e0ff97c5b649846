package engine_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/fixtures"
	"github.com/invoicedesk/invoicedesk/model"
)

func newTestEngine(t *testing.T) (*engine.Engine, *model.Store, *fixtures.TestData) {
	t.Helper()
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	eng := engine.New(engine.NewStoreGateway(store), engine.Options{Workers: 2, QueueSize: 32}, nil)
	t.Cleanup(eng.Close)
	return eng, store, data
}

func wait(t *testing.T, ch <-chan engine.Result) engine.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("command did not complete")
		return engine.Result{}
	}
}

func mustSucceed(t *testing.T, ch <-chan engine.Result) engine.Result {
	t.Helper()
	res := wait(t, ch)
	if !res.Success {
		t.Fatalf("command failed: %v", res.Err)
	}
	if res.CommandID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatal("CommandID should be set")
	}
	return res
}

func TestEngine_InvoiceLifecycle(t *testing.T) {
	eng, store, data := newTestEngine(t)

	res := mustSucceed(t, eng.CreateInvoice(engine.CreateInvoiceParams{
		ClientID: data.Client.ID,
		Lines: []engine.LineInput{
			{Description: "Design", Quantity: decimal.NewFromInt(8), UnitPrice: decimal.RequireFromString("120.00")},
		},
		TaxAmount: decimal.RequireFromString("182.40"),
	}))
	inv := res.Invoice
	if inv == nil || inv.ID == 0 {
		t.Fatal("CreateInvoice should return a persisted invoice")
	}
	if inv.Status != model.InvoiceStatusDraft {
		t.Errorf("Status = %q, want draft", inv.Status)
	}
	if inv.Number != "" {
		t.Errorf("draft should have no number, got %q", inv.Number)
	}
	if want := decimal.RequireFromString("1142.40"); !inv.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount = %s, want %s", inv.TotalAmount, want)
	}

	// finalize assigns the next number in this month's bucket; the seeded
	// invoice is in a different bucket, so the sequence starts at 1
	res = mustSucceed(t, eng.FinalizeInvoice(inv.ID))
	number := res.Invoice.Number
	if want := model.NumberBucketPrefix(time.Now()) + "0001"; number != want {
		t.Errorf("Number = %q, want %q", number, want)
	}
	if res.Invoice.Status != model.InvoiceStatusSent {
		t.Errorf("Status = %q, want sent", res.Invoice.Status)
	}

	// finalizing again keeps the number
	res = mustSucceed(t, eng.FinalizeInvoice(inv.ID))
	if res.Invoice.Number != number {
		t.Errorf("Number changed on second finalize: %q -> %q", number, res.Invoice.Number)
	}

	res = mustSucceed(t, eng.CancelInvoice(inv.ID))
	if res.Invoice.Status != model.InvoiceStatusCancelled {
		t.Errorf("Status = %q, want cancelled", res.Invoice.Status)
	}

	res = mustSucceed(t, eng.ReopenInvoice(inv.ID))
	if res.Invoice.Status != model.InvoiceStatusSent {
		t.Errorf("Status after reopen = %q, want sent", res.Invoice.Status)
	}

	mustSucceed(t, eng.DeleteInvoice(inv.ID))
	if _, err := store.LoadInvoice(inv.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadInvoice after delete = %v, want ErrNotFound", err)
	}
}

func TestEngine_FinalizeEmptyInvoiceFails(t *testing.T) {
	eng, _, data := newTestEngine(t)

	res := mustSucceed(t, eng.CreateInvoice(engine.CreateInvoiceParams{ClientID: data.Client.ID}))
	res = wait(t, eng.FinalizeInvoice(res.Invoice.ID))
	if res.Success || !model.IsValidation(res.Err) {
		t.Errorf("FinalizeInvoice on empty invoice = %v, want validation error", res.Err)
	}
}

func TestEngine_PaymentsDriveStatus(t *testing.T) {
	eng, _, data := newTestEngine(t)
	invID := data.Invoice.ID // total 119.00, finalized

	res := mustSucceed(t, eng.AddPayment(invID, engine.PaymentParams{
		Amount: decimal.RequireFromString("50.00"),
		Method: model.PaymentMethodBankTransfer,
	}))
	if res.Payment == nil || res.Payment.ID == 0 {
		t.Fatal("AddPayment should return the persisted payment")
	}
	if res.Invoice.Status != model.InvoiceStatusPartial {
		t.Errorf("Status = %q, want partial", res.Invoice.Status)
	}
	if want := decimal.RequireFromString("69.00"); !res.Invoice.RemainingBalance().Equal(want) {
		t.Errorf("RemainingBalance = %s, want %s", res.Invoice.RemainingBalance(), want)
	}

	res2 := mustSucceed(t, eng.AddPayment(invID, engine.PaymentParams{
		Amount: decimal.RequireFromString("69.00"),
		Method: model.PaymentMethodCash,
	}))
	if res2.Invoice.Status != model.InvoiceStatusPaid {
		t.Errorf("Status = %q, want paid", res2.Invoice.Status)
	}

	// deleting a payment reopens the invoice to partial
	res3 := mustSucceed(t, eng.DeletePayment(res2.Payment.ID))
	if res3.Invoice.Status != model.InvoiceStatusPartial {
		t.Errorf("Status after delete = %q, want partial", res3.Invoice.Status)
	}

	// shrinking the remaining payment below the total keeps partial,
	// growing it to the total flips to paid
	amount := decimal.RequireFromString("119.00")
	res4 := mustSucceed(t, eng.UpdatePayment(res.Payment.ID, engine.PaymentPatch{Amount: &amount}))
	if res4.Invoice.Status != model.InvoiceStatusPaid {
		t.Errorf("Status after update = %q, want paid", res4.Invoice.Status)
	}
}

func TestEngine_PaymentRejections(t *testing.T) {
	eng, store, data := newTestEngine(t)

	res := wait(t, eng.AddPayment(data.Invoice.ID, engine.PaymentParams{
		Amount: decimal.Zero,
		Method: model.PaymentMethodCash,
	}))
	if res.Success || !model.IsValidation(res.Err) {
		t.Errorf("zero amount = %v, want validation error", res.Err)
	}

	res = wait(t, eng.AddPayment(9999, engine.PaymentParams{
		Amount: decimal.NewFromInt(10),
		Method: model.PaymentMethodCash,
	}))
	if res.Success || !errors.Is(res.Err, model.ErrNotFound) {
		t.Errorf("missing invoice = %v, want ErrNotFound", res.Err)
	}

	// drafts cannot take payments
	draft := fixtures.NewInvoice(t, data.Client.ID, fixtures.WithLineItem("Work", "1", "10.00"))
	if err := store.SaveInvoice(draft); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}
	res = wait(t, eng.AddPayment(draft.ID, engine.PaymentParams{
		Amount: decimal.NewFromInt(10),
		Method: model.PaymentMethodCash,
	}))
	if res.Success || !model.IsValidation(res.Err) {
		t.Errorf("payment on draft = %v, want validation error", res.Err)
	}
}

func TestEngine_MovePaymentBetweenInvoices(t *testing.T) {
	eng, store, data := newTestEngine(t)

	second := fixtures.NewInvoice(t, data.Client.ID,
		fixtures.WithNumber("INV-202501-0002"),
		fixtures.WithLineItem("Hosting", "1", "200.00"),
	)
	if err := store.SaveInvoice(second); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}

	res := mustSucceed(t, eng.AddPayment(data.Invoice.ID, engine.PaymentParams{
		Amount: decimal.RequireFromString("119.00"),
		Method: model.PaymentMethodBankTransfer,
	}))
	if res.Invoice.Status != model.InvoiceStatusPaid {
		t.Fatalf("origin Status = %q, want paid", res.Invoice.Status)
	}

	moved := mustSucceed(t, eng.UpdatePayment(res.Payment.ID, engine.PaymentPatch{InvoiceID: &second.ID}))
	if moved.Invoice.ID != second.ID {
		t.Fatalf("result invoice = %d, want destination %d", moved.Invoice.ID, second.ID)
	}
	if moved.Invoice.Status != model.InvoiceStatusPartial {
		t.Errorf("destination Status = %q, want partial", moved.Invoice.Status)
	}

	origin, err := store.LoadInvoice(data.Invoice.ID)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	if origin.Status != model.InvoiceStatusSent {
		t.Errorf("origin Status after move = %q, want sent", origin.Status)
	}
	if !origin.TotalPaid().IsZero() {
		t.Errorf("origin TotalPaid after move = %s, want 0", origin.TotalPaid())
	}
}

func TestEngine_ConcurrentPaymentsSerialize(t *testing.T) {
	eng, store, data := newTestEngine(t)

	const n = 10
	var wg sync.WaitGroup
	results := make([]engine.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = <-eng.AddPayment(data.Invoice.ID, engine.PaymentParams{
				Amount:    decimal.RequireFromString("1.00"),
				Method:    model.PaymentMethodCash,
				Reference: fmt.Sprintf("chunk-%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if !res.Success {
			t.Fatalf("payment %d failed: %v", i, res.Err)
		}
	}
	inv, err := store.LoadInvoice(data.Invoice.ID)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	if want := decimal.RequireFromString("10.00"); !inv.TotalPaid().Equal(want) {
		t.Errorf("TotalPaid = %s, want %s", inv.TotalPaid(), want)
	}
	if inv.Status != model.InvoiceStatusPartial {
		t.Errorf("Status = %q, want partial", inv.Status)
	}
}

func TestEngine_RefreshStatusDetectsOverdue(t *testing.T) {
	eng, store, data := newTestEngine(t)

	past := time.Now().Add(-48 * time.Hour)
	inv, err := store.LoadInvoice(data.Invoice.ID)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	inv.DueDate = &past
	if err := store.SaveInvoice(inv); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}

	refreshed, err := eng.RefreshStatus(inv.ID)
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if refreshed.Status != model.InvoiceStatusOverdue {
		t.Errorf("Status = %q, want overdue", refreshed.Status)
	}

	if err := eng.RefreshOverdue(); err != nil {
		t.Fatalf("RefreshOverdue failed: %v", err)
	}
}

func TestEngine_LineItemCommands(t *testing.T) {
	eng, _, data := newTestEngine(t)
	invID := data.Invoice.ID

	res := mustSucceed(t, eng.AddLineItem(invID, "Extra work", decimal.NewFromInt(2), decimal.RequireFromString("30.00")))
	if len(res.Invoice.LineItems) != 2 {
		t.Fatalf("LineItems count = %d, want 2", len(res.Invoice.LineItems))
	}
	if want := decimal.RequireFromString("179.00"); !res.Invoice.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount = %s, want %s", res.Invoice.TotalAmount, want)
	}

	added := res.Invoice.LineItems[1]
	qty := decimal.NewFromInt(3)
	res = mustSucceed(t, eng.UpdateLineItem(invID, added.ID, model.LineItemPatch{Quantity: &qty}))
	if want := decimal.RequireFromString("209.00"); !res.Invoice.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount after update = %s, want %s", res.Invoice.TotalAmount, want)
	}

	res = mustSucceed(t, eng.RemoveLineItem(invID, res.Invoice.LineItems[1].ID))
	if want := decimal.RequireFromString("119.00"); !res.Invoice.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount after removal = %s, want %s", res.Invoice.TotalAmount, want)
	}

	res = wait(t, eng.RemoveLineItem(invID, 9999))
	if res.Success || !errors.Is(res.Err, model.ErrNotFound) {
		t.Errorf("RemoveLineItem missing id = %v, want ErrNotFound", res.Err)
	}
}

func TestEngine_ClosedRejectsCommands(t *testing.T) {
	store := fixtures.NewTestStore(t)
	eng := engine.New(engine.NewStoreGateway(store), engine.Options{}, nil)
	eng.Close()

	res := wait(t, eng.DeleteInvoice(1))
	if res.Success || !errors.Is(res.Err, engine.ErrClosed) {
		t.Errorf("command after Close = %v, want ErrClosed", res.Err)
	}
}

// panicGateway panics on the next Transaction when armed, then behaves
// normally again.
type panicGateway struct {
	engine.Gateway
	mu    sync.Mutex
	armed bool
}

func (g *panicGateway) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *panicGateway) Transaction(fn func(engine.Gateway) error) error {
	g.mu.Lock()
	fire := g.armed
	g.armed = false
	g.mu.Unlock()
	if fire {
		panic("storage driver blew up")
	}
	return g.Gateway.Transaction(fn)
}

func TestEngine_PanicBecomesFailedResult(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	gw := &panicGateway{Gateway: engine.NewStoreGateway(store)}
	eng := engine.New(gw, engine.Options{Workers: 1, QueueSize: 8}, nil)
	t.Cleanup(eng.Close)

	gw.arm()
	res := wait(t, eng.CancelInvoice(data.Invoice.ID))
	if res.Success || res.Err == nil {
		t.Fatalf("panicking command = %+v, want failed result", res)
	}
	if !strings.Contains(res.Err.Error(), "panicked") {
		t.Errorf("Err = %v, want panic converted to error", res.Err)
	}
	if res.CommandID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("CommandID should survive the panic")
	}

	// The single worker must still be serving commands.
	mustSucceed(t, eng.CancelInvoice(data.Invoice.ID))
}

// movePaymentGateway reassigns a payment to another invoice right before the
// next Transaction runs, mimicking a writer that got in between a command's
// pre-read and its lock acquisition.
type movePaymentGateway struct {
	engine.Gateway
	store *model.Store

	mu        sync.Mutex
	paymentID uint
	dest      uint
	armed     bool
}

func (g *movePaymentGateway) arm(paymentID, dest uint) {
	g.mu.Lock()
	g.paymentID, g.dest, g.armed = paymentID, dest, true
	g.mu.Unlock()
}

func (g *movePaymentGateway) Transaction(fn func(engine.Gateway) error) error {
	g.mu.Lock()
	fire := g.armed
	g.armed = false
	payID, dest := g.paymentID, g.dest
	g.mu.Unlock()
	if fire {
		pay, err := g.store.LoadPayment(payID)
		if err != nil {
			return err
		}
		pay.InvoiceID = dest
		if err := g.store.SavePayment(pay); err != nil {
			return err
		}
	}
	return g.Gateway.Transaction(fn)
}

func TestEngine_DeletePaymentDetectsConcurrentMove(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	gw := &movePaymentGateway{Gateway: engine.NewStoreGateway(store), store: store}
	eng := engine.New(gw, engine.Options{Workers: 1, QueueSize: 8}, nil)
	t.Cleanup(eng.Close)

	second := fixtures.NewInvoice(t, data.Client.ID,
		fixtures.WithNumber("INV-202501-0002"),
		fixtures.WithLineItem("Hosting", "1", "200.00"),
	)
	if err := store.SaveInvoice(second); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}

	added := mustSucceed(t, eng.AddPayment(data.Invoice.ID, engine.PaymentParams{
		Amount: decimal.RequireFromString("50.00"),
		Method: model.PaymentMethodCash,
	}))

	gw.arm(added.Payment.ID, second.ID)
	res := wait(t, eng.DeletePayment(added.Payment.ID))
	if res.Success {
		t.Fatal("delete after a concurrent move should fail")
	}
	var serr model.StorageError
	if !errors.As(res.Err, &serr) {
		t.Fatalf("Err = %v, want StorageError", res.Err)
	}

	// The moved payment must still exist on its new invoice.
	moved, err := store.LoadPayment(added.Payment.ID)
	if err != nil {
		t.Fatalf("LoadPayment failed: %v", err)
	}
	if moved.InvoiceID != second.ID {
		t.Errorf("InvoiceID = %d, want %d", moved.InvoiceID, second.ID)
	}
}

func TestEngine_ConcurrentFinalizeAssignsDistinctNumbers(t *testing.T) {
	eng, _, data := newTestEngine(t)

	const n = 5
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		res := mustSucceed(t, eng.CreateInvoice(engine.CreateInvoiceParams{
			ClientID: data.Client.ID,
			Lines:    []engine.LineInput{{Description: "Work", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("10.00")}},
		}))
		ids[i] = res.Invoice.ID
	}

	var wg sync.WaitGroup
	results := make([]engine.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = <-eng.FinalizeInvoice(ids[i])
		}(i)
	}
	wg.Wait()

	seen := make(map[string]uint, n)
	for i, res := range results {
		if !res.Success {
			t.Fatalf("finalize %d failed: %v", i, res.Err)
		}
		num := res.Invoice.Number
		if num == "" {
			t.Fatalf("invoice %d has no number", ids[i])
		}
		if prev, dup := seen[num]; dup {
			t.Fatalf("number %q assigned to both invoice %d and %d", num, prev, ids[i])
		}
		seen[num] = ids[i]
	}
}

func TestEngine_LineItemIDsSurviveReconcile(t *testing.T) {
	eng, store, data := newTestEngine(t)
	invID := data.Invoice.ID

	before, err := store.LoadInvoice(invID)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	lineID := before.LineItems[0].ID

	res := mustSucceed(t, eng.AddPayment(invID, engine.PaymentParams{
		Amount: decimal.RequireFromString("10.00"),
		Method: model.PaymentMethodCash,
	}))
	if res.Invoice.LineItems[0].ID != lineID {
		t.Fatalf("line item ID changed across reconcile: %d -> %d", lineID, res.Invoice.LineItems[0].ID)
	}

	// The ID handed out before the payment must still address the line.
	qty := decimal.NewFromInt(4)
	res = mustSucceed(t, eng.UpdateLineItem(invID, lineID, model.LineItemPatch{Quantity: &qty}))
	if res.Invoice.LineItems[0].ID != lineID {
		t.Errorf("line item ID after update = %d, want %d", res.Invoice.LineItems[0].ID, lineID)
	}
}
