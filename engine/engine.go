// Package engine keeps an invoice's computed totals and payment status
// consistent while line items and payments change concurrently. Commands are
// executed by a bounded worker pool; all writers of one invoice are
// serialized on a per-invoice lock, and every command performs its whole
// read-modify-write inside one transaction. Callers never block on submit:
// each command returns a buffered result channel.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/invoicedesk/invoicedesk/model"
)

var (
	// ErrBusy is returned when the command queue is full. The command was
	// not executed; the caller may retry.
	ErrBusy = errors.New("engine: command queue full")
	// ErrClosed is returned for commands submitted after Close.
	ErrClosed = errors.New("engine: closed")

	errConcurrentMove = errors.New("payment moved concurrently")
)

// Result is the envelope every command resolves to. Err carries the typed
// domain errors from the model package; panics never cross this boundary.
type Result struct {
	CommandID uuid.UUID
	Success   bool
	Invoice   *model.Invoice // reconciled state after the command
	Payment   *model.Payment // set by payment commands
	Err       error
}

// Options sizes the worker pool.
type Options struct {
	Workers   int // default 4
	QueueSize int // default 64
}

// Engine is the reconciliation engine.
type Engine struct {
	gw     Gateway
	logger *slog.Logger
	now    func() time.Time

	tasks  chan task
	wg     sync.WaitGroup
	locks  *invoiceLocks
	numMu  sync.Mutex // serializes number assignment across invoices
	flight singleflight.Group

	mu     sync.Mutex
	closed bool
}

type task struct {
	name string
	id   uuid.UUID
	run  func() Result
	out  chan Result
}

// New builds an engine over the given gateway and starts its workers.
func New(gw Gateway, opts Options, logger *slog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		gw:     gw,
		logger: logger,
		now:    time.Now,
		tasks:  make(chan task, opts.QueueSize),
		locks:  newInvoiceLocks(),
	}
	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Close stops accepting commands, drains the queue, and waits for the
// workers to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for t := range e.tasks {
		res := e.runTask(t)
		res.Success = res.Err == nil
		if res.Err != nil {
			e.logger.Warn("command failed", "command", t.name, "id", res.CommandID, "error", res.Err)
		} else {
			e.logger.Debug("command done", "command", t.name, "id", res.CommandID)
		}
		t.out <- res
	}
}

// runTask isolates one command. A panicking command must not take the worker
// down or starve its caller of a result.
func (e *Engine) runTask(t task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("command panicked", "command", t.name, "id", t.id, "panic", r)
			res = Result{CommandID: t.id, Err: fmt.Errorf("engine: command %s panicked: %v", t.name, r)}
		}
	}()
	return t.run()
}

// submit enqueues a command without blocking. When the queue is full or the
// engine is closed, the returned channel already holds a failed Result.
func (e *Engine) submit(name string, run func(id uuid.UUID) Result) <-chan Result {
	out := make(chan Result, 1)
	id := uuid.New()
	t := task{
		name: name,
		id:   id,
		run:  func() Result { return run(id) },
		out:  out,
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		out <- Result{CommandID: id, Err: ErrClosed}
		return out
	}
	select {
	case e.tasks <- t:
	default:
		out <- Result{CommandID: id, Err: ErrBusy}
	}
	return out
}

// reconcile recomputes totals and status for a loaded invoice and persists
// it. The invoice must carry its line items and payments.
func (e *Engine) reconcile(tx Gateway, inv *model.Invoice) error {
	inv.Reconcile(e.now())
	return tx.SaveInvoice(inv)
}

// reconcileByID loads an invoice fresh inside the transaction and
// reconciles it.
func (e *Engine) reconcileByID(tx Gateway, id uint) (*model.Invoice, error) {
	inv, err := tx.LoadInvoice(id)
	if err != nil {
		return nil, err
	}
	if err := e.reconcile(tx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ---- invoice commands ------------------------------------------------------

// LineInput is one line of a new or updated invoice.
type LineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	ItemID      *uint
}

// CreateInvoiceParams describes a new draft invoice.
type CreateInvoiceParams struct {
	ClientID       uint
	IssueDate      time.Time
	DueDate        *time.Time
	TaxAmount      decimal.Decimal
	Discount       decimal.Decimal
	CommissionRate decimal.Decimal
	Notes          string
	Lines          []LineInput
}

// CreateInvoice creates a draft invoice. The draft has no number and may be
// empty; it cannot be finalized without at least one line item.
func (e *Engine) CreateInvoice(params CreateInvoiceParams) <-chan Result {
	return e.submit("invoice.create", func(id uuid.UUID) Result {
		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			if _, err := tx.LoadClient(params.ClientID); err != nil {
				return err
			}
			issue := params.IssueDate
			if issue.IsZero() {
				issue = e.now()
			}
			inv = &model.Invoice{
				ClientID:       params.ClientID,
				IssueDate:      issue,
				DueDate:        params.DueDate,
				TaxAmount:      params.TaxAmount,
				Discount:       params.Discount,
				CommissionRate: params.CommissionRate,
				Notes:          params.Notes,
			}
			for _, l := range params.Lines {
				li, err := inv.AddLineItem(l.Description, l.Quantity, l.UnitPrice)
				if err != nil {
					return err
				}
				li.ItemID = l.ItemID
			}
			inv.Reconcile(e.now())
			return tx.SaveInvoice(inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// InvoicePatch carries editable invoice header fields. Nil fields stay
// unchanged; ClearDueDate removes the due date.
type InvoicePatch struct {
	ClientID       *uint
	IssueDate      *time.Time
	DueDate        *time.Time
	ClearDueDate   bool
	TaxAmount      *decimal.Decimal
	Discount       *decimal.Decimal
	CommissionRate *decimal.Decimal
	Notes          *string
}

// UpdateInvoice edits header fields and re-reconciles. Changing tax,
// discount, or commission on a paid invoice may reopen it to partial; the
// status is always re-derived, never patched.
func (e *Engine) UpdateInvoice(invoiceID uint, patch InvoicePatch) <-chan Result {
	return e.submit("invoice.update", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if patch.ClientID != nil {
				if _, err := tx.LoadClient(*patch.ClientID); err != nil {
					return err
				}
				inv.ClientID = *patch.ClientID
			}
			if patch.IssueDate != nil {
				inv.IssueDate = *patch.IssueDate
			}
			if patch.ClearDueDate {
				inv.DueDate = nil
			} else if patch.DueDate != nil {
				inv.DueDate = patch.DueDate
			}
			if patch.TaxAmount != nil {
				if patch.TaxAmount.IsNegative() {
					return model.Invalid("tax_amount", "must not be negative")
				}
				inv.TaxAmount = *patch.TaxAmount
			}
			if patch.Discount != nil {
				if patch.Discount.IsNegative() {
					return model.Invalid("discount", "must not be negative")
				}
				inv.Discount = *patch.Discount
			}
			if patch.CommissionRate != nil {
				if patch.CommissionRate.IsNegative() {
					return model.Invalid("commission_rate", "must not be negative")
				}
				inv.CommissionRate = *patch.CommissionRate
			}
			if patch.Notes != nil {
				inv.Notes = *patch.Notes
			}
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// AddLineItem appends a line item and reconciles.
func (e *Engine) AddLineItem(invoiceID uint, description string, quantity, unitPrice decimal.Decimal) <-chan Result {
	return e.submit("lineitem.add", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if _, err := inv.AddLineItem(description, quantity, unitPrice); err != nil {
				return err
			}
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// UpdateLineItem edits one line item and reconciles.
func (e *Engine) UpdateLineItem(invoiceID, lineItemID uint, patch model.LineItemPatch) <-chan Result {
	return e.submit("lineitem.update", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if err := inv.UpdateLineItem(lineItemID, patch); err != nil {
				return err
			}
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// RemoveLineItem deletes one line item and reconciles.
func (e *Engine) RemoveLineItem(invoiceID, lineItemID uint) <-chan Result {
	return e.submit("lineitem.remove", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if err := inv.RemoveLineItem(lineItemID); err != nil {
				return err
			}
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// FinalizeInvoice assigns the invoice number (exactly once) and moves the
// draft to sent. Finalizing an already-finalized invoice is a no-op;
// finalizing an empty invoice fails.
func (e *Engine) FinalizeInvoice(invoiceID uint) <-chan Result {
	return e.submit("invoice.finalize", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		// The bucket max is shared between invoices; without this two
		// concurrent finalizes could draw the same number.
		e.numMu.Lock()
		defer e.numMu.Unlock()

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if inv.Finalized() {
				return nil // number is immutable once assigned
			}
			if len(inv.LineItems) == 0 {
				return model.Invalid("line_items", "cannot finalize an invoice without line items")
			}
			now := e.now()
			numbers, err := tx.InvoiceNumbers(model.NumberBucketPrefix(now))
			if err != nil {
				return err
			}
			inv.Number = model.NextInvoiceNumber(numbers, now)
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// CancelInvoice sets the cancellation flag. Cancelled overrides every other
// status until an explicit reopen.
func (e *Engine) CancelInvoice(invoiceID uint) <-chan Result {
	return e.setCancelled("invoice.cancel", invoiceID, true)
}

// ReopenInvoice clears the cancellation flag; the status falls back to
// whatever the totals and dates dictate.
func (e *Engine) ReopenInvoice(invoiceID uint) <-chan Result {
	return e.setCancelled("invoice.reopen", invoiceID, false)
}

func (e *Engine) setCancelled(name string, invoiceID uint, cancelled bool) <-chan Result {
	return e.submit(name, func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			inv.Cancelled = cancelled
			return e.reconcile(tx, inv)
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}

// DeleteInvoice removes the invoice and everything it owns.
func (e *Engine) DeleteInvoice(invoiceID uint) <-chan Result {
	return e.submit("invoice.delete", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)
		err := e.gw.Transaction(func(tx Gateway) error {
			return tx.DeleteInvoice(invoiceID)
		})
		return Result{CommandID: id, Err: err}
	})
}

// ---- opportunistic status refresh -----------------------------------------

// RefreshStatus re-derives one invoice's status synchronously. Reads use it
// for the overdue check; concurrent refreshes of the same invoice collapse
// into one pass. The row is only written when the status actually changed.
func (e *Engine) RefreshStatus(invoiceID uint) (*model.Invoice, error) {
	v, err, _ := e.flight.Do(strconv.FormatUint(uint64(invoiceID), 10), func() (any, error) {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			before := inv.Status
			inv.Reconcile(e.now())
			if inv.Status == before {
				return nil
			}
			return tx.SaveInvoice(inv)
		})
		return inv, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Invoice), nil
}

// RefreshOverdue sweeps invoices whose due date has passed and re-derives
// their status. Invoked from read paths (dashboard, listings); there is no
// scheduled job behind it.
func (e *Engine) RefreshOverdue() error {
	ids, err := e.gw.ListOverdueCandidates(e.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := e.RefreshStatus(id); err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return nil
}
