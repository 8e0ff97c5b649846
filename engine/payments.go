package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoicedesk/invoicedesk/model"
)

// PaymentParams describes a new payment on an invoice.
type PaymentParams struct {
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      model.PaymentMethod
	Reference   string
	Notes       string
}

// AddPayment records a payment against a finalized invoice and reconciles
// it. Overpayment is allowed; the invoice simply stays paid.
func (e *Engine) AddPayment(invoiceID uint, params PaymentParams) <-chan Result {
	return e.submit("payment.add", func(id uuid.UUID) Result {
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var (
			inv *model.Invoice
			pay *model.Payment
		)
		err := e.gw.Transaction(func(tx Gateway) error {
			var err error
			inv, err = tx.LoadInvoice(invoiceID)
			if err != nil {
				return err
			}
			if !inv.Finalized() {
				return model.Invalid("invoice", "payments require a finalized invoice")
			}
			when := params.PaymentDate
			if when.IsZero() {
				when = e.now()
			}
			pay = &model.Payment{
				InvoiceID:   invoiceID,
				Amount:      params.Amount,
				PaymentDate: when,
				Method:      params.Method,
				Reference:   params.Reference,
				Notes:       params.Notes,
			}
			if pay.Method == "" {
				pay.Method = model.PaymentMethodOther
			}
			if err := pay.Validate(); err != nil {
				return err
			}
			if err := tx.SavePayment(pay); err != nil {
				return err
			}
			inv, err = e.reconcileByID(tx, invoiceID)
			return err
		})
		return Result{CommandID: id, Invoice: inv, Payment: pay, Err: err}
	})
}

// PaymentPatch carries editable payment fields. A non-nil InvoiceID moves
// the payment to another invoice; both invoices are reconciled.
type PaymentPatch struct {
	InvoiceID   *uint
	Amount      *decimal.Decimal
	PaymentDate *time.Time
	Method      *model.PaymentMethod
	Reference   *string
	Notes       *string
}

// UpdatePayment edits a payment. When the payment moves between invoices the
// origin loses the amount and the destination gains it in the same
// transaction, each side re-derived from its own payment set.
func (e *Engine) UpdatePayment(paymentID uint, patch PaymentPatch) <-chan Result {
	return e.submit("payment.update", func(id uuid.UUID) Result {
		// Read outside the lock to learn the origin invoice, then lock both
		// sides and re-verify inside the transaction.
		orig, err := e.gw.LoadPayment(paymentID)
		if err != nil {
			return Result{CommandID: id, Err: err}
		}
		origin := orig.InvoiceID
		dest := origin
		if patch.InvoiceID != nil {
			dest = *patch.InvoiceID
		}
		e.locks.lockPair(origin, dest)
		defer e.locks.unlockPair(origin, dest)

		var (
			inv *model.Invoice
			pay *model.Payment
		)
		err = e.gw.Transaction(func(tx Gateway) error {
			var err error
			pay, err = tx.LoadPayment(paymentID)
			if err != nil {
				return err
			}
			if pay.InvoiceID != origin {
				return model.StorageError{Op: "payment.update", Err: errConcurrentMove}
			}
			if dest != origin {
				target, err := tx.LoadInvoice(dest)
				if err != nil {
					return err
				}
				if !target.Finalized() {
					return model.Invalid("invoice_id", "payments require a finalized invoice")
				}
				pay.InvoiceID = dest
			}
			if patch.Amount != nil {
				pay.Amount = *patch.Amount
			}
			if patch.PaymentDate != nil {
				pay.PaymentDate = *patch.PaymentDate
			}
			if patch.Method != nil {
				pay.Method = *patch.Method
			}
			if patch.Reference != nil {
				pay.Reference = *patch.Reference
			}
			if patch.Notes != nil {
				pay.Notes = *patch.Notes
			}
			if err := pay.Validate(); err != nil {
				return err
			}
			if err := tx.SavePayment(pay); err != nil {
				return err
			}
			if _, err := e.reconcileByID(tx, origin); err != nil {
				return err
			}
			if dest != origin {
				inv, err = e.reconcileByID(tx, dest)
				return err
			}
			inv, err = tx.LoadInvoice(origin)
			return err
		})
		return Result{CommandID: id, Invoice: inv, Payment: pay, Err: err}
	})
}

// DeletePayment removes a payment and reconciles its invoice, which may fall
// back from paid to partial.
func (e *Engine) DeletePayment(paymentID uint) <-chan Result {
	return e.submit("payment.delete", func(id uuid.UUID) Result {
		orig, err := e.gw.LoadPayment(paymentID)
		if err != nil {
			return Result{CommandID: id, Err: err}
		}
		invoiceID := orig.InvoiceID
		e.locks.lock(invoiceID)
		defer e.locks.unlock(invoiceID)

		var inv *model.Invoice
		err = e.gw.Transaction(func(tx Gateway) error {
			pay, err := tx.LoadPayment(paymentID)
			if err != nil {
				return err
			}
			if pay.InvoiceID != invoiceID {
				return model.StorageError{Op: "payment.delete", Err: errConcurrentMove}
			}
			if err := tx.DeletePayment(pay.ID); err != nil {
				return err
			}
			inv, err = e.reconcileByID(tx, invoiceID)
			return err
		})
		return Result{CommandID: id, Invoice: inv, Err: err}
	})
}
