package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeriveStatus computes the invoice status from its inputs, in priority
// order:
//
//  1. cancellation flag set            -> cancelled
//  2. total paid >= total amount       -> paid
//  3. total paid > 0                   -> partial
//  4. due date set and in the past     -> overdue
//  5. finalized (number assigned)      -> sent
//  6. otherwise                        -> draft
//
// All money values are cent-rounded decimals, so the comparisons are exact;
// no float tolerance is involved. An invoice with a zero total and no
// payments does not count as paid.
func DeriveStatus(inv *Invoice, totalPaid decimal.Decimal, now time.Time) InvoiceStatus {
	totalPaid = totalPaid.Round(2)
	switch {
	case inv.Cancelled:
		return InvoiceStatusCancelled
	case totalPaid.GreaterThan(decimal.Zero) && totalPaid.GreaterThanOrEqual(inv.TotalAmount):
		return InvoiceStatusPaid
	case totalPaid.GreaterThan(decimal.Zero):
		return InvoiceStatusPartial
	case inv.DueDate != nil && inv.DueDate.Before(now):
		return InvoiceStatusOverdue
	case inv.Finalized():
		return InvoiceStatusSent
	default:
		return InvoiceStatusDraft
	}
}

// Reconcile recomputes the invoice's totals from its loaded line items and
// its status from its loaded payments. It mutates only derived fields.
func (inv *Invoice) Reconcile(now time.Time) {
	inv.RecomputeTotals()
	inv.Status = DeriveStatus(inv, inv.TotalPaid(), now)
}
