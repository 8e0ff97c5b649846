// model/invoice_service.go
package model

import (
	"strconv"
	"time"
)

// InvoiceListQuery captures filter, paging, and sorting options for listing
// invoices.
type InvoiceListQuery struct {
	Status   string // optional: filter by status (canonical enum value)
	ClientID uint   // optional: restrict to one client
	Limit    int    // page size (1-200); defaults to 50 when out of range
	Cursor   string // offset cursor encoded as a string: "0", "50", ...
	Sort     string // "date_desc" (default), "date_asc", "created_desc"
}

// ListInvoices returns a page of invoices along with the next cursor.
//
// Paging model:
//   - offset-based cursor encoded as a string (q.Cursor)
//   - fetches Limit+1 rows to detect a next page; if present, trims to Limit
//     and returns nextCursor = offset + Limit
func (s *Store) ListInvoices(q InvoiceListQuery) (items []Invoice, nextCursor string, err error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	offset := 0
	if q.Cursor != "" {
		if n, e := strconv.Atoi(q.Cursor); e == nil && n >= 0 {
			offset = n
		}
	}

	db := s.db.Model(&Invoice{})

	if q.Status != "" {
		if st, ok := ParseInvoiceStatus(q.Status); ok {
			db = db.Where("status = ?", st)
		} else {
			return nil, "", Invalid("status", "unknown status value")
		}
	}
	if q.ClientID != 0 {
		db = db.Where("client_id = ?", q.ClientID)
	}

	switch q.Sort {
	case "date_asc":
		db = db.Order("issue_date asc")
	case "created_desc":
		db = db.Order("created_at desc")
	default:
		db = db.Order("issue_date desc")
	}

	var invs []Invoice
	if err = db.Offset(offset).Limit(q.Limit + 1).Find(&invs).Error; err != nil {
		return nil, "", storageErr("list invoices", err)
	}

	if len(invs) > q.Limit {
		invs = invs[:q.Limit]
		nextCursor = strconv.Itoa(offset + q.Limit)
	}
	return invs, nextCursor, nil
}

// ListInvoicesForExport loads all invoices with their line items and
// payments, oldest first. Used by the XLSX export.
func (s *Store) ListInvoicesForExport() ([]Invoice, error) {
	var invs []Invoice
	err := s.db.
		Preload("LineItems").
		Preload("Payments").
		Preload("Client").
		Order("created_at").
		Find(&invs).Error
	if err != nil {
		return nil, storageErr("list invoices for export", err)
	}
	return invs, nil
}

// ListOverdueCandidates returns the ids of finalized, uncancelled invoices
// whose due date has passed and whose stored status does not yet say so.
// The caller runs them through reconciliation; nothing is recomputed here.
func (s *Store) ListOverdueCandidates(now time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&Invoice{}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("cancelled = ?", false).
		Where("status IN ?", []InvoiceStatus{InvoiceStatusSent, InvoiceStatusDraft}).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storageErr("list overdue candidates", err)
	}
	return ids, nil
}

// ListPayments returns payments across all invoices, newest first, capped
// at limit (0 means 50).
func (s *Store) ListPayments(limit int) ([]Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var payments []Payment
	err := s.db.Order("payment_date desc, id desc").Limit(limit).Find(&payments).Error
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	return payments, nil
}
