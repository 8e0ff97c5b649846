package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardData is the read-only summary shown on the start screen. It is
// computed from persisted aggregates; reads do not pass through the
// reconciliation engine.
type DashboardData struct {
	TotalInvoices   int64
	UnpaidInvoices  int64
	OverdueInvoices int64
	Revenue         decimal.Decimal // sum of paid invoice totals
	Outstanding     decimal.Decimal // open balance across unpaid invoices
	RecentPayments  []Payment
	LastPaymentAt   *time.Time
}

// Dashboard assembles the summary figures.
func (s *Store) Dashboard() (*DashboardData, error) {
	d := &DashboardData{
		Revenue:     decimal.Zero,
		Outstanding: decimal.Zero,
	}

	if err := s.db.Model(&Invoice{}).Count(&d.TotalInvoices).Error; err != nil {
		return nil, storageErr("dashboard", err)
	}
	unpaid := []InvoiceStatus{InvoiceStatusSent, InvoiceStatusPartial, InvoiceStatusOverdue}
	if err := s.db.Model(&Invoice{}).Where("status IN ?", unpaid).Count(&d.UnpaidInvoices).Error; err != nil {
		return nil, storageErr("dashboard", err)
	}
	if err := s.db.Model(&Invoice{}).Where("status = ?", InvoiceStatusOverdue).Count(&d.OverdueInvoices).Error; err != nil {
		return nil, storageErr("dashboard", err)
	}

	// Sums run over decimal columns, so they are accumulated in Go rather
	// than in SQL.
	var paidTotals []decimal.Decimal
	if err := s.db.Model(&Invoice{}).Where("status = ?", InvoiceStatusPaid).
		Pluck("total_amount", &paidTotals).Error; err != nil {
		return nil, storageErr("dashboard", err)
	}
	for _, t := range paidTotals {
		d.Revenue = d.Revenue.Add(t)
	}

	var open []Invoice
	if err := s.db.Preload("Payments").Where("status IN ?", unpaid).Find(&open).Error; err != nil {
		return nil, storageErr("dashboard", err)
	}
	for i := range open {
		d.Outstanding = d.Outstanding.Add(open[i].RemainingBalance())
	}

	payments, err := s.ListPayments(5)
	if err != nil {
		return nil, err
	}
	d.RecentPayments = payments
	if len(payments) > 0 {
		t := payments[0].PaymentDate
		d.LastPaymentAt = &t
	}
	return d, nil
}
