package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type APIDashboard struct {
	TotalInvoices   int64        `json:"total_invoices" xml:"total_invoices"`
	UnpaidInvoices  int64        `json:"unpaid_invoices" xml:"unpaid_invoices"`
	OverdueInvoices int64        `json:"overdue_invoices" xml:"overdue_invoices"`
	Revenue         string       `json:"revenue" xml:"revenue"`
	Outstanding     string       `json:"outstanding" xml:"outstanding"`
	LastPaymentAt   *time.Time   `json:"last_payment_at,omitempty" xml:"last_payment_at,omitempty"`
	LastPaymentAgo  string       `json:"last_payment_ago,omitempty" xml:"last_payment_ago,omitempty"`
	RecentPayments  []APIPayment `json:"recent_payments" xml:"recent_payments>payment"`
}

func (ctrl *controller) apiDashboard(c echo.Context) error {
	// sweep overdue candidates so the counters reflect today's date
	if err := ctrl.engine.RefreshOverdue(); err != nil {
		return domainError(err)
	}
	d, err := ctrl.model.Dashboard()
	if err != nil {
		return domainError(err)
	}
	recent := make([]APIPayment, len(d.RecentPayments))
	for i := range d.RecentPayments {
		recent[i] = toAPIPayment(&d.RecentPayments[i])
	}
	out := APIDashboard{
		TotalInvoices:   d.TotalInvoices,
		UnpaidInvoices:  d.UnpaidInvoices,
		OverdueInvoices: d.OverdueInvoices,
		Revenue:         d.Revenue.StringFixed(2),
		Outstanding:     d.Outstanding.StringFixed(2),
		LastPaymentAt:   d.LastPaymentAt,
		RecentPayments:  recent,
	}
	if d.LastPaymentAt != nil {
		out.LastPaymentAgo = timeagoEnglish.Format(*d.LastPaymentAt)
	}
	return respond(c, http.StatusOK, out)
}
