package controller

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/model"
)

type APIError struct {
	Code    string `json:"code" xml:"code"`
	Message string `json:"message" xml:"message"`
}

func apiError(code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func wantsXML(c echo.Context) bool {
	if c.QueryParam("format") == "xml" {
		return true
	}
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, "application/xml") || strings.Contains(accept, "text/xml")
}
func respond(c echo.Context, status int, v any) error {
	if wantsXML(c) {
		return c.XML(status, v)
	}
	return c.JSON(status, v)
}

// ---- invoice DTOs ----

type APILineItem struct {
	ID          uint   `json:"id" xml:"id"`
	ItemID      *uint  `json:"item_id,omitempty" xml:"item_id,omitempty"`
	Description string `json:"description" xml:"description"`
	Quantity    string `json:"quantity" xml:"quantity"`
	UnitPrice   string `json:"unit_price" xml:"unit_price"`
	LineTotal   string `json:"line_total" xml:"line_total"`
}

type APIPayment struct {
	ID          uint      `json:"id" xml:"id"`
	InvoiceID   uint      `json:"invoice_id" xml:"invoice_id"`
	Amount      string    `json:"amount" xml:"amount"`
	PaymentDate time.Time `json:"payment_date" xml:"payment_date"`
	Method      string    `json:"method" xml:"method"`
	Reference   string    `json:"reference,omitempty" xml:"reference,omitempty"`
	Notes       string    `json:"notes,omitempty" xml:"notes,omitempty"`
}

type APIInvoice struct {
	ID               uint          `json:"id" xml:"id"`
	Number           string        `json:"number" xml:"number"`
	Status           string        `json:"status" xml:"status"`
	Cancelled        bool          `json:"cancelled" xml:"cancelled"`
	ClientID         uint          `json:"client_id" xml:"client_id"`
	IssueDate        time.Time     `json:"issue_date" xml:"issue_date"`
	DueDate          *time.Time    `json:"due_date,omitempty" xml:"due_date,omitempty"`
	Subtotal         string        `json:"subtotal" xml:"subtotal"`
	TaxAmount        string        `json:"tax_amount" xml:"tax_amount"`
	Discount         string        `json:"discount" xml:"discount"`
	TotalAmount      string        `json:"total_amount" xml:"total_amount"`
	TotalPaid        string        `json:"total_paid" xml:"total_paid"`
	RemainingBalance string        `json:"remaining_balance" xml:"remaining_balance"`
	CommissionRate   string        `json:"commission_rate" xml:"commission_rate"`
	CommissionAmount string        `json:"commission_amount" xml:"commission_amount"`
	Notes            string        `json:"notes,omitempty" xml:"notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at" xml:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" xml:"updated_at"`
	LineItems        []APILineItem `json:"line_items,omitempty" xml:"line_items>line_item,omitempty"`
	Payments         []APIPayment  `json:"payments,omitempty" xml:"payments>payment,omitempty"`
}

type APIInvoiceList struct {
	XMLName    struct{}     `json:"-" xml:"invoices"`
	Items      []APIInvoice `json:"items" xml:"invoice"`
	NextCursor string       `json:"next_cursor,omitempty" xml:"next_cursor,omitempty"`
}

// toAPIInvoice maps a model.Invoice (with whatever is preloaded) to the DTO
// used by both the JSON API and the XML export.
func toAPIInvoice(inv *model.Invoice) APIInvoice {
	lines := make([]APILineItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		lines[i] = APILineItem{
			ID:          li.ID,
			ItemID:      li.ItemID,
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			UnitPrice:   li.UnitPrice.String(),
			LineTotal:   li.LineTotal.String(),
		}
	}
	payments := make([]APIPayment, len(inv.Payments))
	for i, p := range inv.Payments {
		payments[i] = toAPIPayment(&p)
	}
	return APIInvoice{
		ID:               inv.ID,
		Number:           inv.Number,
		Status:           string(inv.Status),
		Cancelled:        inv.Cancelled,
		ClientID:         inv.ClientID,
		IssueDate:        inv.IssueDate,
		DueDate:          inv.DueDate,
		Subtotal:         inv.Subtotal.StringFixed(2),
		TaxAmount:        inv.TaxAmount.StringFixed(2),
		Discount:         inv.Discount.StringFixed(2),
		TotalAmount:      inv.TotalAmount.StringFixed(2),
		TotalPaid:        inv.TotalPaid().StringFixed(2),
		RemainingBalance: inv.RemainingBalance().StringFixed(2),
		CommissionRate:   inv.CommissionRate.String(),
		CommissionAmount: inv.CommissionAmount.StringFixed(2),
		Notes:            inv.Notes,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
		LineItems:        lines,
		Payments:         payments,
	}
}

func toAPIPayment(p *model.Payment) APIPayment {
	return APIPayment{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      p.Amount.StringFixed(2),
		PaymentDate: p.PaymentDate,
		Method:      string(p.Method),
		Reference:   p.Reference,
		Notes:       p.Notes,
	}
}

// ---- client DTOs ----

type APIClient struct {
	ID         uint      `json:"id" xml:"id"`
	Name       string    `json:"name" xml:"name"`
	Company    string    `json:"company,omitempty" xml:"company,omitempty"`
	Email      string    `json:"email,omitempty" xml:"email,omitempty"`
	Phone      string    `json:"phone,omitempty" xml:"phone,omitempty"`
	Address    string    `json:"address,omitempty" xml:"address,omitempty"`
	City       string    `json:"city,omitempty" xml:"city,omitempty"`
	State      string    `json:"state,omitempty" xml:"state,omitempty"`
	PostalCode string    `json:"postal_code,omitempty" xml:"postal_code,omitempty"`
	Country    string    `json:"country,omitempty" xml:"country,omitempty"`
	Notes      string    `json:"notes,omitempty" xml:"notes,omitempty"`
	Active     bool      `json:"active" xml:"active"`
	CreatedAt  time.Time `json:"created_at" xml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" xml:"updated_at"`
}

type APIClientList struct {
	XMLName struct{}    `json:"-" xml:"clients"`
	Items   []APIClient `json:"items" xml:"client"`
}

func toAPIClient(cl *model.Client) APIClient {
	return APIClient{
		ID:         cl.ID,
		Name:       cl.Name,
		Company:    cl.Company,
		Email:      cl.Email,
		Phone:      cl.Phone,
		Address:    cl.Address,
		City:       cl.City,
		State:      cl.State,
		PostalCode: cl.PostalCode,
		Country:    cl.Country,
		Notes:      cl.Notes,
		Active:     cl.Active,
		CreatedAt:  cl.CreatedAt,
		UpdatedAt:  cl.UpdatedAt,
	}
}

// ---- item DTOs ----

type APIItem struct {
	ID    uint   `json:"id" xml:"id"`
	Code  string `json:"code" xml:"code"`
	Name  string `json:"name" xml:"name"`
	Price string `json:"price" xml:"price"`
}

type APIItemList struct {
	XMLName struct{}  `json:"-" xml:"items"`
	Items   []APIItem `json:"items" xml:"item"`
}

func toAPIItem(it *model.Item) APIItem {
	return APIItem{ID: it.ID, Code: it.Code, Name: it.Name, Price: it.Price.StringFixed(2)}
}
