package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/fixtures"
	"github.com/invoicedesk/invoicedesk/model"
)

func setupTestAPI(t *testing.T) (*echo.Echo, *model.Store, *fixtures.TestData) {
	t.Helper()
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)

	eng := engine.New(engine.NewStoreGateway(store), engine.Options{Workers: 1, QueueSize: 8}, nil)
	t.Cleanup(eng.Close)

	e := echo.New()
	e.HTTPErrorHandler = newHTTPErrorHandler(slog.Default())
	ctrl := &controller{model: store, engine: eng}

	// register routes without auth middleware for testing
	api := e.Group("/api/v1")
	api.GET("/invoices", ctrl.apiInvoiceList)
	api.GET("/invoices/:id", ctrl.apiInvoiceGet)
	api.POST("/invoices", ctrl.apiInvoiceCreate)
	api.POST("/invoices/:id/finalize", ctrl.apiInvoiceFinalize)
	api.POST("/invoices/:id/payments", ctrl.apiPaymentAdd)
	api.GET("/dashboard", ctrl.apiDashboard)

	return e, store, data
}

func doRequest(t *testing.T, e *echo.Echo, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIInvoiceList(t *testing.T) {
	e, _, _ := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/invoices", echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}

	var result APIInvoiceList
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	// SeedTestData creates one invoice
	if len(result.Items) != 1 {
		t.Errorf("Items count = %d, want 1", len(result.Items))
	}
	if result.Items[0].Number != "INV-202501-0001" {
		t.Errorf("Number = %q, want INV-202501-0001", result.Items[0].Number)
	}
}

func TestAPIInvoiceList_BadStatus(t *testing.T) {
	e, _, _ := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/invoices?status=bogus", echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPIInvoiceGet(t *testing.T) {
	e, _, data := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%d", data.Invoice.ID), echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}

	var result APIInvoice
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if result.TotalAmount != "119.00" {
		t.Errorf("TotalAmount = %q, want 119.00", result.TotalAmount)
	}
	if len(result.LineItems) != 1 {
		t.Errorf("LineItems count = %d, want 1", len(result.LineItems))
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag header should be set")
	}
}

func TestAPIInvoiceGet_NotFound(t *testing.T) {
	e, _, _ := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/invoices/9999", echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAPIInvoiceCreate_JSONAndFinalize(t *testing.T) {
	e, _, data := setupTestAPI(t)

	body := fmt.Sprintf(`{
		"client_id": %d,
		"tax_amount": "19.00",
		"lines": [{"description": "Consulting", "quantity": "2", "unit_price": "50.00"}]
	}`, data.Client.ID)
	rec := doRequest(t, e, http.MethodPost, "/api/v1/invoices", echo.MIMEApplicationJSON, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}

	var created APIInvoice
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if created.Status != "draft" {
		t.Errorf("Status = %q, want draft", created.Status)
	}
	if created.TotalAmount != "119.00" {
		t.Errorf("TotalAmount = %q, want 119.00", created.TotalAmount)
	}

	rec = doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/finalize", created.ID), echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize Status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}
	var finalized APIInvoice
	if err := json.Unmarshal(rec.Body.Bytes(), &finalized); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if finalized.Number == "" {
		t.Error("finalized invoice should carry a number")
	}
	if finalized.Status != "sent" {
		t.Errorf("Status = %q, want sent", finalized.Status)
	}
}

func TestAPIInvoiceCreate_FormEncoded(t *testing.T) {
	e, _, data := setupTestAPI(t)

	form := url.Values{}
	form.Set("clientid", fmt.Sprint(data.Client.ID))
	form.Set("taxamount", "9,50") // decimal comma from the legacy frontend
	form.Set("lines[0].description", "Support")
	form.Set("lines[0].quantity", "1")
	form.Set("lines[0].unitprice", "50,00")

	rec := doRequest(t, e, http.MethodPost, "/api/v1/invoices", echo.MIMEApplicationForm, form.Encode())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}
	var created APIInvoice
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if created.TotalAmount != "59.50" {
		t.Errorf("TotalAmount = %q, want 59.50", created.TotalAmount)
	}
}

func TestAPIPaymentAdd(t *testing.T) {
	e, _, data := setupTestAPI(t)

	body := `{"amount": "119.00", "method": "bank_transfer", "reference": "wire 42"}`
	rec := doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/payments", data.Invoice.ID), echo.MIMEApplicationJSON, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}

	var result struct {
		Payment APIPayment `json:"payment"`
		Invoice APIInvoice `json:"invoice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if result.Invoice.Status != "paid" {
		t.Errorf("Status = %q, want paid", result.Invoice.Status)
	}
	if result.Payment.Reference != "wire 42" {
		t.Errorf("Reference = %q, want wire 42", result.Payment.Reference)
	}
}

func TestAPIPaymentAdd_Invalid(t *testing.T) {
	e, _, data := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/payments", data.Invoice.ID),
		echo.MIMEApplicationJSON, `{"amount": "-5.00", "method": "cash"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPIDashboard(t *testing.T) {
	e, _, _ := setupTestAPI(t)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/dashboard", echo.MIMEApplicationJSON, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}
	var result APIDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal error: %v", err)
	}
	if result.TotalInvoices != 1 {
		t.Errorf("TotalInvoices = %d, want 1", result.TotalInvoices)
	}
	if result.UnpaidInvoices != 1 {
		t.Errorf("UnpaidInvoices = %d, want 1", result.UnpaidInvoices)
	}
	if result.Outstanding != "119.00" {
		t.Errorf("Outstanding = %q, want 119.00", result.Outstanding)
	}
}
