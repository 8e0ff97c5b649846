package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/model"
)

type paymentInput struct {
	Amount      string     `json:"amount"`
	PaymentDate *time.Time `json:"payment_date"`
	Method      string     `json:"method"`
	Reference   string     `json:"reference"`
	Notes       string     `json:"notes"`
}

type APIPaymentList struct {
	XMLName struct{}     `json:"-" xml:"payments"`
	Items   []APIPayment `json:"items" xml:"payment"`
}

func (ctrl *controller) apiPaymentList(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := ctrl.model.LoadInvoice(id); err != nil {
		return domainError(err)
	}
	payments, err := ctrl.model.LoadPaymentsForInvoice(id)
	if err != nil {
		return domainError(err)
	}
	items := make([]APIPayment, len(payments))
	for i := range payments {
		items[i] = toAPIPayment(&payments[i])
	}
	return respond(c, http.StatusOK, APIPaymentList{Items: items})
}

func (ctrl *controller) apiPaymentAdd(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in paymentInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	amount, err := parseAmount("amount", in.Amount)
	if err != nil {
		return err
	}
	method, ok := model.ParsePaymentMethod(in.Method)
	if !ok {
		return ErrInvalid(nil, "unknown payment method")
	}
	params := engine.PaymentParams{
		Amount:    amount,
		Method:    method,
		Reference: in.Reference,
		Notes:     in.Notes,
	}
	if in.PaymentDate != nil {
		params.PaymentDate = *in.PaymentDate
	}
	res, err := ctrl.await(ctrl.engine.AddPayment(id, params))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, struct {
		Payment APIPayment `json:"payment" xml:"payment"`
		Invoice APIInvoice `json:"invoice" xml:"invoice"`
	}{toAPIPayment(res.Payment), toAPIInvoice(res.Invoice)})
}

type paymentPatchInput struct {
	InvoiceID   *uint      `json:"invoice_id"`
	Amount      *string    `json:"amount"`
	PaymentDate *time.Time `json:"payment_date"`
	Method      *string    `json:"method"`
	Reference   *string    `json:"reference"`
	Notes       *string    `json:"notes"`
}

func (ctrl *controller) apiPaymentUpdate(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in paymentPatchInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	patch := engine.PaymentPatch{
		InvoiceID:   in.InvoiceID,
		PaymentDate: in.PaymentDate,
		Reference:   in.Reference,
		Notes:       in.Notes,
	}
	if in.Amount != nil {
		d, err := parseAmount("amount", *in.Amount)
		if err != nil {
			return err
		}
		patch.Amount = &d
	}
	if in.Method != nil {
		m, ok := model.ParsePaymentMethod(*in.Method)
		if !ok {
			return ErrInvalid(nil, "unknown payment method")
		}
		patch.Method = &m
	}
	res, err := ctrl.await(ctrl.engine.UpdatePayment(id, patch))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, struct {
		Payment APIPayment `json:"payment" xml:"payment"`
		Invoice APIInvoice `json:"invoice" xml:"invoice"`
	}{toAPIPayment(res.Payment), toAPIInvoice(res.Invoice)})
}

func (ctrl *controller) apiPaymentDelete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	res, err := ctrl.await(ctrl.engine.DeletePayment(id))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIInvoice(res.Invoice))
}
