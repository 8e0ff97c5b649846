package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/model"
)

// commaperiod tolerates decimal commas in hand-entered amounts.
var commaperiod = strings.NewReplacer(",", ".")

type invoiceLine struct {
	ItemID      *uint  `json:"item_id" form:"itemid"`
	Description string `json:"description" form:"description"`
	Quantity    string `json:"quantity" form:"quantity"`
	UnitPrice   string `json:"unit_price" form:"unitprice"`
}

type invoiceInput struct {
	ClientID       uint          `json:"client_id" form:"clientid"`
	IssueDate      time.Time     `json:"issue_date" form:"issuedate"`
	DueDate        *time.Time    `json:"due_date" form:"duedate"`
	TaxAmount      string        `json:"tax_amount" form:"taxamount"`
	Discount       string        `json:"discount" form:"discount"`
	CommissionRate string        `json:"commission_rate" form:"commissionrate"`
	Notes          string        `json:"notes" form:"notes"`
	Lines          []invoiceLine `json:"lines" form:"lines"`
}

// bindInvoiceInput accepts JSON bodies and classic form posts. The desktop
// frontend that predates the API submits urlencoded forms with decimal
// commas.
func bindInvoiceInput(c echo.Context) (*invoiceInput, error) {
	in := invoiceInput{}
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		if err := c.Request().ParseForm(); err != nil {
			return nil, ErrInvalid(err, "cannot parse form")
		}
		dec := form.NewDecoder()
		dec.RegisterCustomTypeFunc(func(vals []string) (interface{}, error) {
			return time.Parse("2006-01-02", vals[0])
		}, time.Time{})
		if err := dec.Decode(&in, c.Request().Form); err != nil {
			return nil, ErrInvalid(err, "cannot decode form")
		}
		return &in, nil
	}
	if err := c.Bind(&in); err != nil {
		return nil, ErrInvalid(err, "invalid request body")
	}
	return &in, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(commaperiod.Replace(s))
	if err != nil {
		return decimal.Zero, ErrInvalid(err, field+" is not a valid amount")
	}
	return d, nil
}

func (in *invoiceInput) toParams() (engine.CreateInvoiceParams, error) {
	params := engine.CreateInvoiceParams{
		ClientID:  in.ClientID,
		IssueDate: in.IssueDate,
		DueDate:   in.DueDate,
		Notes:     in.Notes,
	}
	var err error
	if params.TaxAmount, err = parseAmount("tax_amount", in.TaxAmount); err != nil {
		return params, err
	}
	if params.Discount, err = parseAmount("discount", in.Discount); err != nil {
		return params, err
	}
	if params.CommissionRate, err = parseAmount("commission_rate", in.CommissionRate); err != nil {
		return params, err
	}
	for _, l := range in.Lines {
		if l.Quantity == "" && l.Description == "" {
			continue // blank form rows
		}
		line := engine.LineInput{Description: l.Description, ItemID: l.ItemID}
		if line.Quantity, err = parseAmount("quantity", l.Quantity); err != nil {
			return params, err
		}
		if line.UnitPrice, err = parseAmount("unit_price", l.UnitPrice); err != nil {
			return params, err
		}
		params.Lines = append(params.Lines, line)
	}
	return params, nil
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, ErrInvalid(err, "invalid id")
	}
	return uint(id), nil
}

type invoiceListQuery struct {
	Status   string `query:"status"`
	ClientID uint   `query:"client_id"`
	Limit    int    `query:"limit"`
	Cursor   string `query:"cursor"`
	Sort     string `query:"sort"`
}

func (ctrl *controller) apiInvoiceList(c echo.Context) error {
	var q invoiceListQuery
	if err := c.Bind(&q); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_query", "invalid query params"))
	}
	// bring overdue flags up to date before filtering on status
	if err := ctrl.engine.RefreshOverdue(); err != nil {
		return domainError(err)
	}
	invs, next, err := ctrl.model.ListInvoices(model.InvoiceListQuery{
		Status:   q.Status,
		ClientID: q.ClientID,
		Limit:    q.Limit,
		Cursor:   q.Cursor,
		Sort:     q.Sort,
	})
	if err != nil {
		return domainError(err)
	}

	items := make([]APIInvoice, len(invs))
	for i := range invs {
		items[i] = toAPIInvoice(&invs[i])
	}
	return respond(c, http.StatusOK, APIInvoiceList{Items: items, NextCursor: next})
}

func (ctrl *controller) apiInvoiceGet(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	// reads re-derive the status so an invoice past its due date shows
	// overdue without waiting for a write
	inv, err := ctrl.engine.RefreshStatus(id)
	if err != nil {
		return domainError(err)
	}

	c.Response().Header().Set("ETag",
		`W/"inv-`+strconv.FormatUint(uint64(inv.ID), 10)+
			`-`+strconv.FormatInt(inv.UpdatedAt.Unix(), 10)+`"`)
	return respond(c, http.StatusOK, toAPIInvoice(inv))
}

func (ctrl *controller) apiInvoiceCreate(c echo.Context) error {
	in, err := bindInvoiceInput(c)
	if err != nil {
		return err
	}
	params, err := in.toParams()
	if err != nil {
		return err
	}
	res, err := ctrl.await(ctrl.engine.CreateInvoice(params))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, toAPIInvoice(res.Invoice))
}

type invoicePatchInput struct {
	ClientID       *uint      `json:"client_id"`
	IssueDate      *time.Time `json:"issue_date"`
	DueDate        *time.Time `json:"due_date"`
	ClearDueDate   bool       `json:"clear_due_date"`
	TaxAmount      *string    `json:"tax_amount"`
	Discount       *string    `json:"discount"`
	CommissionRate *string    `json:"commission_rate"`
	Notes          *string    `json:"notes"`
}

func (ctrl *controller) apiInvoiceUpdate(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in invoicePatchInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	patch := engine.InvoicePatch{
		ClientID:     in.ClientID,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		ClearDueDate: in.ClearDueDate,
		Notes:        in.Notes,
	}
	if in.TaxAmount != nil {
		d, err := parseAmount("tax_amount", *in.TaxAmount)
		if err != nil {
			return err
		}
		patch.TaxAmount = &d
	}
	if in.Discount != nil {
		d, err := parseAmount("discount", *in.Discount)
		if err != nil {
			return err
		}
		patch.Discount = &d
	}
	if in.CommissionRate != nil {
		d, err := parseAmount("commission_rate", *in.CommissionRate)
		if err != nil {
			return err
		}
		patch.CommissionRate = &d
	}
	res, err := ctrl.await(ctrl.engine.UpdateInvoice(id, patch))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIInvoice(res.Invoice))
}

func (ctrl *controller) apiInvoiceDelete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := ctrl.await(ctrl.engine.DeleteInvoice(id)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *controller) apiInvoiceFinalize(c echo.Context) error {
	return ctrl.invoiceCommand(c, ctrl.engine.FinalizeInvoice)
}

func (ctrl *controller) apiInvoiceCancel(c echo.Context) error {
	return ctrl.invoiceCommand(c, ctrl.engine.CancelInvoice)
}

func (ctrl *controller) apiInvoiceReopen(c echo.Context) error {
	return ctrl.invoiceCommand(c, ctrl.engine.ReopenInvoice)
}

func (ctrl *controller) invoiceCommand(c echo.Context, cmd func(uint) <-chan engine.Result) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	res, err := ctrl.await(cmd(id))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIInvoice(res.Invoice))
}

// ---- line items ----

func (ctrl *controller) apiLineItemAdd(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in invoiceLine
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	qty, err := parseAmount("quantity", in.Quantity)
	if err != nil {
		return err
	}
	price, err := parseAmount("unit_price", in.UnitPrice)
	if err != nil {
		return err
	}
	res, err := ctrl.await(ctrl.engine.AddLineItem(id, in.Description, qty, price))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, toAPIInvoice(res.Invoice))
}

type lineItemPatchInput struct {
	Description *string `json:"description"`
	Quantity    *string `json:"quantity"`
	UnitPrice   *string `json:"unit_price"`
}

func (ctrl *controller) apiLineItemUpdate(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	lineID, err := paramID(c, "lineid")
	if err != nil {
		return err
	}
	var in lineItemPatchInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	patch := model.LineItemPatch{Description: in.Description}
	if in.Quantity != nil {
		d, err := parseAmount("quantity", *in.Quantity)
		if err != nil {
			return err
		}
		patch.Quantity = &d
	}
	if in.UnitPrice != nil {
		d, err := parseAmount("unit_price", *in.UnitPrice)
		if err != nil {
			return err
		}
		patch.UnitPrice = &d
	}
	res, err := ctrl.await(ctrl.engine.UpdateLineItem(id, lineID, patch))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIInvoice(res.Invoice))
}

func (ctrl *controller) apiLineItemDelete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	lineID, err := paramID(c, "lineid")
	if err != nil {
		return err
	}
	res, err := ctrl.await(ctrl.engine.RemoveLineItem(id, lineID))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIInvoice(res.Invoice))
}
