package controller

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

type ExportInvoices struct {
	XMLName  struct{}     `xml:"export"`
	Version  string       `xml:"version,attr"`
	Invoices []APIInvoice `xml:"invoice"`
}

func (ctrl *controller) exportInvoicesXML(ctx context.Context, zw *zip.Writer) error {
	invs, err := ctrl.model.ListInvoicesForExport()
	if err != nil {
		return fmt.Errorf("cannot load invoices for export: %w", err)
	}

	f, err := zw.Create("invoices.xml")
	if err != nil {
		return fmt.Errorf("cannot create invoices.xml in ZIP: %w", err)
	}

	export := ExportInvoices{Version: "1"}
	export.Invoices = make([]APIInvoice, 0, len(invs))
	for i := range invs {
		inv := &invs[i]
		inv.RecomputeTotals()
		export.Invoices = append(export.Invoices, toAPIInvoice(inv))
	}

	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("cannot encode invoices.xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("cannot flush invoices.xml: %w", err)
	}
	return nil
}

func (ctrl *controller) exportClientsXML(ctx context.Context, zw *zip.Writer) error {
	clients, err := ctrl.model.ListClients(false)
	if err != nil {
		return fmt.Errorf("cannot load clients for export: %w", err)
	}
	f, err := zw.Create("clients.xml")
	if err != nil {
		return fmt.Errorf("cannot create clients.xml in ZIP: %w", err)
	}
	items := make([]APIClient, len(clients))
	for i := range clients {
		items[i] = toAPIClient(&clients[i])
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(APIClientList{Items: items}); err != nil {
		return fmt.Errorf("cannot encode clients.xml: %w", err)
	}
	return enc.Flush()
}

// apiExportZIP streams a full backup: invoices with their line items and
// payments, plus the client list, as XML inside a ZIP archive.
func (ctrl *controller) apiExportZIP(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="backup.zip"`)
	res.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(res)
	ctx := c.Request().Context()
	if err := ctrl.exportInvoicesXML(ctx, zw); err != nil {
		return err
	}
	if err := ctrl.exportClientsXML(ctx, zw); err != nil {
		return err
	}
	return zw.Close()
}

// apiExportXLSX writes one row per invoice into a spreadsheet for the
// accountant.
func (ctrl *controller) apiExportXLSX(c echo.Context) error {
	invs, err := ctrl.model.ListInvoicesForExport()
	if err != nil {
		return domainError(err)
	}

	xf := excelize.NewFile()
	defer xf.Close()
	const sheet = "Invoices"
	xf.SetSheetName("Sheet1", sheet)

	headers := []string{"Number", "Status", "Client", "Issue date", "Due date",
		"Subtotal", "Tax", "Discount", "Total", "Paid", "Balance", "Commission"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := xf.SetCellValue(sheet, cell, h); err != nil {
			return ErrInternal(err)
		}
	}

	for row, inv := range invs {
		due := ""
		if inv.DueDate != nil {
			due = inv.DueDate.Format("2006-01-02")
		}
		values := []any{
			inv.Number,
			string(inv.Status),
			inv.Client.Name,
			inv.IssueDate.Format("2006-01-02"),
			due,
			toFloat(inv.Subtotal.StringFixed(2)),
			toFloat(inv.TaxAmount.StringFixed(2)),
			toFloat(inv.Discount.StringFixed(2)),
			toFloat(inv.TotalAmount.StringFixed(2)),
			toFloat(inv.TotalPaid().StringFixed(2)),
			toFloat(inv.RemainingBalance().StringFixed(2)),
			toFloat(inv.CommissionAmount.StringFixed(2)),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := xf.SetCellValue(sheet, cell, v); err != nil {
				return ErrInternal(err)
			}
		}
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="invoices.xlsx"`)
	res.WriteHeader(http.StatusOK)
	return xf.Write(res)
}

// toFloat converts a fixed decimal string for spreadsheet cells. Exports
// tolerate float cells; the books are kept in decimals.
func toFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%f", &f)
	return f
}
