package controller

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/model"
)

// xmlPathForInvoice returns the full path where the e-invoice XML is stored.
func (ctrl *controller) xmlPathForInvoice(inv *model.Invoice) string {
	return filepath.Join(ctrl.model.Config.XMLDir, fmt.Sprintf("%d.xml", inv.ID))
}

// pdfPathForInvoice returns the full path where the rendered PDF is stored.
func (ctrl *controller) pdfPathForInvoice(inv *model.Invoice) string {
	return filepath.Join(ctrl.model.Config.XMLDir, fmt.Sprintf("%d.pdf", inv.ID))
}

func ensureDir(dirName string) error {
	return os.MkdirAll(dirName, 0755)
}

func (ctrl *controller) requestLogger(c echo.Context) *slog.Logger {
	if l, ok := c.Get("logger").(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// apiInvoiceXML serves the EN 16931 XML for a finalized invoice, creating
// it on first request. Drafts are always regenerated.
func (ctrl *controller) apiInvoiceXML(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	logger := ctrl.requestLogger(c)
	inv, err := ctrl.model.LoadInvoice(id)
	if err != nil {
		return domainError(err)
	}

	outPath := ctrl.xmlPathForInvoice(inv)
	userFilename := fmt.Sprintf("%s.xml", inv.Number)
	if inv.Number == "" {
		userFilename = fmt.Sprintf("draft-%d.xml", inv.ID)
	}
	if inv.Status != model.InvoiceStatusDraft {
		if _, err = os.Stat(outPath); err == nil {
			logger.Info("re-using existing e-invoice xml", "invoice_id", inv.ID, "path", outPath)
			return c.Attachment(outPath, userFilename)
		}
		logger.Info("e-invoice xml not found, re-creating", "invoice_id", inv.ID, "path", outPath)
	}
	if err = ensureDir(filepath.Dir(outPath)); err != nil {
		return ErrInternal(err)
	}
	if err = ctrl.model.CreateEInvoiceXML(inv, outPath); err != nil {
		return ErrInvalid(err, "cannot create e-invoice XML")
	}
	return c.Attachment(outPath, userFilename)
}

// apiInvoicePDF renders the invoice to PDF via the publishing server,
// re-using an existing render for finalized invoices.
func (ctrl *controller) apiInvoicePDF(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	logger := ctrl.requestLogger(c)
	inv, err := ctrl.model.LoadInvoice(id)
	if err != nil {
		return domainError(err)
	}

	pdfname := fmt.Sprintf("%s.pdf", inv.Number)
	if inv.Number == "" {
		pdfname = fmt.Sprintf("draft-%d.pdf", inv.ID)
	}
	pdfPath := ctrl.pdfPathForInvoice(inv)
	if inv.Status != model.InvoiceStatusDraft {
		if _, err = os.Stat(pdfPath); err == nil {
			logger.Info("re-using existing pdf", "invoice_id", inv.ID, "path", pdfPath)
			return c.Attachment(pdfPath, pdfname)
		}
		logger.Info("pdf not found, re-creating", "invoice_id", inv.ID, "path", pdfPath)
	}

	xmlPath := ctrl.xmlPathForInvoice(inv)
	if err = ensureDir(filepath.Dir(xmlPath)); err != nil {
		return ErrInternal(err)
	}
	if err = ctrl.model.CreateEInvoiceXML(inv, xmlPath); err != nil {
		return ErrInvalid(err, "cannot create e-invoice XML")
	}
	if err = ctrl.model.CreateInvoicePDF(inv, xmlPath, pdfPath, logger); err != nil {
		return ErrInvalid(err, "cannot render invoice PDF")
	}
	return c.Attachment(pdfPath, pdfname)
}

// apiInvoicePreview serves a PNG rendering of the first PDF page. Requires
// a cgo build; plain builds answer 501.
func (ctrl *controller) apiInvoicePreview(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	inv, err := ctrl.model.LoadInvoice(id)
	if err != nil {
		return domainError(err)
	}
	pdfPath := ctrl.pdfPathForInvoice(inv)
	if _, err = os.Stat(pdfPath); err != nil {
		return ErrNotFound(fmt.Errorf("no rendered pdf for invoice %d", inv.ID))
	}

	previewDir := filepath.Join(ctrl.model.Config.XMLDir, "previews")
	if err = ensureDir(previewDir); err != nil {
		return ErrInternal(err)
	}
	_, pngPaths, err := renderPDFToPNGs(pdfPath, previewDir, 96, 1)
	if err != nil {
		return &appError{Code: "NOT_IMPLEMENTED", Status: http.StatusNotImplemented, Err: err,
			Public: "PDF preview is not available in this build."}
	}
	return c.File(pngPaths[0])
}
