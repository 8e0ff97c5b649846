package controller

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/mailjet/mailjet-apiv3-go"
)

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func (ctrl *controller) sendEmail(to string, subject string, body string, attachmentPath string) error {
	// when in production, send real email, else just log to console
	if ctrl.model.Config.Mode == "production" {
		return ctrl.sendRealEmail(to, subject, body, attachmentPath)
	}
	fmt.Println("Sending email to", to, "with subject", subject, "and body", body)
	return nil
}

func (ctrl *controller) sendRealEmail(to string, subject string, body string, attachmentPath string) error {
	mj := mailjet.NewMailjetClient(ctrl.model.Config.MailAPIKey, ctrl.model.Config.MailSecret)

	msg := mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{
			Email: ctrl.model.Config.MailFrom,
			Name:  ctrl.model.Config.Business.Name,
		},
		To: &mailjet.RecipientsV31{
			mailjet.RecipientV31{
				Email: to,
			},
		},
		Subject:  subject,
		TextPart: body,
	}
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			return fmt.Errorf("cannot read attachment: %w", err)
		}
		msg.Attachments = &mailjet.AttachmentsV31{
			mailjet.AttachmentV31{
				ContentType:   "application/pdf",
				Filename:      "invoice.pdf",
				Base64Content: base64Encode(data),
			},
		}
	}

	messages := mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{msg}}
	if _, err := mj.SendMailV31(&messages); err != nil {
		return ErrInvalid(err, "cannot send email")
	}
	return nil
}

// apiInvoiceSend emails the finalized invoice PDF to the client.
func (ctrl *controller) apiInvoiceSend(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	logger := ctrl.requestLogger(c)
	inv, err := ctrl.model.LoadInvoice(id)
	if err != nil {
		return domainError(err)
	}
	if !inv.Finalized() {
		return ErrInvalid(nil, "finalize the invoice before sending it")
	}
	client, err := ctrl.model.LoadClient(inv.ClientID)
	if err != nil {
		return domainError(err)
	}
	if client.Email == "" {
		return ErrInvalid(nil, "client has no email address")
	}

	pdfPath := ctrl.pdfPathForInvoice(inv)
	if _, err = os.Stat(pdfPath); err != nil {
		xmlPath := ctrl.xmlPathForInvoice(inv)
		if err = ensureDir(ctrl.model.Config.XMLDir); err != nil {
			return ErrInternal(err)
		}
		if err = ctrl.model.CreateEInvoiceXML(inv, xmlPath); err != nil {
			return ErrInvalid(err, "cannot create e-invoice XML")
		}
		if err = ctrl.model.CreateInvoicePDF(inv, xmlPath, pdfPath, logger); err != nil {
			return ErrInvalid(err, "cannot render invoice PDF")
		}
	}

	subject := fmt.Sprintf("Invoice %s from %s", inv.Number, ctrl.model.Config.Business.Name)
	body := fmt.Sprintf("Dear %s,\n\nplease find attached invoice %s over %s.\n\nKind regards\n%s",
		client.Name, inv.Number, inv.TotalAmount.StringFixed(2), ctrl.model.Config.Business.Name)
	if err := ctrl.sendEmail(client.Email, subject, body, pdfPath); err != nil {
		return domainError(err)
	}
	logger.Info("invoice sent", "invoice_id", inv.ID, "to", client.Email)
	return respond(c, http.StatusOK, map[string]any{"sent": true, "to": client.Email})
}
