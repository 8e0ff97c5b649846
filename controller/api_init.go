package controller

import "github.com/labstack/echo/v4"

func (ctrl *controller) apiInit(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.Use(ctrl.APIKeyAuthMiddleware())

	// token management
	api.POST("/tokens", ctrl.apiCreateToken)
	api.DELETE("/tokens/:id", ctrl.apiRevokeToken)

	// dashboard
	api.GET("/dashboard", ctrl.apiDashboard)

	// clients
	api.GET("/clients", ctrl.apiClientList)
	api.GET("/clients/:id", ctrl.apiClientGet)
	api.POST("/clients", ctrl.apiClientCreate)
	api.PUT("/clients/:id", ctrl.apiClientUpdate)
	api.DELETE("/clients/:id", ctrl.apiClientDelete)

	// item catalog
	api.GET("/items", ctrl.apiItemList)
	api.POST("/items", ctrl.apiItemCreate)
	api.PUT("/items/:id", ctrl.apiItemUpdate)
	api.DELETE("/items/:id", ctrl.apiItemDelete)

	// invoices
	api.GET("/invoices", ctrl.apiInvoiceList)
	api.GET("/invoices/:id", ctrl.apiInvoiceGet)
	api.POST("/invoices", ctrl.apiInvoiceCreate)
	api.PUT("/invoices/:id", ctrl.apiInvoiceUpdate)
	api.DELETE("/invoices/:id", ctrl.apiInvoiceDelete)
	api.POST("/invoices/:id/finalize", ctrl.apiInvoiceFinalize)
	api.POST("/invoices/:id/cancel", ctrl.apiInvoiceCancel)
	api.POST("/invoices/:id/reopen", ctrl.apiInvoiceReopen)
	api.POST("/invoices/:id/send", ctrl.apiInvoiceSend)

	// line items
	api.POST("/invoices/:id/lines", ctrl.apiLineItemAdd)
	api.PUT("/invoices/:id/lines/:lineid", ctrl.apiLineItemUpdate)
	api.DELETE("/invoices/:id/lines/:lineid", ctrl.apiLineItemDelete)

	// payments
	api.GET("/invoices/:id/payments", ctrl.apiPaymentList)
	api.POST("/invoices/:id/payments", ctrl.apiPaymentAdd)
	api.PUT("/payments/:id", ctrl.apiPaymentUpdate)
	api.DELETE("/payments/:id", ctrl.apiPaymentDelete)

	// documents and exports
	api.GET("/invoices/:id/xml", ctrl.apiInvoiceXML)
	api.GET("/invoices/:id/pdf", ctrl.apiInvoicePDF)
	api.GET("/invoices/:id/preview", ctrl.apiInvoicePreview)
	api.GET("/export/invoices.xlsx", ctrl.apiExportXLSX)
	api.GET("/export/backup.zip", ctrl.apiExportZIP)
}
