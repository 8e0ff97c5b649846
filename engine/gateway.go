package engine

import (
	"time"

	"github.com/invoicedesk/invoicedesk/model"
)

// Gateway is the persistence boundary the engine works against. The engine
// receives it at construction; it holds no ambient database state. Every
// command runs inside a single Transaction, so a reconciliation step either
// fully commits or fully fails.
type Gateway interface {
	Transaction(fn func(tx Gateway) error) error

	LoadInvoice(id uint) (*model.Invoice, error)
	SaveInvoice(inv *model.Invoice) error
	DeleteInvoice(id uint) error
	InvoiceNumbers(prefix string) ([]string, error)

	LoadPayment(id uint) (*model.Payment, error)
	SavePayment(p *model.Payment) error
	DeletePayment(id uint) error
	LoadPaymentsForInvoice(invoiceID uint) ([]model.Payment, error)

	LoadClient(id uint) (*model.Client, error)
	ListOverdueCandidates(now time.Time) ([]uint, error)
}

// storeGateway adapts *model.Store to the Gateway interface; the only
// difference is the transaction callback type.
type storeGateway struct {
	*model.Store
}

// NewStoreGateway wraps a Store as a Gateway.
func NewStoreGateway(s *model.Store) Gateway {
	return storeGateway{Store: s}
}

func (g storeGateway) Transaction(fn func(tx Gateway) error) error {
	return g.Store.Transaction(func(tx *model.Store) error {
		return fn(storeGateway{Store: tx})
	})
}
