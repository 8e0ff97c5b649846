package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethod enumerates the accepted payment channels.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodDebitCard    PaymentMethod = "debit_card"
	PaymentMethodOther        PaymentMethod = "other"
)

var paymentMethods = map[PaymentMethod]bool{
	PaymentMethodCash:         true,
	PaymentMethodBankTransfer: true,
	PaymentMethodCheck:        true,
	PaymentMethodCreditCard:   true,
	PaymentMethodDebitCard:    true,
	PaymentMethodOther:        true,
}

// ParsePaymentMethod validates a method string. The empty string maps to
// "other" for tolerance with hand-entered legacy rows.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	if s == "" {
		return PaymentMethodOther, true
	}
	m := PaymentMethod(s)
	return m, paymentMethods[m]
}

// Payment is one payment recorded against an invoice. Payments are owned by
// their invoice and are hard-deleted with it.
type Payment struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	InvoiceID   uint            `gorm:"index;not null"`
	Amount      decimal.Decimal `sql:"type:decimal(20,8);"`
	PaymentDate time.Time
	Method      PaymentMethod `gorm:"type:text;not null;default:other"`
	Reference   string
	Notes       string
}

// Validate checks the payment's own fields (not its invoice reference).
func (p *Payment) Validate() error {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return Invalid("amount", "must be greater than zero")
	}
	if _, ok := ParsePaymentMethod(string(p.Method)); !ok {
		return Invalid("method", "unknown payment method")
	}
	return nil
}

// SavePayment inserts or updates a payment row.
func (s *Store) SavePayment(p *Payment) error {
	return storageErr("save payment", s.db.Save(p).Error)
}

// LoadPayment loads a single payment by id.
func (s *Store) LoadPayment(id uint) (*Payment, error) {
	var p Payment
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load payment", err)
	}
	return &p, nil
}

// DeletePayment removes a payment row. Returns ErrNotFound if absent.
func (s *Store) DeletePayment(id uint) error {
	res := s.db.Delete(&Payment{}, id)
	if res.Error != nil {
		return storageErr("delete payment", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadPaymentsForInvoice returns the payments of one invoice ordered by
// payment date.
func (s *Store) LoadPaymentsForInvoice(invoiceID uint) ([]Payment, error) {
	var payments []Payment
	err := s.db.Where("invoice_id = ?", invoiceID).
		Order("payment_date, id").
		Find(&payments).Error
	if err != nil {
		return nil, storageErr("load payments", err)
	}
	return payments, nil
}
