package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus is the single typed status enum. It is derived from the
// invoice's totals, payments, due date, and the cancelled flag; it is never
// edited independently of those inputs.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// legacyStatus maps status strings written by earlier revisions of the
// application, where the field was sometimes stored as free text. The
// canonical values map to themselves.
var legacyStatus = map[string]InvoiceStatus{
	"draft":     InvoiceStatusDraft,
	"sent":      InvoiceStatusSent,
	"partial":   InvoiceStatusPartial,
	"paid":      InvoiceStatusPaid,
	"overdue":   InvoiceStatusOverdue,
	"cancelled": InvoiceStatusCancelled,
	"pending":   InvoiceStatusSent,
	"unpaid":    InvoiceStatusSent,
	"issued":    InvoiceStatusSent,
	"completed": InvoiceStatusPaid,
	"voided":    InvoiceStatusCancelled,
}

// ParseInvoiceStatus resolves a stored status string, including legacy
// spellings, to the typed enum.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	st, ok := legacyStatus[s]
	return st, ok
}

// Invoice is an invoice together with its owned line items and payments.
// Destroying an invoice destroys both collections.
type Invoice struct {
	gorm.Model
	ClientID         uint            `gorm:"index;not null"`
	Client           Client          `gorm:"constraint:OnDelete:RESTRICT"`
	Number           string          `gorm:"size:32;index"` // empty until finalized, then immutable
	IssueDate        time.Time
	DueDate          *time.Time
	Cancelled        bool            `gorm:"not null;default:false"`
	Status           InvoiceStatus   `gorm:"type:text;not null;default:draft;check:status IN ('draft','sent','partial','paid','overdue','cancelled');index"`
	Subtotal         decimal.Decimal `sql:"type:decimal(20,8);"`
	TaxAmount        decimal.Decimal `sql:"type:decimal(20,8);"`
	Discount         decimal.Decimal `sql:"type:decimal(20,8);"`
	TotalAmount      decimal.Decimal `sql:"type:decimal(20,8);"`
	CommissionRate   decimal.Decimal `sql:"type:decimal(20,8);"`
	CommissionAmount decimal.Decimal `sql:"type:decimal(20,8);"`
	Notes            string
	LineItems        []LineItem
	Payments         []Payment
}

// LineItem is one line of an invoice. LineTotal is always
// Quantity * UnitPrice rounded to cents.
type LineItem struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	InvoiceID   uint  `gorm:"index;not null"`
	ItemID      *uint // optional catalog reference
	Description string
	Quantity    decimal.Decimal `sql:"type:decimal(20,8);"`
	UnitPrice   decimal.Decimal `sql:"type:decimal(20,8);"`
	LineTotal   decimal.Decimal `sql:"type:decimal(20,8);"`
}

func (LineItem) TableName() string { return "line_items" }

// Finalized reports whether the invoice has received its immutable number.
func (inv *Invoice) Finalized() bool { return inv.Number != "" }

func validateLineItem(description string, quantity, unitPrice decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Invalid("quantity", "must be greater than zero")
	}
	if unitPrice.IsNegative() {
		return Invalid("unit_price", "must not be negative")
	}
	_ = description // empty descriptions are tolerated
	return nil
}

// AddLineItem validates and appends a line item, then recomputes the
// monetary fields.
func (inv *Invoice) AddLineItem(description string, quantity, unitPrice decimal.Decimal) (*LineItem, error) {
	if err := validateLineItem(description, quantity, unitPrice); err != nil {
		return nil, err
	}
	li := LineItem{
		InvoiceID:   inv.ID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
	inv.LineItems = append(inv.LineItems, li)
	inv.RecomputeTotals()
	return &inv.LineItems[len(inv.LineItems)-1], nil
}

// LineItemPatch carries the editable fields of a line item. Nil fields are
// left unchanged.
type LineItemPatch struct {
	Description *string
	Quantity    *decimal.Decimal
	UnitPrice   *decimal.Decimal
}

// UpdateLineItem applies a patch to the line item with the given id and
// recomputes the totals. Returns ErrNotFound if the id is absent.
func (inv *Invoice) UpdateLineItem(id uint, patch LineItemPatch) error {
	for i := range inv.LineItems {
		if inv.LineItems[i].ID != id {
			continue
		}
		li := inv.LineItems[i] // validate the patched copy before committing it
		if patch.Description != nil {
			li.Description = *patch.Description
		}
		if patch.Quantity != nil {
			li.Quantity = *patch.Quantity
		}
		if patch.UnitPrice != nil {
			li.UnitPrice = *patch.UnitPrice
		}
		if err := validateLineItem(li.Description, li.Quantity, li.UnitPrice); err != nil {
			return err
		}
		inv.LineItems[i] = li
		inv.RecomputeTotals()
		return nil
	}
	return ErrNotFound
}

// RemoveLineItem deletes the line item with the given id and recomputes the
// totals. Returns ErrNotFound if the id is absent.
func (inv *Invoice) RemoveLineItem(id uint) error {
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == id {
			inv.LineItems = append(inv.LineItems[:i], inv.LineItems[i+1:]...)
			inv.RecomputeTotals()
			return nil
		}
	}
	return ErrNotFound
}

// RecomputeTotals derives the monetary fields from the line items:
//
//	subtotal          = sum of line totals
//	total_amount      = subtotal + tax_amount - discount
//	commission_amount = total_amount * commission_rate
//
// All results are rounded to cents. The function is deterministic and
// idempotent; it is called after every line-item mutation.
func (inv *Invoice) RecomputeTotals() {
	subtotal := decimal.Zero
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		li.LineTotal = li.Quantity.Mul(li.UnitPrice).Round(2)
		subtotal = subtotal.Add(li.LineTotal)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.TaxAmount = inv.TaxAmount.Round(2)
	inv.Discount = inv.Discount.Round(2)
	inv.TotalAmount = inv.Subtotal.Add(inv.TaxAmount).Sub(inv.Discount).Round(2)
	inv.CommissionAmount = inv.TotalAmount.Mul(inv.CommissionRate).Round(2)
}

// TotalPaid sums the amounts of the loaded payments, rounded to cents.
func (inv *Invoice) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for i := range inv.Payments {
		total = total.Add(inv.Payments[i].Amount)
	}
	return total.Round(2)
}

// RemainingBalance is total_amount minus total paid.
func (inv *Invoice) RemainingBalance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.TotalPaid())
}

// SaveInvoice persists an invoice and syncs its line items: existing lines
// keep their ids, new lines are created, and removed lines are hard-deleted
// so no orphan rows remain.
func (s *Store) SaveInvoice(inv *Invoice) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("LineItems", "Payments", "Client").Save(inv).Error; err != nil {
			return err
		}
		keep := make([]uint, 0, len(inv.LineItems))
		for i := range inv.LineItems {
			if id := inv.LineItems[i].ID; id != 0 {
				keep = append(keep, id)
			}
		}
		del := tx.Where("invoice_id = ?", inv.ID)
		if len(keep) > 0 {
			del = del.Where("id NOT IN ?", keep)
		}
		if err := del.Delete(&LineItem{}).Error; err != nil {
			return err
		}
		for i := range inv.LineItems {
			li := &inv.LineItems[i]
			li.InvoiceID = inv.ID
			if li.ID == 0 {
				if err := tx.Create(li).Error; err != nil {
					return err
				}
			} else if err := tx.Save(li).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("save invoice", err)
}

// LoadInvoice loads an invoice with its line items and payments.
func (s *Store) LoadInvoice(id uint) (*Invoice, error) {
	var inv Invoice
	result := s.db.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("line_items.id") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payments.payment_date, payments.id") }).
		First(&inv, id)
	if err := result.Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load invoice", err)
	}
	return &inv, nil
}

// DeleteInvoice removes an invoice together with its line items and
// payments. No orphan rows remain.
func (s *Store) DeleteInvoice(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var inv Invoice
		if err := tx.First(&inv, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&LineItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&Payment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&Invoice{}, id).Error
	})
	return storageErr("delete invoice", err)
}

// InvoiceNumbers returns all assigned invoice numbers matching the given
// prefix (used for per-bucket sequence generation).
func (s *Store) InvoiceNumbers(prefix string) ([]string, error) {
	var numbers []string
	err := s.db.Model(&Invoice{}).
		Where("number LIKE ?", prefix+"%").
		Pluck("number", &numbers).Error
	if err != nil {
		return nil, storageErr("list invoice numbers", err)
	}
	return numbers, nil
}
