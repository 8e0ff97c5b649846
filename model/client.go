package model

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Client is an invoice recipient.
type Client struct {
	gorm.Model
	Name       string `gorm:"size:100;not null;index"`
	Company    string `gorm:"size:100"`
	Email      string `gorm:"size:100"`
	Phone      string `gorm:"size:20"`
	Address    string
	City       string `gorm:"size:50"`
	State      string `gorm:"size:50"`
	PostalCode string `gorm:"size:20"`
	Country    string `gorm:"size:50"`
	Notes      string
	Active     bool `gorm:"not null;default:true"`
}

// SaveClient inserts or updates a client.
func (s *Store) SaveClient(c *Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "is required")
	}
	return storageErr("save client", s.db.Save(c).Error)
}

// LoadClient loads one client by id.
func (s *Store) LoadClient(id uint) (*Client, error) {
	var c Client
	if err := s.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load client", err)
	}
	return &c, nil
}

// ListClients returns clients ordered by name. When activeOnly is set,
// inactive clients are skipped.
func (s *Store) ListClients(activeOnly bool) ([]Client, error) {
	q := s.db.Order("name")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var clients []Client
	if err := q.Find(&clients).Error; err != nil {
		return nil, storageErr("list clients", err)
	}
	return clients, nil
}

// DeleteClient removes a client. A client that is still referenced by
// invoices cannot be deleted; deactivate it instead.
func (s *Store) DeleteClient(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var c Client
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var n int64
		if err := tx.Model(&Invoice{}).Where("client_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return Invalid("client", "still referenced by invoices")
		}
		return tx.Delete(&Client{}, id).Error
	})
	return storageErr("delete client", err)
}
