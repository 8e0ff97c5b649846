package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item is a catalog entry that can be used to prefill invoice lines.
// Codes follow the historic TKW-NNN format.
type Item struct {
	gorm.Model
	Code  string `gorm:"size:20;uniqueIndex;not null"`
	Name  string `gorm:"size:100;not null"`
	Price decimal.Decimal `sql:"type:decimal(20,8);"`
}

const itemCodePrefix = "TKW-"

// NextItemCode generates the next free catalog code.
func (s *Store) NextItemCode() (string, error) {
	var codes []string
	err := s.db.Model(&Item{}).
		Where("code LIKE ?", itemCodePrefix+"%").
		Pluck("code", &codes).Error
	if err != nil {
		return "", storageErr("next item code", err)
	}
	max := 0
	for _, c := range codes {
		n, err := strconv.Atoi(strings.TrimPrefix(c, itemCodePrefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", itemCodePrefix, max+1), nil
}

// SaveItem inserts or updates a catalog item.
func (s *Store) SaveItem(it *Item) error {
	if strings.TrimSpace(it.Name) == "" {
		return Invalid("name", "is required")
	}
	if it.Price.IsNegative() {
		return Invalid("price", "must not be negative")
	}
	if it.Code == "" {
		code, err := s.NextItemCode()
		if err != nil {
			return err
		}
		it.Code = code
	}
	return storageErr("save item", s.db.Save(it).Error)
}

// LoadItem loads one catalog item by id.
func (s *Store) LoadItem(id uint) (*Item, error) {
	var it Item
	if err := s.db.First(&it, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load item", err)
	}
	return &it, nil
}

// ListItems returns the catalog ordered by code.
func (s *Store) ListItems() ([]Item, error) {
	var items []Item
	if err := s.db.Order("code").Find(&items).Error; err != nil {
		return nil, storageErr("list items", err)
	}
	return items, nil
}

// DeleteItem removes a catalog item. Existing invoice lines keep their
// copied description and price.
func (s *Store) DeleteItem(id uint) error {
	res := s.db.Delete(&Item{}, id)
	if res.Error != nil {
		return storageErr("delete item", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
