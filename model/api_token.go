package model

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
)

// API tokens guard the HTTP surface. Only a salted hash and a lookup prefix
// are persisted; the plaintext token is returned exactly once at creation.

var (
	ErrTokenInvalid  = errors.New("api token invalid")
	ErrTokenNotFound = errors.New("api token not found")
	ErrTokenDisabled = errors.New("api token disabled")
	ErrTokenExpired  = errors.New("api token expired")
)

type APIToken struct {
	gorm.Model
	TokenPrefix string `gorm:"size:16;index;not null"`
	TokenHash   string `gorm:"size:64;uniqueIndex;not null"`
	Salt        string `gorm:"size:64;not null"`
	Name        string `gorm:"size:100"`
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	Disabled    bool `gorm:"not null;default:false"`
}

func (APIToken) TableName() string { return "api_tokens" }

func makeToken() (plain, prefix, saltHex, tokenHash string, err error) {
	randBytes := make([]byte, 32)
	if _, e := rand.Read(randBytes); e != nil {
		return "", "", "", "", e
	}
	plain = base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(randBytes)
	prefix = plain[:8]

	salt := make([]byte, 16)
	if _, e := rand.Read(salt); e != nil {
		return "", "", "", "", e
	}
	saltHex = hex.EncodeToString(salt)

	h := sha256.Sum256(append(salt, []byte(plain)...))
	tokenHash = hex.EncodeToString(h[:])
	return
}

// CreateAPIToken mints a token and returns its plaintext once.
func (s *Store) CreateAPIToken(name string, expiresAt *time.Time) (plain string, rec *APIToken, err error) {
	plain, prefix, saltHex, hash, err := makeToken()
	if err != nil {
		return "", nil, err
	}
	rec = &APIToken{
		TokenPrefix: prefix,
		TokenHash:   hash,
		Salt:        saltHex,
		Name:        name,
		ExpiresAt:   expiresAt,
	}
	if err = s.db.Create(rec).Error; err != nil {
		return "", nil, storageErr("create api token", err)
	}
	return plain, rec, nil
}

// ValidateAPIToken verifies a raw token: prefix lookup, constant-time hash
// compare, disabled/expiry checks. Updates last_used_at best-effort.
func (s *Store) ValidateAPIToken(raw string) (*APIToken, error) {
	if len(raw) < 12 {
		return nil, ErrTokenInvalid
	}
	prefix := raw[:8]

	var rec APIToken
	if err := s.db.Where("token_prefix = ?", prefix).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, storageErr("validate api token", err)
	}

	salt, err := hex.DecodeString(rec.Salt)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	h := sha256.Sum256(append(salt, []byte(raw)...))
	got := hex.EncodeToString(h[:])
	if subtle.ConstantTimeCompare([]byte(got), []byte(rec.TokenHash)) != 1 {
		return nil, ErrTokenInvalid
	}

	if rec.Disabled {
		return nil, ErrTokenDisabled
	}
	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	_ = s.db.Model(&APIToken{}).Where("id = ?", rec.ID).Update("last_used_at", time.Now()).Error
	return &rec, nil
}

// RevokeAPIToken disables a token.
func (s *Store) RevokeAPIToken(tokenID uint) error {
	res := s.db.Model(&APIToken{}).Where("id = ?", tokenID).Update("disabled", true)
	if res.Error != nil {
		return storageErr("revoke api token", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
