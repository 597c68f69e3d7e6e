package domain

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a capability tag carried by an API key.
type Permission string

const (
	PermissionDeposit  Permission = "DEPOSIT"
	PermissionTransfer Permission = "TRANSFER"
	PermissionRead     Permission = "READ"
)

// AllPermissions lists every capability, in display order.
var AllPermissions = []Permission{PermissionDeposit, PermissionTransfer, PermissionRead}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool {
	switch p {
	case PermissionDeposit, PermissionTransfer, PermissionRead:
		return true
	}
	return false
}

// APIKeyStatus represents the state of a secret key.
type APIKeyStatus string

const (
	APIKeyStatusActive  APIKeyStatus = "ACTIVE"
	APIKeyStatusRevoked APIKeyStatus = "REVOKED"
)

// APIKey is a stored secret key. The raw secret is never persisted:
// KeyPrefix is the non-secret lookup fragment, KeyHash the salted hash.
type APIKey struct {
	ID          uuid.UUID    `json:"id"`
	UserID      int64        `json:"user_id"`
	Name        string       `json:"name"`
	KeyPrefix   string       `json:"key_prefix"`
	KeyHash     string       `json:"-"`
	Permissions []Permission `json:"permissions"`
	Status      APIKeyStatus `json:"status"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsExpired reports whether the key is past its expiry at now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// IsActive reports whether the key has not been revoked.
func (k *APIKey) IsActive() bool {
	return k.Status == APIKeyStatusActive
}

// HasPermission reports whether the key carries p.
func (k *APIKey) HasPermission(p Permission) bool {
	for _, have := range k.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// ExpiryCode is the user-facing key lifetime selector.
type ExpiryCode string

const (
	ExpiryHour  ExpiryCode = "1H"
	ExpiryDay   ExpiryCode = "1D"
	ExpiryMonth ExpiryCode = "1M"
	ExpiryYear  ExpiryCode = "1Y"
)

// ExpiresAt returns the expiry instant for code relative to now.
// ok is false for unknown codes.
func (c ExpiryCode) ExpiresAt(now time.Time) (t time.Time, ok bool) {
	switch c {
	case ExpiryHour:
		return now.Add(time.Hour), true
	case ExpiryDay:
		return now.AddDate(0, 0, 1), true
	case ExpiryMonth:
		return now.AddDate(0, 1, 0), true
	case ExpiryYear:
		return now.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}
