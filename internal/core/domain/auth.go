package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"  // generate, ban, reset, create applications
	RoleReader Role = "reader" // listing and stats only
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleReader
}

type APIKey struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`       // Human-readable label, e.g. "dashboard"
	KeyHash   string     `json:"-"`          // SHA-256 hash of the key (never store raw)
	KeyPrefix string     `json:"key_prefix"` // First 8 chars for identification
	Role      Role       `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Caller is the authenticated identity of an admin request. TenantID is opaque; it is
// compared for equality with Application.OwnerID and nothing else.
type Caller struct {
	TenantID string
	Role     Role
}

// HashAPIKey returns the hex SHA-256 digest stored in place of a raw API key.
func HashAPIKey(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])
}
