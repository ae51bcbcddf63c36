// Package domain contains the core business entities for cloudLicense.
package domain

import (
	"time"
)

// LicenseStatus is the persisted status of a license.
type LicenseStatus string

const (
	// StatusActive is the only non-terminal status.
	StatusActive LicenseStatus = "active"
	// StatusExpired is set lazily the first time a validation observes expires_at in the past.
	StatusExpired LicenseStatus = "expired"
	// StatusBanned is set by an administrative ban or by a matching ban record.
	StatusBanned LicenseStatus = "banned"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s LicenseStatus) IsTerminal() bool {
	return s == StatusExpired || s == StatusBanned
}

// LicenseState is the derived state the validation state machine works on.
type LicenseState string

const (
	StateActiveUnbound LicenseState = "ACTIVE_UNBOUND"
	StateActiveBound   LicenseState = "ACTIVE_BOUND"
	StateExpired       LicenseState = "EXPIRED"
	StateBanned        LicenseState = "BANNED"
)

// Verdict is the business outcome of a validation. Verdicts are values, not errors.
type Verdict string

const (
	VerdictValid        Verdict = "VALID"
	VerdictInvalidKey   Verdict = "INVALID_KEY"
	VerdictExpired      Verdict = "EXPIRED"
	VerdictBanned       Verdict = "BANNED"
	VerdictHWIDMismatch Verdict = "HWID_MISMATCH"
)

// Application is a tenant-owned client application that licenses are issued for.
type Application struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"` // unique per owner
	Secret    string    `json:"secret,omitempty"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// License is one grant of software usage rights.
type License struct {
	ID              string        `json:"id"`
	Key             string        `json:"key"`
	ApplicationID   string        `json:"application_id"`
	OwnerID         *string       `json:"owner_id,omitempty"`    // end user the key was issued to, if any
	HardwareID      *string       `json:"hardware_id,omitempty"` // nil until first bind
	Status          LicenseStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	LastValidatedAt *time.Time    `json:"last_validated_at,omitempty"`
}

// IsBound reports whether a hardware identity has been bound.
func (l *License) IsBound() bool {
	return l.HardwareID != nil && *l.HardwareID != ""
}

// IsExpiredAt reports whether the license validity window has ended at now.
func (l *License) IsExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// BoundHardware returns the bound hardware id or "".
func (l *License) BoundHardware() string {
	if l.HardwareID == nil {
		return ""
	}
	return *l.HardwareID
}

// State derives the state machine position of the license at now. Expiry is a derived
// fact, so an active row past its expires_at is reported as StateExpired.
func (l *License) State(now time.Time) LicenseState {
	switch {
	case l.Status == StatusBanned:
		return StateBanned
	case l.Status == StatusExpired, l.IsExpiredAt(now):
		return StateExpired
	case l.IsBound():
		return StateActiveBound
	default:
		return StateActiveUnbound
	}
}

// BanRecord revokes licenses of one application by key, by hardware identity, or both.
type BanRecord struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	LicenseKey    *string   `json:"license_key,omitempty"`
	HardwareID    *string   `json:"hardware_id,omitempty"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// Matches reports whether the record bans a license with the given key and bound hardware.
// An empty hardwareID never matches, an unbound license has no hardware identity yet.
func (b *BanRecord) Matches(key, hardwareID string) bool {
	if b.LicenseKey != nil && *b.LicenseKey == key {
		return true
	}
	return hardwareID != "" && b.HardwareID != nil && *b.HardwareID == hardwareID
}

// ValidateRequest is what an end-user client submits at runtime.
type ValidateRequest struct {
	ApplicationID string `json:"application_id"`
	Key           string `json:"key"`
	HardwareID    string `json:"hardware_id"`
}

// ValidateResult carries the verdict. ExpiresAt is set whenever the key resolved to a license.
type ValidateResult struct {
	Verdict   Verdict    `json:"verdict"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GenerateRequest asks for a new license under an application.
type GenerateRequest struct {
	ApplicationID string `json:"application_id"`
	OwnerID       string `json:"owner_id,omitempty"`
	DurationDays  int    `json:"duration_days"`
}

// BanRequest asks for a ban by key, hardware identity, or both.
type BanRequest struct {
	ApplicationID string `json:"application_id"`
	Key           string `json:"key,omitempty"`
	HardwareID    string `json:"hardware_id,omitempty"`
	Reason        string `json:"reason"`
}

// Stats are per-tenant counters over applications and licenses.
type Stats struct {
	Applications int `json:"applications"`
	Licenses     int `json:"licenses"`
	Active       int `json:"active"`
	Bound        int `json:"bound"`
	Expired      int `json:"expired"`
	Banned       int `json:"banned"`
}

// EventType names a lifecycle event published after a committed mutation.
type EventType string

const (
	EventLicenseGenerated EventType = "license.generated"
	EventLicenseBound     EventType = "license.bound"
	EventLicenseExpired   EventType = "license.expired"
	EventLicenseBanned    EventType = "license.banned"
	EventHardwareReset    EventType = "license.hardware_reset"
)

// LicenseEvent is the payload published on the event channel. It never carries the full key.
type LicenseEvent struct {
	Type          EventType `json:"type"`
	ApplicationID string    `json:"application_id"`
	LicenseID     string    `json:"license_id,omitempty"`
	KeyHint       string    `json:"key_hint,omitempty"`
	HardwareID    string    `json:"hardware_id,omitempty"`
	At            time.Time `json:"at"`
}
