package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDurationDays caps license validity at ten years.
	MaxDurationDays = 3650
	// MaxBanReasonLength is counted in runes.
	MaxBanReasonLength = 512
	// MaxHardwareIDLength is counted in bytes.
	MaxHardwareIDLength = 256
	// MaxApplicationNameLength is counted in runes.
	MaxApplicationNameLength = 64
	// DefaultApplicationVersion matches what applications get when none is supplied.
	DefaultApplicationVersion = "1.0"
)

// ValidateDuration checks a license duration in days.
func ValidateDuration(days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: duration must be a positive number of days, got %d", ErrInvalidDuration, days)
	}
	if days > MaxDurationDays {
		return fmt.Errorf("%w: duration exceeds %d days, got %d", ErrInvalidDuration, MaxDurationDays, days)
	}
	return nil
}

// ValidateApplicationName checks the display name of an application.
func ValidateApplicationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidApplication)
	}
	if utf8.RuneCountInString(name) > MaxApplicationNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidApplication, MaxApplicationNameLength)
	}
	return nil
}

// ValidateHardwareID checks the hardware id a client presents or a ban names.
func ValidateHardwareID(hwid string) error {
	if hwid == "" {
		return fmt.Errorf("%w: hardware_id is required", ErrInvalidHardwareID)
	}
	if len(hwid) > MaxHardwareIDLength {
		return fmt.Errorf("%w: hardware_id must be at most %d bytes", ErrInvalidHardwareID, MaxHardwareIDLength)
	}
	return nil
}

// Validate checks that a ban names at least one target and has a bounded reason.
func (r *BanRequest) Validate() error {
	if r.Key == "" && r.HardwareID == "" {
		return fmt.Errorf("%w: key or hardware_id is required", ErrInvalidBan)
	}
	if len(r.HardwareID) > MaxHardwareIDLength {
		return fmt.Errorf("%w: hardware_id must be at most %d bytes", ErrInvalidBan, MaxHardwareIDLength)
	}
	if utf8.RuneCountInString(r.Reason) > MaxBanReasonLength {
		return fmt.Errorf("%w: reason must be at most %d characters", ErrInvalidBan, MaxBanReasonLength)
	}
	return nil
}

// KeyHint shortens a license key for logs and events: the prefix plus four characters.
func KeyHint(key string) string {
	i := strings.IndexByte(key, '-')
	if i < 0 || len(key) <= i+5 {
		return "****"
	}
	return key[:i+5] + "****"
}
