package domain

import "errors"

var (
	// Lookup errors.
	ErrNotFound            = errors.New("not found")
	ErrApplicationNotFound = errors.New("application not found")

	// Tenant scope violation.
	ErrForbidden = errors.New("forbidden")

	// Input errors.
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidBan         = errors.New("invalid ban request")
	ErrInvalidHardwareID  = errors.New("invalid hardware id")
	ErrInvalidApplication = errors.New("invalid application")
	ErrApplicationExists  = errors.New("application already exists")

	// ErrKeyConflict is returned by a store when a generated key is already taken.
	ErrKeyConflict = errors.New("license key already exists")

	// ErrStoreUnavailable wraps every persistence or transport failure. It is never
	// translated into a verdict.
	ErrStoreUnavailable = errors.New("store unavailable")
)
