package ports

import (
	"context"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
)

type ApplicationRepository interface {
	CreateApplication(ctx context.Context, app *domain.Application) error
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	ListApplicationsByOwner(ctx context.Context, ownerID string) ([]domain.Application, error)
}

// LicenseTx is a handle on one license row held under an exclusive lock.
// It is only valid inside the callback passed to LicenseRepository.WithLicense.
type LicenseTx interface {
	// License returns the row as read when the lock was taken.
	License() *domain.License
	// BindHardware sets hardware_id only if it is still null. It reports whether the bind happened.
	BindHardware(ctx context.Context, hardwareID string) (bool, error)
	TouchLastValidated(ctx context.Context, at time.Time) error
	// MarkExpired and MarkBanned only move active rows; on terminal rows they are no-ops.
	MarkExpired(ctx context.Context) error
	MarkBanned(ctx context.Context) error
	// IsBanned checks the ban records of the license's application against its key and
	// bound hardware id, on the same connection or lock that holds the row.
	IsBanned(ctx context.Context) (bool, error)
}

type LicenseRepository interface {
	// CreateLicense returns domain.ErrKeyConflict when the key is already taken.
	CreateLicense(ctx context.Context, license *domain.License) error
	GetLicenseByKey(ctx context.Context, key string) (*domain.License, error)
	ListLicensesByApplication(ctx context.Context, applicationID string) ([]domain.License, error)
	// WithLicense runs fn under a per-license lock. It returns domain.ErrNotFound without
	// calling fn when no license has the key. Mutations made through the LicenseTx are
	// committed only if fn returns nil.
	WithLicense(ctx context.Context, key string, fn func(ctx context.Context, tx LicenseTx) error) error
	MarkLicenseBanned(ctx context.Context, licenseID string) error
	ResetHardware(ctx context.Context, licenseID string) error
	TenantStats(ctx context.Context, ownerID string, now time.Time) (domain.Stats, error)
}

type BanRepository interface {
	AddBan(ctx context.Context, record *domain.BanRecord) error
	// IsBanned reports whether any ban of the application matches the key, or the hardware id
	// when it is non-empty.
	IsBanned(ctx context.Context, applicationID, key, hardwareID string) (bool, error)
	ListBansByApplication(ctx context.Context, applicationID string) ([]domain.BanRecord, error)
}

type APIKeyRepository interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID string) ([]domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, tenantID string, id string) error
}

type AuditRepository interface {
	SaveAuditLog(ctx context.Context, log *domain.AuditLog) error
	// GetAuditLogs returns the tenant's entries, newest first.
	GetAuditLogs(ctx context.Context, tenantID string) ([]domain.AuditLog, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Repository is implemented by every storage backend.
type Repository interface {
	ApplicationRepository
	LicenseRepository
	BanRepository
	APIKeyRepository
	AuditRepository
	Pinger
}

type KeyGenerator interface {
	Generate() (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.LicenseEvent) error
}

type ValidationService interface {
	Validate(ctx context.Context, req domain.ValidateRequest) (domain.ValidateResult, error)
}

type TenantService interface {
	CreateApplication(ctx context.Context, caller domain.Caller, name, version string) (*domain.Application, error)
	ListApplications(ctx context.Context, caller domain.Caller) ([]domain.Application, error)
	Generate(ctx context.Context, caller domain.Caller, req domain.GenerateRequest) (*domain.License, error)
	Ban(ctx context.Context, caller domain.Caller, req domain.BanRequest) error
	ListLicenses(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.License, error)
	ListBans(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.BanRecord, error)
	ResetHardware(ctx context.Context, caller domain.Caller, applicationID, key string) error
	Stats(ctx context.Context, caller domain.Caller) (domain.Stats, error)
	ListAuditLogs(ctx context.Context, caller domain.Caller) ([]domain.AuditLog, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}
