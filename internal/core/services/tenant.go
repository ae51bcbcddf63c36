package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/poyrazK/cloudLicense/internal/infrastructure/metrics"
	"github.com/sethvargo/go-retry"
)

// maxKeyAttempts bounds generation retries on key collisions.
const maxKeyAttempts = 5

type tenantService struct {
	apps     ports.ApplicationRepository
	licenses ports.LicenseRepository
	bans     ports.BanRepository
	audits   ports.AuditRepository
	keys     ports.KeyGenerator
	events   ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewTenantService returns the boundary that enforces application ownership before
// delegating to the stores. The stores themselves have no notion of authorization.
func NewTenantService(
	apps ports.ApplicationRepository,
	licenses ports.LicenseRepository,
	bans ports.BanRepository,
	audits ports.AuditRepository,
	keys ports.KeyGenerator,
	events ports.EventPublisher,
	logger *slog.Logger,
) ports.TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tenantService{
		apps:     apps,
		licenses: licenses,
		bans:     bans,
		audits:   audits,
		keys:     keys,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

func requireAdmin(caller domain.Caller) error {
	if caller.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: role %q cannot perform this operation", domain.ErrForbidden, caller.Role)
	}
	return nil
}

// audit is best-effort: the action it records is already committed.
func (s *tenantService) audit(ctx context.Context, caller domain.Caller, action, resourceType, resourceID, details string) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		TenantID:     caller.TenantID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    s.now(),
	}
	if err := s.audits.SaveAuditLog(ctx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		s.logger.Warn("failed to save audit log", "tenant_id", caller.TenantID, "action", action, "resource_id", resourceID, "error", err)
	}
}

// authorize loads the application and checks the caller owns it.
func (s *tenantService) authorize(ctx context.Context, caller domain.Caller, applicationID string) (*domain.Application, error) {
	if caller.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", domain.ErrForbidden)
	}
	app, err := s.apps.GetApplication(ctx, applicationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrApplicationNotFound, applicationID)
	}
	if err != nil {
		return nil, err
	}
	if app.OwnerID != caller.TenantID {
		s.logger.Warn("tenant scope violation", "tenant_id", caller.TenantID, "application_id", applicationID)
		return nil, fmt.Errorf("%w: application %s is not owned by caller", domain.ErrForbidden, applicationID)
	}
	return app, nil
}

func (s *tenantService) CreateApplication(ctx context.Context, caller domain.Caller, name, version string) (*domain.Application, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if caller.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", domain.ErrForbidden)
	}
	if err := domain.ValidateApplicationName(name); err != nil {
		return nil, err
	}
	if version == "" {
		version = domain.DefaultApplicationVersion
	}

	app := &domain.Application{
		ID:        uuid.New().String(),
		OwnerID:   caller.TenantID,
		Name:      name,
		Secret:    uuid.New().String(),
		Version:   version,
		CreatedAt: s.now(),
	}
	if err := s.apps.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	s.logger.Info("application created", "tenant_id", caller.TenantID, "application_id", app.ID, "name", name)
	s.audit(ctx, caller, domain.AuditCreateApplication, domain.ResourceApplication, app.ID, fmt.Sprintf("name=%s version=%s", name, version))
	return app, nil
}

func (s *tenantService) ListApplications(ctx context.Context, caller domain.Caller) ([]domain.Application, error) {
	if caller.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", domain.ErrForbidden)
	}
	apps, err := s.apps.ListApplicationsByOwner(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		apps[i].Secret = ""
	}
	return apps, nil
}

func (s *tenantService) Generate(ctx context.Context, caller domain.Caller, req domain.GenerateRequest) (*domain.License, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	app, err := s.authorize(ctx, caller, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateDuration(req.DurationDays); err != nil {
		return nil, err
	}

	var lic *domain.License
	backoff := retry.WithMaxRetries(maxKeyAttempts-1, retry.NewConstant(time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		key, err := s.keys.Generate()
		if err != nil {
			return err
		}

		now := s.now()
		candidate := &domain.License{
			ID:            uuid.New().String(),
			Key:           key,
			ApplicationID: app.ID,
			Status:        domain.StatusActive,
			CreatedAt:     now,
			ExpiresAt:     now.AddDate(0, 0, req.DurationDays),
		}
		if req.OwnerID != "" {
			owner := req.OwnerID
			candidate.OwnerID = &owner
		}

		if err := s.licenses.CreateLicense(ctx, candidate); err != nil {
			if errors.Is(err, domain.ErrKeyConflict) {
				metrics.KeyCollisions.Inc()
				return retry.RetryableError(err)
			}
			return err
		}
		lic = candidate
		return nil
	})
	if errors.Is(err, domain.ErrKeyConflict) {
		return nil, fmt.Errorf("%w: no unique key after %d attempts", domain.ErrStoreUnavailable, maxKeyAttempts)
	}
	if err != nil {
		return nil, err
	}

	metrics.LicensesGenerated.Inc()
	s.logger.Info("license generated", "tenant_id", caller.TenantID, "application_id", app.ID,
		"key_hint", domain.KeyHint(lic.Key), "expires_at", lic.ExpiresAt)
	s.audit(ctx, caller, domain.AuditGenerateLicense, domain.ResourceLicense, lic.ID,
		fmt.Sprintf("application_id=%s key=%s duration_days=%d", app.ID, domain.KeyHint(lic.Key), req.DurationDays))
	publish(ctx, s.events, s.logger, *newEvent(domain.EventLicenseGenerated, lic, "", lic.CreatedAt))
	return lic, nil
}

func (s *tenantService) Ban(ctx context.Context, caller domain.Caller, req domain.BanRequest) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	app, err := s.authorize(ctx, caller, req.ApplicationID)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var lic *domain.License
	if req.Key != "" {
		lic, err = s.licenses.GetLicenseByKey(ctx, req.Key)
		if err != nil {
			return err
		}
		if lic.ApplicationID != app.ID {
			return fmt.Errorf("%w: license is not issued under application %s", domain.ErrNotFound, app.ID)
		}
	}

	record := &domain.BanRecord{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		Reason:        req.Reason,
		CreatedAt:     s.now(),
	}
	target := "hardware"
	if req.Key != "" {
		key := req.Key
		record.LicenseKey = &key
		target = "key"
	}
	if req.HardwareID != "" {
		hwid := req.HardwareID
		record.HardwareID = &hwid
		if req.Key != "" {
			target = "both"
		}
	}

	if err := s.bans.AddBan(ctx, record); err != nil {
		return err
	}
	metrics.BansTotal.WithLabelValues(target).Inc()

	// Licenses bound to a banned hardware id are marked on their next validation.
	if lic != nil {
		if err := s.licenses.MarkLicenseBanned(ctx, lic.ID); err != nil {
			return err
		}
		metrics.LicenseTransitions.WithLabelValues(string(domain.EventLicenseBanned)).Inc()
		publish(ctx, s.events, s.logger, *newEvent(domain.EventLicenseBanned, lic, req.HardwareID, record.CreatedAt))
	}

	s.logger.Info("ban added", "tenant_id", caller.TenantID, "application_id", app.ID,
		"target", target, "key_hint", domain.KeyHint(req.Key), "hardware_id", req.HardwareID)
	s.audit(ctx, caller, domain.AuditBan, domain.ResourceBan, record.ID,
		fmt.Sprintf("application_id=%s target=%s key=%s hardware_id=%s reason=%q", app.ID, target, domain.KeyHint(req.Key), req.HardwareID, req.Reason))
	return nil
}

func (s *tenantService) ListLicenses(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.License, error) {
	if _, err := s.authorize(ctx, caller, applicationID); err != nil {
		return nil, err
	}
	return s.licenses.ListLicensesByApplication(ctx, applicationID)
}

func (s *tenantService) ListBans(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.BanRecord, error) {
	if _, err := s.authorize(ctx, caller, applicationID); err != nil {
		return nil, err
	}
	return s.bans.ListBansByApplication(ctx, applicationID)
}

// ResetHardware is the administrative override that clears a bound hardware id so the
// next validation can bind again.
func (s *tenantService) ResetHardware(ctx context.Context, caller domain.Caller, applicationID, key string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	app, err := s.authorize(ctx, caller, applicationID)
	if err != nil {
		return err
	}
	lic, err := s.licenses.GetLicenseByKey(ctx, key)
	if err != nil {
		return err
	}
	if lic.ApplicationID != app.ID {
		return fmt.Errorf("%w: license is not issued under application %s", domain.ErrNotFound, app.ID)
	}
	if err := s.licenses.ResetHardware(ctx, lic.ID); err != nil {
		return err
	}

	s.logger.Info("hardware binding reset", "tenant_id", caller.TenantID, "application_id", app.ID,
		"key_hint", domain.KeyHint(key), "previous_hardware_id", lic.BoundHardware())
	s.audit(ctx, caller, domain.AuditResetHardware, domain.ResourceLicense, lic.ID,
		fmt.Sprintf("application_id=%s key=%s previous_hardware_id=%s", app.ID, domain.KeyHint(key), lic.BoundHardware()))
	publish(ctx, s.events, s.logger, *newEvent(domain.EventHardwareReset, lic, lic.BoundHardware(), s.now()))
	return nil
}

func (s *tenantService) Stats(ctx context.Context, caller domain.Caller) (domain.Stats, error) {
	if caller.TenantID == "" {
		return domain.Stats{}, fmt.Errorf("%w: missing tenant", domain.ErrForbidden)
	}
	return s.licenses.TenantStats(ctx, caller.TenantID, s.now())
}

// ListAuditLogs returns the caller's own audit trail, newest first.
func (s *tenantService) ListAuditLogs(ctx context.Context, caller domain.Caller) ([]domain.AuditLog, error) {
	if caller.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", domain.ErrForbidden)
	}
	return s.audits.GetAuditLogs(ctx, caller.TenantID)
}
