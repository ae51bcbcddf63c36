package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/keygen"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/poyrazK/cloudLicense/internal/infrastructure/metrics"
)

// action is the store mutation that accompanies a verdict.
type action int

const (
	actionNone action = iota
	actionMarkBanned
	actionMarkExpired
	actionBind
	actionTouch
)

// transition is the outcome of one step of the license state machine.
type transition struct {
	verdict domain.Verdict
	action  action
}

// decide evaluates, in this order: ban, stored terminal status, expiry, binding.
// Ban and expiry come before binding so a banned or expired key never acquires a binding.
func decide(lic *domain.License, banned bool, now time.Time, hardwareID string) transition {
	switch {
	case banned && lic.Status == domain.StatusActive:
		return transition{verdict: domain.VerdictBanned, action: actionMarkBanned}
	case banned, lic.Status == domain.StatusBanned:
		return transition{verdict: domain.VerdictBanned}
	case lic.Status == domain.StatusExpired:
		return transition{verdict: domain.VerdictExpired}
	case lic.IsExpiredAt(now):
		return transition{verdict: domain.VerdictExpired, action: actionMarkExpired}
	case !lic.IsBound():
		return transition{verdict: domain.VerdictValid, action: actionBind}
	case lic.BoundHardware() == hardwareID:
		return transition{verdict: domain.VerdictValid, action: actionTouch}
	default:
		return transition{verdict: domain.VerdictHWIDMismatch}
	}
}

// ValidationEngine decides ALLOW/DENY for a key and hardware identity and applies the
// state mutation that goes with the verdict.
type ValidationEngine struct {
	licenses ports.LicenseRepository
	events   ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewValidationEngine(licenses ports.LicenseRepository, events ports.EventPublisher, logger *slog.Logger) *ValidationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationEngine{
		licenses: licenses,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate never returns an error for business outcomes. A non-nil error always wraps
// domain.ErrStoreUnavailable and must not be read as a verdict.
func (e *ValidationEngine) Validate(ctx context.Context, req domain.ValidateRequest) (domain.ValidateResult, error) {
	start := time.Now()
	defer func() { metrics.ValidationDuration.Observe(time.Since(start).Seconds()) }()

	if !keygen.IsWellFormed(req.Key) {
		return e.finish(domain.ValidateResult{Verdict: domain.VerdictInvalidKey}), nil
	}

	var (
		result domain.ValidateResult
		event  *domain.LicenseEvent
	)

	err := e.licenses.WithLicense(ctx, req.Key, func(ctx context.Context, tx ports.LicenseTx) error {
		result, event = domain.ValidateResult{}, nil

		lic := tx.License()
		if lic.ApplicationID != req.ApplicationID {
			result.Verdict = domain.VerdictInvalidKey
			return nil
		}

		banned, err := tx.IsBanned(ctx)
		if err != nil {
			return err
		}

		now := e.now()
		t := decide(lic, banned, now, req.HardwareID)
		expiresAt := lic.ExpiresAt
		result = domain.ValidateResult{Verdict: t.verdict, ExpiresAt: &expiresAt}

		switch t.action {
		case actionMarkBanned:
			if err := tx.MarkBanned(ctx); err != nil {
				return err
			}
			event = newEvent(domain.EventLicenseBanned, lic, "", now)
		case actionMarkExpired:
			if err := tx.MarkExpired(ctx); err != nil {
				return err
			}
			event = newEvent(domain.EventLicenseExpired, lic, "", now)
		case actionBind:
			bound, err := tx.BindHardware(ctx, req.HardwareID)
			if err != nil {
				return err
			}
			if !bound {
				result.Verdict = domain.VerdictHWIDMismatch
				return nil
			}
			if err := tx.TouchLastValidated(ctx, now); err != nil {
				return err
			}
			event = newEvent(domain.EventLicenseBound, lic, req.HardwareID, now)
		case actionTouch:
			if err := tx.TouchLastValidated(ctx, now); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return e.finish(domain.ValidateResult{Verdict: domain.VerdictInvalidKey}), nil
	}
	if err != nil {
		metrics.ValidationsTotal.WithLabelValues("error").Inc()
		e.logger.Error("license validation failed", "key_hint", domain.KeyHint(req.Key), "error", err)
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return domain.ValidateResult{}, fmt.Errorf("validate license: %w", err)
	}

	if event != nil {
		metrics.LicenseTransitions.WithLabelValues(string(event.Type)).Inc()
		publish(ctx, e.events, e.logger, *event)
	}

	e.logger.Debug("license validated", "key_hint", domain.KeyHint(req.Key), "verdict", result.Verdict)
	return e.finish(result), nil
}

func (e *ValidationEngine) finish(result domain.ValidateResult) domain.ValidateResult {
	metrics.ValidationsTotal.WithLabelValues(string(result.Verdict)).Inc()
	return result
}

func newEvent(t domain.EventType, lic *domain.License, hardwareID string, at time.Time) *domain.LicenseEvent {
	return &domain.LicenseEvent{
		Type:          t,
		ApplicationID: lic.ApplicationID,
		LicenseID:     lic.ID,
		KeyHint:       domain.KeyHint(lic.Key),
		HardwareID:    hardwareID,
		At:            at,
	}
}

// publish is best-effort: the mutation is already committed.
func publish(ctx context.Context, events ports.EventPublisher, logger *slog.Logger, event domain.LicenseEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		logger.Warn("failed to publish license event", "type", event.Type, "license_id", event.LicenseID, "error", err)
	}
}
