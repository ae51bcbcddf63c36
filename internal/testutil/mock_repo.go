package testutil

import (
	"context"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockAPIKeyRepo implements ports.APIKeyRepository.
type MockAPIKeyRepo struct {
	mock.Mock
}

func (m *MockAPIKeyRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockAPIKeyRepo) ListAPIKeys(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	args := m.Called(tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepo) DeleteAPIKey(ctx context.Context, tenantID string, id string) error {
	args := m.Called(tenantID, id)
	return args.Error(0)
}

// MockValidationService implements ports.ValidationService.
type MockValidationService struct {
	mock.Mock
}

func (m *MockValidationService) Validate(ctx context.Context, req domain.ValidateRequest) (domain.ValidateResult, error) {
	args := m.Called(req)
	return args.Get(0).(domain.ValidateResult), args.Error(1)
}

// MockTenantService implements ports.TenantService.
type MockTenantService struct {
	mock.Mock
}

func (m *MockTenantService) CreateApplication(ctx context.Context, caller domain.Caller, name, version string) (*domain.Application, error) {
	args := m.Called(caller, name, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockTenantService) ListApplications(ctx context.Context, caller domain.Caller) ([]domain.Application, error) {
	args := m.Called(caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Application), args.Error(1)
}

func (m *MockTenantService) Generate(ctx context.Context, caller domain.Caller, req domain.GenerateRequest) (*domain.License, error) {
	args := m.Called(caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockTenantService) Ban(ctx context.Context, caller domain.Caller, req domain.BanRequest) error {
	args := m.Called(caller, req)
	return args.Error(0)
}

func (m *MockTenantService) ListLicenses(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.License, error) {
	args := m.Called(caller, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.License), args.Error(1)
}

func (m *MockTenantService) ListBans(ctx context.Context, caller domain.Caller, applicationID string) ([]domain.BanRecord, error) {
	args := m.Called(caller, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BanRecord), args.Error(1)
}

func (m *MockTenantService) ResetHardware(ctx context.Context, caller domain.Caller, applicationID, key string) error {
	args := m.Called(caller, applicationID, key)
	return args.Error(0)
}

func (m *MockTenantService) Stats(ctx context.Context, caller domain.Caller) (domain.Stats, error) {
	args := m.Called(caller)
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *MockTenantService) ListAuditLogs(ctx context.Context, caller domain.Caller) ([]domain.AuditLog, error) {
	args := m.Called(caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLog), args.Error(1)
}

// StaticHealth implements ports.HealthChecker with fixed results.
type StaticHealth map[string]error

func (s StaticHealth) HealthCheck(ctx context.Context) map[string]error {
	return s
}
