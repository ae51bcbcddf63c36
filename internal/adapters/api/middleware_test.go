package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	mockRepo := &testutil.MockAPIKeyRepo{}
	middleware := AuthMiddleware(mockRepo)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFrom(r.Context())
		w.Header().Set("X-Tenant-ID", caller.TenantID)
		w.Header().Set("X-Role", string(caller.Role))
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(rawKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/applications", nil)
		if rawKey != "" {
			req.Header.Set("Authorization", "Bearer "+rawKey)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Missing Authorization Header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	})

	t.Run("Unknown Key", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", domain.HashAPIKey("cl_unknown")).Return(nil, domain.ErrNotFound).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("cl_unknown").Code)
	})

	t.Run("Inactive Key", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", domain.HashAPIKey("cl_inactive")).
			Return(&domain.APIKey{TenantID: "t1", Role: domain.RoleAdmin, Active: false}, nil).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("cl_inactive").Code)
	})

	t.Run("Expired Key", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		mockRepo.On("GetAPIKeyByHash", domain.HashAPIKey("cl_expired")).
			Return(&domain.APIKey{TenantID: "t1", Role: domain.RoleAdmin, Active: true, ExpiresAt: &past}, nil).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("cl_expired").Code)
	})

	t.Run("Store Failure", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", domain.HashAPIKey("cl_down")).
			Return(nil, errors.Join(domain.ErrStoreUnavailable, errors.New("dial tcp"))).Once()
		assert.Equal(t, http.StatusServiceUnavailable, serve("cl_down").Code)
	})

	t.Run("Valid Key", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", domain.HashAPIKey("cl_valid")).
			Return(&domain.APIKey{TenantID: "t1", Role: domain.RoleReader, Active: true}, nil).Once()
		rr := serve("cl_valid")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "t1", rr.Header().Get("X-Tenant-ID"))
		assert.Equal(t, "reader", rr.Header().Get("X-Role"))
	})

	mockRepo.AssertExpectations(t)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		caller *domain.Caller
		want   int
	}{
		{"admin allowed", &domain.Caller{TenantID: "t1", Role: domain.RoleAdmin}, http.StatusOK},
		{"reader rejected", &domain.Caller{TenantID: "t1", Role: domain.RoleReader}, http.StatusForbidden},
		{"no caller", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/applications", nil)
			if tt.caller != nil {
				req = req.WithContext(withCaller(req.Context(), *tt.caller))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
