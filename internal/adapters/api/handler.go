package api

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Options wires the handler to the core services.
type Options struct {
	Validator ports.ValidationService
	Tenants   ports.TenantService
	APIKeys   ports.APIKeyRepository
	Health    ports.HealthChecker
	Limiter   *IPLimiter // nil disables rate limiting of validate
	Logger    *slog.Logger
}

// APIHandler handles HTTP requests for license validation and tenant administration.
type APIHandler struct {
	validator ports.ValidationService
	tenants   ports.TenantService
	apiKeys   ports.APIKeyRepository
	health    ports.HealthChecker
	limiter   *IPLimiter
	logger    *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(opts Options) *APIHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		validator: opts.Validator,
		tenants:   opts.Tenants,
		apiKeys:   opts.APIKeys,
		health:    opts.Health,
		limiter:   opts.Limiter,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	var validate http.Handler = http.HandlerFunc(h.Validate)
	if h.limiter != nil {
		validate = h.limiter.Handler(validate)
	}
	mux.Handle("POST /api/v1/validate", validate)

	// Middleware
	auth := AuthMiddleware(h.apiKeys)
	admin := RequireRole(domain.RoleAdmin)

	// Protected Routes (scoped by tenant from the API key)
	mux.Handle("POST /api/v1/applications", auth(admin(http.HandlerFunc(h.CreateApplication))))
	mux.Handle("GET /api/v1/applications", auth(http.HandlerFunc(h.ListApplications)))
	mux.Handle("POST /api/v1/applications/{id}/licenses", auth(admin(http.HandlerFunc(h.GenerateLicense))))
	mux.Handle("GET /api/v1/applications/{id}/licenses", auth(http.HandlerFunc(h.ListLicenses)))
	mux.Handle("POST /api/v1/applications/{id}/licenses/{key}/reset-hwid", auth(admin(http.HandlerFunc(h.ResetHardware))))
	mux.Handle("POST /api/v1/applications/{id}/bans", auth(admin(http.HandlerFunc(h.Ban))))
	mux.Handle("GET /api/v1/applications/{id}/bans", auth(http.HandlerFunc(h.ListBans)))
	mux.Handle("GET /api/v1/stats", auth(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/v1/audit-logs", auth(http.HandlerFunc(h.ListAuditLogs)))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.health.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"details": details,
	})
}

// Validate is called by end-user clients. Business outcomes are always 200 with a verdict.
func (h *APIHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := domain.ValidateHardwareID(req.HardwareID); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.validator.Validate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createApplicationRequest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (h *APIHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createApplicationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	app, err := h.tenants.CreateApplication(r.Context(), caller, req.Name, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *APIHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	apps, err := h.tenants.ListApplications(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

type generateRequest struct {
	OwnerID      string `json:"owner_id,omitempty"`
	DurationDays int    `json:"duration_days"`
}

type generateResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *APIHandler) GenerateLicense(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lic, err := h.tenants.Generate(r.Context(), caller, domain.GenerateRequest{
		ApplicationID: r.PathValue("id"),
		OwnerID:       req.OwnerID,
		DurationDays:  req.DurationDays,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, generateResponse{ID: lic.ID, Key: lic.Key, ExpiresAt: lic.ExpiresAt})
}

func (h *APIHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	licenses, err := h.tenants.ListLicenses(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, licenses)
}

type banRequest struct {
	Key        string `json:"key,omitempty"`
	HardwareID string `json:"hardware_id,omitempty"`
	Reason     string `json:"reason"`
}

func (h *APIHandler) Ban(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req banRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.tenants.Ban(r.Context(), caller, domain.BanRequest{
		ApplicationID: r.PathValue("id"),
		Key:           req.Key,
		HardwareID:    req.HardwareID,
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *APIHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bans, err := h.tenants.ListBans(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

func (h *APIHandler) ResetHardware(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.tenants.ResetHardware(r.Context(), caller, r.PathValue("id"), r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	stats, err := h.tenants.Stats(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	logs, err := h.tenants.ListAuditLogs(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *APIHandler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		h.logger.Warn("missing tenant context", "path", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing tenant context", Code: "UNAUTHORIZED"})
	}
	return caller, ok
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error(), Code: "BAD_REQUEST"})
		return false
	}
	return true
}

// statusFor maps domain sentinels to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidDuration):
		return http.StatusBadRequest, "INVALID_DURATION"
	case errors.Is(err, domain.ErrInvalidHardwareID):
		return http.StatusBadRequest, "INVALID_HARDWARE_ID"
	case errors.Is(err, domain.ErrInvalidBan):
		return http.StatusBadRequest, "INVALID_BAN"
	case errors.Is(err, domain.ErrInvalidApplication):
		return http.StatusBadRequest, "INVALID_APPLICATION"
	case errors.Is(err, domain.ErrApplicationNotFound):
		return http.StatusNotFound, "APPLICATION_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrApplicationExists):
		return http.StatusConflict, "APPLICATION_EXISTS"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "store unavailable, retry later"
	case http.StatusInternalServerError:
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
