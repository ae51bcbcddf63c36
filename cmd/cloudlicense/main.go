package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/cloudLicense/internal/adapters/api"
	"github.com/poyrazK/cloudLicense/internal/adapters/events"
	"github.com/poyrazK/cloudLicense/internal/adapters/memory"
	"github.com/poyrazK/cloudLicense/internal/adapters/repository"
	"github.com/poyrazK/cloudLicense/internal/config"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/keygen"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/poyrazK/cloudLicense/internal/core/services"
	"golang.org/x/sync/errgroup"
)

const limiterCleanupInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer srv.close()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.HTTPAddr, "error", err)
		os.Exit(1)
	}

	if err := srv.serve(ctx, ln); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// server owns every long-lived component of the process.
type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler http.Handler
	limiter *api.IPLimiter
	closers []func() error
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	s := &server{cfg: cfg, logger: logger}

	repo, err := s.openStore(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	backends := map[string]ports.Pinger{"store": repo}

	// Left as a nil interface when redis is not configured; the services skip publishing.
	var publisher ports.EventPublisher
	if cfg.RedisAddr != "" {
		redisPub := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		s.closers = append(s.closers, redisPub.Close)
		backends["redis"] = redisPub
		publisher = redisPub
		logger.Info("publishing license events", "addr", cfg.RedisAddr, "channel", events.Channel)
	}

	keys, err := keygen.New(cfg.KeyPrefix)
	if err != nil {
		s.close()
		return nil, err
	}

	validator := services.NewValidationEngine(repo, publisher, logger)
	tenants := services.NewTenantService(repo, repo, repo, repo, keys, publisher, logger)

	if cfg.RateLimitEnabled() {
		s.limiter = api.NewIPLimiter(cfg.ValidateRate, cfg.ValidateBurst, logger)
	}

	apiHandler := api.NewAPIHandler(api.Options{
		Validator: validator,
		Tenants:   tenants,
		APIKeys:   repo,
		Health:    services.NewHealthService(backends),
		Limiter:   s.limiter,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	s.handler = mux

	return s, nil
}

func (s *server) openStore(ctx context.Context) (ports.Repository, error) {
	if s.cfg.Storage == config.StorageMemory {
		store := memory.NewStore()
		if err := bootstrapAPIKey(ctx, store, s.cfg); err != nil {
			return nil, err
		}
		s.logger.Warn("using in-memory storage, data is lost on restart")
		return store, nil
	}

	db, err := sql.Open("pgx", s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	s.closers = append(s.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		s.logger.Warn("could not ping database", "error", err)
	}

	if s.cfg.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return nil, err
		}
		s.logger.Info("database migrations applied")
	}
	return repository.NewPostgresRepository(db), nil
}

// bootstrapAPIKey seeds one admin key so a fresh in-memory instance can be administered.
func bootstrapAPIKey(ctx context.Context, repo ports.APIKeyRepository, cfg *config.Config) error {
	if cfg.BootstrapAPIKey == "" {
		return nil
	}
	prefix := cfg.BootstrapAPIKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return repo.CreateAPIKey(ctx, &domain.APIKey{
		ID:        uuid.New().String(),
		TenantID:  cfg.BootstrapTenant,
		Name:      "bootstrap",
		KeyHash:   domain.HashAPIKey(cfg.BootstrapAPIKey),
		KeyPrefix: prefix,
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       2 * s.cfg.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("license API listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if s.limiter != nil {
		g.Go(func() error {
			s.limiter.RunCleanup(gctx, limiterCleanupInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down license API")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("failed to close resource", "error", err)
		}
	}
	s.closers = nil
}
