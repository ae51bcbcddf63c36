package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("cloudlicense_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("failed to open db: %s", err)
	}

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("failed to apply migrations: %s", err)
	}

	return db, func() {
		db.Close()
		pgContainer.Terminate(ctx)
	}
}

func TestPostgresRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	app := &domain.Application{ID: "app-1", OwnerID: "tenant-1", Name: "Editor", Secret: "s", Version: "1.0", CreatedAt: now}
	if err := repo.CreateApplication(ctx, app); err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}
	dup := *app
	dup.ID = "app-2"
	if err := repo.CreateApplication(ctx, &dup); !errors.Is(err, domain.ErrApplicationExists) {
		t.Errorf("expected ErrApplicationExists, got %v", err)
	}

	lic := &domain.License{
		ID:            "lic-1",
		Key:           "ECL-AAAABBBBCCCCDDDD",
		ApplicationID: app.ID,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.AddDate(0, 0, 30),
	}
	if err := repo.CreateLicense(ctx, lic); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}
	again := *lic
	again.ID = "lic-2"
	if err := repo.CreateLicense(ctx, &again); !errors.Is(err, domain.ErrKeyConflict) {
		t.Errorf("expected ErrKeyConflict, got %v", err)
	}

	// Two validations race on the unbound license; the row lock lets exactly one bind.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for _, hwid := range []string{"hw-a", "hw-b"} {
		wg.Add(1)
		go func(hwid string) {
			defer wg.Done()
			err := repo.WithLicense(ctx, lic.Key, func(ctx context.Context, tx ports.LicenseTx) error {
				ok, err := tx.BindHardware(ctx, hwid)
				if ok {
					mu.Lock()
					winners = append(winners, hwid)
					mu.Unlock()
				}
				return err
			})
			if err != nil {
				t.Errorf("WithLicense failed: %v", err)
			}
		}(hwid)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one bind, got %v", winners)
	}
	stored, err := repo.GetLicenseByKey(ctx, lic.Key)
	if err != nil {
		t.Fatalf("GetLicenseByKey failed: %v", err)
	}
	if stored.BoundHardware() != winners[0] {
		t.Errorf("expected %s bound, got %s", winners[0], stored.BoundHardware())
	}

	hwid := winners[0]
	if err := repo.AddBan(ctx, &domain.BanRecord{ID: "ban-1", ApplicationID: app.ID, HardwareID: &hwid, Reason: "resale", CreatedAt: now}); err != nil {
		t.Fatalf("AddBan failed: %v", err)
	}
	banned, err := repo.IsBanned(ctx, app.ID, lic.Key, stored.BoundHardware())
	if err != nil || !banned {
		t.Errorf("expected hardware ban to match, got %v %v", banned, err)
	}
	banned, err = repo.IsBanned(ctx, app.ID, lic.Key, "")
	if err != nil || banned {
		t.Errorf("unbound lookup must not match a hardware ban, got %v %v", banned, err)
	}

	// A validation must fit in one pooled connection.
	db.SetMaxOpenConns(1)
	lockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = repo.WithLicense(lockCtx, lic.Key, func(ctx context.Context, tx ports.LicenseTx) error {
		banned, err := tx.IsBanned(ctx)
		if err != nil || !banned {
			t.Errorf("expected ban check on the locked row to match, got %v %v", banned, err)
		}
		return err
	})
	cancel()
	if err != nil {
		t.Fatalf("WithLicense with a single connection failed: %v", err)
	}
	db.SetMaxOpenConns(0)

	if err := repo.MarkLicenseBanned(ctx, lic.ID); err != nil {
		t.Fatalf("MarkLicenseBanned failed: %v", err)
	}
	err = repo.WithLicense(ctx, lic.Key, func(ctx context.Context, tx ports.LicenseTx) error {
		return tx.MarkExpired(ctx)
	})
	if err != nil {
		t.Fatalf("WithLicense failed: %v", err)
	}
	stored, _ = repo.GetLicenseByKey(ctx, lic.Key)
	if stored.Status != domain.StatusBanned {
		t.Errorf("banned must stay terminal, got %s", stored.Status)
	}

	stats, err := repo.TenantStats(ctx, "tenant-1", now)
	if err != nil {
		t.Fatalf("TenantStats failed: %v", err)
	}
	if stats != (domain.Stats{Applications: 1, Licenses: 1, Banned: 1}) {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := repo.ResetHardware(ctx, lic.ID); err != nil {
		t.Errorf("ResetHardware failed: %v", err)
	}
	bans, err := repo.ListBansByApplication(ctx, app.ID)
	if err != nil || len(bans) != 1 {
		t.Errorf("unexpected bans %+v, err %v", bans, err)
	}

	entry := &domain.AuditLog{ID: "audit-1", TenantID: "tenant-1", Action: domain.AuditResetHardware,
		ResourceType: domain.ResourceLicense, ResourceID: lic.ID, CreatedAt: now}
	if err := repo.SaveAuditLog(ctx, entry); err != nil {
		t.Fatalf("SaveAuditLog failed: %v", err)
	}
	logs, err := repo.GetAuditLogs(ctx, "tenant-1")
	if err != nil || len(logs) != 1 || logs[0].ResourceID != lic.ID {
		t.Errorf("unexpected audit logs %+v, err %v", logs, err)
	}
}
