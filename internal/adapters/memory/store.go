// Package memory provides an in-process implementation of every repository port. It backs
// the "memory" storage mode and the service tests.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
)

// lockShards is the number of mutexes license keys are hashed onto.
const lockShards = 256

// Store keeps all tables in maps guarded by mu. Every license mutation also holds the
// shard mutex of its key, always taken before mu.
type Store struct {
	mu       sync.RWMutex
	apps     map[string]domain.Application
	licenses map[string]domain.License // by id
	keys     map[string]string         // license key -> id
	bans     []domain.BanRecord
	apiKeys  map[string]domain.APIKey // by id
	audit    []domain.AuditLog

	locks [lockShards]sync.Mutex
}

var _ ports.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		apps:     make(map[string]domain.Application),
		licenses: make(map[string]domain.License),
		keys:     make(map[string]string),
		apiKeys:  make(map[string]domain.APIKey),
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key)) // #nosec G104
	return &s.locks[h.Sum32()%lockShards]
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- applications ---

func (s *Store) CreateApplication(ctx context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app.ID]; ok {
		return fmt.Errorf("%w: id %s", domain.ErrApplicationExists, app.ID)
	}
	for _, existing := range s.apps {
		if existing.OwnerID == app.OwnerID && existing.Name == app.Name {
			return fmt.Errorf("%w: %s", domain.ErrApplicationExists, app.Name)
		}
	}
	s.apps[app.ID] = *app
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &app, nil
}

func (s *Store) ListApplicationsByOwner(ctx context.Context, ownerID string) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Application{}
	for _, app := range s.apps {
		if app.OwnerID == ownerID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- licenses ---

func (s *Store) CreateLicense(ctx context.Context, license *domain.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[license.Key]; ok {
		return domain.ErrKeyConflict
	}
	if _, ok := s.apps[license.ApplicationID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrApplicationNotFound, license.ApplicationID)
	}
	s.licenses[license.ID] = *license
	s.keys[license.Key] = license.ID
	return nil
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*domain.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keys[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	lic := s.licenses[id]
	return &lic, nil
}

func (s *Store) ListLicensesByApplication(ctx context.Context, applicationID string) ([]domain.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.License{}
	for _, lic := range s.licenses {
		if lic.ApplicationID == applicationID {
			out = append(out, lic)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// licenseTx stages mutations on a copy that is written back on commit.
type licenseTx struct {
	store  *Store
	staged domain.License
	dirty  bool
}

func (t *licenseTx) License() *domain.License {
	lic := t.staged
	return &lic
}

func (t *licenseTx) BindHardware(ctx context.Context, hardwareID string) (bool, error) {
	if t.staged.HardwareID != nil {
		return false, nil
	}
	hwid := hardwareID
	t.staged.HardwareID = &hwid
	t.dirty = true
	return true, nil
}

func (t *licenseTx) TouchLastValidated(ctx context.Context, at time.Time) error {
	ts := at
	t.staged.LastValidatedAt = &ts
	t.dirty = true
	return nil
}

func (t *licenseTx) MarkExpired(ctx context.Context) error {
	if t.staged.Status == domain.StatusActive {
		t.staged.Status = domain.StatusExpired
		t.dirty = true
	}
	return nil
}

func (t *licenseTx) MarkBanned(ctx context.Context) error {
	if t.staged.Status == domain.StatusActive {
		t.staged.Status = domain.StatusBanned
		t.dirty = true
	}
	return nil
}

func (t *licenseTx) IsBanned(ctx context.Context) (bool, error) {
	return t.store.IsBanned(ctx, t.staged.ApplicationID, t.staged.Key, t.staged.BoundHardware())
}

func (s *Store) WithLicense(ctx context.Context, key string, fn func(ctx context.Context, tx ports.LicenseTx) error) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	id, ok := s.keys[key]
	lic := s.licenses[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	tx := &licenseTx{store: s, staged: lic}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[id] = tx.staged
	return nil
}

// mutateLicense applies fn to the stored row under the license's shard lock.
func (s *Store) mutateLicense(licenseID string, fn func(lic *domain.License)) error {
	s.mu.RLock()
	lic, ok := s.licenses[licenseID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	lock := s.lockFor(lic.Key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	lic = s.licenses[licenseID]
	fn(&lic)
	s.licenses[licenseID] = lic
	return nil
}

func (s *Store) MarkLicenseBanned(ctx context.Context, licenseID string) error {
	return s.mutateLicense(licenseID, func(lic *domain.License) {
		if lic.Status == domain.StatusActive {
			lic.Status = domain.StatusBanned
		}
	})
}

func (s *Store) ResetHardware(ctx context.Context, licenseID string) error {
	return s.mutateLicense(licenseID, func(lic *domain.License) {
		lic.HardwareID = nil
	})
}

func (s *Store) TenantStats(ctx context.Context, ownerID string, now time.Time) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.Stats
	owned := make(map[string]struct{})
	for id, app := range s.apps {
		if app.OwnerID == ownerID {
			owned[id] = struct{}{}
			stats.Applications++
		}
	}
	for _, lic := range s.licenses {
		if _, ok := owned[lic.ApplicationID]; !ok {
			continue
		}
		stats.Licenses++
		switch lic.State(now) {
		case domain.StateActiveBound:
			stats.Active++
			stats.Bound++
		case domain.StateActiveUnbound:
			stats.Active++
		case domain.StateExpired:
			stats.Expired++
		case domain.StateBanned:
			stats.Banned++
		}
	}
	return stats, nil
}

// --- bans ---

func (s *Store) AddBan(ctx context.Context, record *domain.BanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans = append(s.bans, *record)
	return nil
}

func (s *Store) IsBanned(ctx context.Context, applicationID, key, hardwareID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.bans {
		if s.bans[i].ApplicationID == applicationID && s.bans[i].Matches(key, hardwareID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListBansByApplication(ctx context.Context, applicationID string) ([]domain.BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.BanRecord{}
	for i := len(s.bans) - 1; i >= 0; i-- {
		if s.bans[i].ApplicationID == applicationID {
			out = append(out, s.bans[i])
		}
	}
	return out, nil
}

// --- api keys ---

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.apiKeys {
		if k.KeyHash == keyHash {
			found := k
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[key.ID] = *key
	return nil
}

func (s *Store) ListAPIKeys(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.APIKey{}
	for _, k := range s.apiKeys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, tenantID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok || k.TenantID != tenantID {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

// --- audit logs ---

func (s *Store) SaveAuditLog(ctx context.Context, log *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *log)
	return nil
}

func (s *Store) GetAuditLogs(ctx context.Context, tenantID string) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.AuditLog{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].TenantID == tenantID {
			out = append(out, s.audit[i])
		}
	}
	return out, nil
}
