package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements ports.Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func closeRows(rows *sql.Rows) {
	if errClose := rows.Close(); errClose != nil {
		log.Printf("failed to close rows: %v", errClose)
	}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- applications ---

func (r *PostgresRepository) CreateApplication(ctx context.Context, app *domain.Application) error {
	query := `INSERT INTO applications (id, owner_id, name, secret, version, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, app.ID, app.OwnerID, app.Name, app.Secret, app.Version, app.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrApplicationExists, app.Name)
	}
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRepository) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	query := `SELECT id, owner_id, name, secret, version, created_at FROM applications WHERE id = $1`
	var app domain.Application
	errRow := r.db.QueryRowContext(ctx, query, id).Scan(&app.ID, &app.OwnerID, &app.Name, &app.Secret, &app.Version, &app.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if errRow != nil {
		return nil, storeErr(errRow)
	}
	return &app, nil
}

func (r *PostgresRepository) ListApplicationsByOwner(ctx context.Context, ownerID string) ([]domain.Application, error) {
	query := `SELECT id, owner_id, name, secret, version, created_at FROM applications WHERE owner_id = $1 ORDER BY name`
	rows, errQuery := r.db.QueryContext(ctx, query, ownerID)
	if errQuery != nil {
		return nil, storeErr(errQuery)
	}
	defer closeRows(rows)

	apps := []domain.Application{}
	for rows.Next() {
		var app domain.Application
		if errScan := rows.Scan(&app.ID, &app.OwnerID, &app.Name, &app.Secret, &app.Version, &app.CreatedAt); errScan != nil {
			return nil, storeErr(errScan)
		}
		apps = append(apps, app)
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, storeErr(errRows)
	}
	return apps, nil
}

// --- licenses ---

const licenseColumns = `id, license_key, application_id, owner_id, hardware_id, status, created_at, expires_at, last_validated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*domain.License, error) {
	var (
		lic             domain.License
		ownerID, hwid   sql.NullString
		lastValidatedAt sql.NullTime
	)
	if err := row.Scan(&lic.ID, &lic.Key, &lic.ApplicationID, &ownerID, &hwid, &lic.Status,
		&lic.CreatedAt, &lic.ExpiresAt, &lastValidatedAt); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		lic.OwnerID = &ownerID.String
	}
	if hwid.Valid {
		lic.HardwareID = &hwid.String
	}
	if lastValidatedAt.Valid {
		lic.LastValidatedAt = &lastValidatedAt.Time
	}
	return &lic, nil
}

func (r *PostgresRepository) CreateLicense(ctx context.Context, license *domain.License) error {
	query := `INSERT INTO licenses (id, license_key, application_id, owner_id, hardware_id, status, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, license.ID, license.Key, license.ApplicationID, license.OwnerID,
		license.HardwareID, string(license.Status), license.CreatedAt, license.ExpiresAt)
	if isUniqueViolation(err) {
		return domain.ErrKeyConflict
	}
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRepository) GetLicenseByKey(ctx context.Context, key string) (*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`
	lic, err := scanLicense(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return lic, nil
}

func (r *PostgresRepository) ListLicensesByApplication(ctx context.Context, applicationID string) ([]domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE application_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, applicationID)
	if errQuery != nil {
		return nil, storeErr(errQuery)
	}
	defer closeRows(rows)

	licenses := []domain.License{}
	for rows.Next() {
		lic, errScan := scanLicense(rows)
		if errScan != nil {
			return nil, storeErr(errScan)
		}
		licenses = append(licenses, *lic)
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, storeErr(errRows)
	}
	return licenses, nil
}

// pgLicenseTx mutates a row locked with SELECT ... FOR UPDATE.
type pgLicenseTx struct {
	tx  *sql.Tx
	lic domain.License
}

func (t *pgLicenseTx) License() *domain.License {
	lic := t.lic
	return &lic
}

func (t *pgLicenseTx) BindHardware(ctx context.Context, hardwareID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE licenses SET hardware_id = $1 WHERE id = $2 AND hardware_id IS NULL`, hardwareID, t.lic.ID)
	if err != nil {
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	if n == 0 {
		return false, nil
	}
	hwid := hardwareID
	t.lic.HardwareID = &hwid
	return true, nil
}

func (t *pgLicenseTx) TouchLastValidated(ctx context.Context, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE licenses SET last_validated_at = $1 WHERE id = $2`, at, t.lic.ID); err != nil {
		return storeErr(err)
	}
	ts := at
	t.lic.LastValidatedAt = &ts
	return nil
}

func (t *pgLicenseTx) setTerminal(ctx context.Context, status domain.LicenseStatus) error {
	query := `UPDATE licenses SET status = $1 WHERE id = $2 AND status = 'active'`
	res, err := t.tx.ExecContext(ctx, query, string(status), t.lic.ID)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n > 0 {
		t.lic.Status = status
	}
	return nil
}

func (t *pgLicenseTx) MarkExpired(ctx context.Context) error {
	return t.setTerminal(ctx, domain.StatusExpired)
}

func (t *pgLicenseTx) MarkBanned(ctx context.Context) error {
	return t.setTerminal(ctx, domain.StatusBanned)
}

// IsBanned runs on the transaction so a validation never holds a second pool connection.
func (t *pgLicenseTx) IsBanned(ctx context.Context) (bool, error) {
	return isBanned(ctx, t.tx, t.lic.ApplicationID, t.lic.Key, t.lic.BoundHardware())
}

func (r *PostgresRepository) WithLicense(ctx context.Context, key string, fn func(ctx context.Context, tx ports.LicenseTx) error) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return storeErr(errTx)
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1 FOR UPDATE`
	lic, err := scanLicense(tx.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return storeErr(err)
	}

	if err := fn(ctx, &pgLicenseTx{tx: tx, lic: *lic}); err != nil {
		return err
	}
	if errCommit := tx.Commit(); errCommit != nil {
		return storeErr(errCommit)
	}
	return nil
}

func (r *PostgresRepository) MarkLicenseBanned(ctx context.Context, licenseID string) error {
	query := `UPDATE licenses SET status = 'banned' WHERE id = $1 AND status = 'active'`
	if _, err := r.db.ExecContext(ctx, query, licenseID); err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRepository) ResetHardware(ctx context.Context, licenseID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE licenses SET hardware_id = NULL WHERE id = $1`, licenseID)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) TenantStats(ctx context.Context, ownerID string, now time.Time) (domain.Stats, error) {
	query := `SELECT
				(SELECT COUNT(*) FROM applications WHERE owner_id = $1),
				COUNT(l.id),
				COUNT(l.id) FILTER (WHERE l.status = 'active' AND l.expires_at > $2),
				COUNT(l.id) FILTER (WHERE l.status = 'active' AND l.expires_at > $2 AND l.hardware_id IS NOT NULL),
				COUNT(l.id) FILTER (WHERE l.status = 'expired' OR (l.status = 'active' AND l.expires_at <= $2)),
				COUNT(l.id) FILTER (WHERE l.status = 'banned')
			  FROM licenses l JOIN applications a ON a.id = l.application_id
			  WHERE a.owner_id = $1`
	var s domain.Stats
	errRow := r.db.QueryRowContext(ctx, query, ownerID, now).Scan(&s.Applications, &s.Licenses, &s.Active, &s.Bound, &s.Expired, &s.Banned)
	if errRow != nil {
		return domain.Stats{}, storeErr(errRow)
	}
	return s, nil
}

// --- bans ---

func (r *PostgresRepository) AddBan(ctx context.Context, record *domain.BanRecord) error {
	query := `INSERT INTO license_bans (id, application_id, license_key, hardware_id, reason, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, record.ID, record.ApplicationID, record.LicenseKey, record.HardwareID, record.Reason, record.CreatedAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isBanned(ctx context.Context, q rowQuerier, applicationID, key, hardwareID string) (bool, error) {
	query := `SELECT EXISTS (
				SELECT 1 FROM license_bans
				WHERE application_id = $1 AND (license_key = $2 OR ($3::text <> '' AND hardware_id = $3))
			  )`
	var banned bool
	if errRow := q.QueryRowContext(ctx, query, applicationID, key, hardwareID).Scan(&banned); errRow != nil {
		return false, storeErr(errRow)
	}
	return banned, nil
}

func (r *PostgresRepository) IsBanned(ctx context.Context, applicationID, key, hardwareID string) (bool, error) {
	return isBanned(ctx, r.db, applicationID, key, hardwareID)
}

func (r *PostgresRepository) ListBansByApplication(ctx context.Context, applicationID string) ([]domain.BanRecord, error) {
	query := `SELECT id, application_id, license_key, hardware_id, reason, created_at FROM license_bans
			  WHERE application_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, applicationID)
	if errQuery != nil {
		return nil, storeErr(errQuery)
	}
	defer closeRows(rows)

	bans := []domain.BanRecord{}
	for rows.Next() {
		var (
			b         domain.BanRecord
			key, hwid sql.NullString
		)
		if errScan := rows.Scan(&b.ID, &b.ApplicationID, &key, &hwid, &b.Reason, &b.CreatedAt); errScan != nil {
			return nil, storeErr(errScan)
		}
		if key.Valid {
			b.LicenseKey = &key.String
		}
		if hwid.Valid {
			b.HardwareID = &hwid.String
		}
		bans = append(bans, b)
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, storeErr(errRows)
	}
	return bans, nil
}

// --- api keys ---

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, tenant_id, name, key_hash, key_prefix, role, active, created_at, expires_at
			  FROM api_keys WHERE key_hash = $1`
	var (
		k         domain.APIKey
		expiresAt sql.NullTime
	)
	errRow := r.db.QueryRowContext(ctx, query, keyHash).Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if errRow != nil {
		return nil, storeErr(errRow)
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, role, active, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	query := `SELECT id, tenant_id, name, key_hash, key_prefix, role, active, created_at, expires_at
			  FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, tenantID)
	if errQuery != nil {
		return nil, storeErr(errQuery)
	}
	defer closeRows(rows)

	keys := []domain.APIKey{}
	for rows.Next() {
		var (
			k         domain.APIKey
			expiresAt sql.NullTime
		)
		if errScan := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt); errScan != nil {
			return nil, storeErr(errScan)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, storeErr(errRows)
	}
	return keys, nil
}

func (r *PostgresRepository) DeleteAPIKey(ctx context.Context, tenantID string, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- audit logs ---

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, log *domain.AuditLog) error {
	query := `INSERT INTO audit_logs (id, tenant_id, action, resource_type, resource_id, details, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, log.ID, log.TenantID, log.Action, log.ResourceType, log.ResourceID, log.Details, log.CreatedAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, tenantID string) ([]domain.AuditLog, error) {
	query := `SELECT id, tenant_id, action, resource_type, resource_id, details, created_at FROM audit_logs
			  WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, tenantID)
	if errQuery != nil {
		return nil, storeErr(errQuery)
	}
	defer closeRows(rows)

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if errScan := rows.Scan(&l.ID, &l.TenantID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.CreatedAt); errScan != nil {
			return nil, storeErr(errScan)
		}
		logs = append(logs, l)
	}
	if errRows := rows.Err(); errRows != nil {
		return nil, storeErr(errRows)
	}
	return logs, nil
}
