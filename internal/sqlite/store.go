// Package sqlite provides a single-node licenses.Store backed by an embedded
// SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Times are stored as fixed-width UTC text so that lexical order is
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

var _ licenses.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes every transaction, including the
	// check-and-append in AppendActivation.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	slog.Info("SQLite license store initialized", "path", path)
	return store, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS licenses (
			license_key TEXT PRIMARY KEY,
			customer_email TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			purchase_date TEXT NOT NULL,
			expiry_date TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			max_activations INTEGER NOT NULL CHECK (max_activations >= 1),
			activation_count INTEGER NOT NULL DEFAULT 0 CHECK (activation_count <= max_activations),
			plan_type TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_licenses_purchase_date ON licenses(purchase_date);

		CREATE TABLE IF NOT EXISTS device_activations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			license_key TEXT NOT NULL REFERENCES licenses(license_key) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			device_info TEXT NOT NULL DEFAULT '{}',
			activation_date TEXT NOT NULL,
			last_validation TEXT NOT NULL,
			UNIQUE (license_key, device_id)
		);

		CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			license_key TEXT NOT NULL,
			device_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_events_license_key ON usage_events(license_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateLicense(ctx context.Context, license *licenses.License) error {
	query := `
		INSERT INTO licenses (license_key, customer_email, customer_name, purchase_date, expiry_date,
			is_active, max_activations, plan_type, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		license.Key,
		license.CustomerEmail,
		license.CustomerName,
		formatTime(license.PurchaseDate),
		formatTime(license.ExpiryDate),
		license.IsActive,
		license.MaxActivations,
		license.PlanType,
		license.Notes,
		formatTime(license.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return licenses.ErrDuplicateKey
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (s *Store) FindActiveByKey(ctx context.Context, key string) (*licenses.License, error) {
	lic, err := s.getLicense(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if !lic.IsActive {
		return nil, licenses.ErrNotFound
	}
	return lic, nil
}

func (s *Store) GetLicense(ctx context.Context, key string) (*licenses.License, error) {
	return s.getLicense(ctx, s.db, key)
}

func (s *Store) AppendActivation(ctx context.Context, key string, activation licenses.DeviceActivation, maxActivations int) (*licenses.License, error) {
	deviceInfo, err := json.Marshal(activation.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("encode device info: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE licenses
		SET activation_count = activation_count + 1, updated_at = ?
		WHERE license_key = ? AND is_active = 1 AND activation_count < MIN(?, max_activations)
	`, formatTime(activation.ActivationDate), key, maxActivations)
	if err != nil {
		return nil, fmt.Errorf("increment activation count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, s.classifyRejected(ctx, tx, key, activation.DeviceID)
	}

	result, err = tx.ExecContext(ctx, `
		INSERT INTO device_activations (license_key, device_id, device_info, activation_date, last_validation)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (license_key, device_id) DO NOTHING
	`, key, activation.DeviceID, string(deviceInfo),
		formatTime(activation.ActivationDate), formatTime(activation.LastValidation))
	if err != nil {
		return nil, fmt.Errorf("insert activation: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, licenses.ErrDeviceAlreadyActivated
	}

	updated, err := s.getLicense(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return updated, nil
}

func (s *Store) classifyRejected(ctx context.Context, q querier, key, deviceID string) error {
	var active bool
	err := q.QueryRowContext(ctx, `SELECT is_active FROM licenses WHERE license_key = ?`, key).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return licenses.ErrNotFound
		}
		return fmt.Errorf("get license: %w", err)
	}
	if !active {
		return licenses.ErrNotFound
	}

	var bound bool
	err = q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM device_activations WHERE license_key = ? AND device_id = ?)`,
		key, deviceID).Scan(&bound)
	if err != nil {
		return fmt.Errorf("check activation: %w", err)
	}
	if bound {
		return licenses.ErrDeviceAlreadyActivated
	}
	return licenses.ErrLimitExceeded
}

func (s *Store) TouchActivation(ctx context.Context, key, deviceID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE device_activations SET last_validation = ? WHERE license_key = ? AND device_id = ?`,
		formatTime(at), key, deviceID)
	if err != nil {
		return fmt.Errorf("touch activation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return licenses.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, key string, active bool) (*licenses.License, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE licenses SET is_active = ?, updated_at = ? WHERE license_key = ?`,
		active, formatTime(time.Now()), key)
	if err != nil {
		return nil, fmt.Errorf("update license: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, licenses.ErrNotFound
	}

	lic, err := s.getLicense(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return lic, nil
}

func (s *Store) ListLicenses(ctx context.Context, limit, offset int) ([]licenses.License, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT license_key, customer_email, customer_name, purchase_date, expiry_date,
			is_active, max_activations, plan_type, notes, updated_at
		FROM licenses
		ORDER BY purchase_date DESC, license_key DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}

	var result []licenses.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		result = append(result, *lic)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("iterate licenses: %w", err)
	}
	rows.Close()

	// Activations are loaded after the cursor is closed: the single
	// connection cannot serve a second query while rows are open.
	for i := range result {
		activations, err := s.listActivations(ctx, s.db, result[i].Key)
		if err != nil {
			return nil, 0, err
		}
		result[i].Activations = activations
	}
	return result, total, nil
}

func (s *Store) RecordUsage(ctx context.Context, event *licenses.UsageEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_events (id, license_key, device_id, action, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.LicenseKey, event.DeviceID, event.Action, string(metadata), formatTime(event.Timestamp))
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *Store) AggregateUsageByKey(ctx context.Context) ([]licenses.UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT license_key, COUNT(*), COUNT(DISTINCT NULLIF(device_id, '')), MAX(created_at)
		FROM usage_events
		GROUP BY license_key
		ORDER BY license_key
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	defer rows.Close()

	var result []licenses.UsageSummary
	for rows.Next() {
		var (
			sum      licenses.UsageSummary
			lastSeen string
		)
		if err := rows.Scan(&sum.LicenseKey, &sum.Events, &sum.Devices, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		if sum.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

func (s *Store) getLicense(ctx context.Context, q querier, key string) (*licenses.License, error) {
	row := q.QueryRowContext(ctx, `
		SELECT license_key, customer_email, customer_name, purchase_date, expiry_date,
			is_active, max_activations, plan_type, notes, updated_at
		FROM licenses
		WHERE license_key = ?
	`, key)

	lic, err := scanLicense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, licenses.ErrNotFound
		}
		return nil, err
	}

	lic.Activations, err = s.listActivations(ctx, q, key)
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func (s *Store) listActivations(ctx context.Context, q querier, key string) ([]licenses.DeviceActivation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT device_id, device_info, activation_date, last_validation
		FROM device_activations
		WHERE license_key = ?
		ORDER BY id
	`, key)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	activations := []licenses.DeviceActivation{}
	for rows.Next() {
		var (
			act                             licenses.DeviceActivation
			info, activatedAt, lastVerified string
		)
		if err := rows.Scan(&act.DeviceID, &info, &activatedAt, &lastVerified); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		if err := json.Unmarshal([]byte(info), &act.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device info for %s: %w", act.DeviceID, err)
		}
		if act.ActivationDate, err = parseTime(activatedAt); err != nil {
			return nil, err
		}
		if act.LastValidation, err = parseTime(lastVerified); err != nil {
			return nil, err
		}
		activations = append(activations, act)
	}
	return activations, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(row scanner) (*licenses.License, error) {
	var (
		lic                                 licenses.License
		purchaseDate, expiryDate, updatedAt string
	)
	err := row.Scan(
		&lic.Key,
		&lic.CustomerEmail,
		&lic.CustomerName,
		&purchaseDate,
		&expiryDate,
		&lic.IsActive,
		&lic.MaxActivations,
		&lic.PlanType,
		&lic.Notes,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lic.PurchaseDate, err = parseTime(purchaseDate); err != nil {
		return nil, err
	}
	if lic.ExpiryDate, err = parseTime(expiryDate); err != nil {
		return nil, err
	}
	if lic.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &lic, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
