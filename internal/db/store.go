package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL implementation of licenses.Store.
type Store struct {
	pool    *pgxpool.Pool
	queries *Queries
}

var _ licenses.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: New(pool)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateLicense(ctx context.Context, license *licenses.License) error {
	if license.MaxActivations < 1 || license.MaxActivations > math.MaxInt32 {
		return &licenses.ValidationError{Field: "max_activations", Message: "out of range"}
	}
	err := s.queries.CreateLicense(ctx, CreateLicenseParams{
		LicenseKey:     license.Key,
		CustomerEmail:  license.CustomerEmail,
		CustomerName:   license.CustomerName,
		PurchaseDate:   timestamptz(license.PurchaseDate),
		ExpiryDate:     timestamptz(license.ExpiryDate),
		IsActive:       license.IsActive,
		MaxActivations: int32(license.MaxActivations),
		PlanType:       license.PlanType,
		Notes:          license.Notes,
		UpdatedAt:      timestamptz(license.UpdatedAt),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return licenses.ErrDuplicateKey
		}
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

func (s *Store) FindActiveByKey(ctx context.Context, key string) (*licenses.License, error) {
	row, err := s.queries.GetActiveLicense(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, licenses.ErrNotFound
		}
		return nil, fmt.Errorf("get active license: %w", err)
	}
	return s.withActivations(ctx, s.queries, row)
}

func (s *Store) GetLicense(ctx context.Context, key string) (*licenses.License, error) {
	row, err := s.queries.GetLicense(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, licenses.ErrNotFound
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return s.withActivations(ctx, s.queries, row)
}

// AppendActivation reserves a slot with a conditional increment and inserts
// the device row in the same transaction. Any zero-row outcome rolls back.
func (s *Store) AppendActivation(ctx context.Context, key string, activation licenses.DeviceActivation, maxActivations int) (*licenses.License, error) {
	deviceInfo, err := json.Marshal(activation.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("encode device info: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := s.queries.WithTx(tx)

	_, err = q.IncrementActivationCount(ctx, IncrementActivationCountParams{
		LicenseKey:     key,
		MaxActivations: clampInt32(maxActivations),
		UpdatedAt:      timestamptz(activation.ActivationDate),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyRejected(ctx, q, key, activation.DeviceID)
		}
		return nil, fmt.Errorf("increment activation count: %w", err)
	}

	inserted, err := q.InsertActivation(ctx, InsertActivationParams{
		LicenseKey:     key,
		DeviceID:       activation.DeviceID,
		DeviceInfo:     deviceInfo,
		ActivationDate: timestamptz(activation.ActivationDate),
		LastValidation: timestamptz(activation.LastValidation),
	})
	if err != nil {
		return nil, fmt.Errorf("insert activation: %w", err)
	}
	if inserted == 0 {
		return nil, licenses.ErrDeviceAlreadyActivated
	}

	row, err := q.GetLicense(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reload license: %w", err)
	}
	updated, err := s.withActivations(ctx, q, row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return updated, nil
}

// classifyRejected explains why the conditional increment matched no row.
func (s *Store) classifyRejected(ctx context.Context, q *Queries, key, deviceID string) error {
	row, err := q.GetLicense(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return licenses.ErrNotFound
		}
		return fmt.Errorf("get license: %w", err)
	}
	if !row.IsActive {
		return licenses.ErrNotFound
	}

	bound, err := q.ActivationExists(ctx, key, deviceID)
	if err != nil {
		return fmt.Errorf("check activation: %w", err)
	}
	if bound {
		return licenses.ErrDeviceAlreadyActivated
	}
	return licenses.ErrLimitExceeded
}

func (s *Store) TouchActivation(ctx context.Context, key, deviceID string, at time.Time) error {
	n, err := s.queries.TouchActivation(ctx, TouchActivationParams{
		LicenseKey:     key,
		DeviceID:       deviceID,
		LastValidation: timestamptz(at),
	})
	if err != nil {
		return fmt.Errorf("touch activation: %w", err)
	}
	if n == 0 {
		return licenses.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, key string, active bool) (*licenses.License, error) {
	row, err := s.queries.SetLicenseActive(ctx, key, active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, licenses.ErrNotFound
		}
		return nil, fmt.Errorf("set license active: %w", err)
	}
	return s.withActivations(ctx, s.queries, row)
}

func (s *Store) ListLicenses(ctx context.Context, limit, offset int) ([]licenses.License, int64, error) {
	rows, err := s.queries.ListLicensesPaginated(ctx, ListLicensesPaginatedParams{
		Limit:  clampInt32(limit),
		Offset: clampInt32(offset),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}

	total, err := s.queries.CountLicenses(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.LicenseKey
	}
	activations, err := s.queries.ListActivationsByKeys(ctx, keys)
	if err != nil {
		return nil, 0, fmt.Errorf("list activations: %w", err)
	}
	byKey := make(map[string][]DeviceActivation, len(rows))
	for _, a := range activations {
		byKey[a.LicenseKey] = append(byKey[a.LicenseKey], a)
	}

	result := make([]licenses.License, len(rows))
	for i, r := range rows {
		lic, err := toLicense(r, byKey[r.LicenseKey])
		if err != nil {
			return nil, 0, err
		}
		result[i] = *lic
	}
	return result, total, nil
}

func (s *Store) RecordUsage(ctx context.Context, event *licenses.UsageEvent) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.queries.CreateUsageEvent(ctx, CreateUsageEventParams{
		ID:         pgtype.UUID{Bytes: id, Valid: true},
		LicenseKey: event.LicenseKey,
		DeviceID:   event.DeviceID,
		Action:     event.Action,
		Metadata:   metadata,
		CreatedAt:  timestamptz(event.Timestamp),
	}); err != nil {
		return fmt.Errorf("create usage event: %w", err)
	}
	return nil
}

func (s *Store) AggregateUsageByKey(ctx context.Context) ([]licenses.UsageSummary, error) {
	rows, err := s.queries.AggregateUsageByKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}

	result := make([]licenses.UsageSummary, len(rows))
	for i, r := range rows {
		result[i] = licenses.UsageSummary{
			LicenseKey: r.LicenseKey,
			Events:     r.Events,
			Devices:    r.Devices,
			LastSeen:   r.LastSeen.Time,
		}
	}
	return result, nil
}

func (s *Store) withActivations(ctx context.Context, q *Queries, row License) (*licenses.License, error) {
	activations, err := q.ListActivationsByKeys(ctx, []string{row.LicenseKey})
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	return toLicense(row, activations)
}

func toLicense(row License, activations []DeviceActivation) (*licenses.License, error) {
	lic := &licenses.License{
		Key:            row.LicenseKey,
		CustomerEmail:  row.CustomerEmail,
		CustomerName:   row.CustomerName,
		PurchaseDate:   row.PurchaseDate.Time,
		ExpiryDate:     row.ExpiryDate.Time,
		IsActive:       row.IsActive,
		MaxActivations: int(row.MaxActivations),
		Activations:    make([]licenses.DeviceActivation, 0, len(activations)),
		PlanType:       row.PlanType,
		Notes:          row.Notes,
		UpdatedAt:      row.UpdatedAt.Time,
	}
	for _, a := range activations {
		var info licenses.Metadata
		if len(a.DeviceInfo) > 0 {
			if err := json.Unmarshal(a.DeviceInfo, &info); err != nil {
				return nil, fmt.Errorf("decode device info for %s: %w", a.DeviceID, err)
			}
		}
		lic.Activations = append(lic.Activations, licenses.DeviceActivation{
			DeviceID:       a.DeviceID,
			ActivationDate: a.ActivationDate.Time,
			LastValidation: a.LastValidation.Time,
			DeviceInfo:     info.Clone(),
		})
	}
	return lic, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// clampInt32 saturates n to the int4 range of the schema's columns.
func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}
