package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const licenseColumns = `license_key, customer_email, customer_name, purchase_date, expiry_date,
	is_active, max_activations, activation_count, plan_type, notes, created_at, updated_at`

func scanLicense(row pgx.Row) (License, error) {
	var i License
	err := row.Scan(
		&i.LicenseKey,
		&i.CustomerEmail,
		&i.CustomerName,
		&i.PurchaseDate,
		&i.ExpiryDate,
		&i.IsActive,
		&i.MaxActivations,
		&i.ActivationCount,
		&i.PlanType,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createLicense = `INSERT INTO licenses (
	license_key, customer_email, customer_name, purchase_date, expiry_date,
	is_active, max_activations, plan_type, notes, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type CreateLicenseParams struct {
	LicenseKey     string
	CustomerEmail  string
	CustomerName   string
	PurchaseDate   pgtype.Timestamptz
	ExpiryDate     pgtype.Timestamptz
	IsActive       bool
	MaxActivations int32
	PlanType       string
	Notes          string
	UpdatedAt      pgtype.Timestamptz
}

func (q *Queries) CreateLicense(ctx context.Context, arg CreateLicenseParams) error {
	_, err := q.db.Exec(ctx, createLicense,
		arg.LicenseKey,
		arg.CustomerEmail,
		arg.CustomerName,
		arg.PurchaseDate,
		arg.ExpiryDate,
		arg.IsActive,
		arg.MaxActivations,
		arg.PlanType,
		arg.Notes,
		arg.UpdatedAt,
	)
	return err
}

const getLicense = `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`

func (q *Queries) GetLicense(ctx context.Context, licenseKey string) (License, error) {
	return scanLicense(q.db.QueryRow(ctx, getLicense, licenseKey))
}

const getActiveLicense = `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1 AND is_active`

func (q *Queries) GetActiveLicense(ctx context.Context, licenseKey string) (License, error) {
	return scanLicense(q.db.QueryRow(ctx, getActiveLicense, licenseKey))
}

// The WHERE clause makes the capacity check and the increment one statement:
// concurrent callers serialize on the row lock and re-evaluate the predicate.
const incrementActivationCount = `UPDATE licenses
SET activation_count = activation_count + 1, updated_at = $3
WHERE license_key = $1
  AND is_active
  AND activation_count < LEAST($2::int, max_activations)
RETURNING activation_count`

type IncrementActivationCountParams struct {
	LicenseKey     string
	MaxActivations int32
	UpdatedAt      pgtype.Timestamptz
}

func (q *Queries) IncrementActivationCount(ctx context.Context, arg IncrementActivationCountParams) (int32, error) {
	var count int32
	err := q.db.QueryRow(ctx, incrementActivationCount, arg.LicenseKey, arg.MaxActivations, arg.UpdatedAt).Scan(&count)
	return count, err
}

const insertActivation = `INSERT INTO device_activations (
	license_key, device_id, device_info, activation_date, last_validation
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (license_key, device_id) DO NOTHING`

type InsertActivationParams struct {
	LicenseKey     string
	DeviceID       string
	DeviceInfo     []byte
	ActivationDate pgtype.Timestamptz
	LastValidation pgtype.Timestamptz
}

// InsertActivation returns the number of inserted rows; zero means the device
// was already bound.
func (q *Queries) InsertActivation(ctx context.Context, arg InsertActivationParams) (int64, error) {
	tag, err := q.db.Exec(ctx, insertActivation,
		arg.LicenseKey,
		arg.DeviceID,
		arg.DeviceInfo,
		arg.ActivationDate,
		arg.LastValidation,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const activationExists = `SELECT EXISTS (
	SELECT 1 FROM device_activations WHERE license_key = $1 AND device_id = $2
)`

func (q *Queries) ActivationExists(ctx context.Context, licenseKey, deviceID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, activationExists, licenseKey, deviceID).Scan(&exists)
	return exists, err
}

const touchActivation = `UPDATE device_activations
SET last_validation = $3
WHERE license_key = $1 AND device_id = $2`

type TouchActivationParams struct {
	LicenseKey     string
	DeviceID       string
	LastValidation pgtype.Timestamptz
}

func (q *Queries) TouchActivation(ctx context.Context, arg TouchActivationParams) (int64, error) {
	tag, err := q.db.Exec(ctx, touchActivation, arg.LicenseKey, arg.DeviceID, arg.LastValidation)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listActivationsByKeys = `SELECT id, license_key, device_id, device_info, activation_date, last_validation
FROM device_activations
WHERE license_key = ANY($1::text[])
ORDER BY id`

func (q *Queries) ListActivationsByKeys(ctx context.Context, licenseKeys []string) ([]DeviceActivation, error) {
	rows, err := q.db.Query(ctx, listActivationsByKeys, licenseKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DeviceActivation
	for rows.Next() {
		var i DeviceActivation
		if err := rows.Scan(
			&i.ID,
			&i.LicenseKey,
			&i.DeviceID,
			&i.DeviceInfo,
			&i.ActivationDate,
			&i.LastValidation,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const setLicenseActive = `UPDATE licenses
SET is_active = $2, updated_at = NOW()
WHERE license_key = $1
RETURNING ` + licenseColumns

func (q *Queries) SetLicenseActive(ctx context.Context, licenseKey string, isActive bool) (License, error) {
	return scanLicense(q.db.QueryRow(ctx, setLicenseActive, licenseKey, isActive))
}

const listLicensesPaginated = `SELECT ` + licenseColumns + ` FROM licenses
ORDER BY purchase_date DESC, license_key DESC
LIMIT $1 OFFSET $2`

type ListLicensesPaginatedParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListLicensesPaginated(ctx context.Context, arg ListLicensesPaginatedParams) ([]License, error) {
	rows, err := q.db.Query(ctx, listLicensesPaginated, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []License
	for rows.Next() {
		i, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countLicenses = `SELECT COUNT(*) FROM licenses`

func (q *Queries) CountLicenses(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countLicenses).Scan(&count)
	return count, err
}

const createUsageEvent = `INSERT INTO usage_events (id, license_key, device_id, action, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type CreateUsageEventParams struct {
	ID         pgtype.UUID
	LicenseKey string
	DeviceID   string
	Action     string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

func (q *Queries) CreateUsageEvent(ctx context.Context, arg CreateUsageEventParams) error {
	_, err := q.db.Exec(ctx, createUsageEvent,
		arg.ID,
		arg.LicenseKey,
		arg.DeviceID,
		arg.Action,
		arg.Metadata,
		arg.CreatedAt,
	)
	return err
}

const aggregateUsageByKey = `SELECT license_key,
	COUNT(*) AS events,
	COUNT(DISTINCT NULLIF(device_id, '')) AS devices,
	MAX(created_at) AS last_seen
FROM usage_events
GROUP BY license_key
ORDER BY license_key`

func (q *Queries) AggregateUsageByKey(ctx context.Context) ([]UsageSummaryRow, error) {
	rows, err := q.db.Query(ctx, aggregateUsageByKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []UsageSummaryRow
	for rows.Next() {
		var i UsageSummaryRow
		if err := rows.Scan(&i.LicenseKey, &i.Events, &i.Devices, &i.LastSeen); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
