package licenses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

const (
	// MaxDurationMonths bounds the license term at one hundred years.
	MaxDurationMonths = 1200
	MaxPageSize       = 100
	// MaxPage keeps the list offset within the int4 range of the store.
	MaxPage = math.MaxInt32 / MaxPageSize
)

type CreateLicenseParams struct {
	CustomerEmail  string
	CustomerName   string
	PlanType       string
	DurationMonths int // 0 means the configured default
	MaxActivations int // 0 means the configured default
	Notes          string
}

// Admin implements the privileged license operations.
type Admin struct {
	store   LicenseStore
	keys    *KeyGenerator
	cfg     Config
	timeout time.Duration
	now     func() time.Time
}

func NewAdmin(store LicenseStore, cfg Config) *Admin {
	cfg = cfg.withDefaults()
	return &Admin{
		store:   store,
		keys:    NewKeyGenerator(cfg.KeyPrefix),
		cfg:     cfg,
		timeout: cfg.StoreTimeout,
		now:     time.Now,
	}
}

// CreateLicense issues a new active license with zero activations.
// A key collision fails with ErrDuplicateKey; the caller may simply retry.
func (a *Admin) CreateLicense(ctx context.Context, params CreateLicenseParams) (*License, error) {
	email := strings.TrimSpace(params.CustomerEmail)
	name := strings.TrimSpace(params.CustomerName)
	if email == "" {
		return nil, invalid("customer_email", "must not be empty")
	}
	if name == "" {
		return nil, invalid("customer_name", "must not be empty")
	}

	months := params.DurationMonths
	if months == 0 {
		months = a.cfg.DefaultDurationMonths
	}
	if months < 0 {
		return nil, invalid("duration_months", "must be positive")
	}
	if months > MaxDurationMonths {
		return nil, invalid("duration_months", fmt.Sprintf("must be at most %d", MaxDurationMonths))
	}

	maxActivations := params.MaxActivations
	if maxActivations == 0 {
		maxActivations = a.cfg.DefaultMaxActivations
	}
	if maxActivations < 1 {
		return nil, invalid("max_activations", "must be at least 1")
	}
	if maxActivations > math.MaxInt32 {
		return nil, invalid("max_activations", fmt.Sprintf("must be at most %d", math.MaxInt32))
	}

	key, err := a.keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	now := a.now()
	lic := &License{
		Key:            key,
		CustomerEmail:  email,
		CustomerName:   name,
		PurchaseDate:   now,
		ExpiryDate:     addMonths(now, months),
		IsActive:       true,
		MaxActivations: maxActivations,
		Activations:    []DeviceActivation{},
		PlanType:       strings.TrimSpace(params.PlanType),
		Notes:          params.Notes,
		UpdatedAt:      now,
	}

	storeCtx, cancel := storeContext(ctx, a.timeout)
	defer cancel()
	if err := a.store.CreateLicense(storeCtx, lic); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			slog.Warn("License key collision", "license", MaskKey(key))
			return nil, err
		}
		if IsValidationError(err) {
			return nil, err
		}
		return nil, transient("create license", err)
	}

	slog.Info("License created",
		"license", MaskKey(key),
		"plan_type", lic.PlanType,
		"max_activations", lic.MaxActivations,
		"expiry_date", lic.ExpiryDate)

	return lic, nil
}

// Deactivate flips the kill switch off. Activations and expiry are left untouched.
func (a *Admin) Deactivate(ctx context.Context, key string) (*License, error) {
	return a.setActive(ctx, key, false)
}

// Reactivate flips the kill switch back on.
func (a *Admin) Reactivate(ctx context.Context, key string) (*License, error) {
	return a.setActive(ctx, key, true)
}

func (a *Admin) setActive(ctx context.Context, key string, active bool) (*License, error) {
	storeCtx, cancel := storeContext(ctx, a.timeout)
	defer cancel()
	lic, err := a.store.SetActive(storeCtx, key, active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, transient("set active", err)
	}
	slog.Info("License state changed", "license", MaskKey(key), "is_active", active)
	return lic, nil
}

func (a *Admin) GetLicense(ctx context.Context, key string) (*License, error) {
	storeCtx, cancel := storeContext(ctx, a.timeout)
	defer cancel()
	lic, err := a.store.GetLicense(storeCtx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, transient("get license", err)
	}
	return lic, nil
}

// ListLicenses returns one page of licenses (1-based page) and the total count.
func (a *Admin) ListLicenses(ctx context.Context, page, pageSize int) ([]License, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page > MaxPage {
		page = MaxPage
	}
	storeCtx, cancel := storeContext(ctx, a.timeout)
	defer cancel()
	list, total, err := a.store.ListLicenses(storeCtx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, transient("list licenses", err)
	}
	return list, total, nil
}

// addMonths adds calendar months; overflowing days roll into the next month
// the way time.AddDate normalizes them.
func addMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}
