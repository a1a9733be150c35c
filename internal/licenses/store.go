package licenses

import (
	"context"
	"time"
)

// LicenseStore persists licenses and their device activations.
// Implementations must be safe for concurrent use.
type LicenseStore interface {
	// CreateLicense inserts a new license. Returns ErrDuplicateKey when the key is taken.
	CreateLicense(ctx context.Context, license *License) error

	// FindActiveByKey returns the license only while IsActive is set.
	// Expiry is not checked here.
	FindActiveByKey(ctx context.Context, key string) (*License, error)

	// GetLicense returns the license regardless of state.
	GetLicense(ctx context.Context, key string) (*License, error)

	// AppendActivation adds a device activation if and only if the license is
	// active and holds fewer than maxActivations activations. The check and
	// the append happen as one atomic unit with respect to other appends on
	// the same key. Returns ErrLimitExceeded, ErrNotFound or
	// ErrDeviceAlreadyActivated when nothing was appended.
	AppendActivation(ctx context.Context, key string, activation DeviceActivation, maxActivations int) (*License, error)

	// TouchActivation sets LastValidation for an existing device activation.
	TouchActivation(ctx context.Context, key, deviceID string, at time.Time) error

	SetActive(ctx context.Context, key string, active bool) (*License, error)

	ListLicenses(ctx context.Context, limit, offset int) ([]License, int64, error)
}

// UsageStore appends usage events. It never consults license state.
type UsageStore interface {
	RecordUsage(ctx context.Context, event *UsageEvent) error
	AggregateUsageByKey(ctx context.Context) ([]UsageSummary, error)
}

type Store interface {
	LicenseStore
	UsageStore
}

// storeContext bounds a single store call. A non-positive timeout only adds
// cancellation.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
