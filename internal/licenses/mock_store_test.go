package licenses

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateLicense(ctx context.Context, license *License) error {
	args := m.Called(ctx, license)
	return args.Error(0)
}

func (m *MockStore) FindActiveByKey(ctx context.Context, key string) (*License, error) {
	args := m.Called(ctx, key)
	return licenseArg(args, 0), args.Error(1)
}

func (m *MockStore) GetLicense(ctx context.Context, key string) (*License, error) {
	args := m.Called(ctx, key)
	return licenseArg(args, 0), args.Error(1)
}

func (m *MockStore) AppendActivation(ctx context.Context, key string, activation DeviceActivation, maxActivations int) (*License, error) {
	args := m.Called(ctx, key, activation, maxActivations)
	return licenseArg(args, 0), args.Error(1)
}

func (m *MockStore) TouchActivation(ctx context.Context, key, deviceID string, at time.Time) error {
	args := m.Called(ctx, key, deviceID, at)
	return args.Error(0)
}

func (m *MockStore) SetActive(ctx context.Context, key string, active bool) (*License, error) {
	args := m.Called(ctx, key, active)
	return licenseArg(args, 0), args.Error(1)
}

func (m *MockStore) ListLicenses(ctx context.Context, limit, offset int) ([]License, int64, error) {
	args := m.Called(ctx, limit, offset)
	list, _ := args.Get(0).([]License)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockStore) RecordUsage(ctx context.Context, event *UsageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) AggregateUsageByKey(ctx context.Context) ([]UsageSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).([]UsageSummary)
	return summary, args.Error(1)
}

func licenseArg(args mock.Arguments, i int) *License {
	lic, _ := args.Get(i).(*License)
	return lic
}
