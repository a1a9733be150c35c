// Package storetest holds the behavioural contract every licenses.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) licenses.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, newStore(t)) })
	t.Run("FindActiveHidesInactive", func(t *testing.T) { testFindActiveHidesInactive(t, newStore(t)) })
	t.Run("AppendActivation", func(t *testing.T) { testAppendActivation(t, newStore(t)) })
	t.Run("AppendActivationRejections", func(t *testing.T) { testAppendActivationRejections(t, newStore(t)) })
	t.Run("ConcurrentAppendRespectsLimit", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("ConcurrentAppendSameDevice", func(t *testing.T) { testConcurrentSameDevice(t, newStore(t)) })
	t.Run("TouchActivation", func(t *testing.T) { testTouchActivation(t, newStore(t)) })
	t.Run("SetActive", func(t *testing.T) { testSetActive(t, newStore(t)) })
	t.Run("ListLicenses", func(t *testing.T) { testListLicenses(t, newStore(t)) })
	t.Run("Usage", func(t *testing.T) { testUsage(t, newStore(t)) })
}

// NewLicense builds an active license fixture with microsecond-precision times.
func NewLicense(key string, maxActivations int) *licenses.License {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &licenses.License{
		Key:            key,
		CustomerEmail:  "a@b.com",
		CustomerName:   "A",
		PurchaseDate:   now,
		ExpiryDate:     now.AddDate(0, 12, 0),
		IsActive:       true,
		MaxActivations: maxActivations,
		Activations:    []licenses.DeviceActivation{},
		PlanType:       "pro",
		Notes:          "fixture",
		UpdatedAt:      now,
	}
}

func activation(deviceID string) licenses.DeviceActivation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return licenses.DeviceActivation{
		DeviceID:       deviceID,
		ActivationDate: now,
		LastValidation: now,
		DeviceInfo:     licenses.Metadata{},
	}
}

func testCreateAndGet(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	lic := NewLicense("TST-0001-0002-0003", 2)
	require.NoError(t, store.CreateLicense(ctx, lic))

	got, err := store.GetLicense(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic.Key, got.Key)
	assert.Equal(t, lic.CustomerEmail, got.CustomerEmail)
	assert.Equal(t, lic.CustomerName, got.CustomerName)
	assert.Equal(t, lic.PlanType, got.PlanType)
	assert.Equal(t, lic.Notes, got.Notes)
	assert.Equal(t, 2, got.MaxActivations)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.Activations)
	assert.WithinDuration(t, lic.PurchaseDate, got.PurchaseDate, time.Millisecond)
	assert.WithinDuration(t, lic.ExpiryDate, got.ExpiryDate, time.Millisecond)

	_, err = store.GetLicense(ctx, "TST-FFFF-FFFF-FFFF")
	assert.ErrorIs(t, err, licenses.ErrNotFound)
}

func testDuplicateKey(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateLicense(ctx, NewLicense("TST-AAAA-BBBB-CCCC", 1)))

	err := store.CreateLicense(ctx, NewLicense("TST-AAAA-BBBB-CCCC", 3))
	assert.ErrorIs(t, err, licenses.ErrDuplicateKey)
}

func testFindActiveHidesInactive(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	active := NewLicense("TST-0000-0000-0001", 1)
	inactive := NewLicense("TST-0000-0000-0002", 1)
	inactive.IsActive = false
	expired := NewLicense("TST-0000-0000-0003", 1)
	expired.ExpiryDate = time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)

	require.NoError(t, store.CreateLicense(ctx, active))
	require.NoError(t, store.CreateLicense(ctx, inactive))
	require.NoError(t, store.CreateLicense(ctx, expired))

	got, err := store.FindActiveByKey(ctx, active.Key)
	require.NoError(t, err)
	assert.Equal(t, active.Key, got.Key)

	_, err = store.FindActiveByKey(ctx, inactive.Key)
	assert.ErrorIs(t, err, licenses.ErrNotFound)

	// Expiry is the caller's concern.
	got, err = store.FindActiveByKey(ctx, expired.Key)
	require.NoError(t, err)
	assert.Equal(t, expired.Key, got.Key)

	_, err = store.FindActiveByKey(ctx, "TST-DEAD-BEEF-0000")
	assert.ErrorIs(t, err, licenses.ErrNotFound)
}

func testAppendActivation(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	lic := NewLicense("TST-1111-2222-3333", 3)
	require.NoError(t, store.CreateLicense(ctx, lic))

	serial, err := licenses.FromInterface(json.Number("9007199254740993"))
	require.NoError(t, err)
	first := activation("device-a")
	first.DeviceInfo = licenses.Metadata{
		"os":     licenses.String("linux"),
		"cores":  licenses.Number(8),
		"tags":   licenses.List(licenses.String("ci"), licenses.Bool(true)),
		"serial": serial,
	}
	updated, err := store.AppendActivation(ctx, lic.Key, first, lic.MaxActivations)
	require.NoError(t, err)
	require.Len(t, updated.Activations, 1)

	_, err = store.AppendActivation(ctx, lic.Key, activation("device-b"), lic.MaxActivations)
	require.NoError(t, err)

	got, err := store.FindActiveByKey(ctx, lic.Key)
	require.NoError(t, err)
	require.Len(t, got.Activations, 2)
	assert.Equal(t, "device-a", got.Activations[0].DeviceID)
	assert.Equal(t, "device-b", got.Activations[1].DeviceID)
	assert.True(t, first.DeviceInfo.Equal(got.Activations[0].DeviceInfo), "device info must be stored verbatim")
	lit, ok := got.Activations[0].DeviceInfo["serial"].AsLiteral()
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), lit)
}

func testAppendActivationRejections(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	lic := NewLicense("TST-4444-5555-6666", 1)
	require.NoError(t, store.CreateLicense(ctx, lic))

	_, err := store.AppendActivation(ctx, lic.Key, activation("device-a"), 1)
	require.NoError(t, err)

	_, err = store.AppendActivation(ctx, lic.Key, activation("device-a"), 1)
	assert.ErrorIs(t, err, licenses.ErrDeviceAlreadyActivated)

	_, err = store.AppendActivation(ctx, lic.Key, activation("device-b"), 1)
	assert.ErrorIs(t, err, licenses.ErrLimitExceeded)

	_, err = store.AppendActivation(ctx, "TST-0000-0000-0000", activation("device-c"), 1)
	assert.ErrorIs(t, err, licenses.ErrNotFound)

	inactive := NewLicense("TST-7777-8888-9999", 5)
	inactive.IsActive = false
	require.NoError(t, store.CreateLicense(ctx, inactive))
	_, err = store.AppendActivation(ctx, inactive.Key, activation("device-d"), 5)
	assert.ErrorIs(t, err, licenses.ErrNotFound)

	got, err := store.GetLicense(ctx, lic.Key)
	require.NoError(t, err)
	assert.Len(t, got.Activations, 1)
}

func testConcurrentAppend(t *testing.T, store licenses.Store) {
	const (
		attempts = 20
		capacity = 3
	)
	ctx := context.Background()
	lic := NewLicense("TST-C0C0-C0C0-C0C0", capacity)
	require.NoError(t, store.CreateLicense(ctx, lic))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			_, err := store.AppendActivation(ctx, lic.Key, activation(fmt.Sprintf("device-%02d", id)), capacity)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, licenses.ErrLimitExceeded):
				limited++
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, limited)

	got, err := store.GetLicense(ctx, lic.Key)
	require.NoError(t, err)
	assert.Len(t, got.Activations, capacity)
}

func testConcurrentSameDevice(t *testing.T, store licenses.Store) {
	const attempts = 10
	ctx := context.Background()
	lic := NewLicense("TST-D0D0-D0D0-D0D0", 5)
	require.NoError(t, store.CreateLicense(ctx, lic))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		duplicate int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.AppendActivation(ctx, lic.Key, activation("same-device"), lic.MaxActivations)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, licenses.ErrDeviceAlreadyActivated):
				duplicate++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, duplicate)

	got, err := store.GetLicense(ctx, lic.Key)
	require.NoError(t, err)
	assert.Len(t, got.Activations, 1)
}

func testTouchActivation(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	lic := NewLicense("TST-7070-7070-7070", 2)
	require.NoError(t, store.CreateLicense(ctx, lic))
	act := activation("device-a")
	_, err := store.AppendActivation(ctx, lic.Key, act, 2)
	require.NoError(t, err)

	later := act.LastValidation.Add(90 * time.Minute)
	require.NoError(t, store.TouchActivation(ctx, lic.Key, "device-a", later))

	got, err := store.GetLicense(ctx, lic.Key)
	require.NoError(t, err)
	require.Len(t, got.Activations, 1)
	assert.WithinDuration(t, later, got.Activations[0].LastValidation, time.Millisecond)
	assert.WithinDuration(t, act.ActivationDate, got.Activations[0].ActivationDate, time.Millisecond)

	assert.ErrorIs(t, store.TouchActivation(ctx, lic.Key, "device-z", later), licenses.ErrNotFound)
	assert.ErrorIs(t, store.TouchActivation(ctx, "TST-0000-0000-0000", "device-a", later), licenses.ErrNotFound)
}

func testSetActive(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	lic := NewLicense("TST-5E70-5E70-5E70", 2)
	require.NoError(t, store.CreateLicense(ctx, lic))
	_, err := store.AppendActivation(ctx, lic.Key, activation("device-a"), 2)
	require.NoError(t, err)

	off, err := store.SetActive(ctx, lic.Key, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Len(t, off.Activations, 1)
	assert.WithinDuration(t, lic.ExpiryDate, off.ExpiryDate, time.Millisecond)

	_, err = store.FindActiveByKey(ctx, lic.Key)
	assert.ErrorIs(t, err, licenses.ErrNotFound)

	on, err := store.SetActive(ctx, lic.Key, true)
	require.NoError(t, err)
	assert.True(t, on.IsActive)

	_, err = store.SetActive(ctx, "TST-0000-0000-0000", false)
	assert.ErrorIs(t, err, licenses.ErrNotFound)
}

func testListLicenses(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		lic := NewLicense(fmt.Sprintf("TST-0000-0000-%04d", i), 1)
		lic.PurchaseDate = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateLicense(ctx, lic))
	}

	page, total, err := store.ListLicenses(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "TST-0000-0000-0004", page[0].Key)
	assert.Equal(t, "TST-0000-0000-0003", page[1].Key)

	page, _, err = store.ListLicenses(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "TST-0000-0000-0000", page[0].Key)
}

func testUsage(t *testing.T, store licenses.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	events := []licenses.UsageEvent{
		{ID: "7f0c8f3e-0000-4000-8000-000000000001", LicenseKey: "NOPE-0000-0000-0000", DeviceID: "d1", Action: "launch", Timestamp: now},
		{ID: "7f0c8f3e-0000-4000-8000-000000000002", LicenseKey: "NOPE-0000-0000-0000", DeviceID: "d2", Action: "export", Timestamp: now.Add(time.Second),
			Metadata: licenses.Metadata{"pages": licenses.Number(3)}},
		{ID: "7f0c8f3e-0000-4000-8000-000000000003", LicenseKey: "NOPE-0000-0000-0000", DeviceID: "d1", Action: "launch", Timestamp: now.Add(2 * time.Second)},
		{ID: "7f0c8f3e-0000-4000-8000-000000000004", LicenseKey: "ZZZ-0000-0000-0000", DeviceID: "d9", Action: "launch", Timestamp: now},
	}
	for i := range events {
		require.NoError(t, store.RecordUsage(ctx, &events[i]))
	}

	summary, err := store.AggregateUsageByKey(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, "NOPE-0000-0000-0000", summary[0].LicenseKey)
	assert.Equal(t, int64(3), summary[0].Events)
	assert.Equal(t, int64(2), summary[0].Devices)
	assert.WithinDuration(t, now.Add(2*time.Second), summary[0].LastSeen, time.Millisecond)

	assert.Equal(t, "ZZZ-0000-0000-0000", summary[1].LicenseKey)
	assert.Equal(t, int64(1), summary[1].Events)
}
