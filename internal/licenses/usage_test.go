package licenses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecordUsageForUnknownLicense(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store)
	r.now = func() time.Time { return testNow }

	res := r.Record(context.Background(), RecordParams{
		LicenseKey: "NOT-A-REAL-KEY",
		DeviceID:   "d1",
		Action:     "launch",
		Metadata:   Metadata{"version": String("1.4.2")},
	})
	assert.True(t, res.Success)

	events := store.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "NOT-A-REAL-KEY", events[0].LicenseKey)
	assert.Equal(t, "launch", events[0].Action)
	assert.Equal(t, testNow, events[0].Timestamp)
	assert.True(t, Metadata{"version": String("1.4.2")}.Equal(events[0].Metadata))
}

func TestRecordUsageEventIDsAreUnique(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store)

	for i := 0; i < 3; i++ {
		require.True(t, r.Record(context.Background(), RecordParams{LicenseKey: "K", Action: "tick"}).Success)
	}

	events := store.Events()
	require.Len(t, events, 3)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.NotEqual(t, events[1].ID, events[2].ID)
}

func TestRecordUsageFailureIsSoft(t *testing.T) {
	store := new(MockStore)
	store.On("RecordUsage", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	res := NewRecorder(store).Record(context.Background(), RecordParams{LicenseKey: "K", Action: "launch"})
	assert.False(t, res.Success)
	store.AssertExpectations(t)
}

func TestUsageSummary(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store)
	r.now = func() time.Time { return testNow }

	r.Record(context.Background(), RecordParams{LicenseKey: "B", DeviceID: "d1", Action: "launch"})
	r.Record(context.Background(), RecordParams{LicenseKey: "A", DeviceID: "d1", Action: "launch"})
	r.Record(context.Background(), RecordParams{LicenseKey: "A", DeviceID: "d2", Action: "export"})
	r.Record(context.Background(), RecordParams{LicenseKey: "A", Action: "crash"})

	summary, err := r.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, UsageSummary{LicenseKey: "A", Events: 3, Devices: 2, LastSeen: testNow}, summary[0])
	assert.Equal(t, "B", summary[1].LicenseKey)

	failing := new(MockStore)
	failing.On("AggregateUsageByKey", mock.Anything).Return(nil, errors.New("timeout"))
	_, err = NewRecorder(failing).Summary(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
}
