package licenses

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type RecordParams struct {
	LicenseKey string
	DeviceID   string
	Action     string
	Metadata   Metadata
}

type RecordResult struct {
	Success bool
}

// Recorder appends usage events. It never checks that the license exists.
type Recorder struct {
	store UsageStore
	now   func() time.Time
}

func NewRecorder(store UsageStore) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends one event. Failures are logged and reported as Success=false.
func (r *Recorder) Record(ctx context.Context, params RecordParams) RecordResult {
	event := &UsageEvent{
		ID:         uuid.NewString(),
		LicenseKey: params.LicenseKey,
		DeviceID:   params.DeviceID,
		Action:     params.Action,
		Metadata:   params.Metadata.Clone(),
		Timestamp:  r.now(),
	}

	if err := r.store.RecordUsage(ctx, event); err != nil {
		slog.Warn("Failed to record usage event",
			"license", MaskKey(params.LicenseKey),
			"action", params.Action,
			"error", err)
		return RecordResult{Success: false}
	}

	slog.Debug("Usage event recorded", "event_id", event.ID, "action", event.Action)
	return RecordResult{Success: true}
}

func (r *Recorder) Summary(ctx context.Context) ([]UsageSummary, error) {
	summary, err := r.store.AggregateUsageByKey(ctx)
	if err != nil {
		return nil, transient("aggregate usage", err)
	}
	return summary, nil
}
