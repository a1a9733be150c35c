package licenses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Every activation append runs under the
// write lock, which makes the capacity check and the append indivisible.
type MemoryStore struct {
	mu       sync.RWMutex
	licenses map[string]*License
	order    []string
	events   []UsageEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*License),
	}
}

func (s *MemoryStore) CreateLicense(ctx context.Context, license *License) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[license.Key]; exists {
		return ErrDuplicateKey
	}
	s.licenses[license.Key] = license.Clone()
	s.order = append(s.order, license.Key)
	return nil
}

func (s *MemoryStore) FindActiveByKey(ctx context.Context, key string) (*License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, exists := s.licenses[key]
	if !exists || !lic.IsActive {
		return nil, ErrNotFound
	}
	return lic.Clone(), nil
}

func (s *MemoryStore) GetLicense(ctx context.Context, key string) (*License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, exists := s.licenses[key]
	if !exists {
		return nil, ErrNotFound
	}
	return lic.Clone(), nil
}

func (s *MemoryStore) AppendActivation(ctx context.Context, key string, activation DeviceActivation, maxActivations int) (*License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lic, exists := s.licenses[key]
	if !exists || !lic.IsActive {
		return nil, ErrNotFound
	}
	if _, bound := lic.FindActivation(activation.DeviceID); bound {
		return nil, ErrDeviceAlreadyActivated
	}
	if len(lic.Activations) >= min(maxActivations, lic.MaxActivations) {
		return nil, ErrLimitExceeded
	}

	activation.DeviceInfo = activation.DeviceInfo.Clone()
	lic.Activations = append(lic.Activations, activation)
	lic.UpdatedAt = activation.ActivationDate
	return lic.Clone(), nil
}

func (s *MemoryStore) TouchActivation(ctx context.Context, key, deviceID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lic, exists := s.licenses[key]
	if !exists {
		return ErrNotFound
	}
	act, bound := lic.FindActivation(deviceID)
	if !bound {
		return ErrNotFound
	}
	act.LastValidation = at
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, key string, active bool) (*License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lic, exists := s.licenses[key]
	if !exists {
		return nil, ErrNotFound
	}
	lic.IsActive = active
	lic.UpdatedAt = time.Now()
	return lic.Clone(), nil
}

// ListLicenses returns licenses newest first.
func (s *MemoryStore) ListLicenses(ctx context.Context, limit, offset int) ([]License, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	result := make([]License, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, *s.licenses[s.order[i]].Clone())
	}
	return result, int64(total), nil
}

func (s *MemoryStore) RecordUsage(ctx context.Context, event *UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := *event
	ev.Metadata = event.Metadata.Clone()
	s.events = append(s.events, ev)
	return nil
}

// AggregateUsageByKey returns one summary per license key, ordered by key.
func (s *MemoryStore) AggregateUsageByKey(ctx context.Context) ([]UsageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := make(map[string]*UsageSummary)
	devices := make(map[string]map[string]struct{})
	for _, ev := range s.events {
		sum, ok := byKey[ev.LicenseKey]
		if !ok {
			sum = &UsageSummary{LicenseKey: ev.LicenseKey}
			byKey[ev.LicenseKey] = sum
			devices[ev.LicenseKey] = make(map[string]struct{})
		}
		sum.Events++
		if ev.Timestamp.After(sum.LastSeen) {
			sum.LastSeen = ev.Timestamp
		}
		if ev.DeviceID != "" {
			devices[ev.LicenseKey][ev.DeviceID] = struct{}{}
		}
	}

	result := make([]UsageSummary, 0, len(byKey))
	for key, sum := range byKey {
		sum.Devices = int64(len(devices[key]))
		result = append(result, *sum)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LicenseKey < result[j].LicenseKey })
	return result, nil
}

// Events returns a copy of every recorded usage event in insertion order.
func (s *MemoryStore) Events() []UsageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UsageEvent, len(s.events))
	copy(out, s.events)
	return out
}
