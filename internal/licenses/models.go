package licenses

import (
	"time"
)

type License struct {
	Key            string
	CustomerEmail  string
	CustomerName   string
	PurchaseDate   time.Time
	ExpiryDate     time.Time
	IsActive       bool
	MaxActivations int
	Activations    []DeviceActivation
	PlanType       string
	Notes          string
	UpdatedAt      time.Time
}

type DeviceActivation struct {
	DeviceID       string
	ActivationDate time.Time
	LastValidation time.Time
	DeviceInfo     Metadata
}

type UsageEvent struct {
	ID         string
	LicenseKey string
	DeviceID   string
	Action     string
	Metadata   Metadata
	Timestamp  time.Time
}

// UsageSummary is the per-key rollup of raw usage events.
type UsageSummary struct {
	LicenseKey string
	Events     int64
	Devices    int64
	LastSeen   time.Time
}

// IsExpired reports whether now is past the expiry date. A license is still
// usable at exactly its expiry instant.
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiryDate)
}

// FindActivation returns the activation bound to deviceID, if any.
func (l *License) FindActivation(deviceID string) (*DeviceActivation, bool) {
	for i := range l.Activations {
		if l.Activations[i].DeviceID == deviceID {
			return &l.Activations[i], true
		}
	}
	return nil, false
}

func (l *License) ActivationsUsed() int {
	return len(l.Activations)
}

// Clone returns a deep copy so callers never share activation slices with a store.
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	c := *l
	if l.Activations != nil {
		c.Activations = make([]DeviceActivation, len(l.Activations))
		for i, a := range l.Activations {
			a.DeviceInfo = a.DeviceInfo.Clone()
			c.Activations[i] = a
		}
	}
	return &c
}

// MaskKey hides everything but the last group of a license key for logs.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****-" + key[len(key)-4:]
}
