package licenses

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reason explains why a validate or activate call was rejected.
type Reason string

const (
	ReasonNotFoundOrInactive Reason = "not_found_or_inactive"
	ReasonInvalidKey         Reason = "invalid_key"
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonExpired            Reason = "expired"
	ReasonDeviceNotActivated Reason = "device_not_activated"
	ReasonLimitReached       Reason = "limit_reached"
)

var reasonMessages = map[Reason]string{
	ReasonNotFoundOrInactive: "Invalid or inactive license",
	ReasonInvalidKey:         "Invalid license key",
	ReasonInvalidRequest:     "License key and device ID are required",
	ReasonExpired:            "License has expired",
	ReasonDeviceNotActivated: "Device is not activated for this license",
	ReasonLimitReached:       "Maximum number of activations reached",
}

// Message returns the human-readable text sent alongside the reason.
func (r Reason) Message() string {
	return reasonMessages[r]
}

// ValidationResult is the outcome of Validate. Reason is empty when Valid.
type ValidationResult struct {
	Valid        bool
	Reason       Reason
	Message      string
	ExpiryDate   time.Time
	CustomerName string
	PlanType     string
}

// ActivationResult is the outcome of Activate. On success the activation
// counters reflect the license after the call.
type ActivationResult struct {
	Valid            bool
	Reason           Reason
	Message          string
	AlreadyActivated bool
	ExpiryDate       time.Time
	CustomerName     string
	PlanType         string
	ActivationsUsed  int
	ActivationsTotal int
	MaxActivations   int
}

// Engine runs the activation state machine against a LicenseStore.
// It holds no per-license state between calls.
type Engine struct {
	store   LicenseStore
	timeout time.Duration
	now     func() time.Time
}

// NewEngine applies config defaults; StoreTimeout bounds each store call.
func NewEngine(store LicenseStore, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:   store,
		timeout: cfg.StoreTimeout,
		now:     time.Now,
	}
}

// Validate checks that deviceID holds an activation on an active, unexpired
// license. Domain outcomes are reported in the result; the error is non-nil
// only for transient store failures and then wraps ErrTransient.
func (e *Engine) Validate(ctx context.Context, key, deviceID string) (*ValidationResult, error) {
	if key == "" || deviceID == "" {
		return rejectValidation(ReasonInvalidRequest), nil
	}

	lic, err := e.findActive(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Debug("Validation for unknown or inactive license", "license", MaskKey(key), "device_id", deviceID)
			return rejectValidation(ReasonNotFoundOrInactive), nil
		}
		return nil, transient("find license", err)
	}

	now := e.now()
	if lic.IsExpired(now) {
		return rejectValidation(ReasonExpired), nil
	}

	if _, ok := lic.FindActivation(deviceID); !ok {
		return rejectValidation(ReasonDeviceNotActivated), nil
	}

	e.touch(ctx, key, deviceID, now)

	return &ValidationResult{
		Valid:        true,
		Message:      "License is valid",
		ExpiryDate:   lic.ExpiryDate,
		CustomerName: lic.CustomerName,
		PlanType:     lic.PlanType,
	}, nil
}

// Activate binds deviceID to the license, consuming one activation slot.
// Re-activating a device that already holds a slot always succeeds and never
// consumes a second slot, even when the license is full. The stored
// fingerprint is not compared against the supplied one on that path.
func (e *Engine) Activate(ctx context.Context, key, deviceID string, fingerprint Metadata) (*ActivationResult, error) {
	if key == "" || deviceID == "" {
		return rejectActivation(ReasonInvalidRequest), nil
	}

	lic, err := e.findActive(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Warn("Activation attempt with invalid key", "license", MaskKey(key), "device_id", deviceID)
			return rejectActivation(ReasonInvalidKey), nil
		}
		return nil, transient("find license", err)
	}

	now := e.now()
	if lic.IsExpired(now) {
		return rejectActivation(ReasonExpired), nil
	}

	if _, ok := lic.FindActivation(deviceID); ok {
		e.touch(ctx, key, deviceID, now)
		return alreadyActivated(lic), nil
	}

	if lic.ActivationsUsed() >= lic.MaxActivations {
		return limitReached(lic), nil
	}

	activation := DeviceActivation{
		DeviceID:       deviceID,
		ActivationDate: now,
		LastValidation: now,
		DeviceInfo:     fingerprint.Clone(),
	}

	storeCtx, cancel := e.storeContext(ctx)
	updated, err := e.store.AppendActivation(storeCtx, key, activation, lic.MaxActivations)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, ErrLimitExceeded):
			// Lost the capacity race to a concurrent activation. Not retried.
			slog.Info("Activation lost capacity race",
				"license", MaskKey(key),
				"device_id", deviceID,
				"max_activations", lic.MaxActivations)
			res := limitReached(lic)
			res.ActivationsUsed = lic.MaxActivations
			return res, nil
		case errors.Is(err, ErrDeviceAlreadyActivated):
			// The same device won a concurrent activation of its own.
			return alreadyActivated(e.refresh(ctx, lic)), nil
		case errors.Is(err, ErrNotFound):
			return rejectActivation(ReasonInvalidKey), nil
		default:
			return nil, transient("append activation", err)
		}
	}

	slog.Info("Device activated",
		"license", MaskKey(key),
		"device_id", deviceID,
		"activations_used", updated.ActivationsUsed(),
		"max_activations", updated.MaxActivations)

	return &ActivationResult{
		Valid:            true,
		Message:          "Device activated",
		ExpiryDate:       updated.ExpiryDate,
		CustomerName:     updated.CustomerName,
		PlanType:         updated.PlanType,
		ActivationsUsed:  updated.ActivationsUsed(),
		ActivationsTotal: updated.MaxActivations,
		MaxActivations:   updated.MaxActivations,
	}, nil
}

func (e *Engine) findActive(ctx context.Context, key string) (*License, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.store.FindActiveByKey(storeCtx, key)
}

// touch records lastValidation. Failures are logged and otherwise ignored.
func (e *Engine) touch(ctx context.Context, key, deviceID string, at time.Time) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.store.TouchActivation(storeCtx, key, deviceID, at); err != nil {
		slog.Warn("Failed to record last validation",
			"license", MaskKey(key),
			"device_id", deviceID,
			"error", err)
	}
}

// refresh re-reads the license after a lost race, falling back to the stale copy.
func (e *Engine) refresh(ctx context.Context, stale *License) *License {
	lic, err := e.findActive(ctx, stale.Key)
	if err != nil {
		return stale
	}
	return lic
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return storeContext(ctx, e.timeout)
}

func rejectValidation(reason Reason) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason, Message: reason.Message()}
}

func rejectActivation(reason Reason) *ActivationResult {
	return &ActivationResult{Valid: false, Reason: reason, Message: reason.Message()}
}

func limitReached(lic *License) *ActivationResult {
	res := rejectActivation(ReasonLimitReached)
	res.MaxActivations = lic.MaxActivations
	res.ActivationsUsed = lic.ActivationsUsed()
	res.ActivationsTotal = lic.MaxActivations
	return res
}

func alreadyActivated(lic *License) *ActivationResult {
	return &ActivationResult{
		Valid:            true,
		Message:          "Device already activated",
		AlreadyActivated: true,
		ExpiryDate:       lic.ExpiryDate,
		CustomerName:     lic.CustomerName,
		PlanType:         lic.PlanType,
		ActivationsUsed:  lic.ActivationsUsed(),
		ActivationsTotal: lic.MaxActivations,
		MaxActivations:   lic.MaxActivations,
	}
}
