package dto

import (
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
)

type ValidateRequest struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
}

type ValidateResponse struct {
	Valid            bool       `json:"valid"`
	Reason           string     `json:"reason,omitempty"`
	Message          string     `json:"message"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	CustomerName     string     `json:"customer_name,omitempty"`
	PlanType         string     `json:"plan_type,omitempty"`
	Receipt          string     `json:"receipt,omitempty"`
	ReceiptExpiresAt *time.Time `json:"receipt_expires_at,omitempty"`
}

type ActivateRequest struct {
	LicenseKey string            `json:"license_key"`
	DeviceID   string            `json:"device_id"`
	DeviceInfo licenses.Metadata `json:"device_info"`
}

type ActivateResponse struct {
	Valid            bool       `json:"valid"`
	Reason           string     `json:"reason,omitempty"`
	Message          string     `json:"message"`
	AlreadyActivated bool       `json:"already_activated,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	CustomerName     string     `json:"customer_name,omitempty"`
	PlanType         string     `json:"plan_type,omitempty"`
	ActivationsUsed  int        `json:"activations_used"`
	ActivationsTotal int        `json:"activations_total"`
	MaxActivations   int        `json:"max_activations,omitempty"`
	Receipt          string     `json:"receipt,omitempty"`
	ReceiptExpiresAt *time.Time `json:"receipt_expires_at,omitempty"`
}

func NewValidateResponse(r *licenses.ValidationResult) ValidateResponse {
	resp := ValidateResponse{
		Valid:        r.Valid,
		Reason:       string(r.Reason),
		Message:      r.Message,
		CustomerName: r.CustomerName,
		PlanType:     r.PlanType,
	}
	if !r.ExpiryDate.IsZero() {
		expiry := r.ExpiryDate
		resp.ExpiryDate = &expiry
	}
	return resp
}

func NewActivateResponse(r *licenses.ActivationResult) ActivateResponse {
	resp := ActivateResponse{
		Valid:            r.Valid,
		Reason:           string(r.Reason),
		Message:          r.Message,
		AlreadyActivated: r.AlreadyActivated,
		CustomerName:     r.CustomerName,
		PlanType:         r.PlanType,
		ActivationsUsed:  r.ActivationsUsed,
		ActivationsTotal: r.ActivationsTotal,
		MaxActivations:   r.MaxActivations,
	}
	if !r.ExpiryDate.IsZero() {
		expiry := r.ExpiryDate
		resp.ExpiryDate = &expiry
	}
	return resp
}
