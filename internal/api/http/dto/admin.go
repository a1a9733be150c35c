package dto

import (
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
)

type CreateLicenseRequest struct {
	CustomerEmail  string `json:"customer_email"`
	CustomerName   string `json:"customer_name"`
	PlanType       string `json:"plan_type"`
	DurationMonths int    `json:"duration_months"`
	MaxActivations int    `json:"max_activations"`
	Notes          string `json:"notes"`
}

type DeviceActivationResponse struct {
	DeviceID       string            `json:"device_id"`
	ActivationDate time.Time         `json:"activation_date"`
	LastValidation time.Time         `json:"last_validation"`
	DeviceInfo     licenses.Metadata `json:"device_info"`
}

type LicenseResponse struct {
	LicenseKey     string                     `json:"license_key"`
	CustomerEmail  string                     `json:"customer_email"`
	CustomerName   string                     `json:"customer_name"`
	PurchaseDate   time.Time                  `json:"purchase_date"`
	ExpiryDate     time.Time                  `json:"expiry_date"`
	IsActive       bool                       `json:"is_active"`
	MaxActivations int                        `json:"max_activations"`
	Activations    []DeviceActivationResponse `json:"activations"`
	PlanType       string                     `json:"plan_type,omitempty"`
	Notes          string                     `json:"notes,omitempty"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

type ListLicensesResponse struct {
	Licenses []LicenseResponse `json:"licenses"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func NewLicenseResponse(l *licenses.License) LicenseResponse {
	activations := make([]DeviceActivationResponse, len(l.Activations))
	for i, a := range l.Activations {
		activations[i] = DeviceActivationResponse{
			DeviceID:       a.DeviceID,
			ActivationDate: a.ActivationDate,
			LastValidation: a.LastValidation,
			DeviceInfo:     a.DeviceInfo,
		}
	}
	return LicenseResponse{
		LicenseKey:     l.Key,
		CustomerEmail:  l.CustomerEmail,
		CustomerName:   l.CustomerName,
		PurchaseDate:   l.PurchaseDate,
		ExpiryDate:     l.ExpiryDate,
		IsActive:       l.IsActive,
		MaxActivations: l.MaxActivations,
		Activations:    activations,
		PlanType:       l.PlanType,
		Notes:          l.Notes,
		UpdatedAt:      l.UpdatedAt,
	}
}
