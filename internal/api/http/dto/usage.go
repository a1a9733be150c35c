package dto

import (
	"time"

	"github.com/EternisAI/silo-license/internal/licenses"
)

type RecordUsageRequest struct {
	LicenseKey string            `json:"license_key"`
	DeviceID   string            `json:"device_id"`
	Action     string            `json:"action"`
	Metadata   licenses.Metadata `json:"metadata"`
}

type RecordUsageResponse struct {
	Success bool `json:"success"`
}

type UsageSummaryResponse struct {
	LicenseKey string    `json:"license_key"`
	Events     int64     `json:"events"`
	Devices    int64     `json:"devices"`
	LastSeen   time.Time `json:"last_seen"`
}

type ListUsageResponse struct {
	Usage []UsageSummaryResponse `json:"usage"`
}
