package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type License struct {
	LicenseKey      string
	CustomerEmail   string
	CustomerName    string
	PurchaseDate    pgtype.Timestamptz
	ExpiryDate      pgtype.Timestamptz
	IsActive        bool
	MaxActivations  int32
	ActivationCount int32
	PlanType        string
	Notes           string
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

type DeviceActivation struct {
	ID             int64
	LicenseKey     string
	DeviceID       string
	DeviceInfo     []byte
	ActivationDate pgtype.Timestamptz
	LastValidation pgtype.Timestamptz
}

type UsageEvent struct {
	ID         pgtype.UUID
	LicenseKey string
	DeviceID   string
	Action     string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

type UsageSummaryRow struct {
	LicenseKey string
	Events     int64
	Devices    int64
	LastSeen   pgtype.Timestamptz
}
