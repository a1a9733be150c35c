package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/gin-gonic/gin"
)

const unavailableMessage = "License service temporarily unavailable"

type LicenseHandler struct {
	engine   *licenses.Engine
	receipts *receipt.Signer
	metrics  *metrics.Metrics
}

// NewLicenseHandler wires the public license routes. receipts and m may be nil.
func NewLicenseHandler(engine *licenses.Engine, receipts *receipt.Signer, m *metrics.Metrics) *LicenseHandler {
	return &LicenseHandler{
		engine:   engine,
		receipts: receipts,
		metrics:  m,
	}
}

// Validate checks a device's activation against its license.
// POST /api/v1/licenses/validate
func (h *LicenseHandler) Validate(ctx *gin.Context) {
	var req dto.ValidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := h.engine.Validate(ctx.Request.Context(), req.LicenseKey, req.DeviceID)
	h.metrics.ObserveDuration("validate", time.Since(start))
	if err != nil {
		slog.Error("Failed to validate license",
			"license", licenses.MaskKey(req.LicenseKey),
			"device_id", req.DeviceID,
			"error", err)
		h.metrics.ObserveValidation(metrics.ResultError)
		ctx.JSON(http.StatusServiceUnavailable, dto.ValidateResponse{Valid: false, Message: unavailableMessage})
		return
	}

	resp := dto.NewValidateResponse(result)
	if result.Valid {
		h.metrics.ObserveValidation(metrics.ResultValid)
		resp.Receipt, resp.ReceiptExpiresAt = h.issueReceipt(req.LicenseKey, req.DeviceID, result.PlanType, result.ExpiryDate)
	} else {
		h.metrics.ObserveValidation(string(result.Reason))
	}

	ctx.JSON(statusForReason(result.Reason), resp)
}

// Activate binds a device to a license, consuming an activation slot.
// POST /api/v1/licenses/activate
func (h *LicenseHandler) Activate(ctx *gin.Context) {
	var req dto.ActivateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := h.engine.Activate(ctx.Request.Context(), req.LicenseKey, req.DeviceID, req.DeviceInfo)
	h.metrics.ObserveDuration("activate", time.Since(start))
	if err != nil {
		slog.Error("Failed to activate device",
			"license", licenses.MaskKey(req.LicenseKey),
			"device_id", req.DeviceID,
			"error", err)
		h.metrics.ObserveActivation(metrics.ResultError)
		ctx.JSON(http.StatusServiceUnavailable, dto.ActivateResponse{Valid: false, Message: unavailableMessage})
		return
	}

	resp := dto.NewActivateResponse(result)
	if result.Valid {
		outcome := "activated"
		if result.AlreadyActivated {
			outcome = "already_activated"
		}
		h.metrics.ObserveActivation(outcome)
		resp.Receipt, resp.ReceiptExpiresAt = h.issueReceipt(req.LicenseKey, req.DeviceID, result.PlanType, result.ExpiryDate)
	} else {
		h.metrics.ObserveActivation(string(result.Reason))
	}

	ctx.JSON(statusForReason(result.Reason), resp)
}

// issueReceipt signs a receipt when a signer is configured. A signing failure
// leaves the response without a receipt.
func (h *LicenseHandler) issueReceipt(key, deviceID, planType string, expiry time.Time) (string, *time.Time) {
	if h.receipts == nil {
		return "", nil
	}
	token, expiresAt, err := h.receipts.Issue(key, deviceID, planType, expiry)
	if err != nil {
		slog.Error("Failed to issue receipt", "license", licenses.MaskKey(key), "error", err)
		return "", nil
	}
	return token, &expiresAt
}

func statusForReason(reason licenses.Reason) int {
	switch reason {
	case "":
		return http.StatusOK
	case licenses.ReasonInvalidRequest:
		return http.StatusBadRequest
	case licenses.ReasonNotFoundOrInactive, licenses.ReasonInvalidKey:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}
