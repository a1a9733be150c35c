package handler

import (
	"log/slog"
	"net/http"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	recorder *licenses.Recorder
	metrics  *metrics.Metrics
}

func NewUsageHandler(recorder *licenses.Recorder, m *metrics.Metrics) *UsageHandler {
	return &UsageHandler{recorder: recorder, metrics: m}
}

// Record appends a usage event. It answers 200 even when the event is
// dropped; success=false tells the caller it was not stored.
// POST /api/v1/usage
func (h *UsageHandler) Record(ctx *gin.Context) {
	var req dto.RecordUsageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		slog.Debug("Dropping malformed usage event", "error", err)
		h.metrics.ObserveUsage(false)
		ctx.JSON(http.StatusOK, dto.RecordUsageResponse{Success: false})
		return
	}

	result := h.recorder.Record(ctx.Request.Context(), licenses.RecordParams{
		LicenseKey: req.LicenseKey,
		DeviceID:   req.DeviceID,
		Action:     req.Action,
		Metadata:   req.Metadata,
	})
	h.metrics.ObserveUsage(result.Success)

	ctx.JSON(http.StatusOK, dto.RecordUsageResponse{Success: result.Success})
}

// Summary returns per-license event counts.
// GET /api/v1/admin/usage
func (h *UsageHandler) Summary(ctx *gin.Context) {
	summary, err := h.recorder.Summary(ctx.Request.Context())
	if err != nil {
		slog.Error("Failed to summarize usage", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize usage"})
		return
	}

	resp := dto.ListUsageResponse{Usage: make([]dto.UsageSummaryResponse, len(summary))}
	for i, s := range summary {
		resp.Usage[i] = dto.UsageSummaryResponse{
			LicenseKey: s.LicenseKey,
			Events:     s.Events,
			Devices:    s.Devices,
			LastSeen:   s.LastSeen,
		}
	}
	ctx.JSON(http.StatusOK, resp)
}
