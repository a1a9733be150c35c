package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 2 * time.Second

// Pinger is implemented by stores that hold a connection worth checking.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  string
	pinger Pinger
}

// NewHealthHandler reports store as the configured driver name. pinger may be nil.
func NewHealthHandler(store string, pinger Pinger) *HealthHandler {
	return &HealthHandler{store: store, pinger: pinger}
}

// Check reports liveness and, when a pinger is set, store reachability.
// GET /health
func (h *HealthHandler) Check(ctx *gin.Context) {
	if h.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.pinger.Ping(pingCtx); err != nil {
			slog.Error("Health check failed", "store", h.store, "error", err)
			ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable", Store: h.store})
			return
		}
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: h.store})
}
