package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type droppingUsageStore struct{}

func (droppingUsageStore) RecordUsage(context.Context, *licenses.UsageEvent) error {
	return errors.New("disk full")
}

func (droppingUsageStore) AggregateUsageByKey(context.Context) ([]licenses.UsageSummary, error) {
	return nil, errors.New("disk full")
}

func setupUsageRouter(h *UsageHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/usage", h.Record)
	r.GET("/api/v1/admin/usage", h.Summary)
	return r
}

func TestRecordUsage(t *testing.T) {
	store := licenses.NewMemoryStore()
	m := metrics.New()
	r := setupUsageRouter(NewUsageHandler(licenses.NewRecorder(store), m))

	w := doJSON(r, "POST", "/api/v1/usage", dto.RecordUsageRequest{
		LicenseKey: "any-key-at-all",
		DeviceID:   "device-1",
		Action:     "export",
		Metadata:   licenses.Metadata{"pages": licenses.Number(3)},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.RecordUsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "export", events[0].Action)
	pages, ok := events[0].Metadata["pages"].AsNumber()
	require.True(t, ok)
	assert.Equal(t, 3.0, pages)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsageEvents.WithLabelValues("recorded")))
}

func TestRecordUsageSoftFailure(t *testing.T) {
	r := setupUsageRouter(NewUsageHandler(licenses.NewRecorder(droppingUsageStore{}), nil))

	w := doJSON(r, "POST", "/api/v1/usage", dto.RecordUsageRequest{LicenseKey: "k", Action: "open"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.RecordUsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestUsageSummary(t *testing.T) {
	store := licenses.NewMemoryStore()
	r := setupUsageRouter(NewUsageHandler(licenses.NewRecorder(store), nil))

	for _, dev := range []string{"a", "b", "a"} {
		doJSON(r, "POST", "/api/v1/usage", dto.RecordUsageRequest{LicenseKey: "LIC-1", DeviceID: dev, Action: "open"})
	}

	w := doJSON(r, "GET", "/api/v1/admin/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListUsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Usage, 1)
	assert.Equal(t, "LIC-1", resp.Usage[0].LicenseKey)
	assert.Equal(t, int64(3), resp.Usage[0].Events)
	assert.Equal(t, int64(2), resp.Usage[0].Devices)

	broken := setupUsageRouter(NewUsageHandler(licenses.NewRecorder(droppingUsageStore{}), nil))
	assert.Equal(t, http.StatusInternalServerError, doJSON(broken, "GET", "/api/v1/admin/usage", nil).Code)
}
