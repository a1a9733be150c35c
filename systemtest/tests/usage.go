package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsage(t *testing.T, router *gin.Engine, adminKey string) {
	for _, device := range []string{"a", "b", "a"} {
		rr := doJSON(router, "POST", "/api/v1/usage", dto.RecordUsageRequest{
			LicenseKey: "USAGE-ONLY-KEY",
			DeviceID:   device,
			Action:     "open_document",
			Metadata:   licenses.Metadata{"size": licenses.Number(42)},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	}

	rr := doAuthJSON(router, "GET", "/api/v1/admin/usage", nil, adminKey)
	require.Equal(t, http.StatusOK, rr.Code)

	var summary dto.ListUsageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))

	var found bool
	for _, s := range summary.Usage {
		if s.LicenseKey == "USAGE-ONLY-KEY" {
			found = true
			assert.Equal(t, int64(3), s.Events)
			assert.Equal(t, int64(2), s.Devices)
		}
	}
	assert.True(t, found, "usage is recorded for keys that have no license")
}
