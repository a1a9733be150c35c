package tests

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := doJSON(router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","store":"postgres"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T, router *gin.Engine) {
	rr := doJSON(router, "GET", "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestAdminAuth(t *testing.T, router *gin.Engine, adminKey string) {
	t.Run("missing key", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/admin/licenses", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rr := doAuthJSON(router, "GET", "/api/v1/admin/licenses", nil, adminKey+"x")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		rr := doAuthJSON(router, "GET", "/api/v1/admin/licenses", nil, adminKey)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
