package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var licenseKeyPattern = regexp.MustCompile(`^LIC-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func setupAdminRouter(h *AdminHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/admin/licenses", h.CreateLicense)
	r.GET("/api/v1/admin/licenses", h.ListLicenses)
	r.GET("/api/v1/admin/licenses/:key", h.GetLicense)
	r.POST("/api/v1/admin/licenses/:key/deactivate", h.DeactivateLicense)
	r.POST("/api/v1/admin/licenses/:key/reactivate", h.ReactivateLicense)
	return r
}

type failingListStore struct {
	licenses.Store
}

func (failingListStore) ListLicenses(context.Context, int, int) ([]licenses.License, int64, error) {
	return nil, 0, errors.New("connection reset")
}

func TestCreateLicense(t *testing.T) {
	store := licenses.NewMemoryStore()
	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(store, licenses.Config{})))

	w := doJSON(r, "POST", "/api/v1/admin/licenses", dto.CreateLicenseRequest{
		CustomerEmail:  "  grace@example.com ",
		CustomerName:   "Grace",
		PlanType:       "team",
		MaxActivations: 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.LicenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, licenseKeyPattern, resp.LicenseKey)
	assert.Equal(t, "grace@example.com", resp.CustomerEmail)
	assert.True(t, resp.IsActive)
	assert.Equal(t, 3, resp.MaxActivations)
	assert.Empty(t, resp.Activations)
	assert.Equal(t, resp.PurchaseDate.AddDate(0, 12, 0).Unix(), resp.ExpiryDate.Unix())

	_, err := store.GetLicense(context.Background(), resp.LicenseKey)
	assert.NoError(t, err)
}

func TestCreateLicenseValidation(t *testing.T) {
	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(licenses.NewMemoryStore(), licenses.Config{})))

	tests := []struct {
		name string
		req  dto.CreateLicenseRequest
	}{
		{"blank email", dto.CreateLicenseRequest{CustomerEmail: "   ", CustomerName: "Grace"}},
		{"missing name", dto.CreateLicenseRequest{CustomerEmail: "grace@example.com"}},
		{"negative duration", dto.CreateLicenseRequest{CustomerEmail: "g@example.com", CustomerName: "G", DurationMonths: -1}},
		{"negative activations", dto.CreateLicenseRequest{CustomerEmail: "g@example.com", CustomerName: "G", MaxActivations: -2}},
		{"activations wrapping to one", dto.CreateLicenseRequest{CustomerEmail: "g@example.com", CustomerName: "G", MaxActivations: 4294967297}},
		{"activations beyond int32", dto.CreateLicenseRequest{CustomerEmail: "g@example.com", CustomerName: "G", MaxActivations: 2147483648}},
		{"term too long", dto.CreateLicenseRequest{CustomerEmail: "g@example.com", CustomerName: "G", DurationMonths: 100000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, "POST", "/api/v1/admin/licenses", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid")
		})
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-KILL-0000-0000", 1, time.Now().AddDate(1, 0, 0))
	engine := licenses.NewEngine(store, licenses.Config{})
	_, err := engine.Activate(context.Background(), "LIC-KILL-0000-0000", "device-1", nil)
	require.NoError(t, err)

	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(store, licenses.Config{})))

	w := doJSON(r, "POST", "/api/v1/admin/licenses/LIC-KILL-0000-0000/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.LicenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsActive)
	assert.Len(t, resp.Activations, 1, "deactivation keeps activation records")

	result, err := engine.Validate(context.Background(), "LIC-KILL-0000-0000", "device-1")
	require.NoError(t, err)
	assert.Equal(t, licenses.ReasonNotFoundOrInactive, result.Reason)

	w = doJSON(r, "POST", "/api/v1/admin/licenses/LIC-KILL-0000-0000/reactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	result, err = engine.Validate(context.Background(), "LIC-KILL-0000-0000", "device-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestAdminUnknownLicense(t *testing.T) {
	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(licenses.NewMemoryStore(), licenses.Config{})))

	assert.Equal(t, http.StatusNotFound, doJSON(r, "GET", "/api/v1/admin/licenses/LIC-NONE-0000-0000", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, "POST", "/api/v1/admin/licenses/LIC-NONE-0000-0000/deactivate", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, "POST", "/api/v1/admin/licenses/LIC-NONE-0000-0000/reactivate", nil).Code)
}

func TestListLicensesPaging(t *testing.T) {
	store := licenses.NewMemoryStore()
	for i := 0; i < 5; i++ {
		seedLicense(t, store, fmt.Sprintf("LIC-0000-0000-000%d", i), 1, time.Now().AddDate(1, 0, 0))
	}
	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(store, licenses.Config{})))

	w := doJSON(r, "GET", "/api/v1/admin/licenses?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListLicensesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.PageSize)
	require.Len(t, resp.Licenses, 2)
	assert.Equal(t, "LIC-0000-0000-0002", resp.Licenses[0].LicenseKey)
	assert.Equal(t, "LIC-0000-0000-0001", resp.Licenses[1].LicenseKey)

	w = doJSON(r, "GET", "/api/v1/admin/licenses?page=0&page_size=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PageSize)
	assert.Len(t, resp.Licenses, 5)

	w = doJSON(r, "GET", "/api/v1/admin/licenses?page=99999999999&page_size=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, licenses.MaxPage, resp.Page)
	assert.Empty(t, resp.Licenses)
	assert.Equal(t, int64(5), resp.Total)
}

func TestListLicensesStoreFailure(t *testing.T) {
	r := setupAdminRouter(NewAdminHandler(licenses.NewAdmin(failingListStore{}, licenses.Config{})))

	w := doJSON(r, "GET", "/api/v1/admin/licenses", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}
