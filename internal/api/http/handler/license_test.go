package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupLicenseRouter(h *LicenseHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/licenses/validate", h.Validate)
	r.POST("/api/v1/licenses/activate", h.Activate)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedLicense(t *testing.T, store licenses.Store, key string, maxActivations int, expiry time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreateLicense(context.Background(), &licenses.License{
		Key:            key,
		CustomerEmail:  "ada@example.com",
		CustomerName:   "Ada",
		PurchaseDate:   now,
		ExpiryDate:     expiry,
		IsActive:       true,
		MaxActivations: maxActivations,
		PlanType:       "pro",
		UpdatedAt:      now,
	}))
}

type brokenStore struct {
	licenses.Store
}

func (brokenStore) FindActiveByKey(context.Context, string) (*licenses.License, error) {
	return nil, errors.New("connection refused")
}

func TestActivateThenValidate(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-AAAA-BBBB-CCCC", 2, time.Now().AddDate(1, 0, 0))
	m := metrics.New()
	h := NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), nil, m)
	r := setupLicenseRouter(h)

	w := doJSON(r, "POST", "/api/v1/licenses/activate", dto.ActivateRequest{
		LicenseKey: "LIC-AAAA-BBBB-CCCC",
		DeviceID:   "device-1",
		DeviceInfo: licenses.Metadata{"os": licenses.String("linux")},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var act dto.ActivateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &act))
	assert.True(t, act.Valid)
	assert.False(t, act.AlreadyActivated)
	assert.Equal(t, 1, act.ActivationsUsed)
	assert.Equal(t, 2, act.ActivationsTotal)
	assert.Equal(t, "pro", act.PlanType)
	require.NotNil(t, act.ExpiryDate)
	assert.Empty(t, act.Receipt)

	w = doJSON(r, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{
		LicenseKey: "LIC-AAAA-BBBB-CCCC",
		DeviceID:   "device-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var val dto.ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &val))
	assert.True(t, val.Valid)
	assert.Empty(t, val.Reason)
	assert.Equal(t, "Ada", val.CustomerName)

	lic, err := store.GetLicense(context.Background(), "LIC-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.Len(t, lic.Activations, 1)
	osName, _ := lic.Activations[0].DeviceInfo["os"].AsString()
	assert.Equal(t, "linux", osName)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Activations.WithLabelValues("activated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues(metrics.ResultValid)))
}

func TestActivateIdempotent(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-0000-0000-0001", 1, time.Now().AddDate(1, 0, 0))
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), nil, nil))

	body := dto.ActivateRequest{LicenseKey: "LIC-0000-0000-0001", DeviceID: "device-1"}
	require.Equal(t, http.StatusOK, doJSON(r, "POST", "/api/v1/licenses/activate", body).Code)

	w := doJSON(r, "POST", "/api/v1/licenses/activate", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ActivateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.True(t, resp.AlreadyActivated)
	assert.Equal(t, 1, resp.ActivationsUsed)
}

func TestActivateRejections(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-FULL-0000-0000", 1, time.Now().AddDate(1, 0, 0))
	seedLicense(t, store, "LIC-OLD0-0000-0000", 1, time.Now().AddDate(0, -1, 0))
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), nil, nil))

	require.Equal(t, http.StatusOK, doJSON(r, "POST", "/api/v1/licenses/activate",
		dto.ActivateRequest{LicenseKey: "LIC-FULL-0000-0000", DeviceID: "first"}).Code)

	tests := []struct {
		name       string
		req        dto.ActivateRequest
		wantStatus int
		wantReason licenses.Reason
	}{
		{"unknown key", dto.ActivateRequest{LicenseKey: "LIC-NOPE-NOPE-NOPE", DeviceID: "d"}, http.StatusNotFound, licenses.ReasonInvalidKey},
		{"expired", dto.ActivateRequest{LicenseKey: "LIC-OLD0-0000-0000", DeviceID: "d"}, http.StatusForbidden, licenses.ReasonExpired},
		{"limit reached", dto.ActivateRequest{LicenseKey: "LIC-FULL-0000-0000", DeviceID: "second"}, http.StatusForbidden, licenses.ReasonLimitReached},
		{"missing device", dto.ActivateRequest{LicenseKey: "LIC-FULL-0000-0000"}, http.StatusBadRequest, licenses.ReasonInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, "POST", "/api/v1/licenses/activate", tt.req)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp dto.ActivateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Valid)
			assert.Equal(t, string(tt.wantReason), resp.Reason)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestValidateRejections(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-AAAA-0000-0000", 1, time.Now().AddDate(1, 0, 0))
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), nil, nil))

	w := doJSON(r, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{LicenseKey: "LIC-AAAA-0000-0000", DeviceID: "never"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), string(licenses.ReasonDeviceNotActivated))

	w = doJSON(r, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{LicenseKey: "LIC-ZZZZ-0000-0000", DeviceID: "d"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(licenses.ReasonNotFoundOrInactive))
}

func TestValidateMalformedBody(t *testing.T) {
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(licenses.NewMemoryStore(), licenses.Config{}), nil, nil))

	req, _ := http.NewRequest("POST", "/api/v1/licenses/validate", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateStoreUnavailable(t *testing.T) {
	m := metrics.New()
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(brokenStore{}, licenses.Config{}), nil, m))

	w := doJSON(r, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{LicenseKey: "LIC-AAAA-0000-0000", DeviceID: "d"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp dto.ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues(metrics.ResultError)))

	w = doJSON(r, "POST", "/api/v1/licenses/activate", dto.ActivateRequest{LicenseKey: "LIC-AAAA-0000-0000", DeviceID: "d"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReceiptIssuedOnSuccess(t *testing.T) {
	store := licenses.NewMemoryStore()
	expiry := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	seedLicense(t, store, "LIC-RCPT-0000-0000", 1, expiry)

	signer, err := receipt.NewSigner(receipt.Config{Secret: "receipt-secret"})
	require.NoError(t, err)
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), signer, nil))

	w := doJSON(r, "POST", "/api/v1/licenses/activate", dto.ActivateRequest{LicenseKey: "LIC-RCPT-0000-0000", DeviceID: "laptop"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ActivateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Receipt)
	require.NotNil(t, resp.ReceiptExpiresAt)
	assert.True(t, resp.ReceiptExpiresAt.Equal(expiry), "receipt must not outlive the license")

	claims, err := signer.Verify(resp.Receipt)
	require.NoError(t, err)
	assert.Equal(t, "LIC-RCPT-0000-0000", claims.LicenseKey)
	assert.Equal(t, "laptop", claims.DeviceID)
	assert.Equal(t, "pro", claims.PlanType)

	w = doJSON(r, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{LicenseKey: "LIC-RCPT-0000-0000", DeviceID: "other"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "receipt")
}

func TestActivateKeepsDeviceInfoNumbers(t *testing.T) {
	store := licenses.NewMemoryStore()
	seedLicense(t, store, "LIC-NUMS-0000-0000", 1, time.Now().AddDate(1, 0, 0))
	r := setupLicenseRouter(NewLicenseHandler(licenses.NewEngine(store, licenses.Config{}), nil, nil))

	body := `{"license_key":"LIC-NUMS-0000-0000","device_id":"rig","device_info":{"serial":9007199254740993,"huge":1e400}}`
	req, _ := http.NewRequest("POST", "/api/v1/licenses/activate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	lic, err := store.GetLicense(context.Background(), "LIC-NUMS-0000-0000")
	require.NoError(t, err)
	require.Len(t, lic.Activations, 1)
	out, err := json.Marshal(lic.Activations[0].DeviceInfo)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"serial":9007199254740993`)
	assert.Contains(t, string(out), `"huge":1e400`)
}
