package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	internalhttp "github.com/EternisAI/silo-license/internal/api/http"
	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/auth"
	"github.com/EternisAI/silo-license/internal/client"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := licenses.NewMemoryStore()
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Engine:      licenses.NewEngine(store, licenses.Config{}),
		Admin:       licenses.NewAdmin(store, licenses.Config{}),
		Recorder:    licenses.NewRecorder(store),
		Verifier:    auth.NewVerifier(adminKey, ""),
		StoreDriver: "memory",
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := client.New(srv.URL+"/", client.WithAdminKey(adminKey))

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	lic, err := c.CreateLicense(ctx, dto.CreateLicenseRequest{
		CustomerEmail:  "lin@example.com",
		CustomerName:   "Lin",
		MaxActivations: 1,
	})
	require.NoError(t, err)

	act, err := c.Activate(ctx, dto.ActivateRequest{LicenseKey: lic.LicenseKey, DeviceID: "desk"})
	require.NoError(t, err)
	assert.True(t, act.Valid)

	full, err := c.Activate(ctx, dto.ActivateRequest{LicenseKey: lic.LicenseKey, DeviceID: "laptop"})
	require.NoError(t, err, "limit reached is a result, not an error")
	assert.False(t, full.Valid)
	assert.Equal(t, string(licenses.ReasonLimitReached), full.Reason)

	val, err := c.Validate(ctx, lic.LicenseKey, "desk")
	require.NoError(t, err)
	assert.True(t, val.Valid)

	recorded, err := c.RecordUsage(ctx, dto.RecordUsageRequest{LicenseKey: lic.LicenseKey, DeviceID: "desk", Action: "launch"})
	require.NoError(t, err)
	assert.True(t, recorded)

	got, err := c.GetLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Len(t, got.Activations, 1)

	list, err := c.ListLicenses(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	deactivated, err := c.DeactivateLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	val, err = c.Validate(ctx, lic.LicenseKey, "desk")
	require.NoError(t, err)
	assert.Equal(t, string(licenses.ReasonNotFoundOrInactive), val.Reason)

	reactivated, err := c.ReactivateLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)

	usage, err := c.UsageSummary(ctx)
	require.NoError(t, err)
	require.Len(t, usage.Usage, 1)
	assert.Equal(t, int64(1), usage.Usage[0].Events)
}

func TestClientAdminErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := client.New(srv.URL).CreateLicense(ctx, dto.CreateLicenseRequest{CustomerEmail: "a@b.c", CustomerName: "A"})
	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "Missing API key", statusErr.Message)

	_, err = client.New(srv.URL, client.WithAdminKey(adminKey)).GetLicense(ctx, "LIC-NONE-0000-0000")
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = client.New(srv.URL, client.WithAdminKey(adminKey)).CreateLicense(ctx, dto.CreateLicenseRequest{CustomerEmail: "a@b.c"})
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestClientServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"valid":false,"message":"License service temporarily unavailable"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := client.New(srv.URL).Validate(context.Background(), "LIC-AAAA-BBBB-CCCC", "desk")
	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "temporarily unavailable")
}
