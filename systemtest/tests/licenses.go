package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activate(router *gin.Engine, key, device string) (int, dto.ActivateResponse) {
	rr := doJSON(router, "POST", "/api/v1/licenses/activate", dto.ActivateRequest{
		LicenseKey: key,
		DeviceID:   device,
		DeviceInfo: licenses.Metadata{"hostname": licenses.String(device)},
	})
	var resp dto.ActivateResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return rr.Code, resp
}

func validate(router *gin.Engine, key, device string) (int, dto.ValidateResponse) {
	rr := doJSON(router, "POST", "/api/v1/licenses/validate", dto.ValidateRequest{LicenseKey: key, DeviceID: device})
	var resp dto.ValidateResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return rr.Code, resp
}

func TestLicenseLifecycle(t *testing.T, router *gin.Engine, adminKey string, signer *receipt.Signer) {
	lic := createLicense(t, router, adminKey, dto.CreateLicenseRequest{
		CustomerEmail:  "system@example.com",
		CustomerName:   "System Test",
		PlanType:       "pro",
		MaxActivations: 2,
	})
	assert.True(t, lic.IsActive)
	assert.Empty(t, lic.Activations)

	t.Run("device not activated", func(t *testing.T) {
		code, resp := validate(router, lic.LicenseKey, "laptop")
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, string(licenses.ReasonDeviceNotActivated), resp.Reason)
	})

	t.Run("activate and validate", func(t *testing.T) {
		code, resp := activate(router, lic.LicenseKey, "laptop")
		require.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Valid)
		assert.Equal(t, 1, resp.ActivationsUsed)

		claims, err := signer.Verify(resp.Receipt)
		require.NoError(t, err)
		assert.Equal(t, "laptop", claims.DeviceID)

		code, val := validate(router, lic.LicenseKey, "laptop")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, val.Valid)
		assert.Equal(t, "pro", val.PlanType)
	})

	t.Run("re-activation is idempotent", func(t *testing.T) {
		code, resp := activate(router, lic.LicenseKey, "laptop")
		require.Equal(t, http.StatusOK, code)
		assert.True(t, resp.AlreadyActivated)
		assert.Equal(t, 1, resp.ActivationsUsed)
	})

	t.Run("limit reached", func(t *testing.T) {
		code, _ := activate(router, lic.LicenseKey, "desktop")
		require.Equal(t, http.StatusOK, code)

		code, resp := activate(router, lic.LicenseKey, "tablet")
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, string(licenses.ReasonLimitReached), resp.Reason)
		assert.Equal(t, 2, resp.ActivationsUsed)

		code, resp = activate(router, lic.LicenseKey, "desktop")
		assert.Equal(t, http.StatusOK, code, "an activated device keeps working on a full license")
		assert.True(t, resp.AlreadyActivated)
	})

	t.Run("deactivate and reactivate", func(t *testing.T) {
		rr := doAuthJSON(router, "POST", "/api/v1/admin/licenses/"+lic.LicenseKey+"/deactivate", nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)

		code, resp := validate(router, lic.LicenseKey, "laptop")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, string(licenses.ReasonNotFoundOrInactive), resp.Reason)

		code, act := activate(router, lic.LicenseKey, "laptop")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, string(licenses.ReasonInvalidKey), act.Reason)

		rr = doAuthJSON(router, "POST", "/api/v1/admin/licenses/"+lic.LicenseKey+"/reactivate", nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)

		code, _ = validate(router, lic.LicenseKey, "laptop")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("stored activations", func(t *testing.T) {
		rr := doAuthJSON(router, "GET", "/api/v1/admin/licenses/"+lic.LicenseKey, nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var got dto.LicenseResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got.Activations, 2)
		assert.Equal(t, "laptop", got.Activations[0].DeviceID)
		assert.Equal(t, "desktop", got.Activations[1].DeviceID)
		hostname, _ := got.Activations[0].DeviceInfo["hostname"].AsString()
		assert.Equal(t, "laptop", hostname)
		assert.False(t, got.Activations[0].LastValidation.Before(got.Activations[0].ActivationDate))
	})
}

func TestConcurrentActivation(t *testing.T, router *gin.Engine, adminKey string) {
	const (
		capacity = 3
		devices  = 30
	)
	lic := createLicense(t, router, adminKey, dto.CreateLicenseRequest{
		CustomerEmail:  "race@example.com",
		CustomerName:   "Race",
		MaxActivations: capacity,
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		limited int
	)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, resp := activate(router, lic.LicenseKey, fmt.Sprintf("device-%02d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case code == http.StatusOK && resp.Valid:
				granted++
			case resp.Reason == string(licenses.ReasonLimitReached):
				limited++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, granted)
	assert.Equal(t, devices-capacity, limited)

	rr := doAuthJSON(router, "GET", "/api/v1/admin/licenses/"+lic.LicenseKey, nil, adminKey)
	require.Equal(t, http.StatusOK, rr.Code)
	var got dto.LicenseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Activations, capacity)
}

func TestAdminPaging(t *testing.T, router *gin.Engine, adminKey string) {
	rr := doAuthJSON(router, "GET", "/api/v1/admin/licenses?page=1&page_size=1", nil, adminKey)
	require.Equal(t, http.StatusOK, rr.Code)

	var page dto.ListLicensesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.GreaterOrEqual(t, page.Total, int64(2))
	assert.Len(t, page.Licenses, 1)

	rr = doAuthJSON(router, "POST", "/api/v1/admin/licenses", dto.CreateLicenseRequest{CustomerName: "No Email"}, adminKey)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doAuthJSON(router, "GET", "/api/v1/admin/licenses/LIC-0000-0000-0000", nil, adminKey)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
