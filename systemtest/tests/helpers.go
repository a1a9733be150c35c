package tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	return doAuthJSON(router, method, path, body, "")
}

func doAuthJSON(router *gin.Engine, method, path string, body any, adminKey string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createLicense(t *testing.T, router *gin.Engine, adminKey string, req dto.CreateLicenseRequest) dto.LicenseResponse {
	t.Helper()
	rr := doAuthJSON(router, "POST", "/api/v1/admin/licenses", req, adminKey)
	require.Equal(t, 201, rr.Code, rr.Body.String())

	var lic dto.LicenseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lic))
	return lic
}
