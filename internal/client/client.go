// Package client is a typed HTTP client for the license service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 4 << 20
)

// StatusError is returned for responses that carry no license result.
type StatusError struct {
	StatusCode int
	Message    string
	body       []byte
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("license server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("license server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
}

type Option func(*Client)

// WithAdminKey sets the bearer credential sent on admin routes.
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate returns the server's verdict. Rejections such as an expired
// license come back as a result with Valid=false, not as an error.
func (c *Client) Validate(ctx context.Context, licenseKey, deviceID string) (*dto.ValidateResponse, error) {
	var out dto.ValidateResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/licenses/validate", dto.ValidateRequest{
		LicenseKey: licenseKey,
		DeviceID:   deviceID,
	}, &out, false)
	if err != nil && !rejection(err, &out) {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Activate(ctx context.Context, req dto.ActivateRequest) (*dto.ActivateResponse, error) {
	var out dto.ActivateResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/licenses/activate", req, &out, false)
	if err != nil && !rejection(err, &out) {
		return nil, err
	}
	return &out, nil
}

// RecordUsage reports whether the server stored the event.
func (c *Client) RecordUsage(ctx context.Context, req dto.RecordUsageRequest) (bool, error) {
	var out dto.RecordUsageResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/usage", req, &out, false); err != nil {
		return false, err
	}
	return out.Success, nil
}

func (c *Client) CreateLicense(ctx context.Context, req dto.CreateLicenseRequest) (*dto.LicenseResponse, error) {
	var out dto.LicenseResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/licenses", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListLicenses(ctx context.Context, page, pageSize int) (*dto.ListLicensesResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out dto.ListLicensesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/licenses?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetLicense(ctx context.Context, key string) (*dto.LicenseResponse, error) {
	var out dto.LicenseResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/licenses/"+url.PathEscape(key), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeactivateLicense(ctx context.Context, key string) (*dto.LicenseResponse, error) {
	var out dto.LicenseResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/licenses/"+url.PathEscape(key)+"/deactivate", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReactivateLicense(ctx context.Context, key string) (*dto.LicenseResponse, error) {
	var out dto.LicenseResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/licenses/"+url.PathEscape(key)+"/reactivate", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UsageSummary(ctx context.Context) (*dto.ListUsageResponse, error) {
	var out dto.ListUsageResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/usage", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var out dto.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, admin bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := &StatusError{StatusCode: resp.StatusCode, body: data}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			statusErr.Message = payload.Error
			if statusErr.Message == "" {
				statusErr.Message = payload.Message
			}
		}
		return statusErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// rejection decodes a 4xx body carrying a license result into out.
func rejection(err error, out any) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
	default:
		return false
	}

	var probe struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(statusErr.body, &probe) != nil || probe.Reason == "" {
		return false
	}
	return json.Unmarshal(statusErr.body, out) == nil
}
