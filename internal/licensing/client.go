// Package licensing implements the activation wire protocol and the
// locally cached license record. The activation server is an external
// collaborator; the client here only speaks the three POST endpoints and
// maps their status codes onto typed errors.
package licensing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/logging"
)

// Activation failure modes, mapped from the server's status codes.
var (
	ErrActivationFailed        = errors.New("license activation failed")
	ErrTrialAlreadyUsed        = errors.New("trial already used")
	ErrLicenseNotFound         = errors.New("license not found")
	ErrLicenseAlreadyActivated = errors.New("license already activated")
	ErrServiceUnavailable      = errors.New("licensing service unavailable")
)

// errFromStatus maps an activation-server status code onto the typed
// error set; unknown codes keep the status and body for the log line.
func errFromStatus(status int, body string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrActivationFailed, body)
	case http.StatusForbidden:
		return ErrTrialAlreadyUsed
	case http.StatusNotFound:
		return ErrLicenseNotFound
	case http.StatusConflict:
		return ErrLicenseAlreadyActivated
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		return fmt.Errorf("activation server returned %d: %s", status, body)
	}
}

// ActivationResponse is the server's successful reply to any of the
// three endpoints.
type ActivationResponse struct {
	InstanceID  string `json:"instanceId"`
	LicenseKey  string `json:"licenseKey"`
	User        string `json:"user"`
	Mode        string `json:"mode"`
	AIMode      string `json:"aiMode"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	TrialEndsAt string `json:"trialEndsAt,omitempty"`
}

// Client speaks the activation wire protocol.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds an activation client; baseURL has no trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logging.WithComponent("licensing"),
	}
}

// Activate binds a license key to this instance.
func (c *Client) Activate(ctx context.Context, instanceName, licenseKey string) (*ActivationResponse, error) {
	return c.post(ctx, "/v1/activate", map[string]string{
		"instanceName": instanceName,
		"licenseKey":   licenseKey,
	})
}

// Trial starts a trial for this instance and email.
func (c *Client) Trial(ctx context.Context, instanceName, email string) (*ActivationResponse, error) {
	return c.post(ctx, "/v1/trial", map[string]string{
		"instanceName": instanceName,
		"email":        email,
	})
}

// Validate re-checks a previously activated key.
func (c *Client) Validate(ctx context.Context, licenseKey string) (*ActivationResponse, error) {
	return c.post(ctx, "/v1/validate", map[string]string{
		"licenseKey": licenseKey,
	})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]string) (*ActivationResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("activation request rejected")
		return nil, errFromStatus(resp.StatusCode, string(respBody))
	}

	var out ActivationResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", path, err)
	}
	return &out, nil
}
