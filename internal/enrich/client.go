// Package enrich is the client for the AI enrichment service the
// background analyzer calls for personal-inbox messages. The service
// returns an opaque JSON analysis blob that is cached verbatim on the
// email row.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// Enricher is what the background analyzer depends on; tests substitute
// a stub.
type Enricher interface {
	AnalyzeEmail(ctx context.Context, subject, bodyPlain, bodyHTML string) (string, error)
}

// Client posts messages to the hosted enrichment endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds an enrichment client. baseURL has no trailing slash.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logging.WithComponent("enrich"),
	}
}

type analyzeRequest struct {
	Subject   string `json:"subject"`
	BodyPlain string `json:"bodyPlain,omitempty"`
	BodyHTML  string `json:"bodyHtml,omitempty"`
}

// AnalyzeEmail submits one message and returns the raw analysis JSON.
func (c *Client) AnalyzeEmail(ctx context.Context, subject, bodyPlain, bodyHTML string) (string, error) {
	payload, err := json.Marshal(analyzeRequest{Subject: subject, BodyPlain: bodyPlain, BodyHTML: bodyHTML})
	if err != nil {
		return "", fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindNetwork, "enrichment request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindNetwork, "read enrichment response", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", syncerr.New(syncerr.KindAuthentication, "enrichment service rejected credentials")
	case resp.StatusCode >= 500:
		return "", syncerr.New(syncerr.KindNetwork, fmt.Sprintf("enrichment service unavailable (%d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", syncerr.New(syncerr.KindProtocol, fmt.Sprintf("unexpected enrichment status %d", resp.StatusCode))
	}
	if !json.Valid(body) {
		return "", syncerr.New(syncerr.KindProtocol, "enrichment service returned invalid JSON")
	}
	return string(body), nil
}
