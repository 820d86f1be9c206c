// Package graphprovider implements provider.Provider against the
// Microsoft Graph v1.0 REST API, used for AccountOffice365.
package graphprovider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Provider implements provider.Provider over raw Graph REST calls;
// unlike Gmail there is no official lightweight Go SDK for Graph mail,
// so this carries its own small get/post/patch/delete helper quartet.
type Provider struct {
	accountID string
	client    *http.Client
	log       zerolog.Logger
}

// New constructs a Graph provider for one account from an OAuth2 token
// source.
func New(ctx context.Context, accountID string, tokenSource oauth2.TokenSource) *Provider {
	return &Provider{
		accountID: accountID,
		client:    oauth2.NewClient(ctx, tokenSource),
		log:       logging.WithComponent("graph-provider"),
	}
}

// Authenticate verifies the token works by fetching the user's profile.
func (p *Provider) Authenticate(ctx context.Context, creds provider.Credentials) error {
	return p.TestConnection(ctx)
}

// TestConnection fetches /me, the cheapest authenticated Graph call.
func (p *Provider) TestConnection(ctx context.Context) error {
	var user graphUser
	if err := p.get(ctx, "/me", &user); err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "get profile", err)
	}
	return nil
}

type graphUser struct {
	ID   string `json:"id"`
	Mail string `json:"mail"`
}

// HTTP helpers: a small get/post/patch/delete quartet over doRequest.

func (p *Provider) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+path, nil)
	if err != nil {
		return err
	}
	return p.doRequest(req, result)
}

func (p *Provider) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.doRequest(req, result)
}

func (p *Provider) patch(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, graphBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.doRequest(req, nil)
}

func (p *Provider) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, graphBaseURL+path, nil)
	if err != nil {
		return err
	}
	return p.doRequest(req, nil)
}

// getAbsolute issues a GET against a full URL rather than a
// graphBaseURL-relative path, used to follow @odata.nextLink/
// @odata.deltaLink values Graph returns already-formed.
func (p *Provider) getAbsolute(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return p.doRequest(req, result)
}

func (p *Provider) doRequest(req *http.Request, result any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &graphError{status: resp.StatusCode, body: string(body)}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// graphError carries the HTTP status so callers can branch (404 vs.
// everything else) without parsing doRequest's formatted string.
type graphError struct {
	status int
	body   string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph API error: %d - %s", e.status, e.body)
}
