// Package gmailprovider implements provider.Provider against the Gmail
// REST API (https://gmail.googleapis.com), used for AccountGmail.
package gmailprovider

import (
	"context"
	"fmt"

	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Provider implements provider.Provider over the official Gmail API
// client, folders are Gmail labels and threading is native (ThreadId).
type Provider struct {
	accountID string
	email     string
	service   *gmail.Service
	log       zerolog.Logger
}

// TokenSource resolves and, when needed, refreshes an account's OAuth2
// token; callers typically wrap golang.org/x/oauth2's own TokenSource
// with one that persists a refreshed token back to the credential
// store, so a restart never begins with an expired access token.
type TokenSource = oauth2.TokenSource

// New constructs a Gmail provider for one account from an OAuth2 token
// source. Any oauth2.TokenSource works; the caller already resolved
// client configuration when minting the token.
func New(ctx context.Context, accountID string, tokenSource TokenSource) (*Provider, error) {
	httpClient := oauth2.NewClient(ctx, tokenSource)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindAuthentication, "create gmail service", err)
	}

	p := &Provider{
		accountID: accountID,
		service:   service,
		log:       logging.WithComponent("gmail-provider"),
	}
	return p, nil
}

// Authenticate verifies the token works by fetching the user's profile.
func (p *Provider) Authenticate(ctx context.Context, creds provider.Credentials) error {
	return p.TestConnection(ctx)
}

// TestConnection fetches the Gmail profile, the cheapest authenticated call.
func (p *Provider) TestConnection(ctx context.Context) error {
	profile, err := p.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "get profile", err)
	}
	p.email = profile.EmailAddress
	return nil
}

func wrapGoogleErr(kind syncerr.Kind, action string, err error) error {
	return syncerr.Wrap(kind, fmt.Sprintf("gmail: %s", action), err)
}
