// Package oauthcfg holds the built-in OAuth client configurations for
// Gmail and Office 365. The client ids/secrets are injected at build
// time via -ldflags (see the Makefile/build docs); a binary built
// without them refuses to start rather than failing at the first auth
// attempt.
package oauthcfg

import (
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// Injected via:
//
//	go build -ldflags "\
//	  -X .../internal/oauthcfg.gmailClientID=$GMAIL_CLIENT_ID \
//	  -X .../internal/oauthcfg.gmailClientSecret=$GMAIL_CLIENT_SECRET \
//	  -X .../internal/oauthcfg.office365ClientID=$OFFICE365_CLIENT_ID \
//	  -X .../internal/oauthcfg.office365ClientSecret=$OFFICE365_CLIENT_SECRET \
//	  -X .../internal/oauthcfg.office365Tenant=$OFFICE365_TENANT"
var (
	gmailClientID         string
	gmailClientSecret     string
	office365ClientID     string
	office365ClientSecret string
	office365Tenant       string
)

// ErrMissingSecrets is returned by Validate when any built-in client
// credential was not injected at build time.
var ErrMissingSecrets = errors.New("oauth client secrets not set at build time")

// Validate returns ErrMissingSecrets unless every built-in OAuth client
// credential was injected. Called once at process start.
func Validate() error {
	if gmailClientID == "" || gmailClientSecret == "" ||
		office365ClientID == "" || office365ClientSecret == "" || office365Tenant == "" {
		return ErrMissingSecrets
	}
	return nil
}

// Google returns the oauth2.Config for the built-in Gmail client.
func Google() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     gmailClientID,
		ClientSecret: gmailClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://mail.google.com/"},
	}
}

// Microsoft returns the oauth2.Config for the built-in Office 365
// client, scoped to the configured tenant.
func Microsoft() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     office365ClientID,
		ClientSecret: office365ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(office365Tenant),
		Scopes: []string{
			"offline_access",
			"https://graph.microsoft.com/Mail.ReadWrite",
			"https://graph.microsoft.com/Mail.Send",
		},
	}
}
