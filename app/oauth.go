package app

import (
	"golang.org/x/oauth2"

	"github.com/ravnmail/ravncore/internal/credentials"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/oauth2state"
	"github.com/ravnmail/ravncore/internal/oauthcfg"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// BeginReauth starts a browser OAuth2 flow for an account whose
// credentials expired, returning the authorization URL to open. The
// CSRF token and PKCE verifier are held in memory until the callback.
func (a *App) BeginReauth(accountID, redirectURI string) (string, error) {
	acc, err := a.Accounts.Get(accountID)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", syncerr.ErrNotFound
	}
	cfg, err := oauthConfigFor(acc.Type)
	if err != nil {
		return "", err
	}
	cfg.RedirectURL = redirectURI

	csrf := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	a.OAuthStates.Store(oauth2state.State{
		CSRFToken:    csrf,
		PKCEVerifier: verifier,
		Provider:     string(acc.Type),
		AccountID:    accountID,
		RedirectURI:  redirectURI,
		CreatedAt:    timeNow(),
	})
	return cfg.AuthCodeURL(csrf, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteReauth consumes the browser callback: the state is taken
// atomically (a replayed callback fails), the code is exchanged with the
// stored PKCE verifier, the token is persisted, and the account's sync
// is unblocked.
func (a *App) CompleteReauth(csrfToken, code string) error {
	st, err := a.OAuthStates.GetAndRemove(csrfToken)
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "oauth callback rejected", err)
	}
	cfg, err := oauthConfigFor(model.AccountType(st.Provider))
	if err != nil {
		return err
	}
	cfg.RedirectURL = st.RedirectURI

	tok, err := cfg.Exchange(a.ctx, code, oauth2.VerifierOption(st.PKCEVerifier))
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "code exchange failed", err)
	}
	err = a.Credentials.SetOAuthToken(st.AccountID, credentials.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiryUnix:   tok.Expiry.Unix(),
	})
	if err != nil {
		return err
	}
	a.Coordinator.ResumeAccount(st.AccountID)
	return nil
}

func oauthConfigFor(t model.AccountType) (*oauth2.Config, error) {
	switch t {
	case model.AccountGmail:
		return oauthcfg.Google(), nil
	case model.AccountOffice365:
		return oauthcfg.Microsoft(), nil
	default:
		return nil, syncerr.New(syncerr.KindInvalidConfiguration, "account type has no oauth flow: "+string(t))
	}
}
