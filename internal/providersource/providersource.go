// Package providersource resolves a ready-to-use provider.Provider for an
// account: it pulls the account's secrets from the credential store,
// builds the right token source or connection config, and dispatches on
// account type. Both the sync coordinator and
// the background body fetcher go through a single shared Source so IMAP
// accounts share one connection pool and OAuth accounts share one
// refresh-persisting token source each.
package providersource

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ravnmail/ravncore/internal/credentials"
	"github.com/ravnmail/ravncore/internal/imap"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/oauthcfg"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/provider/gmailprovider"
	"github.com/ravnmail/ravncore/internal/provider/graphprovider"
	"github.com/ravnmail/ravncore/internal/provider/imapprovider"
	"github.com/ravnmail/ravncore/internal/smtp"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// Source builds providers on demand and caches the expensive shared
// pieces (the IMAP pool, per-account token sources).
type Source struct {
	creds *credentials.Store
	pool  *imap.Pool
	log   zerolog.Logger

	mu           sync.Mutex
	tokenSources map[string]oauth2.TokenSource
	accounts     map[string]model.Account // accounts seen, for pool credential resolution
}

// New builds a Source over the credential store. The IMAP pool resolves
// per-account connection configs lazily through the Source itself, so
// accounts registered later are picked up without pool reconstruction.
func New(creds *credentials.Store) *Source {
	s := &Source{
		creds:        creds,
		log:          logging.WithComponent("provider-source"),
		tokenSources: make(map[string]oauth2.TokenSource),
		accounts:     make(map[string]model.Account),
	}
	s.pool = imap.NewPool(s.imapConfig)
	return s
}

// ProviderFor returns a Provider for the account, constructing it from
// stored credentials. The returned provider is not yet verified; callers
// decide whether to Authenticate first (the coordinator does, background
// loops rely on the first real operation failing instead).
func (s *Source) ProviderFor(ctx context.Context, acc model.Account) (provider.Provider, error) {
	s.mu.Lock()
	s.accounts[acc.ID] = acc
	s.mu.Unlock()

	switch acc.Type {
	case model.AccountGmail:
		ts, err := s.tokenSource(ctx, acc, oauthcfg.Google())
		if err != nil {
			return nil, err
		}
		return gmailprovider.New(ctx, acc.ID, ts)
	case model.AccountOffice365:
		ts, err := s.tokenSource(ctx, acc, oauthcfg.Microsoft())
		if err != nil {
			return nil, err
		}
		return graphprovider.New(ctx, acc.ID, ts), nil
	case model.AccountIMAP, model.AccountApple:
		return imapprovider.New(acc.ID, s.pool, s.smtpConfig), nil
	default:
		return nil, syncerr.New(syncerr.KindInvalidConfiguration, "unknown account type: "+string(acc.Type))
	}
}

// Shutdown closes pooled connections.
func (s *Source) Shutdown() {
	s.pool.Shutdown()
}

// tokenSource returns a cached refresh-persisting token source for the
// account, or builds one from the stored token. A refreshed token is
// written back to the credential store so the next process start doesn't
// begin with an expired access token.
func (s *Source) tokenSource(ctx context.Context, acc model.Account, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	s.mu.Lock()
	if ts, ok := s.tokenSources[acc.ID]; ok {
		s.mu.Unlock()
		return ts, nil
	}
	s.mu.Unlock()

	stored, err := s.creds.GetOAuthToken(acc.ID)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindAuthentication, "no oauth token stored for account", err)
	}
	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       time.Unix(stored.ExpiryUnix, 0),
	}
	ts := oauth2.TokenSource(&persistingTokenSource{
		inner:     cfg.TokenSource(ctx, tok),
		accountID: acc.ID,
		creds:     s.creds,
		last:      tok,
		log:       s.log,
	})

	s.mu.Lock()
	s.tokenSources[acc.ID] = ts
	s.mu.Unlock()
	return ts, nil
}

// InvalidateTokenSource drops the cached token source for an account,
// forcing the next ProviderFor to re-read the credential store. Called
// after the user completes a re-auth flow.
func (s *Source) InvalidateTokenSource(accountID string) {
	s.mu.Lock()
	delete(s.tokenSources, accountID)
	s.mu.Unlock()
}

// persistingTokenSource wraps an oauth2.TokenSource and writes every
// refreshed token back to the credential store.
type persistingTokenSource struct {
	inner     oauth2.TokenSource
	accountID string
	creds     *credentials.Store
	log       zerolog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	changed := p.last == nil || tok.AccessToken != p.last.AccessToken
	p.last = tok
	p.mu.Unlock()
	if changed {
		err := p.creds.SetOAuthToken(p.accountID, credentials.OAuthToken{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			ExpiryUnix:   tok.Expiry.Unix(),
		})
		if err != nil {
			p.log.Warn().Err(err).Str("account_id", p.accountID).Msg("failed to persist refreshed oauth token")
		}
	}
	return tok, nil
}

// imapConfig resolves an IMAP connection config for the pool from the
// account's settings plus the stored password (or OAuth token for
// XOAUTH2-capable servers).
func (s *Source) imapConfig(accountID string) (*imap.Config, error) {
	s.mu.Lock()
	acc, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		return nil, syncerr.New(syncerr.KindInvalidConfiguration, "unknown account: "+accountID)
	}

	cfg := imap.DefaultConfig()
	cfg.Host = acc.Settings.IMAPHost
	cfg.Port = acc.Settings.IMAPPort
	cfg.Username = acc.Email
	if !acc.Settings.IMAPUseTLS {
		cfg.Security = imap.SecurityStartTLS
	}
	if acc.Type == model.AccountApple {
		if cfg.Host == "" {
			cfg.Host = "imap.mail.me.com"
		}
		if cfg.Port == 0 {
			cfg.Port = 993
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}

	password, err := s.creds.GetPassword(accountID)
	if err == nil && password != "" {
		cfg.Password = password
		return &cfg, nil
	}
	tok, tokErr := s.creds.GetOAuthToken(accountID)
	if tokErr == nil && tok.AccessToken != "" {
		cfg.AuthType = imap.AuthTypeOAuth2
		cfg.AccessToken = tok.AccessToken
		return &cfg, nil
	}
	return nil, syncerr.New(syncerr.KindAuthentication, "no credentials stored for account "+accountID)
}

// smtpConfig resolves the SMTP submission config for an IMAP/Apple
// account's SendEmail.
func (s *Source) smtpConfig(accountID string) (smtp.ClientConfig, error) {
	s.mu.Lock()
	acc, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		return smtp.ClientConfig{}, syncerr.New(syncerr.KindInvalidConfiguration, "unknown account: "+accountID)
	}

	cfg := smtp.ClientConfig{
		Host:     acc.Settings.SMTPHost,
		Port:     acc.Settings.SMTPPort,
		Security: smtp.SecurityType(acc.Settings.SMTPSecurity),
		Username: acc.Email,
	}
	if cfg.Security == "" {
		cfg.Security = smtp.SecurityTLS
	}
	if acc.Type == model.AccountApple && cfg.Host == "" {
		cfg.Host = "smtp.mail.me.com"
		cfg.Port = 587
		cfg.Security = smtp.SecurityStartTLS
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}

	password, err := s.creds.GetPassword(accountID)
	if err == nil && password != "" {
		cfg.AuthType = smtp.AuthTypePassword
		cfg.Password = password
		return cfg, nil
	}
	tok, tokErr := s.creds.GetOAuthToken(accountID)
	if tokErr == nil && tok.AccessToken != "" {
		cfg.AuthType = smtp.AuthTypeOAuth2
		cfg.AccessToken = tok.AccessToken
		return cfg, nil
	}
	return smtp.ClientConfig{}, syncerr.New(syncerr.KindAuthentication, "no credentials stored for account "+accountID)
}
