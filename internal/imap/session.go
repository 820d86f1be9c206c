// Package imap is the IMAP transport for the sync engine: an
// authenticated Session over go-imap's client that speaks this repo's
// folder vocabulary, a per-account session pool, and a mailbox watcher
// that turns server-side IDLE pushes into sync triggers.
package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/rs/zerolog"
)

// SecurityType selects how the connection is secured.
type SecurityType string

const (
	SecurityNone     SecurityType = "none"
	SecurityTLS      SecurityType = "tls"
	SecurityStartTLS SecurityType = "starttls"
)

// Config is everything needed to dial and authenticate one session.
type Config struct {
	Host     string
	Port     int
	Security SecurityType
	Username string
	Password string

	// OAuth2 authentication
	AuthType    AuthType // "password" or "oauth2" (defaults to "password")
	AccessToken string   // OAuth2 access token (when AuthType is "oauth2")

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// TLSConfig overrides the default server-name config when set.
	TLSConfig *tls.Config
}

// DefaultConfig returns a Config with implicit-TLS defaults. The read
// timeout is generous because a single FETCH of a large message can
// legitimately stream for minutes.
func DefaultConfig() Config {
	return Config{
		Port:           993,
		Security:       SecurityTLS,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    3 * time.Minute,
		WriteTimeout:   30 * time.Second,
	}
}

// timeoutConn arms a fresh read/write deadline before every operation so
// a stalled server never blocks a sync worker forever.
type timeoutConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// Session is one authenticated IMAP connection. It is not safe for
// concurrent use; the pool hands each session to one caller at a time.
type Session struct {
	cfg  Config
	cli  *imapclient.Client
	caps imap.CapSet
	log  zerolog.Logger

	updateMu sync.Mutex
	onUpdate func()
}

// Dial connects, waits for the greeting and authenticates, returning a
// ready session. Unilateral mailbox updates (EXISTS/EXPUNGE pushed
// during IDLE) are routed to the callback installed by Watch.
func Dial(cfg Config) (*Session, error) {
	s := &Session{cfg: cfg, log: logging.WithComponent("imap")}

	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				s.notifyUpdate()
			},
			Expunge: func(seqNum uint32) {
				s.notifyUpdate()
			},
		},
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	switch cfg.Security {
	case SecurityStartTLS:
		if cfg.TLSConfig != nil {
			options.TLSConfig = cfg.TLSConfig
		} else {
			options.TLSConfig = &tls.Config{ServerName: cfg.Host}
		}
		cli, err := imapclient.DialStartTLS(addr, options)
		if err != nil {
			return nil, fmt.Errorf("starttls dial %s: %w", addr, err)
		}
		s.cli = cli
	case SecurityNone:
		raw, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		s.cli = imapclient.New(s.wrap(raw), options)
	default: // SecurityTLS
		tlsConfig := cfg.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: cfg.Host}
		}
		raw, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("tls dial %s: %w", addr, err)
		}
		s.cli = imapclient.New(s.wrap(raw), options)
	}

	if err := s.cli.WaitGreeting(); err != nil {
		s.cli.Close()
		return nil, fmt.Errorf("imap greeting: %w", err)
	}
	s.caps = s.cli.Caps()

	if err := s.login(); err != nil {
		s.cli.Close()
		return nil, err
	}
	// Capabilities can change after authentication.
	s.caps = s.cli.Caps()

	s.log.Debug().Str("host", cfg.Host).Str("user", cfg.Username).Msg("imap session established")
	return s, nil
}

func (s *Session) wrap(raw net.Conn) net.Conn {
	return &timeoutConn{Conn: raw, readTimeout: s.cfg.ReadTimeout, writeTimeout: s.cfg.WriteTimeout}
}

func (s *Session) login() error {
	if s.cfg.AuthType == AuthTypeOAuth2 {
		if s.cfg.AccessToken == "" {
			return fmt.Errorf("oauth2 login requires an access token")
		}
		if err := s.cli.Authenticate(NewXOAuth2Client(s.cfg.Username, s.cfg.AccessToken)); err != nil {
			return fmt.Errorf("xoauth2 authentication failed: %w", err)
		}
		return nil
	}

	// LOGIN unless the server forbids it; a failed AUTHENTICATE can leave
	// the wire in a state where a fallback LOGIN no longer works, so the
	// SASL path is only taken when LOGIN is disabled.
	if s.caps.Has(imap.CapLoginDisabled) {
		if err := s.cli.Authenticate(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("plain authentication failed: %w", err)
		}
		return nil
	}
	if err := s.cli.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// Logout ends the session gracefully; the connection is closed either
// way.
func (s *Session) Logout() error {
	if s.cli == nil {
		return nil
	}
	if err := s.cli.Logout().Wait(); err != nil {
		s.log.Debug().Err(err).Msg("logout failed, closing anyway")
	}
	return s.cli.Close()
}

// Hangup drops the connection without the LOGOUT round-trip, for
// sessions already known dead or stale.
func (s *Session) Hangup() {
	if s.cli != nil {
		s.cli.Close()
	}
}

// Supports reports whether the server advertised a capability.
func (s *Session) Supports(cap imap.Cap) bool {
	return s.caps.Has(cap)
}

// Raw exposes the underlying go-imap client for streaming FETCH/SEARCH
// paths that consume its command results directly.
func (s *Session) Raw() *imapclient.Client {
	return s.cli
}

func (s *Session) setUpdateFunc(fn func()) {
	s.updateMu.Lock()
	s.onUpdate = fn
	s.updateMu.Unlock()
}

func (s *Session) notifyUpdate() {
	s.updateMu.Lock()
	fn := s.onUpdate
	s.updateMu.Unlock()
	if fn != nil {
		fn()
	}
}
