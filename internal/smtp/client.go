// Package smtp provides the SMTP submission client used by providers to
// send composed messages, mirroring internal/imap's session shape
// (Config/SecurityType/AuthType) but for message submission instead of
// retrieval.
package smtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"

	sasl "github.com/emersion/go-sasl"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/rs/zerolog"
)

// SecurityType mirrors internal/imap.SecurityType for the SMTP leg.
type SecurityType string

const (
	SecurityNone     SecurityType = "none"
	SecurityTLS      SecurityType = "tls"
	SecurityStartTLS SecurityType = "starttls"
)

// AuthType selects how Client.Login authenticates.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeOAuth2   AuthType = "oauth2"
)

// ClientConfig holds the configuration for connecting to an SMTP server.
type ClientConfig struct {
	Host     string
	Port     int
	Security SecurityType
	Username string
	Password string

	AuthType    AuthType
	AccessToken string

	TLSConfig *tls.Config
}

// DefaultConfig returns sensible SMTP submission defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{Port: 587, Security: SecurityStartTLS}
}

// Client wraps net/smtp.Client with STARTTLS/implicit-TLS dialing and
// PLAIN/XOAUTH2 authentication via go-sasl, matching the auth surface
// internal/imap offers for IMAP connections.
type Client struct {
	config ClientConfig
	client *smtp.Client
	log    zerolog.Logger
}

// NewClient creates a new SMTP client but does not connect.
func NewClient(config ClientConfig) *Client {
	return &Client{config: config, log: logging.WithComponent("smtp")}
}

// Connect dials the SMTP server, upgrading to TLS per the configured
// SecurityType.
func (c *Client) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	switch c.config.Security {
	case SecurityTLS:
		tlsConfig := c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: c.config.Host}
		}
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("failed to connect with TLS: %w", err)
		}
		client, err := smtp.NewClient(conn, c.config.Host)
		if err != nil {
			return fmt.Errorf("failed to start SMTP session: %w", err)
		}
		c.client = client

	case SecurityStartTLS:
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		client, err := smtp.NewClient(conn, c.config.Host)
		if err != nil {
			return fmt.Errorf("failed to start SMTP session: %w", err)
		}
		tlsConfig := c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: c.config.Host}
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
		c.client = client

	case SecurityNone:
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		client, err := smtp.NewClient(conn, c.config.Host)
		if err != nil {
			return fmt.Errorf("failed to start SMTP session: %w", err)
		}
		c.client = client
	}

	return nil
}

// Login authenticates with the SMTP server.
func (c *Client) Login() error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}

	authType := c.config.AuthType
	if authType == "" {
		authType = AuthTypePassword
	}

	var saslClient sasl.Client
	switch authType {
	case AuthTypeOAuth2:
		saslClient = newXOAuth2Client(c.config.Username, c.config.AccessToken)
	default:
		saslClient = sasl.NewPlainClient("", c.config.Username, c.config.Password)
	}

	return c.client.Auth(&saslAdapter{client: saslClient})
}

// SendMail submits a message envelope (from, recipients, raw RFC 5322
// bytes) over the authenticated session.
func (c *Client) SendMail(from string, recipients []string, msg []byte) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", rcpt, err)
		}
	}
	w, err := c.client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

// Close ends the SMTP session.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	_ = c.client.Quit()
	return c.client.Close()
}

// saslAdapter bridges go-sasl's Client interface onto net/smtp's Auth
// interface, which uses the same Start/Next shape but different signatures.
type saslAdapter struct {
	client sasl.Client
}

func (a *saslAdapter) Start(server *smtp.ServerInfo) (proto string, toServer []byte, err error) {
	return a.client.Start()
}

func (a *saslAdapter) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}
