package imapprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/ravnmail/ravncore/internal/imap"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/smtp"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/rs/zerolog"
)

// Provider implements provider.Provider against a generic IMAP4 server,
// serving AccountIMAP and AccountApple accounts alike — the wire protocol
// is identical, only default host/port differ, which is the caller's
// concern when building the session Config the shared pool resolves.
//
// Sessions are borrowed from a *imap.Pool shared across every IMAP
// account in the process (one pool, keyed internally by account id).
type Provider struct {
	accountID     string
	pool          *imap.Pool
	getSMTPConfig func(accountID string) (smtp.ClientConfig, error)
	log           zerolog.Logger
}

// New builds an IMAP provider for one account over a shared pool. The
// pool's resolver closure (supplied when the pool itself was constructed)
// is responsible for resolving this account's host/port/auth from the
// credential store; Provider itself never sees a password. getSMTPConfig
// resolves the same account's SMTP submission settings and credentials
// on demand, for SendEmail.
func New(accountID string, pool *imap.Pool, getSMTPConfig func(accountID string) (smtp.ClientConfig, error)) *Provider {
	return &Provider{accountID: accountID, pool: pool, getSMTPConfig: getSMTPConfig, log: logging.WithComponent("imap-provider")}
}

// withSession borrows a pooled session, runs fn, and returns the
// session for reuse — or hangs it up when fn failed, since a session
// that errored mid-command may have unparsed data on the wire.
func (p *Provider) withSession(ctx context.Context, fn func(sess *imap.Session) error) error {
	sess, err := p.pool.Get(ctx, p.accountID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindNetwork, "acquire imap session", err)
	}
	err = fn(sess)
	p.pool.Put(p.accountID, sess, err == nil)
	return err
}

// Authenticate verifies that a session can be established and
// authenticated; actual credential resolution happens inside the pool.
func (p *Provider) Authenticate(ctx context.Context, creds provider.Credentials) error {
	return p.TestConnection(ctx)
}

// TestConnection borrows and immediately returns a session, the
// cheapest possible verification that host/port/auth are all correct.
func (p *Provider) TestConnection(ctx context.Context) error {
	sess, err := p.pool.Get(ctx, p.accountID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "imap connection failed", err)
	}
	p.pool.Put(p.accountID, sess, true)
	return nil
}

// FetchFolders lists every mailbox on the server; the session already
// classifies each one into the local folder taxonomy.
func (p *Provider) FetchFolders(ctx context.Context) ([]provider.SyncFolder, error) {
	var out []provider.SyncFolder
	err := p.withSession(ctx, func(sess *imap.Session) error {
		mailboxes, err := sess.Mailboxes()
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "list mailboxes", err)
		}
		out = make([]provider.SyncFolder, 0, len(mailboxes))
		for _, mb := range mailboxes {
			delim := mb.Delimiter
			if delim == "" {
				delim = "/"
			}
			out = append(out, provider.SyncFolder{
				RemoteID: mb.Path,
				Name:     lastSegment(mb.Path, delim),
				Type:     mb.Type,
				Path:     mb.Path,
			})
		}
		return nil
	})
	return out, err
}

func lastSegment(path, delim string) string {
	parts := strings.Split(path, delim)
	return parts[len(parts)-1]
}

// syncToken is the opaque state imapprovider round-trips through
// provider.SyncDiff.NextToken and the caller's stored sync_token column.
// UIDValidity detects a mailbox reset (a mismatch forces a full sync);
// Since is the timestamp a delta fetch searches from via UID SEARCH
// SINCE, less a five-minute overlap.
type syncToken struct {
	UIDValidity uint32    `json:"uid_validity"`
	Since       time.Time `json:"since"`
}

// GetSyncToken reports the token a fresh full sync should start from.
func (p *Provider) GetSyncToken(ctx context.Context, folder provider.SyncFolder) (*string, error) {
	var tok string
	err := p.withSession(ctx, func(sess *imap.Session) error {
		mb, err := sess.Status(ctx, folder.RemoteID)
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "mailbox status", err)
		}
		tok = encodeToken(syncToken{UIDValidity: mb.UIDValidity, Since: time.Now().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func encodeToken(t syncToken) string {
	b, _ := json.Marshal(t)
	return string(b)
}

func decodeToken(s string) (syncToken, bool) {
	var t syncToken
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return syncToken{}, false
	}
	return t, true
}

// SyncMessages implements provider.Provider.SyncMessages:
// nil token means a full snapshot (every message in the mailbox, marked
// Added); a set token means an incremental fetch of messages received
// since the token's timestamp, with a five-minute overlap margin to
// absorb clock skew and second-granularity Date headers. Deletions are
// not detected in delta mode (IMAP has no cheap way to learn about an
// EXPUNGE without CONDSTORE/QRESYNC tracking this provider doesn't keep);
// periodic full syncs reconcile them via the caller's local\remote diff.
func (p *Provider) SyncMessages(ctx context.Context, folder provider.SyncFolder, token *string) (provider.SyncDiff, error) {
	var diff provider.SyncDiff
	err := p.withSession(ctx, func(sess *imap.Session) error {
		mb, err := sess.Select(ctx, folder.RemoteID)
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "select mailbox", err)
		}

		var tok syncToken
		full := token == nil
		if !full {
			parsed, ok := decodeToken(*token)
			if !ok || parsed.UIDValidity != mb.UIDValidity {
				full = true
			} else {
				tok = parsed
			}
		}

		client := sess.Raw()
		var uids []uint32
		if full {
			uids, err = searchAllUIDs(ctx, client)
		} else {
			uids, err = searchUIDsSince(ctx, client, tok.Since.Add(-5*time.Minute))
		}
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "search uids", err)
		}

		emails, err := fetchHeaders(ctx, client, uids)
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "fetch headers", err)
		}

		p.log.Debug().
			Str("folder", folder.RemoteID).
			Bool("full", full).
			Int("count", len(emails)).
			Msg("synced messages")

		next := encodeToken(syncToken{UIDValidity: mb.UIDValidity, Since: time.Now().UTC()})
		diff = provider.SyncDiff{Added: emails, NextToken: &next}
		return nil
	})
	return diff, err
}

func searchAllUIDs(ctx context.Context, client *imapclient.Client) ([]uint32, error) {
	return runSearch(ctx, client, &goimap.SearchCriteria{})
}

func searchUIDsSince(ctx context.Context, client *imapclient.Client, since time.Time) ([]uint32, error) {
	return runSearch(ctx, client, &goimap.SearchCriteria{Since: since})
}

func runSearch(ctx context.Context, client *imapclient.Client, criteria *goimap.SearchCriteria) ([]uint32, error) {
	searchCmd := client.UIDSearch(criteria, nil)
	type result struct {
		data *goimap.SearchData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := searchCmd.Wait()
		resultCh <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.err
		}
		uids := make([]uint32, 0, len(r.data.AllUIDs()))
		for _, uid := range r.data.AllUIDs() {
			uids = append(uids, uint32(uid))
		}
		return uids, nil
	}
}

// FetchEmail fetches one message's full body by remote (folder path)
// + UID and parses it.
func (p *Provider) FetchEmail(ctx context.Context, folder provider.SyncFolder, remoteID string) (provider.SyncEmail, error) {
	uid, err := parseUID(remoteID)
	if err != nil {
		return provider.SyncEmail{}, syncerr.Wrap(syncerr.KindInvalidConfiguration, "invalid remote id", err)
	}

	var out provider.SyncEmail
	err = p.withSession(ctx, func(sess *imap.Session) error {
		if _, err := sess.Select(ctx, folder.RemoteID); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "select mailbox", err)
		}
		emails, err := fetchFullBodies(ctx, sess.Raw(), []uint32{uid})
		if err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "fetch body", err)
		}
		if len(emails) == 0 {
			return syncerr.ErrNotFound
		}
		out = emails[0]
		return nil
	})
	return out, err
}

// FetchAttachment always returns a KindNotSupported error: IMAP has no
// per-attachment fetch by id, and FetchEmail already returns attachment
// bytes in SyncAttachment.Data, filled in by parseBody.
func (p *Provider) FetchAttachment(ctx context.Context, remoteID string, attachment provider.SyncAttachment) ([]byte, error) {
	return nil, syncerr.Wrap(syncerr.KindNotSupported, "imap attachments are fetched inline with the message body", nil)
}

func parseUID(remoteID string) (uint32, error) {
	var uid uint32
	_, err := fmt.Sscanf(remoteID, "%d", &uid)
	return uid, err
}

// remoteIDForUID formats a UID as the RemoteID string stored per email.
func remoteIDForUID(uid uint32) string {
	return fmt.Sprintf("%d", uid)
}

// threadKey derives a stable conversation key for IMAP messages, which
// have no server-side thread id: hash the first (oldest) entry of the
// References header, falling back to In-Reply-To, falling back to the
// message's own Message-ID when it starts a new thread (see DESIGN.md).
// All three are hashed without angle brackets so a root and its replies
// share one key.
func threadKey(references []string, inReplyTo, messageID string) string {
	switch {
	case len(references) > 0:
		return hashString(strings.Trim(references[0], "<>"))
	case inReplyTo != "":
		return hashString(inReplyTo)
	default:
		return hashString(messageID)
	}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// WatchFolder holds a dedicated IDLE session on the folder, invoking
// onChange whenever the server pushes a mailbox update, reconnecting
// with backoff until ctx ends. Servers without IDLE return
// imap.ErrIdleUnsupported immediately so the caller can fall back to
// interval polling alone.
func (p *Provider) WatchFolder(ctx context.Context, folder provider.SyncFolder, onChange func()) error {
	backoff := time.Second
	for {
		sess, err := p.pool.DialDedicated(p.accountID)
		if err == nil {
			watchErr := sess.Watch(ctx, folder.RemoteID, onChange)
			sess.Hangup()
			err = watchErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, imap.ErrIdleUnsupported) {
			return err
		}
		p.log.Debug().Err(err).Str("folder", folder.RemoteID).Dur("backoff", backoff).Msg("idle watch interrupted, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > 5*time.Minute {
			backoff = 5 * time.Minute
		}
	}
}
