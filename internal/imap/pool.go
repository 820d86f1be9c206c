package imap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/logging"
)

const (
	// sessionsPerAccount bounds concurrent sessions per account; most
	// providers cap simultaneous IMAP connections well below ten.
	sessionsPerAccount = 3

	// sessionMaxIdle is how long a parked session stays reusable before
	// the server is assumed to have dropped it.
	sessionMaxIdle = 5 * time.Minute
)

// Pool hands out authenticated Sessions per account, bounded by a slot
// semaphore and reusing recently released sessions. Credentials are
// resolved lazily on every dial so a password or token change applies
// to the next session without pool reconstruction.
type Pool struct {
	resolve func(accountID string) (*Config, error)
	log     zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*accountSessions
}

type accountSessions struct {
	slots chan struct{}

	mu   sync.Mutex
	idle []parkedSession
}

type parkedSession struct {
	sess  *Session
	since time.Time
}

// NewPool builds a pool over a per-account credential resolver.
func NewPool(resolve func(accountID string) (*Config, error)) *Pool {
	return &Pool{
		resolve:  resolve,
		accounts: make(map[string]*accountSessions),
		log:      logging.WithComponent("imap-pool"),
	}
}

func (p *Pool) forAccount(accountID string) *accountSessions {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[accountID]
	if !ok {
		a = &accountSessions{slots: make(chan struct{}, sessionsPerAccount)}
		p.accounts[accountID] = a
	}
	return a
}

// Get acquires a session slot for the account (blocking until one frees
// or ctx ends), then reuses the freshest parked session or dials a new
// one. Every Get must be paired with a Put.
func (p *Pool) Get(ctx context.Context, accountID string) (*Session, error) {
	a := p.forAccount(accountID)

	select {
	case a.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Most-recently-parked first: an older session is more likely to
	// have been dropped server-side, so stale ones drain from the tail.
	for {
		a.mu.Lock()
		n := len(a.idle)
		var parked parkedSession
		if n > 0 {
			parked = a.idle[n-1]
			a.idle = a.idle[:n-1]
		}
		a.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Since(parked.since) <= sessionMaxIdle {
			return parked.sess, nil
		}
		parked.sess.Hangup()
	}

	cfg, err := p.resolve(accountID)
	if err != nil {
		<-a.slots
		return nil, err
	}
	sess, err := Dial(*cfg)
	if err != nil {
		<-a.slots
		return nil, err
	}
	return sess, nil
}

// Put releases a session's slot. A healthy session is parked for reuse;
// an unhealthy one is hung up.
func (p *Pool) Put(accountID string, s *Session, healthy bool) {
	a := p.forAccount(accountID)
	if s != nil {
		if healthy {
			a.mu.Lock()
			a.idle = append(a.idle, parkedSession{sess: s, since: time.Now()})
			a.mu.Unlock()
		} else {
			s.Hangup()
		}
	}
	<-a.slots
}

// DialDedicated opens a session outside the slot accounting, for
// long-lived IDLE watchers that would otherwise pin a pool slot for the
// life of the process. The caller owns the session's shutdown.
func (p *Pool) DialDedicated(accountID string) (*Session, error) {
	cfg, err := p.resolve(accountID)
	if err != nil {
		return nil, err
	}
	return Dial(*cfg)
}

// CloseAccount hangs up every parked session for one account; in-flight
// sessions close when their holder Puts them back unhealthy.
func (p *Pool) CloseAccount(accountID string) {
	a := p.forAccount(accountID)
	a.mu.Lock()
	parked := a.idle
	a.idle = nil
	a.mu.Unlock()
	for _, ps := range parked {
		ps.sess.Hangup()
	}
	p.log.Debug().Str("account_id", accountID).Int("closed", len(parked)).Msg("closed parked sessions")
}

// Shutdown hangs up every parked session across all accounts.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.accounts))
	for id := range p.accounts {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.CloseAccount(id)
	}
}
