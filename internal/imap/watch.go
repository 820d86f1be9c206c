package imap

import (
	"context"
	"errors"
	"time"

	"github.com/emersion/go-imap/v2"
)

// ErrIdleUnsupported is returned by Watch when the server doesn't
// advertise IDLE; callers fall back to interval polling alone.
var ErrIdleUnsupported = errors.New("imap server does not support IDLE")

// watchRefresh is how long one IDLE command is allowed to run before
// being re-issued. RFC 2177 lets servers drop clients idling past ~29
// minutes; refreshing at 25 keeps the session comfortably alive.
const watchRefresh = 25 * time.Minute

// Watch selects path and sits in IDLE, invoking onChange whenever the
// server pushes a mailbox update (new message, expunge). It blocks
// until ctx is cancelled or the connection fails; the caller owns
// reconnect policy. onChange runs on the connection's read goroutine
// and must not block.
func (s *Session) Watch(ctx context.Context, path string, onChange func()) error {
	if !s.Supports(imap.CapIdle) {
		return ErrIdleUnsupported
	}
	if _, err := s.Select(ctx, path); err != nil {
		return err
	}

	s.setUpdateFunc(onChange)
	defer s.setUpdateFunc(nil)

	for {
		// A NOOP round-trip first: entering IDLE on a half-dead
		// connection surfaces the failure only after the full refresh
		// window otherwise.
		if err := s.cli.Noop().Wait(); err != nil {
			return err
		}

		idleCmd, err := s.cli.Idle()
		if err != nil {
			return err
		}

		timer := time.NewTimer(watchRefresh)
		select {
		case <-ctx.Done():
			timer.Stop()
			idleCmd.Close()
			return ctx.Err()
		case <-timer.C:
			if err := idleCmd.Close(); err != nil {
				return err
			}
		}
	}
}
