package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/label"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/searchindex"
	"github.com/ravnmail/ravncore/internal/storage"
)

const (
	cleanupInterval  = 60 * time.Second
	cleanupBatchSize = 50
)

// Cleanup reaps tombstoned emails: attachment blobs go first (respecting
// the per-hash reference count), then label joins, then the rows
// themselves. A single-flight flag keeps the periodic pass and manual
// TriggerCleanup from overlapping.
type Cleanup struct {
	emails   *email.Store
	labels   *label.Store
	index    *searchindex.Index
	files    storage.FileStorage
	interval time.Duration
	log      zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	activeMu sync.Mutex
	active   bool
}

// NewCleanup wires the reaper. files must be the attachment blob store.
func NewCleanup(emails *email.Store, labels *label.Store, index *searchindex.Index,
	files storage.FileStorage, interval time.Duration) *Cleanup {
	if interval <= 0 {
		interval = cleanupInterval
	}
	return &Cleanup{
		emails: emails, labels: labels, index: index, files: files, interval: interval,
		log: logging.WithComponent("cleanup"),
	}
}

// Start launches the reap loop.
func (c *Cleanup) Start(ctx context.Context) {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if c.running {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.wg.Add(1)
	go c.run()
	c.log.Info().Msg("cleanup started")
}

// Stop cancels the loop; an in-flight pass finishes first.
func (c *Cleanup) Stop() {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.running = false
}

func (c *Cleanup) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.TriggerCleanup()
		}
	}
}

// TriggerCleanup runs one reap pass immediately unless one is already in
// flight (the manual trigger and the periodic tick share the guard).
func (c *Cleanup) TriggerCleanup() {
	c.activeMu.Lock()
	if c.active {
		c.activeMu.Unlock()
		c.log.Debug().Msg("cleanup already running, skipping")
		return
	}
	c.active = true
	c.activeMu.Unlock()
	defer func() {
		c.activeMu.Lock()
		c.active = false
		c.activeMu.Unlock()
	}()

	if err := c.reapBatch(); err != nil {
		c.log.Error().Err(err).Msg("cleanup pass failed")
	}
}

func (c *Cleanup) reapBatch() error {
	tombstoned, err := c.emails.ListDeleted(cleanupBatchSize)
	if err != nil {
		return err
	}
	if len(tombstoned) == 0 {
		return nil
	}
	c.log.Debug().Int("count", len(tombstoned)).Msg("reaping deleted emails")

	for _, e := range tombstoned {
		if err := c.reapOne(e); err != nil {
			c.log.Error().Err(err).Str("email_id", e.ID).Msg("failed to reap email")
		}
	}
	return nil
}

// reapOne deletes one tombstoned email and its dependents. A blob is
// only removed from disk when this attachment row is the last reference
// to its hash within the account.
func (c *Cleanup) reapOne(e *model.Email) error {
	atts, err := c.emails.ListByEmail(e.ID)
	if err != nil {
		return err
	}
	for _, a := range atts {
		if a.CachePath != nil && a.Hash != "" {
			refs, err := c.emails.CountByHash(e.AccountID, a.Hash)
			if err == nil && refs <= 1 {
				if err := c.files.Delete(*a.CachePath); err != nil {
					c.log.Warn().Err(err).Str("path", *a.CachePath).Msg("failed to delete attachment blob")
				}
			}
		}
		if err := c.emails.DeleteAttachment(a.ID); err != nil {
			return err
		}
	}
	if err := c.labels.DetachAll(e.ID); err != nil {
		return err
	}
	if err := c.index.DeleteByID(e.ID); err != nil {
		return err
	}
	return c.emails.DeletePermanent(e.ID)
}
