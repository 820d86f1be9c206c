// Package background holds the four independent loops that keep the
// local mirror converging without blocking interactive queries: body
// fetch, AI enrichment, avatar fetch, and deleted-row reaping. Each loop
// is a goroutine with a ticker and a cancel-on-shutdown context, all
// four share the same Start/Stop shape.
package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/providersource"
)

const (
	bodyFetchInterval  = 10 * time.Second
	bodyFetchBatchSize = 10
	maxBodyAttempts    = 5
)

// BodyFetcher pulls full bodies for messages that synced at list level
// only (sync_status = headers_only), fills the snippet, and stores any
// attachments that arrive with the body.
type BodyFetcher struct {
	emails   *email.Store
	syncer   *email.Syncer
	accounts *account.Store
	folders  *folder.Store
	source   *providersource.Source
	bus      *events.Bus
	interval time.Duration
	log      zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewBodyFetcher wires the loop. interval <= 0 uses the default cadence.
func NewBodyFetcher(emails *email.Store, syncer *email.Syncer, accounts *account.Store,
	folders *folder.Store, source *providersource.Source, bus *events.Bus, interval time.Duration) *BodyFetcher {
	if interval <= 0 {
		interval = bodyFetchInterval
	}
	return &BodyFetcher{
		emails: emails, syncer: syncer, accounts: accounts, folders: folders,
		source: source, bus: bus, interval: interval,
		log: logging.WithComponent("body-fetcher"),
	}
}

// Start launches the fetch loop.
func (b *BodyFetcher) Start(ctx context.Context) {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	if b.running {
		return
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	b.wg.Add(1)
	go b.run()
	b.log.Info().Msg("body fetcher started")
}

// Stop cancels the loop; an in-flight batch finishes first.
func (b *BodyFetcher) Stop() {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	if !b.running {
		return
	}
	b.cancel()
	b.wg.Wait()
	b.running = false
}

func (b *BodyFetcher) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if err := b.fetchBatch(b.ctx); err != nil {
				b.log.Error().Err(err).Msg("body fetch batch failed")
			}
		}
	}
}

// fetchBatch processes up to bodyFetchBatchSize pending messages.
func (b *BodyFetcher) fetchBatch(ctx context.Context) error {
	pending, err := b.emails.ListHeadersOnly(bodyFetchBatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	b.log.Debug().Int("count", len(pending)).Msg("fetching bodies")

	updated := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := b.fetchOne(ctx, e); err != nil {
			attempts, attErr := b.emails.IncrementBodyFetchAttempts(e.ID)
			if attErr != nil {
				b.log.Error().Err(attErr).Str("email_id", e.ID).Msg("failed to record body fetch attempt")
			} else if attempts > maxBodyAttempts {
				b.log.Warn().Str("email_id", e.ID).Int("attempts", attempts).Msg("giving up on body fetch")
			}
			b.log.Debug().Err(err).Str("email_id", e.ID).Msg("body fetch failed")
			continue
		}
		updated++
	}
	if updated > 0 && b.bus != nil {
		b.bus.Emit(events.EmailsUpdated, events.SyncStatusPayload{EmailsSynced: updated})
	}
	return nil
}

func (b *BodyFetcher) fetchOne(ctx context.Context, e *model.Email) error {
	acc, err := b.accounts.Get(e.AccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("account %s not found", e.AccountID)
	}
	f, err := b.folders.Get(e.FolderID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("folder %s not found", e.FolderID)
	}
	p, err := b.source.ProviderFor(ctx, *acc)
	if err != nil {
		return err
	}
	sf := provider.SyncFolder{RemoteID: f.RemoteID, Name: f.Name, Type: f.Type, Path: f.RemoteID}
	se, err := p.FetchEmail(ctx, sf, e.RemoteID)
	if err != nil {
		return err
	}
	return b.syncer.ApplyFetchedBody(e, se)
}
