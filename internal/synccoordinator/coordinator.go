// Package synccoordinator orchestrates account-level sync rounds: it
// reconciles folder trees on start-up, keeps every non-hidden folder
// enqueued at its own sync_interval, runs the bounded worker set that
// drains the queue, and emits lifecycle events.
package synccoordinator

import (
	"context"
	"errors"
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
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/ravnmail/ravncore/internal/syncqueue"
	"github.com/ravnmail/ravncore/internal/syncstate"
)

const (
	// pollSleep is how long an idle worker sleeps before re-polling the
	// queue.
	pollSleep = 100 * time.Millisecond

	// scheduleInterval is how often due folders are re-enqueued.
	scheduleInterval = 30 * time.Second
)

// Coordinator drives the steady-state sync pipeline.
type Coordinator struct {
	accounts    *account.Store
	folders     *folder.Store
	folderSync  *folder.Syncer
	emailSync   *email.Syncer
	syncStates  *syncstate.Store
	source      *providersource.Source
	queue       *syncqueue.Queue
	bus         *events.Bus
	concurrency int
	log         zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	// Accounts whose credentials failed; their folders are not requeued
	// until ResumeAccount is called after the user re-authenticates.
	blocked   map[string]bool
	blockedMu sync.Mutex

	// Accounts with a live inbox IDLE watcher.
	watching   map[string]bool
	watchingMu sync.Mutex
}

// folderWatcher is the optional push capability a provider may expose:
// block on a server-side notification channel for one folder, invoking
// onChange per update. Only the IMAP provider implements it; Gmail and
// Graph rely on interval polling of their changefeeds.
type folderWatcher interface {
	WatchFolder(ctx context.Context, folder provider.SyncFolder, onChange func()) error
}

// New wires a coordinator. concurrency is clamped to [1, 100].
func New(accounts *account.Store, folders *folder.Store, folderSync *folder.Syncer,
	emailSync *email.Syncer, syncStates *syncstate.Store, source *providersource.Source,
	bus *events.Bus, concurrency int) *Coordinator {
	return &Coordinator{
		accounts:    accounts,
		folders:     folders,
		folderSync:  folderSync,
		emailSync:   emailSync,
		syncStates:  syncStates,
		source:      source,
		queue:       syncqueue.New(),
		bus:         bus,
		concurrency: syncqueue.ClampWorkers(concurrency),
		blocked:     make(map[string]bool),
		watching:    make(map[string]bool),
		log:         logging.WithComponent("sync-coordinator"),
	}
}

// Queue exposes the underlying queue for inspection.
func (c *Coordinator) Queue() *syncqueue.Queue { return c.queue }

// Start launches the workers and the scheduling loop, then runs the
// initial account pass (folder reconciliation + first enqueue of every
// non-hidden folder).
func (c *Coordinator) Start(ctx context.Context) {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if c.running {
		c.log.Warn().Msg("coordinator already running")
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.wg.Add(1)
	go c.scheduleLoop()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.initialPass(c.ctx)
	}()

	c.log.Info().Int("workers", c.concurrency).Msg("sync coordinator started")
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (c *Coordinator) Stop() {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.running = false
	c.log.Info().Msg("sync coordinator stopped")
}

// initialPass loads every sync-enabled account, reconciles its folder
// tree, and enqueues its non-hidden folders.
func (c *Coordinator) initialPass(ctx context.Context) {
	accs, err := c.accounts.ListSyncEnabled()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list sync-enabled accounts")
		return
	}

	c.bus.Emit(events.SyncStatusChanged, events.SyncStatusPayload{Phase: events.PhaseStarted})

	for i, acc := range accs {
		if ctx.Err() != nil {
			return
		}
		c.bus.Emit(events.SyncStatusChanged, events.SyncStatusPayload{
			AccountID: acc.ID, Phase: events.PhaseInProgress, Current: i + 1, Total: len(accs),
		})
		p, err := c.syncAccountFolders(ctx, acc)
		if err != nil {
			c.log.Error().Err(err).Str("account_id", acc.ID).Msg("initial folder sync failed")
			continue
		}
		c.enqueueAccountFolders(acc, syncqueue.Normal, false)
		c.startInboxWatch(acc, p)
	}
}

// syncAccountFolders runs FolderSync for one account, handling
// authentication failure by blocking the account. The authenticated
// provider is returned for follow-up wiring (the inbox watcher).
func (c *Coordinator) syncAccountFolders(ctx context.Context, acc *model.Account) (provider.Provider, error) {
	p, err := c.source.ProviderFor(ctx, *acc)
	if err != nil {
		c.handleAccountError(acc, err)
		return nil, err
	}
	if err := p.Authenticate(ctx, provider.Credentials{}); err != nil {
		c.handleAccountError(acc, err)
		return nil, err
	}
	if err := c.folderSync.Sync(ctx, acc, p); err != nil {
		return nil, err
	}
	return p, nil
}

// startInboxWatch spawns an IDLE watcher on the account's inbox when the
// provider supports push, so new mail triggers a High-priority sync
// ahead of the next polling interval. One watcher per account.
func (c *Coordinator) startInboxWatch(acc *model.Account, p provider.Provider) {
	watcher, ok := p.(folderWatcher)
	if !ok {
		return
	}

	fs, err := c.folders.ListByAccount(acc.ID)
	if err != nil {
		return
	}
	var inbox *model.Folder
	for _, f := range fs {
		if f.Type == model.FolderInbox && !f.Hidden {
			inbox = f
			break
		}
	}
	if inbox == nil {
		return
	}

	c.watchingMu.Lock()
	if c.watching[acc.ID] {
		c.watchingMu.Unlock()
		return
	}
	c.watching[acc.ID] = true
	c.watchingMu.Unlock()

	accCopy, inboxCopy := *acc, *inbox
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.watchingMu.Lock()
			delete(c.watching, accCopy.ID)
			c.watchingMu.Unlock()
		}()

		err := watcher.WatchFolder(c.ctx, c.toSyncFolder(&inboxCopy), func() {
			if c.isBlocked(accCopy.ID) {
				return
			}
			c.queue.Enqueue(syncqueue.Item{
				Account:    accCopy,
				Folder:     inboxCopy,
				SyncFolder: c.toSyncFolder(&inboxCopy),
				Priority:   syncqueue.High,
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug().Err(err).Str("account", accCopy.Email).Msg("inbox watch ended")
		}
	}()
}

// enqueueAccountFolders pushes every non-hidden folder of the account
// onto the queue.
func (c *Coordinator) enqueueAccountFolders(acc *model.Account, prio syncqueue.Priority, full bool) {
	if c.isBlocked(acc.ID) {
		return
	}
	fs, err := c.folders.ListByAccount(acc.ID)
	if err != nil {
		c.log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to list folders for enqueue")
		return
	}
	for _, f := range fs {
		if f.Hidden {
			continue
		}
		c.enqueueFolder(acc, f, prio, full)
	}
}

func (c *Coordinator) enqueueFolder(acc *model.Account, f *model.Folder, prio syncqueue.Priority, full bool) {
	c.queue.Enqueue(syncqueue.Item{
		Account:      *acc,
		Folder:       *f,
		SyncFolder:   c.toSyncFolder(f),
		Priority:     prio,
		Full:         full,
		LastSyncedAt: f.LastSyncedAt,
	})
}

// toSyncFolder rebuilds the provider wire representation of a local
// folder. For IMAP the remote id is the full path; Gmail/Graph ids are
// opaque and Path is unused by those providers.
func (c *Coordinator) toSyncFolder(f *model.Folder) provider.SyncFolder {
	sf := provider.SyncFolder{
		RemoteID: f.RemoteID,
		Name:     f.Name,
		Type:     f.Type,
		Path:     f.RemoteID,
	}
	if f.ParentID != nil {
		if parent, err := c.folders.Get(*f.ParentID); err == nil && parent != nil {
			sf.ParentRemoteID = parent.RemoteID
		}
	}
	return sf
}

// SyncFolder is the user-triggered resync entry point. The job is
// enqueued at High priority; full forces snapshot reconciliation.
func (c *Coordinator) SyncFolder(accountID, folderID string, full bool) error {
	acc, err := c.accounts.Get(accountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return syncerr.ErrNotFound
	}
	f, err := c.folders.Get(folderID)
	if err != nil {
		return err
	}
	if f == nil {
		return syncerr.ErrNotFound
	}
	c.bus.Emit(events.FolderSyncStarted, events.SyncStatusPayload{
		AccountID: accountID, FolderID: folderID, Phase: events.PhaseStarted,
	})
	c.enqueueFolder(acc, f, syncqueue.High, full)
	return nil
}

// SyncAccount enqueues every folder of one account at High priority.
func (c *Coordinator) SyncAccount(accountID string, full bool) error {
	acc, err := c.accounts.Get(accountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return syncerr.ErrNotFound
	}
	c.enqueueAccountFolders(acc, syncqueue.High, full)
	return nil
}

// ResumeAccount clears the credentials-required block after the user
// re-authenticated, and drops any stale cached token source.
func (c *Coordinator) ResumeAccount(accountID string) {
	c.blockedMu.Lock()
	delete(c.blocked, accountID)
	c.blockedMu.Unlock()
	c.source.InvalidateTokenSource(accountID)
}

func (c *Coordinator) isBlocked(accountID string) bool {
	c.blockedMu.Lock()
	defer c.blockedMu.Unlock()
	return c.blocked[accountID]
}

func (c *Coordinator) handleAccountError(acc *model.Account, err error) {
	if syncerr.IsKind(err, syncerr.KindAuthentication) {
		c.blockedMu.Lock()
		c.blocked[acc.ID] = true
		c.blockedMu.Unlock()
		c.bus.Emit(events.CredentialsRequired, events.CredentialsRequiredPayload{
			AccountID: acc.ID,
			Provider:  string(acc.Type),
			Reason:    err.Error(),
		})
		return
	}
	c.bus.Emit(events.SyncStatusChanged, events.SyncStatusPayload{
		AccountID: acc.ID, Phase: events.PhaseError, ErrorMessage: err.Error(),
	})
}

// scheduleLoop periodically re-enqueues folders whose sync_interval has
// elapsed since their last sync.
func (c *Coordinator) scheduleLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(scheduleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.enqueueDueFolders()
		}
	}
}

func (c *Coordinator) enqueueDueFolders() {
	accs, err := c.accounts.ListSyncEnabled()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list accounts for scheduling")
		return
	}
	now := time.Now().UTC()
	for _, acc := range accs {
		if c.isBlocked(acc.ID) {
			continue
		}
		fs, err := c.folders.ListByAccount(acc.ID)
		if err != nil {
			continue
		}
		for _, f := range fs {
			if f.Hidden {
				continue
			}
			interval := f.SyncInterval
			if interval <= 0 {
				interval = f.Type.DefaultSyncInterval()
			}
			if f.LastSyncedAt == nil || now.Sub(*f.LastSyncedAt) >= time.Duration(interval)*time.Second {
				c.enqueueFolder(acc, f, syncqueue.Normal, false)
			}
		}
	}
}

// worker drains the queue: pull, sync, mark done, loop. An empty queue
// costs a 100 ms sleep per poll.
func (c *Coordinator) worker(id int) {
	defer c.wg.Done()
	log := c.log.With().Int("worker", id).Logger()
	for {
		if c.ctx.Err() != nil {
			return
		}
		item := c.queue.Dequeue()
		if item == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(pollSleep):
			}
			continue
		}
		c.process(log, item)
	}
}

func (c *Coordinator) process(log zerolog.Logger, item *syncqueue.Item) {
	defer c.queue.MarkDone(item.Folder.ID)

	if c.isBlocked(item.Account.ID) {
		return
	}

	p, err := c.source.ProviderFor(c.ctx, item.Account)
	if err != nil {
		c.handleAccountError(&item.Account, err)
		return
	}

	err = c.emailSync.Sync(c.ctx, &item.Account, &item.Folder, item.SyncFolder, p, item.Full)
	switch {
	case err == nil:
		log.Debug().Str("folder", item.Folder.Name).Str("account", item.Account.Email).Msg("folder synced")
	case errors.Is(err, context.Canceled):
	case syncerr.IsKind(err, syncerr.KindAuthentication):
		c.handleAccountError(&item.Account, err)
	default:
		log.Error().Err(err).Str("folder", item.Folder.Name).Str("account", item.Account.Email).Msg("folder sync failed")
	}
}
