// Package app is the command surface the UI process calls over RPC.
// Each method translates one UI call into core operations and returns a
// structured result; the heavy lifting lives in the internal packages.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/credentials"
	"github.com/ravnmail/ravncore/internal/oauth2state"
	"github.com/ravnmail/ravncore/internal/background"
	"github.com/ravnmail/ravncore/internal/config"
	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/conversation"
	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/label"
	"github.com/ravnmail/ravncore/internal/licensing"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/notification"
	"github.com/ravnmail/ravncore/internal/searchindex"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/ravnmail/ravncore/internal/synccoordinator"
)

// App bundles every store and service a command can reach.
type App struct {
	ctx context.Context

	Accounts      *account.Store
	Folders       *folder.Store
	Emails        *email.Store
	Conversations *conversation.Store
	Contacts      *contact.Store
	Labels        *label.Store
	Index         *searchindex.Index
	Settings      *config.Settings
	Badge         *notification.BadgeService
	Licenses      *licensing.Manager
	Coordinator   *synccoordinator.Coordinator
	Cleanup       *background.Cleanup
	Credentials   *credentials.Store
	OAuthStates   *oauth2state.Manager
	Bus           *events.Bus

	log zerolog.Logger
}

// timeNow is swapped in tests.
var timeNow = time.Now

// New wires the command surface.
func New(ctx context.Context) *App {
	return &App{ctx: ctx, log: logging.WithComponent("app")}
}

// GetFolders returns every folder of an account.
func (a *App) GetFolders(accountID string) ([]*model.Folder, error) {
	return a.Folders.ListByAccount(accountID)
}

// InitFolderSync enqueues a user-triggered sync of one folder.
func (a *App) InitFolderSync(folderID string, full bool) error {
	f, err := a.Folders.Get(folderID)
	if err != nil {
		return err
	}
	if f == nil {
		return syncerr.ErrNotFound
	}
	return a.Coordinator.SyncFolder(f.AccountID, folderID, full)
}

// TriggerCleanup runs a reap pass immediately; overlapping triggers are
// dropped by the single-flight guard.
func (a *App) TriggerCleanup() {
	a.Cleanup.TriggerCleanup()
}
