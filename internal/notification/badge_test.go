package notification

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/config"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/model"
)

func newBadgeFixture(t *testing.T) (*BadgeService, *config.Settings, *model.Folder, *model.Folder, *events.Bus) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	acc := &model.Account{DisplayName: "A", Email: "a@example.com", Type: model.AccountIMAP}
	require.NoError(t, account.NewStore(db).Create(acc))

	folders := folder.NewStore(db)
	inbox := &model.Folder{AccountID: acc.ID, Name: "INBOX", Type: model.FolderInbox, RemoteID: "INBOX"}
	require.NoError(t, folders.Create(inbox))
	archive := &model.Folder{AccountID: acc.ID, Name: "Archive", Type: model.FolderArchive, RemoteID: "Archive"}
	require.NoError(t, folders.Create(archive))
	require.NoError(t, folders.UpdateCounters(inbox.ID, 3, 10))
	require.NoError(t, folders.UpdateCounters(archive.ID, 2, 5))

	settings, err := config.New(filepath.Join(dir, "defaults.json5"), filepath.Join(dir, "settings.json5"))
	require.NoError(t, err)

	bus := events.NewBus()
	return NewBadgeService(folders, settings, bus), settings, inbox, archive, bus
}

func TestBadgeDisabledWhenUnset(t *testing.T) {
	svc, _, _, _, _ := newBadgeFixture(t)
	count, enabled, err := svc.BadgeCount()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, 0, count)
}

func TestBadgeEmptyListCountsAllFolders(t *testing.T) {
	svc, settings, _, _, _ := newBadgeFixture(t)
	require.NoError(t, settings.Set("notifications.badge_folders", []any{}))

	count, enabled, err := svc.BadgeCount()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 5, count)
}

func TestBadgeScopedToConfiguredFolders(t *testing.T) {
	svc, settings, inbox, _, _ := newBadgeFixture(t)
	require.NoError(t, settings.Set("notifications.badge_folders", []any{inbox.ID}))

	count, enabled, err := svc.BadgeCount()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 3, count)
}

func TestUpdateBadgeCountEmitsEvent(t *testing.T) {
	svc, settings, _, _, bus := newBadgeFixture(t)
	require.NoError(t, settings.Set("notifications.badge_folders", []any{}))

	var got any
	bus.On(events.BadgeCountUpdated, func(payload any) { got = payload })

	count, err := svc.UpdateBadgeCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 5, got)
}
