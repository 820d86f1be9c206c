package folder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// folderLister stubs only FetchFolders; everything else is unsupported.
type folderLister struct {
	folders []provider.SyncFolder
}

func (f *folderLister) Authenticate(ctx context.Context, creds provider.Credentials) error { return nil }
func (f *folderLister) TestConnection(ctx context.Context) error                           { return nil }
func (f *folderLister) FetchFolders(ctx context.Context) ([]provider.SyncFolder, error) {
	return f.folders, nil
}
func (f *folderLister) SyncMessages(ctx context.Context, folder provider.SyncFolder, syncToken *string) (provider.SyncDiff, error) {
	return provider.SyncDiff{}, syncerr.ErrNotSupported
}
func (f *folderLister) FetchEmail(ctx context.Context, folder provider.SyncFolder, remoteID string) (provider.SyncEmail, error) {
	return provider.SyncEmail{}, syncerr.ErrNotSupported
}
func (f *folderLister) FetchAttachment(ctx context.Context, remoteID string, attachment provider.SyncAttachment) ([]byte, error) {
	return nil, syncerr.ErrNotSupported
}
func (f *folderLister) MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder provider.SyncFolder) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) DeleteEmail(ctx context.Context, folder provider.SyncFolder, remoteID string, permanent bool) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) MarkAsRead(ctx context.Context, folder provider.SyncFolder, remoteID string, read bool) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) SetFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flagged bool) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) RenameFolder(ctx context.Context, folder provider.SyncFolder, newName string) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) MoveFolder(ctx context.Context, folder provider.SyncFolder, newParentRemoteID string) error {
	return syncerr.ErrNotSupported
}
func (f *folderLister) GetSyncToken(ctx context.Context, folder provider.SyncFolder) (*string, error) {
	return nil, nil
}
func (f *folderLister) SendEmail(ctx context.Context, email provider.SyncEmail, rawMIME []byte) error {
	return syncerr.ErrNotSupported
}

func newSyncFixture(t *testing.T) (*Syncer, *Store, *model.Account) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	acc := &model.Account{DisplayName: "A", Email: "a@example.com", Type: model.AccountIMAP}
	require.NoError(t, account.NewStore(db).Create(acc))

	store := NewStore(db)
	return NewSyncer(store, events.NewBus()), store, acc
}

func TestSyncCreatesTreeWithParents(t *testing.T) {
	syncer, store, acc := newSyncFixture(t)
	p := &folderLister{folders: []provider.SyncFolder{
		{RemoteID: "INBOX", Name: "INBOX", Type: model.FolderInbox, Path: "INBOX"},
		{RemoteID: "Work", Name: "Work", Type: model.FolderCustom, Path: "Work"},
		{RemoteID: "Work/Invoices", Name: "Invoices", Type: model.FolderCustom, Path: "Work/Invoices"},
	}}

	require.NoError(t, syncer.Sync(context.Background(), acc, p))

	all, err := store.ListByAccount(acc.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)

	byName := map[string]*model.Folder{}
	for _, f := range all {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "Invoices")
	require.NotNil(t, byName["Invoices"].ParentID)
	assert.Equal(t, byName["Work"].ID, *byName["Invoices"].ParentID)
	assert.Nil(t, byName["Work"].ParentID)
	assert.Nil(t, byName["INBOX"].ParentID)
	assert.Equal(t, model.FolderInbox, byName["INBOX"].Type)
}

func TestSyncRemovesStaleFoldersAndKeepsIDs(t *testing.T) {
	syncer, store, acc := newSyncFixture(t)
	p := &folderLister{folders: []provider.SyncFolder{
		{RemoteID: "INBOX", Name: "INBOX", Type: model.FolderInbox, Path: "INBOX"},
		{RemoteID: "Old", Name: "Old", Type: model.FolderCustom, Path: "Old"},
	}}
	require.NoError(t, syncer.Sync(context.Background(), acc, p))

	before, err := store.GetByRemoteID(acc.ID, "INBOX")
	require.NoError(t, err)

	p.folders = []provider.SyncFolder{
		{RemoteID: "INBOX", Name: "INBOX", Type: model.FolderInbox, Path: "INBOX"},
	}
	require.NoError(t, syncer.Sync(context.Background(), acc, p))

	all, err := store.ListByAccount(acc.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	// The surviving folder kept its local id across reconciliations.
	assert.Equal(t, before.ID, all[0].ID)
}
