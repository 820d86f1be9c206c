package email

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/conversation"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/searchindex"
	"github.com/ravnmail/ravncore/internal/storage"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"github.com/ravnmail/ravncore/internal/syncstate"
)

// fakeProvider returns scripted diffs per call and fails everything else
// with NotSupported.
type fakeProvider struct {
	diffs []provider.SyncDiff
	calls int
	// tokens records the sync token passed to each SyncMessages call.
	tokens []*string
	err    error
}

func (f *fakeProvider) Authenticate(ctx context.Context, creds provider.Credentials) error { return nil }
func (f *fakeProvider) TestConnection(ctx context.Context) error                           { return nil }
func (f *fakeProvider) FetchFolders(ctx context.Context) ([]provider.SyncFolder, error)    { return nil, nil }

func (f *fakeProvider) SyncMessages(ctx context.Context, folder provider.SyncFolder, syncToken *string) (provider.SyncDiff, error) {
	f.tokens = append(f.tokens, syncToken)
	if f.err != nil {
		return provider.SyncDiff{}, f.err
	}
	if f.calls >= len(f.diffs) {
		return provider.SyncDiff{}, nil
	}
	d := f.diffs[f.calls]
	f.calls++
	return d, nil
}

func (f *fakeProvider) FetchEmail(ctx context.Context, folder provider.SyncFolder, remoteID string) (provider.SyncEmail, error) {
	return provider.SyncEmail{}, syncerr.ErrNotSupported
}
func (f *fakeProvider) FetchAttachment(ctx context.Context, remoteID string, attachment provider.SyncAttachment) ([]byte, error) {
	return nil, syncerr.ErrNotSupported
}
func (f *fakeProvider) MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder provider.SyncFolder) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) DeleteEmail(ctx context.Context, folder provider.SyncFolder, remoteID string, permanent bool) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) MarkAsRead(ctx context.Context, folder provider.SyncFolder, remoteID string, read bool) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) SetFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flagged bool) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) RenameFolder(ctx context.Context, folder provider.SyncFolder, newName string) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) MoveFolder(ctx context.Context, folder provider.SyncFolder, newParentRemoteID string) error {
	return syncerr.ErrNotSupported
}
func (f *fakeProvider) GetSyncToken(ctx context.Context, folder provider.SyncFolder) (*string, error) {
	return nil, nil
}
func (f *fakeProvider) SendEmail(ctx context.Context, email provider.SyncEmail, rawMIME []byte) error {
	return syncerr.ErrNotSupported
}

type fixture struct {
	db         *database.DB
	syncer     *Syncer
	store      *Store
	folders    *folder.Store
	syncStates *syncstate.Store
	index      *searchindex.Index
	acc        *model.Account
	inbox      *model.Folder
	sent       *model.Folder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	files, err := storage.NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	accounts := account.NewStore(db)
	folders := folder.NewStore(db)
	emails := NewStore(db)
	conversations := conversation.NewStore(db)
	contacts := contact.NewStore(db)
	syncStates := syncstate.NewStore(db)
	index := searchindex.New(db)

	acc := &model.Account{DisplayName: "Test", Email: "me@example.com", Type: model.AccountIMAP}
	require.NoError(t, accounts.Create(acc))

	inbox := &model.Folder{AccountID: acc.ID, Name: "INBOX", Type: model.FolderInbox, RemoteID: "INBOX"}
	require.NoError(t, folders.Create(inbox))
	sent := &model.Folder{AccountID: acc.ID, Name: "Sent", Type: model.FolderSent, RemoteID: "Sent"}
	require.NoError(t, folders.Create(sent))

	syncer := NewSyncer(emails, folders, syncStates, conversations, contacts, index, files, events.NewBus())
	return &fixture{
		db: db, syncer: syncer, store: emails, folders: folders, syncStates: syncStates,
		index: index, acc: acc, inbox: inbox, sent: sent,
	}
}

func syncFolderOf(f *model.Folder) provider.SyncFolder {
	return provider.SyncFolder{RemoteID: f.RemoteID, Name: f.Name, Type: f.Type, Path: f.RemoteID}
}

func wireEmail(remoteID, messageID, subject, body string) provider.SyncEmail {
	return provider.SyncEmail{
		RemoteID:   remoteID,
		MessageID:  messageID,
		From:       provider.SyncAddress{Address: "sender@example.org", DisplayName: "Sender"},
		To:         []provider.SyncAddress{{Address: "me@example.com"}},
		Subject:    subject,
		BodyPlain:  body,
		HasBody:    body != "",
		ReceivedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestEmptyFolderFullSync(t *testing.T) {
	fx := newFixture(t)
	token := "t0"
	p := &fakeProvider{diffs: []provider.SyncDiff{{NextToken: &token}}}

	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, syncFolderOf(fx.inbox), p, true))

	f, err := fx.folders.Get(fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.TotalCount)
	assert.Equal(t, 0, f.UnreadCount)

	st, err := fx.syncStates.Get(fx.acc.ID, fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateIdle, st.Status)
	require.NotNil(t, st.SyncToken)
	assert.Equal(t, "t0", *st.SyncToken)
	assert.Equal(t, 0, st.ErrorCount)
	// A full sync never passes a stored token to the provider.
	require.Len(t, p.tokens, 1)
	assert.Nil(t, p.tokens[0])
}

func TestIncrementalAddAndDelete(t *testing.T) {
	fx := newFixture(t)
	t0, h1 := "t0", "h1"
	p := &fakeProvider{diffs: []provider.SyncDiff{
		{
			Added: []provider.SyncEmail{
				wireEmail("r1", "<m1@x>", "first", "body one"),
				wireEmail("r2", "<m2@x>", "second", "body two"),
				wireEmail("r3", "<m3@x>", "third", "body three"),
			},
			NextToken: &t0,
		},
		{
			Added:     []provider.SyncEmail{wireEmail("r4", "<m4@x>", "fourth", "fresh arrival")},
			Deleted:   []string{"r1"},
			NextToken: &h1,
		},
	}}

	sf := syncFolderOf(fx.inbox)
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, true))
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, false))

	// The delta call resumed from the stored token.
	require.Len(t, p.tokens, 2)
	require.NotNil(t, p.tokens[1])
	assert.Equal(t, "t0", *p.tokens[1])

	f, err := fx.folders.Get(fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.TotalCount) // 3 added, 1 more, 1 tombstoned

	gone, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)
	assert.True(t, gone.IsDeleted)

	st, err := fx.syncStates.Get(fx.acc.ID, fx.inbox.ID)
	require.NoError(t, err)
	require.NotNil(t, st.SyncToken)
	assert.Equal(t, "h1", *st.SyncToken)

	// The new message is searchable; the tombstoned one is not.
	hits, err := fx.index.Search(searchindex.ParseQuery("fresh"), searchindex.Query{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hits, err = fx.index.Search(searchindex.ParseQuery("body"), searchindex.Query{})
	require.NoError(t, err)
	assert.Len(t, hits, 2) // "body two", "body three"; "body one" is deleted
}

func TestFullSyncTombstonesLocalOnlyRows(t *testing.T) {
	fx := newFixture(t)
	p := &fakeProvider{diffs: []provider.SyncDiff{
		{Added: []provider.SyncEmail{
			wireEmail("r1", "<m1@x>", "one", "a"),
			wireEmail("r2", "<m2@x>", "two", "b"),
		}},
		{Added: []provider.SyncEmail{
			wireEmail("r2", "<m2@x>", "two", "b"),
		}},
	}}

	sf := syncFolderOf(fx.inbox)
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, true))
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, true))

	f, err := fx.folders.Get(fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.TotalCount)

	e1, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)
	assert.True(t, e1.IsDeleted)
	e2, err := fx.store.GetByMessageID(fx.acc.ID, "<m2@x>")
	require.NoError(t, err)
	assert.False(t, e2.IsDeleted)
}

func TestUpsertPreservesIDAndCreatedAt(t *testing.T) {
	fx := newFixture(t)
	p := &fakeProvider{diffs: []provider.SyncDiff{
		{Added: []provider.SyncEmail{wireEmail("r1", "<m1@x>", "subject", "hello")}},
		{Modified: []provider.SyncEmail{func() provider.SyncEmail {
			e := wireEmail("r1", "<m1@x>", "subject", "hello")
			e.IsRead = true
			return e
		}()}},
	}}

	sf := syncFolderOf(fx.inbox)
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, true))
	first, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)

	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, false))
	second, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	// Remote wins on read state.
	assert.True(t, second.IsRead)

	f, err := fx.folders.Get(fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.TotalCount)
	assert.Equal(t, 0, f.UnreadCount)
}

func TestAttachmentDedupByHash(t *testing.T) {
	fx := newFixture(t)
	pdf := []byte("identical pdf bytes")
	att := provider.SyncAttachment{Filename: "doc.pdf", ContentType: "application/pdf", Size: int64(len(pdf)), Data: pdf}

	e1 := wireEmail("r1", "<m1@x>", "one", "a")
	e1.Attachments = []provider.SyncAttachment{att}
	e2 := wireEmail("r2", "<m2@x>", "two", "b")
	e2.Attachments = []provider.SyncAttachment{att}

	p := &fakeProvider{diffs: []provider.SyncDiff{{Added: []provider.SyncEmail{e1, e2}}}}
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, syncFolderOf(fx.inbox), p, true))

	row1, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)
	row2, err := fx.store.GetByMessageID(fx.acc.ID, "<m2@x>")
	require.NoError(t, err)
	assert.True(t, row1.HasAttachments)
	assert.True(t, row2.HasAttachments)

	atts1, err := fx.store.ListByEmail(row1.ID)
	require.NoError(t, err)
	atts2, err := fx.store.ListByEmail(row2.ID)
	require.NoError(t, err)
	require.Len(t, atts1, 1)
	require.Len(t, atts2, 1)

	// Same hash, same blob path, both cached.
	assert.Equal(t, storage.ComputeHash(pdf), atts1[0].Hash)
	assert.Equal(t, atts1[0].Hash, atts2[0].Hash)
	require.NotNil(t, atts1[0].CachePath)
	require.NotNil(t, atts2[0].CachePath)
	assert.Equal(t, *atts1[0].CachePath, *atts2[0].CachePath)
	assert.True(t, atts1[0].IsCached)
	assert.True(t, atts2[0].IsCached)

	refs, err := fx.store.CountByHash(fx.acc.ID, atts1[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, 2, refs)
}

func TestInlineAttachmentDetectedFromCID(t *testing.T) {
	fx := newFixture(t)
	e := wireEmail("r1", "<m1@x>", "pics", "see image")
	e.BodyHTML = `<p>hi</p><img src="cid:photo1">`
	e.Attachments = []provider.SyncAttachment{{
		Filename: "pic.png", ContentType: "image/png", ContentID: "<photo1>", Data: []byte("png bytes"),
	}}

	p := &fakeProvider{diffs: []provider.SyncDiff{{Added: []provider.SyncEmail{e}}}}
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, syncFolderOf(fx.inbox), p, true))

	row, err := fx.store.GetByMessageID(fx.acc.ID, "<m1@x>")
	require.NoError(t, err)
	atts, err := fx.store.ListByEmail(row.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.True(t, atts[0].IsInline)
}

func TestSyncErrorPreservesToken(t *testing.T) {
	fx := newFixture(t)
	t0 := "t0"
	p := &fakeProvider{diffs: []provider.SyncDiff{{NextToken: &t0}}}
	sf := syncFolderOf(fx.inbox)
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, true))

	p.err = syncerr.New(syncerr.KindNetwork, "connection reset")
	require.Error(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, sf, p, false))

	st, err := fx.syncStates.Get(fx.acc.ID, fx.inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateError, st.Status)
	assert.Equal(t, 1, st.ErrorCount)
	// The token from the last successful sync is kept for resume.
	require.NotNil(t, st.SyncToken)
	assert.Equal(t, "t0", *st.SyncToken)
}

func TestHeadersOnlyQueuedForBodyFetch(t *testing.T) {
	fx := newFixture(t)
	e := wireEmail("r1", "<m1@x>", "no body yet", "")
	p := &fakeProvider{diffs: []provider.SyncDiff{{Added: []provider.SyncEmail{e}}}}
	require.NoError(t, fx.syncer.Sync(context.Background(), fx.acc, fx.inbox, syncFolderOf(fx.inbox), p, true))

	pending, err := fx.store.ListHeadersOnly(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.SyncHeadersOnly, pending[0].SyncStatus)
	assert.Nil(t, pending[0].Snippet)
}
