package syncstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/model"
)

func newStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	acc := &model.Account{DisplayName: "A", Email: "a@example.com", Type: model.AccountIMAP}
	require.NoError(t, account.NewStore(db).Create(acc))
	f := &model.Folder{AccountID: acc.ID, Name: "INBOX", Type: model.FolderInbox, RemoteID: "INBOX"}
	require.NoError(t, folder.NewStore(db).Create(f))

	return NewStore(db), acc.ID, f.ID
}

func TestGetReturnsIdleDefault(t *testing.T) {
	s, accID, fID := newStore(t)
	st, err := s.Get(accID, fID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateIdle, st.Status)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Nil(t, st.SyncToken)
}

func TestErrorStreakCountsMonotonically(t *testing.T) {
	s, accID, fID := newStore(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.MarkError(accID, fID, "boom"))
		st, err := s.Get(accID, fID)
		require.NoError(t, err)
		assert.Equal(t, i, st.ErrorCount)
		assert.Equal(t, model.SyncStateError, st.Status)
		assert.Equal(t, "boom", st.ErrorMessage)
	}
}

func TestSuccessResetsStreakAndStoresToken(t *testing.T) {
	s, accID, fID := newStore(t)
	require.NoError(t, s.MarkError(accID, fID, "boom"))
	require.NoError(t, s.MarkError(accID, fID, "boom again"))

	tok := "cursor-1"
	require.NoError(t, s.MarkSuccess(accID, fID, &tok))

	st, err := s.Get(accID, fID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateIdle, st.Status)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Empty(t, st.ErrorMessage)
	require.NotNil(t, st.SyncToken)
	assert.Equal(t, "cursor-1", *st.SyncToken)
	assert.NotNil(t, st.LastSyncAt)
}

func TestErrorKeepsPreviousToken(t *testing.T) {
	s, accID, fID := newStore(t)
	tok := "cursor-1"
	require.NoError(t, s.MarkSuccess(accID, fID, &tok))
	require.NoError(t, s.MarkError(accID, fID, "transient"))

	st, err := s.Get(accID, fID)
	require.NoError(t, err)
	require.NotNil(t, st.SyncToken)
	assert.Equal(t, "cursor-1", *st.SyncToken)
}

func TestMarkRunning(t *testing.T) {
	s, accID, fID := newStore(t)
	require.NoError(t, s.MarkRunning(accID, fID))
	st, err := s.Get(accID, fID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateRunning, st.Status)
}
