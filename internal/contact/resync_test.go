package contact_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/model"
)

func TestResyncAccountCounters(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	acc := &model.Account{DisplayName: "Me", Email: "me@example.com", Type: model.AccountIMAP}
	require.NoError(t, account.NewStore(db).Create(acc))

	folders := folder.NewStore(db)
	inbox := &model.Folder{AccountID: acc.ID, Name: "INBOX", Type: model.FolderInbox, RemoteID: "INBOX"}
	require.NoError(t, folders.Create(inbox))
	sent := &model.Folder{AccountID: acc.ID, Name: "Sent", Type: model.FolderSent, RemoteID: "Sent"}
	require.NoError(t, folders.Create(sent))

	emails := email.NewStore(db)
	sentAt := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	// One Sent email to a@x.com.
	require.NoError(t, emails.Create(&model.Email{
		ID: "e-sent", AccountID: acc.ID, FolderID: sent.ID, MessageID: "<s1@me>",
		From:       model.Address{Address: "me@example.com"},
		To:         []model.Address{{Address: "a@x.com"}},
		ReceivedAt: sentAt, SentAt: &sentAt, SyncStatus: model.SyncSynced,
	}))
	// Two Inbox emails from a@x.com.
	for i, id := range []string{"e-in1", "e-in2"} {
		require.NoError(t, emails.Create(&model.Email{
			ID: id, AccountID: acc.ID, FolderID: inbox.ID, MessageID: "<in" + string(rune('1'+i)) + "@x>",
			From:       model.Address{Address: "a@x.com"},
			To:         []model.Address{{Address: "me@example.com"}},
			ReceivedAt: sentAt.Add(time.Duration(i) * time.Hour), SyncStatus: model.SyncSynced,
		}))
	}

	contacts := contact.NewStore(db)
	require.NoError(t, contacts.ResyncAccountCounters(acc.ID))

	c, err := contacts.GetByEmail("a@x.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.SendCount)
	assert.Equal(t, 2, c.ReceiveCount)
	require.NotNil(t, c.LastUsedAt)
	// Latest activity wins: the second inbox mail arrived after sentAt.
	assert.Equal(t, sentAt.Add(time.Hour).Unix(), c.LastUsedAt.UTC().Unix())
}

func TestResyncIgnoresTombstonedEmails(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	acc := &model.Account{DisplayName: "Me", Email: "me2@example.com", Type: model.AccountIMAP}
	require.NoError(t, account.NewStore(db).Create(acc))
	inbox := &model.Folder{AccountID: acc.ID, Name: "INBOX", Type: model.FolderInbox, RemoteID: "INBOX"}
	require.NoError(t, folder.NewStore(db).Create(inbox))

	emails := email.NewStore(db)
	now := time.Now().UTC()
	require.NoError(t, emails.Create(&model.Email{
		ID: "e1", AccountID: acc.ID, FolderID: inbox.ID, MessageID: "<a@x>",
		From: model.Address{Address: "b@y.com"}, ReceivedAt: now, SyncStatus: model.SyncSynced,
	}))
	require.NoError(t, emails.Create(&model.Email{
		ID: "e2", AccountID: acc.ID, FolderID: inbox.ID, MessageID: "<b@x>",
		From: model.Address{Address: "b@y.com"}, ReceivedAt: now, SyncStatus: model.SyncSynced,
	}))
	require.NoError(t, emails.MarkDeleted("e2"))

	contacts := contact.NewStore(db)
	require.NoError(t, contacts.ResyncAccountCounters(acc.ID))

	c, err := contacts.GetByEmail("b@y.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.ReceiveCount)
}
