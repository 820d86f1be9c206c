package imap

import (
	"testing"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"

	"github.com/ravnmail/ravncore/internal/model"
)

func TestClassifyBySpecialUse(t *testing.T) {
	typ, special := classify("[Gmail]/Sent Mail", []goimap.MailboxAttr{goimap.MailboxAttrSent})
	assert.Equal(t, model.FolderSent, typ)
	assert.True(t, special)

	typ, special = classify("Whatever", []goimap.MailboxAttr{goimap.MailboxAttrJunk})
	assert.Equal(t, model.FolderSpam, typ)
	assert.True(t, special)

	typ, _ = classify("[Gmail]/All Mail", []goimap.MailboxAttr{goimap.MailboxAttrAll})
	assert.Equal(t, model.FolderArchive, typ)
}

func TestClassifyByName(t *testing.T) {
	cases := map[string]model.FolderType{
		"INBOX":         model.FolderInbox,
		"Sent Messages": model.FolderSent,
		"Drafts":        model.FolderDraft,
		"Deleted Items": model.FolderTrash,
		"Junk":          model.FolderSpam,
		"Archive":       model.FolderArchive,
		"Receipts":      model.FolderCustom,
	}
	for path, want := range cases {
		typ, special := classify(path, nil)
		assert.Equal(t, want, typ, path)
		assert.False(t, special, path)
	}
}

func TestDemoteShadowedRoles(t *testing.T) {
	mailboxes := []Mailbox{
		{Path: "[Gmail]/Sent Mail", Type: model.FolderSent, SpecialUse: true},
		{Path: "sent-mail", Type: model.FolderSent},
		{Path: "INBOX", Type: model.FolderInbox},
		{Path: "Drafts", Type: model.FolderDraft},
	}
	demoteShadowed(mailboxes)

	assert.Equal(t, model.FolderSent, mailboxes[0].Type)
	// The name-guessed duplicate loses its role to the SPECIAL-USE one.
	assert.Equal(t, model.FolderCustom, mailboxes[1].Type)
	assert.Equal(t, model.FolderInbox, mailboxes[2].Type)
	// No SPECIAL-USE drafts folder exists, so the name guess stands.
	assert.Equal(t, model.FolderDraft, mailboxes[3].Type)
}
