package imap

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/ravnmail/ravncore/internal/model"
)

// Mailbox is a server mailbox expressed in this repo's folder
// vocabulary: the full path doubles as the folder's remote id, and Type
// is already the local classification.
type Mailbox struct {
	Path       string
	Delimiter  string
	Type       model.FolderType
	SpecialUse bool // Type came from an RFC 6154 attribute, not a name guess

	// Counters and UID state, populated by Select/Status.
	UIDValidity uint32
	UIDNext     uint32
	Total       uint32
	Unread      uint32
}

// Mailboxes lists every mailbox and classifies each one. When a server
// marks a special role via RFC 6154 SPECIAL-USE, name-guessed duplicates
// of that role (a stray "sent-mail" created by another client next to
// the real [Gmail]/Sent Mail) are demoted to plain custom folders.
func (s *Session) Mailboxes() ([]Mailbox, error) {
	listCmd := s.cli.List("", "*", nil)

	var out []Mailbox
	for {
		item := listCmd.Next()
		if item == nil {
			break
		}
		folderType, special := classify(item.Mailbox, item.Attrs)
		out = append(out, Mailbox{
			Path:       item.Mailbox,
			Delimiter:  string(item.Delim),
			Type:       folderType,
			SpecialUse: special,
		})
	}
	if err := listCmd.Close(); err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	demoteShadowed(out)

	s.log.Debug().Int("count", len(out)).Msg("listed mailboxes")
	return out, nil
}

// demoteShadowed turns name-guessed role folders back into custom
// folders when a SPECIAL-USE mailbox already claims the same role.
func demoteShadowed(mailboxes []Mailbox) {
	claimed := make(map[model.FolderType]bool)
	for _, mb := range mailboxes {
		if mb.SpecialUse {
			claimed[mb.Type] = true
		}
	}
	for i := range mailboxes {
		if !mailboxes[i].SpecialUse && mailboxes[i].Type != model.FolderInbox && claimed[mailboxes[i].Type] {
			mailboxes[i].Type = model.FolderCustom
		}
	}
}

// classify maps a mailbox onto a folder type: SPECIAL-USE attributes
// first, then name heuristics for servers that don't advertise them.
func classify(path string, attrs []imap.MailboxAttr) (model.FolderType, bool) {
	for _, attr := range attrs {
		switch attr {
		case imap.MailboxAttrSent:
			return model.FolderSent, true
		case imap.MailboxAttrDrafts:
			return model.FolderDraft, true
		case imap.MailboxAttrTrash:
			return model.FolderTrash, true
		case imap.MailboxAttrJunk:
			return model.FolderSpam, true
		case imap.MailboxAttrArchive, imap.MailboxAttrAll:
			return model.FolderArchive, true
		case imap.MailboxAttrFlagged:
			return model.FolderStarred, true
		}
	}

	name := strings.ToLower(path)
	switch {
	case path == "INBOX":
		return model.FolderInbox, false
	case strings.Contains(name, "sent"):
		return model.FolderSent, false
	case strings.Contains(name, "draft"):
		return model.FolderDraft, false
	case strings.Contains(name, "trash"), strings.Contains(name, "deleted"):
		return model.FolderTrash, false
	case strings.Contains(name, "spam"), strings.Contains(name, "junk"):
		return model.FolderSpam, false
	case strings.Contains(name, "archive"), strings.Contains(name, "all mail"):
		return model.FolderArchive, false
	case strings.Contains(name, "starred"), strings.Contains(name, "flagged"):
		return model.FolderStarred, false
	}
	return model.FolderCustom, false
}

// Select opens a mailbox for UID operations and returns its state. The
// command runs in a goroutine so ctx can abandon a stalled server.
func (s *Session) Select(ctx context.Context, path string) (Mailbox, error) {
	type result struct {
		data *imap.SelectData
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := s.cli.Select(path, nil).Wait()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return Mailbox{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return Mailbox{}, fmt.Errorf("select %s: %w", path, r.err)
		}
		return Mailbox{
			Path:        path,
			UIDValidity: r.data.UIDValidity,
			UIDNext:     uint32(r.data.UIDNext),
			Total:       r.data.NumMessages,
		}, nil
	}
}

// Status reads a mailbox's counters and UID state without selecting it.
func (s *Session) Status(ctx context.Context, path string) (Mailbox, error) {
	options := &imap.StatusOptions{
		NumMessages: true,
		NumUnseen:   true,
		UIDNext:     true,
		UIDValidity: true,
	}

	type result struct {
		data *imap.StatusData
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := s.cli.Status(path, options).Wait()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return Mailbox{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return Mailbox{}, fmt.Errorf("status %s: %w", path, r.err)
		}
		mb := Mailbox{
			Path:        path,
			UIDValidity: r.data.UIDValidity,
			UIDNext:     uint32(r.data.UIDNext),
		}
		if r.data.NumMessages != nil {
			mb.Total = *r.data.NumMessages
		}
		if r.data.NumUnseen != nil {
			mb.Unread = *r.data.NumUnseen
		}
		return mb, nil
	}
}
