package imapprovider

import (
	"context"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/ravnmail/ravncore/internal/imap"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/smtp"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// MoveEmail moves a message between folders: COPY into the destination,
// expunge from the source.
func (p *Provider) MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder provider.SyncFolder) error {
	uid, err := parseUID(remoteID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInvalidConfiguration, "invalid remote id", err)
	}
	return p.withSession(ctx, func(sess *imap.Session) error {
		if _, err := sess.Select(ctx, fromFolder.RemoteID); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "select source mailbox", err)
		}
		if err := sess.Move([]uint32{uid}, toFolder.RemoteID); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "move message", err)
		}
		return nil
	})
}

// DeleteEmail expunges a message when permanent is true; a non-permanent
// delete only sets \Deleted, leaving the message recoverable until the
// next expunge (e.g. the caller moving it to Trash first and calling
// DeleteEmail(permanent=true) later).
func (p *Provider) DeleteEmail(ctx context.Context, folder provider.SyncFolder, remoteID string, permanent bool) error {
	uid, err := parseUID(remoteID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInvalidConfiguration, "invalid remote id", err)
	}
	return p.withSession(ctx, func(sess *imap.Session) error {
		if _, err := sess.Select(ctx, folder.RemoteID); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "select mailbox", err)
		}
		if permanent {
			if err := sess.Expunge([]uint32{uid}); err != nil {
				return syncerr.Wrap(syncerr.KindProtocol, "expunge message", err)
			}
			return nil
		}
		if err := sess.SetFlags([]uint32{uid}, goimap.FlagDeleted, true); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "flag message deleted", err)
		}
		return nil
	})
}

// MarkAsRead sets or clears the \Seen flag.
func (p *Provider) MarkAsRead(ctx context.Context, folder provider.SyncFolder, remoteID string, read bool) error {
	return p.setFlag(ctx, folder, remoteID, goimap.FlagSeen, read)
}

// SetFlag sets or clears the \Flagged flag.
func (p *Provider) SetFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flagged bool) error {
	return p.setFlag(ctx, folder, remoteID, goimap.FlagFlagged, flagged)
}

func (p *Provider) setFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flag goimap.Flag, on bool) error {
	uid, err := parseUID(remoteID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInvalidConfiguration, "invalid remote id", err)
	}
	return p.withSession(ctx, func(sess *imap.Session) error {
		if _, err := sess.Select(ctx, folder.RemoteID); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "select mailbox", err)
		}
		if err := sess.SetFlags([]uint32{uid}, flag, on); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "set flag", err)
		}
		return nil
	})
}

// RenameFolder renames a mailbox in place, keeping its parent.
func (p *Provider) RenameFolder(ctx context.Context, folder provider.SyncFolder, newName string) error {
	parent, _ := splitParentPath(folder.Path)
	newPath := newName
	if parent != "" {
		newPath = parent + "/" + newName
	}
	return p.rename(ctx, folder.RemoteID, newPath)
}

// MoveFolder renames a mailbox under a new parent, keeping its own name.
func (p *Provider) MoveFolder(ctx context.Context, folder provider.SyncFolder, newParentRemoteID string) error {
	_, name := splitParentPath(folder.Path)
	newPath := name
	if newParentRemoteID != "" {
		newPath = newParentRemoteID + "/" + name
	}
	return p.rename(ctx, folder.RemoteID, newPath)
}

func (p *Provider) rename(ctx context.Context, oldPath, newPath string) error {
	return p.withSession(ctx, func(sess *imap.Session) error {
		if err := sess.Rename(oldPath, newPath); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "rename mailbox", err)
		}
		return nil
	})
}

func splitParentPath(path string) (parent, name string) {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// SendEmail submits a composed message via SMTP. The message is not
// appended to a Sent folder over IMAP.
func (p *Provider) SendEmail(ctx context.Context, email provider.SyncEmail, rawMIME []byte) error {
	if p.getSMTPConfig == nil {
		return syncerr.Wrap(syncerr.KindNotSupported, "no SMTP configuration resolver set", nil)
	}
	cfg, err := p.getSMTPConfig(p.accountID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "resolve smtp credentials", err)
	}

	client := smtp.NewClient(cfg)
	if err := client.Connect(); err != nil {
		return syncerr.Wrap(syncerr.KindNetwork, "smtp connect", err)
	}
	defer client.Close()

	if err := client.Login(); err != nil {
		return syncerr.Wrap(syncerr.KindAuthentication, "smtp login", err)
	}

	recipients := recipientAddresses(email)
	if len(recipients) == 0 {
		return syncerr.Wrap(syncerr.KindInvalidConfiguration, "no recipients", nil)
	}

	if err := client.SendMail(email.From.Address, recipients, rawMIME); err != nil {
		return syncerr.Wrap(syncerr.KindNetwork, "smtp send", err)
	}
	return nil
}

func recipientAddresses(email provider.SyncEmail) []string {
	var out []string
	for _, a := range email.To {
		out = append(out, a.Address)
	}
	for _, a := range email.Cc {
		out = append(out, a.Address)
	}
	for _, a := range email.Bcc {
		out = append(out, a.Address)
	}
	return out
}
