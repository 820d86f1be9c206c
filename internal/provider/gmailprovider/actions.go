package gmailprovider

import (
	"context"
	"encoding/base64"

	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"google.golang.org/api/gmail/v1"
)

// MoveEmail swaps the source folder's label for the destination
// folder's label; both are just label ids in Gmail's flat model.
func (p *Provider) MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder provider.SyncFolder) error {
	_, err := p.service.Users.Messages.Modify("me", remoteID, &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{toFolder.RemoteID},
		RemoveLabelIds: []string{fromFolder.RemoteID},
	}).Context(ctx).Do()
	if err != nil {
		return wrapGoogleErr(syncerr.KindProtocol, "move message", err)
	}
	return nil
}

// DeleteEmail moves a message to Trash, or permanently deletes it.
func (p *Provider) DeleteEmail(ctx context.Context, folder provider.SyncFolder, remoteID string, permanent bool) error {
	var err error
	if permanent {
		err = p.service.Users.Messages.Delete("me", remoteID).Context(ctx).Do()
	} else {
		_, err = p.service.Users.Messages.Trash("me", remoteID).Context(ctx).Do()
	}
	if err != nil {
		return wrapGoogleErr(syncerr.KindProtocol, "delete message", err)
	}
	return nil
}

// MarkAsRead adds or removes the UNREAD label.
func (p *Provider) MarkAsRead(ctx context.Context, folder provider.SyncFolder, remoteID string, read bool) error {
	req := &gmail.ModifyMessageRequest{}
	if read {
		req.RemoveLabelIds = []string{"UNREAD"}
	} else {
		req.AddLabelIds = []string{"UNREAD"}
	}
	_, err := p.service.Users.Messages.Modify("me", remoteID, req).Context(ctx).Do()
	if err != nil {
		return wrapGoogleErr(syncerr.KindProtocol, "mark read", err)
	}
	return nil
}

// SetFlag adds or removes the STARRED label, Gmail's analogue of an
// IMAP \Flagged message.
func (p *Provider) SetFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flagged bool) error {
	req := &gmail.ModifyMessageRequest{}
	if flagged {
		req.AddLabelIds = []string{"STARRED"}
	} else {
		req.RemoveLabelIds = []string{"STARRED"}
	}
	_, err := p.service.Users.Messages.Modify("me", remoteID, req).Context(ctx).Do()
	if err != nil {
		return wrapGoogleErr(syncerr.KindProtocol, "set flag", err)
	}
	return nil
}

// SendEmail submits a raw RFC 5322 message via messages.send, which
// also saves it to Sent automatically.
func (p *Provider) SendEmail(ctx context.Context, email provider.SyncEmail, rawMIME []byte) error {
	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(rawMIME),
	}
	if email.ConversationID != "" {
		msg.ThreadId = email.ConversationID
	}
	_, err := p.service.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return wrapGoogleErr(syncerr.KindNetwork, "send message", err)
	}
	return nil
}
