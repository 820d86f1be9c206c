package graphprovider

import (
	"context"
	"fmt"

	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// MoveEmail moves a message into a different mailFolder.
func (p *Provider) MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder provider.SyncFolder) error {
	err := p.post(ctx, fmt.Sprintf("/me/messages/%s/move", remoteID), map[string]string{
		"destinationId": toFolder.RemoteID,
	}, nil)
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "move message", err)
	}
	return nil
}

// DeleteEmail moves a message to Deleted Items, or permanently deletes it.
func (p *Provider) DeleteEmail(ctx context.Context, folder provider.SyncFolder, remoteID string, permanent bool) error {
	if permanent {
		if err := p.delete(ctx, fmt.Sprintf("/me/messages/%s", remoteID)); err != nil {
			return syncerr.Wrap(syncerr.KindProtocol, "delete message", err)
		}
		return nil
	}
	err := p.post(ctx, fmt.Sprintf("/me/messages/%s/move", remoteID), map[string]string{
		"destinationId": "deleteditems",
	}, nil)
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "trash message", err)
	}
	return nil
}

// MarkAsRead sets the isRead property.
func (p *Provider) MarkAsRead(ctx context.Context, folder provider.SyncFolder, remoteID string, read bool) error {
	err := p.patch(ctx, fmt.Sprintf("/me/messages/%s", remoteID), map[string]bool{"isRead": read})
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "mark read", err)
	}
	return nil
}

// SetFlag sets Graph's flag.flagStatus, the Outlook analogue of
// IMAP's \Flagged.
func (p *Provider) SetFlag(ctx context.Context, folder provider.SyncFolder, remoteID string, flagged bool) error {
	status := "notFlagged"
	if flagged {
		status = "flagged"
	}
	err := p.patch(ctx, fmt.Sprintf("/me/messages/%s", remoteID), map[string]any{
		"flag": map[string]string{"flagStatus": status},
	})
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "set flag", err)
	}
	return nil
}

// SendEmail submits a message via sendMail. Graph's sendMail takes a
// structured JSON payload rather than raw MIME, so rawMIME's fields
// that matter are reconstructed from the already-structured SyncEmail
// instead of re-parsing the bytes — the one provider where the caller's
// rawMIME argument goes mostly unused.
func (p *Provider) SendEmail(ctx context.Context, email provider.SyncEmail, rawMIME []byte) error {
	msg := graphMessage{
		Subject: email.Subject,
		Body:    graphBody{ContentType: bodyContentType(email), Content: bodyContent(email)},
	}
	msg.ToRecipients = fromSyncAddresses(email.To)
	msg.CcRecipients = fromSyncAddresses(email.Cc)
	msg.BccRecipients = fromSyncAddresses(email.Bcc)

	body := struct {
		Message         graphMessage `json:"message"`
		SaveToSentItems bool         `json:"saveToSentItems"`
	}{Message: msg, SaveToSentItems: true}

	if err := p.post(ctx, "/me/sendMail", body, nil); err != nil {
		return syncerr.Wrap(syncerr.KindNetwork, "send message", err)
	}
	return nil
}

func bodyContentType(email provider.SyncEmail) string {
	if email.BodyHTML != "" {
		return "html"
	}
	return "text"
}

func bodyContent(email provider.SyncEmail) string {
	if email.BodyHTML != "" {
		return email.BodyHTML
	}
	return email.BodyPlain
}

func fromSyncAddresses(addrs []provider.SyncAddress) []graphRecipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, graphRecipient{EmailAddress: graphEmailAddress{Name: a.DisplayName, Address: a.Address}})
	}
	return out
}
