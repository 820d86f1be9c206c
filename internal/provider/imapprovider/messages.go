package imapprovider

import (
	"bytes"
	"context"
	"io"
	"strings"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomessage "github.com/emersion/go-message"
	"github.com/ravnmail/ravncore/internal/provider"
)

// maxMessageSize caps how much of a single message's raw body this
// provider will pull into memory.
const maxMessageSize = 64 << 20

// fetchHeaders fetches envelope, flags, size and header bytes (not the
// body) for the given UIDs, for the header-only pass that feeds
// SyncDiff.Added/Modified with HasBody=false.
func fetchHeaders(ctx context.Context, client *imapclient.Client, uids []uint32) ([]provider.SyncEmail, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := goimap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(goimap.UID(uid))
	}

	fetchOptions := &goimap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		RFC822Size:   true,
		InternalDate: true,
		UID:          true,
		BodySection: []*goimap.FetchItemBodySection{
			{Specifier: goimap.PartSpecifierHeader, Peek: true},
		},
	}

	fetchCmd := client.Fetch(uidSet, fetchOptions)
	var out []provider.SyncEmail
	for {
		if ctx.Err() != nil {
			fetchCmd.Close()
			return out, ctx.Err()
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		var uid goimap.UID
		var envelope *goimap.Envelope
		var flags []goimap.Flag
		var size int64
		var headerBytes []byte

		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = data.UID
			case imapclient.FetchItemDataEnvelope:
				envelope = data.Envelope
			case imapclient.FetchItemDataFlags:
				flags = data.Flags
			case imapclient.FetchItemDataRFC822Size:
				size = data.Size
			case imapclient.FetchItemDataBodySection:
				if data.Literal != nil {
					headerBytes, _ = io.ReadAll(data.Literal)
				}
			}
		}
		if uid == 0 {
			continue
		}

		se := envelopeToSyncEmail(uid, envelope, flags, size)
		se.ConversationID = threadKey(extractReferences(headerBytes), firstOrEmpty(envelope.InReplyTo), se.MessageID)
		out = append(out, se)
	}
	if err := fetchCmd.Close(); err != nil {
		return out, err
	}
	return out, nil
}

// fetchFullBodies fetches envelope, flags, size and the entire message
// (headers + body) for the given UIDs, parsing each into text/HTML bodies
// and attachments.
func fetchFullBodies(ctx context.Context, client *imapclient.Client, uids []uint32) ([]provider.SyncEmail, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := goimap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(goimap.UID(uid))
	}

	fetchOptions := &goimap.FetchOptions{
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
		UID:        true,
		BodySection: []*goimap.FetchItemBodySection{
			{Specifier: goimap.PartSpecifierNone, Peek: true},
		},
	}

	fetchCmd := client.Fetch(uidSet, fetchOptions)
	var out []provider.SyncEmail
	for {
		if ctx.Err() != nil {
			fetchCmd.Close()
			return out, ctx.Err()
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		var uid goimap.UID
		var envelope *goimap.Envelope
		var flags []goimap.Flag
		var size int64
		var raw []byte

		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = data.UID
			case imapclient.FetchItemDataEnvelope:
				envelope = data.Envelope
			case imapclient.FetchItemDataFlags:
				flags = data.Flags
			case imapclient.FetchItemDataRFC822Size:
				size = data.Size
			case imapclient.FetchItemDataBodySection:
				if data.Literal != nil {
					raw, _ = io.ReadAll(io.LimitReader(data.Literal, maxMessageSize))
				}
			}
		}
		if uid == 0 {
			continue
		}

		se := envelopeToSyncEmail(uid, envelope, flags, size)
		se.HasBody = true
		se.ConversationID = threadKey(extractReferences(raw), firstOrEmpty(envelope.InReplyTo), se.MessageID)

		if len(raw) > 0 {
			body := parseBody(raw)
			se.BodyPlain = body.BodyText
			se.BodyHTML = body.BodyHTML
			se.Attachments = body.Attachments
		}
		out = append(out, se)
	}
	if err := fetchCmd.Close(); err != nil {
		return out, err
	}
	return out, nil
}

func envelopeToSyncEmail(uid goimap.UID, envelope *goimap.Envelope, flags []goimap.Flag, size int64) provider.SyncEmail {
	se := provider.SyncEmail{
		RemoteID: remoteIDForUID(uint32(uid)),
		Size:     size,
	}
	if envelope != nil {
		se.Subject = envelope.Subject
		se.MessageID = strings.Trim(envelope.MessageID, "<>")
		se.ReceivedAt = envelope.Date.UTC()
		if len(envelope.From) > 0 {
			se.From = toSyncAddress(envelope.From[0])
		}
		se.To = toSyncAddresses(envelope.To)
		se.Cc = toSyncAddresses(envelope.Cc)
		se.ReplyTo = toSyncAddresses(envelope.ReplyTo)
	}
	for _, f := range flags {
		switch f {
		case goimap.FlagSeen:
			se.IsRead = true
		case goimap.FlagFlagged:
			se.IsFlagged = true
		case goimap.FlagDraft:
			se.IsDraft = true
		}
	}
	return se
}

func toSyncAddress(a goimap.Address) provider.SyncAddress {
	return provider.SyncAddress{Address: a.Addr(), DisplayName: decodeMIMEWord(a.Name)}
}

func toSyncAddresses(addrs []goimap.Address) []provider.SyncAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]provider.SyncAddress, len(addrs))
	for i, a := range addrs {
		out[i] = toSyncAddress(a)
	}
	return out
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return strings.Trim(ss[0], "<>")
}

// extractReferences pulls the References header out of a raw RFC 5322
// message (full body or header-only fetch), oldest-first, keeping only
// well-formed <...> message-id tokens.
func extractReferences(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	header := entity.Header.Get("References")
	if header == "" {
		return nil
	}
	var refs []string
	for _, part := range strings.Fields(header) {
		if strings.HasPrefix(part, "<") && strings.HasSuffix(part, ">") {
			refs = append(refs, part)
		}
	}
	return refs
}
