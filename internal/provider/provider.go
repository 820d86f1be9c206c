// Package provider defines the uniform interface over heterogeneous
// remote mailstores (Gmail HTTP API, Microsoft Graph, generic
// IMAP/Apple). Concrete implementations live in the gmailprovider,
// graphprovider and imapprovider subpackages.
package provider

import (
	"context"
	"time"

	"github.com/ravnmail/ravncore/internal/model"
)

// Credentials is the opaque bundle Authenticate consumes; concrete
// providers type-assert the fields they need (password vs OAuth token).
type Credentials struct {
	Password     string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// SyncAddress mirrors model.Address at the wire layer, kept distinct so
// provider packages don't need to depend on internal formatting helpers.
type SyncAddress struct {
	Address     string
	DisplayName string
}

// SyncAttachment is attachment metadata as reported by a provider; Data
// is only populated when the provider returns content inline with the
// message (some providers always include small attachments in the same
// fetch).
type SyncAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	ContentID   string
	IsInline    bool
	Data        []byte
}

// SyncEmail is a provider's wire representation of one message, mapped
// onto the uniform local schema by EmailSync.
type SyncEmail struct {
	RemoteID       string
	MessageID      string
	ConversationID string
	From           SyncAddress
	To             []SyncAddress
	Cc             []SyncAddress
	Bcc            []SyncAddress
	ReplyTo        []SyncAddress
	Subject        string
	BodyPlain      string
	BodyHTML       string
	HasBody        bool // false when only headers were fetched
	Size           int64
	ReceivedAt      time.Time
	SentAt          *time.Time
	IsRead         bool
	IsFlagged      bool
	IsDraft        bool
	Attachments    []SyncAttachment
}

// SyncFolder is a provider's wire representation of one mailbox.
type SyncFolder struct {
	RemoteID       string
	Name           string
	Type           model.FolderType
	ParentRemoteID string
	Path           string // full path, used to derive parent when ParentRemoteID is absent
}

// SyncDiff is the result of one SyncMessages call.
type SyncDiff struct {
	Added      []SyncEmail
	Modified   []SyncEmail
	Deleted    []string // remote ids
	NextToken  *string
}

// Provider is the capability surface every account type implements.
// Capabilities a given provider doesn't support return
// syncerr.ErrNotSupported rather than panicking.
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) error
	TestConnection(ctx context.Context) error
	FetchFolders(ctx context.Context) ([]SyncFolder, error)

	// SyncMessages returns a full snapshot (added only) when syncToken is
	// nil, or true deltas when syncToken is set. The caller computes
	// deletions against its local set for a full snapshot.
	SyncMessages(ctx context.Context, folder SyncFolder, syncToken *string) (SyncDiff, error)

	FetchEmail(ctx context.Context, folder SyncFolder, remoteID string) (SyncEmail, error)
	FetchAttachment(ctx context.Context, remoteID string, attachment SyncAttachment) ([]byte, error)

	MoveEmail(ctx context.Context, remoteID string, fromFolder, toFolder SyncFolder) error
	DeleteEmail(ctx context.Context, folder SyncFolder, remoteID string, permanent bool) error
	MarkAsRead(ctx context.Context, folder SyncFolder, remoteID string, read bool) error
	SetFlag(ctx context.Context, folder SyncFolder, remoteID string, flagged bool) error

	RenameFolder(ctx context.Context, folder SyncFolder, newName string) error
	MoveFolder(ctx context.Context, folder SyncFolder, newParentRemoteID string) error

	GetSyncToken(ctx context.Context, folder SyncFolder) (*string, error)
	SendEmail(ctx context.Context, email SyncEmail, rawMIME []byte) error
}

