// Package model holds the entity types shared across stores, providers
// and the sync engine. Keeping them in one package avoids import cycles
// between folder/email/contact/conversation stores that all reference
// each other's ids.
package model

import "time"

// AccountType identifies which Provider implementation serves an account.
type AccountType string

const (
	AccountGmail     AccountType = "gmail"
	AccountOffice365 AccountType = "office365"
	AccountApple     AccountType = "apple"
	AccountIMAP      AccountType = "imap"
)

// Account is a configured remote mailstore.
type Account struct {
	ID          string
	DisplayName string
	Email       string
	Type        AccountType
	Settings    AccountSettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccountSettings is the per-account configuration blob, stored as
// JSON in a single column. IMAPHost/Port/TLS are only meaningful for
// AccountIMAP/AccountApple.
type AccountSettings struct {
	SyncEnabled   bool     `json:"sync_enabled"`
	IMAPHost      string   `json:"imap_host,omitempty"`
	IMAPPort      int      `json:"imap_port,omitempty"`
	IMAPUseTLS    bool     `json:"imap_use_tls,omitempty"`
	SMTPHost      string   `json:"smtp_host,omitempty"`
	SMTPPort      int      `json:"smtp_port,omitempty"`
	SMTPSecurity  string   `json:"smtp_security,omitempty"` // "tls", "starttls", "none"
	FolderFilters []string `json:"folder_filters,omitempty"`
	Concurrency   int      `json:"concurrency,omitempty"`
}

// FolderType classifies a folder's special-use role.
type FolderType string

const (
	FolderInbox   FolderType = "inbox"
	FolderSent    FolderType = "sent"
	FolderDraft   FolderType = "draft"
	FolderTrash   FolderType = "trash"
	FolderSpam    FolderType = "spam"
	FolderArchive FolderType = "archive"
	FolderStarred FolderType = "starred"
	FolderCustom  FolderType = "custom"
)

// DefaultSyncInterval returns the default sync cadence, in seconds,
// for a folder of this type.
func (t FolderType) DefaultSyncInterval() int {
	switch t {
	case FolderInbox:
		return 60
	case FolderSent:
		return 300
	case FolderDraft:
		return 180
	case FolderTrash, FolderSpam:
		return 600
	case FolderArchive:
		return 1800
	default:
		return 300
	}
}

// Folder mirrors a remote mailbox/label.
type Folder struct {
	ID            string
	AccountID     string
	Name          string
	Type          FolderType
	RemoteID      string
	ParentID      *string
	Icon          string
	Color         string
	SortOrder     int
	Expanded      bool
	Hidden        bool
	SyncInterval  int
	LastSyncedAt  *time.Time
	UnreadCount   int
	TotalCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Address is a single email participant.
type Address struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name,omitempty"`
}

// SyncStatus is the per-email body-fetch state machine.
type SyncStatus string

const (
	SyncHeadersOnly SyncStatus = "headers_only"
	SyncSynced      SyncStatus = "synced"
	SyncBodyPending SyncStatus = "body_pending"
	SyncError       SyncStatus = "error"
)

// Email is the local mirror of a remote message.
type Email struct {
	ID                  string
	AccountID           string
	FolderID            string
	MessageID           string
	ConversationID      *string
	RemoteID            string
	From                Address
	To                  []Address
	Cc                  []Address
	Bcc                 []Address
	ReplyTo             []Address
	Subject             string
	Snippet             *string
	BodyPlain           string
	BodyHTML            string
	Category            string
	Size                int64
	ReceivedAt          time.Time
	SentAt              *time.Time
	ScheduledSendAt     *time.Time
	IsRead              bool
	IsFlagged           bool
	IsDraft             bool
	HasAttachments      bool
	IsDeleted           bool
	TrackingBlocked     bool
	ImagesBlocked       bool
	SyncStatus          SyncStatus
	BodyFetchAttempts   int
	LastBodyFetchAttempt *time.Time
	AICache             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Attachment is a metadata row over a content-addressed blob.
type Attachment struct {
	ID          string
	EmailID     string
	Filename    string
	ContentType string
	Size        int64
	Hash        string
	CachePath   *string
	IsInline    bool
	IsCached    bool
	ContentID   string
	CreatedAt   time.Time
}

// Conversation groups emails sharing a provider thread token.
type Conversation struct {
	ID            string
	RemoteID      string
	MessageCount  int
	AICache       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Label is a user-defined tag, global across accounts.
type Label struct {
	ID    string
	Name  string
	Color string
	Icon  string
}

// ContactSource records where a contact entry came from.
type ContactSource string

const (
	ContactObserved ContactSource = "observed"
	ContactImported ContactSource = "imported"
	ContactManual   ContactSource = "manual"
)

// AvatarType records which avatar provider (if any) supplied a contact's
// picture.
type AvatarType string

const (
	AvatarGravatar AvatarType = "gravatar"
	AvatarUnavatar AvatarType = "unavatar"
	AvatarFavicon  AvatarType = "favicon"
	AvatarNone     AvatarType = "none"
)

// Contact is a derived/observed address-book entry.
type Contact struct {
	ID          string
	Email       string
	DisplayName string
	Company     string
	Source      ContactSource
	AvatarType  AvatarType
	AvatarPath  *string
	SendCount   int
	ReceiveCount int
	LastUsedAt  *time.Time
	FirstSeenAt time.Time
}

// UsageScore ranks a contact as 2*send_count + receive_count, with a
// 50% boost when the contact was used within the last 30 days. Drives
// the top-contacts listing.
func (c Contact) UsageScore(now time.Time) int {
	score := 2*c.SendCount + c.ReceiveCount
	if c.LastUsedAt != nil && now.Sub(*c.LastUsedAt) < 30*24*time.Hour {
		score += score / 2
	}
	return score
}

// SyncRunState is the per-(account,folder) sync status, separate from
// SyncStatus (which is per-email).
type SyncRunState string

const (
	SyncStateIdle    SyncRunState = "idle"
	SyncStateRunning SyncRunState = "running"
	SyncStateError   SyncRunState = "error"
)

// SyncState tracks the last reconciliation outcome per (account, folder).
type SyncState struct {
	AccountID    string
	FolderID     string
	Status       SyncRunState
	ErrorMessage string
	ErrorCount   int
	LastSyncAt   *time.Time
	NextSyncAt   *time.Time
	LastUID      *uint32
	SyncToken    *string
}

// ViewType is the kind of saved query a View represents.
type ViewType string

const (
	ViewList    ViewType = "list"
	ViewKanban  ViewType = "kanban"
	ViewCalendar ViewType = "calendar"
	ViewSmart   ViewType = "smart"
	ViewUnified ViewType = "unified"
)

// View is a named saved query.
type View struct {
	ID        string
	Name      string
	Type      ViewType
	Config    string // opaque JSON variant config (swimlanes for kanban, etc.)
	IsDefault bool
}

// LicenseMode is the activation state of the install.
type LicenseMode string

const (
	LicenseOpenSource LicenseMode = "open-source"
	LicenseLicensed   LicenseMode = "licensed"
	LicenseTrial      LicenseMode = "trial"
	LicenseUnlicensed LicenseMode = "unlicensed"
)

// AIMode selects whether enrichment runs against the hosted service or a
// bring-your-own key.
type AIMode string

const (
	AIModeSaaS AIMode = "saas"
	AIModeBYOK AIMode = "byok"
)

// License is the locally cached activation record.
type License struct {
	InstanceID   string
	KeyMasked    string
	User         string
	Mode         LicenseMode
	AIMode       AIMode
	ExpiresAt    *time.Time
	TrialEndsAt  *time.Time
	ValidatedAt  *time.Time
}
