// Package events is the typed event bus lifecycle/sync-status events
// are published on: a small decoupled pub-sub any external collaborator
// (a UI process, a test) can subscribe to.
package events

import (
	"sync"

	"github.com/ravnmail/ravncore/internal/logging"
)

// Name identifies an event type as it appears on the wire to the UI.
type Name string

const (
	FolderSyncStarted      Name = "folder:sync_started"
	FolderUpdated          Name = "folder:updated"
	EmailsUpdated          Name = "emails:updated"
	EmailAIAnalysisDone    Name = "email:ai-analysis-complete"
	BadgeCountUpdated      Name = "badge-count-updated"
	PlaySound              Name = "play-sound"
	LicenseUpdated         Name = "license-updated"
	KeybindingsChanged     Name = "keybindings-changed"
	SyncStatusChanged      Name = "sync:status"
	CredentialsRequired    Name = "credentials:required"
)

// SyncPhase is the tagged-union-like status of an in-progress sync round.
type SyncPhase string

const (
	PhaseStarted    SyncPhase = "started"
	PhaseInProgress SyncPhase = "in_progress"
	PhaseCompleted  SyncPhase = "completed"
	PhaseError      SyncPhase = "error"
)

// SyncStatusPayload is the payload for SyncStatusChanged.
type SyncStatusPayload struct {
	AccountID      string
	FolderID       string // empty when the event is account-wide
	Phase          SyncPhase
	Current        int // InProgress only
	Total          int // InProgress only
	FoldersSynced  int // Completed only
	EmailsSynced   int // Completed only
	ErrorMessage   string
}

// CredentialsRequiredPayload is the payload for CredentialsRequired.
type CredentialsRequiredPayload struct {
	AccountID string
	Provider  string
	Reason    string
}

// Handler receives an emitted event's payload.
type Handler func(payload any)

// Bus is a minimal synchronous pub-sub: Emit calls every subscribed
// handler for that event name in registration order. Subscriptions are
// process-lifetime only (no persistence, no cross-process delivery).
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Name][]Handler)}
}

// On registers a handler for name.
func (b *Bus) On(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit invokes every handler registered for name. Callers must only
// Emit after the relevant transaction has committed, so a subscriber
// reading the store always observes the state the event describes.
func (b *Bus) Emit(name Name, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	log := logging.WithComponent("events")
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(name)).Msg("event handler panicked")
				}
			}()
			h(payload)
		}()
	}
}
