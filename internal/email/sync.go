package email

import (
	"context"
	"fmt"
	"time"

	"github.com/ravnmail/ravncore/internal/cidrewrite"
	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/conversation"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/searchindex"
	"github.com/ravnmail/ravncore/internal/snippet"
	"github.com/ravnmail/ravncore/internal/storage"
	"github.com/ravnmail/ravncore/internal/syncstate"
	"github.com/rs/zerolog"
)

// Syncer reconciles one folder at a time against its remote provider,
// mapping the provider-abstract SyncDiff vocabulary onto the local
// stores: emails, attachments, conversations, contacts, counters and
// the search index.
type Syncer struct {
	store         *Store
	folders       *folder.Store
	syncStates    *syncstate.Store
	conversations *conversation.Store
	contacts      *contact.Store
	index         *searchindex.Index
	files         storage.FileStorage
	bus           *events.Bus
	log           zerolog.Logger
}

// NewSyncer builds a Syncer bound to every store it reconciles.
func NewSyncer(store *Store, folders *folder.Store, syncStates *syncstate.Store,
	conversations *conversation.Store, contacts *contact.Store, index *searchindex.Index,
	files storage.FileStorage, bus *events.Bus) *Syncer {
	return &Syncer{
		store: store, folders: folders, syncStates: syncStates, conversations: conversations,
		contacts: contacts, index: index, files: files, bus: bus,
		log: logging.WithComponent("email-sync"),
	}
}

// Sync reconciles one folder against its remote provider. full forces
// a snapshot sync that also computes deletions by local difference;
// otherwise a stored sync_token drives an incremental delta sync.
func (s *Syncer) Sync(ctx context.Context, acc *model.Account, f *model.Folder, sf provider.SyncFolder, p provider.Provider, full bool) error {
	if err := s.syncStates.MarkRunning(acc.ID, f.ID); err != nil {
		return fmt.Errorf("mark sync running: %w", err)
	}

	st, err := s.syncStates.Get(acc.ID, f.ID)
	if err != nil {
		return s.fail(acc.ID, f.ID, err)
	}

	var token *string
	if !full {
		token = st.SyncToken
	}

	diff, err := p.SyncMessages(ctx, sf, token)
	if err != nil {
		return s.fail(acc.ID, f.ID, err)
	}

	touched := make(map[string]*model.Email)

	for _, se := range append(append([]provider.SyncEmail{}, diff.Added...), diff.Modified...) {
		e, err := s.reconcileOne(acc, f, se)
		if err != nil {
			s.log.Warn().Err(err).Str("message_id", se.MessageID).Msg("failed to reconcile email")
			continue
		}
		touched[e.ID] = e
	}

	var tombstoned []string
	for _, remoteID := range diff.Deleted {
		e, err := s.store.GetByRemoteID(acc.ID, f.ID, remoteID)
		if err != nil {
			return s.fail(acc.ID, f.ID, err)
		}
		if e == nil || e.IsDeleted {
			continue
		}
		if err := s.store.MarkDeleted(e.ID); err != nil {
			return s.fail(acc.ID, f.ID, err)
		}
		tombstoned = append(tombstoned, e.ID)
	}

	if full {
		localRemoteIDs, err := s.store.ListActiveRemoteIDs(f.ID)
		if err != nil {
			return s.fail(acc.ID, f.ID, err)
		}
		seenRemote := make(map[string]bool, len(diff.Added)+len(diff.Modified))
		for _, se := range diff.Added {
			seenRemote[se.RemoteID] = true
		}
		for _, se := range diff.Modified {
			seenRemote[se.RemoteID] = true
		}
		for remoteID, id := range localRemoteIDs {
			if !seenRemote[remoteID] {
				if err := s.store.MarkDeleted(id); err != nil {
					return s.fail(acc.ID, f.ID, err)
				}
				tombstoned = append(tombstoned, id)
			}
		}
	}

	var batch []*model.Email
	for _, e := range touched {
		batch = append(batch, e)
	}
	if len(batch) > 0 {
		labelsByID := make(map[string]string, len(batch))
		if err := s.index.IndexEmailsBatch(batch, labelsByID); err != nil {
			return s.fail(acc.ID, f.ID, err)
		}
	}
	for _, id := range tombstoned {
		if err := s.index.DeleteByID(id); err != nil {
			return s.fail(acc.ID, f.ID, err)
		}
	}
	if err := s.index.Commit(); err != nil {
		return s.fail(acc.ID, f.ID, err)
	}

	unread, total, err := s.store.CountFolder(f.ID)
	if err != nil {
		return s.fail(acc.ID, f.ID, err)
	}
	if err := s.folders.UpdateCounters(f.ID, unread, total); err != nil {
		return s.fail(acc.ID, f.ID, err)
	}
	if err := s.folders.TouchSynced(f.ID); err != nil {
		return s.fail(acc.ID, f.ID, err)
	}

	if err := s.syncStates.MarkSuccess(acc.ID, f.ID, diff.NextToken); err != nil {
		return fmt.Errorf("mark sync success: %w", err)
	}

	if s.bus != nil {
		s.bus.Emit(events.EmailsUpdated, events.SyncStatusPayload{
			AccountID: acc.ID, FolderID: f.ID, Phase: events.PhaseCompleted,
			FoldersSynced: 1, EmailsSynced: len(touched),
		})
	}
	return nil
}

func (s *Syncer) fail(accountID, folderID string, cause error) error {
	msg := cause.Error()
	if err := s.syncStates.MarkError(accountID, folderID, msg); err != nil {
		s.log.Error().Err(err).Msg("failed to persist sync_state error")
	}
	if s.bus != nil {
		s.bus.Emit(events.SyncStatusChanged, events.SyncStatusPayload{
			AccountID: accountID, FolderID: folderID, Phase: events.PhaseError, ErrorMessage: msg,
		})
	}
	return fmt.Errorf("sync folder: %w", cause)
}

// reconcileOne upserts a single provider email and its dependents.
func (s *Syncer) reconcileOne(acc *model.Account, f *model.Folder, se provider.SyncEmail) (*model.Email, error) {
	existing, err := s.store.GetByMessageID(acc.ID, se.MessageID)
	if err != nil {
		return nil, fmt.Errorf("lookup existing: %w", err)
	}

	e := toModelEmail(acc.ID, f.ID, se)

	if existing != nil {
		// Remote wins for is_read/is_flagged/folder placement; local
		// wins for labels (labels live in a separate join table this
		// function never touches, so they're untouched by construction).
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
		// Keep the last non-null conversation id across fetches.
		if e.ConversationID == nil {
			e.ConversationID = existing.ConversationID
		}
		if !hasBody(e) && existing.SyncStatus == model.SyncSynced {
			e.BodyPlain, e.BodyHTML = existing.BodyPlain, existing.BodyHTML
			e.SyncStatus = model.SyncSynced
		}
	}

	if se.ConversationID != "" {
		conv, err := s.conversations.UpsertByRemoteID(se.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("upsert conversation: %w", err)
		}
		if conv != nil {
			e.ConversationID = &conv.ID
		}
	}

	e.Snippet = snippet.Extract(e.BodyPlain)

	if existing != nil {
		if err := s.store.Update(e); err != nil {
			return nil, fmt.Errorf("update email: %w", err)
		}
	} else {
		if err := s.store.Create(e); err != nil {
			return nil, fmt.Errorf("create email: %w", err)
		}
	}

	if e.ConversationID != nil {
		count, err := s.conversations.CountMemberEmails(*e.ConversationID)
		if err == nil {
			_ = s.conversations.SetMessageCount(*e.ConversationID, count)
		}
	}

	if f.Type == model.FolderSent {
		recipients := append(append(append([]model.Address{}, e.To...), e.Cc...), e.Bcc...)
		for _, to := range recipients {
			sentAt := e.ReceivedAt
			if e.SentAt != nil {
				sentAt = *e.SentAt
			}
			_ = s.contacts.IncrementSend(to.Address, to.DisplayName, sentAt)
		}
	} else {
		_ = s.contacts.IncrementReceive(e.From.Address, e.From.DisplayName, e.ReceivedAt)
	}

	if err := s.reconcileAttachments(acc.ID, e, se.Attachments); err != nil {
		return nil, fmt.Errorf("reconcile attachments: %w", err)
	}

	return e, nil
}

// reconcileAttachments creates/dedups attachment rows, and marks
// inline any whose Content-ID is referenced by a cid: link in
// body_html.
func (s *Syncer) reconcileAttachments(accountID string, e *model.Email, atts []provider.SyncAttachment) error {
	if len(atts) == 0 {
		e.HasAttachments = false
		return nil
	}
	e.HasAttachments = true

	for _, sa := range atts {
		a := &model.Attachment{
			EmailID: e.ID, Filename: sa.Filename, ContentType: sa.ContentType, Size: sa.Size,
			ContentID: sa.ContentID, IsInline: sa.IsInline,
		}
		if len(sa.Data) > 0 {
			hash := storage.ComputeHash(sa.Data)
			a.Hash = hash
			if dup, err := s.store.GetByHash(accountID, hash); err == nil && dup != nil && dup.CachePath != nil {
				a.CachePath = dup.CachePath
				a.IsCached = true
			} else {
				relPath := storage.CachePath(accountID, e.ID, storage.SanitizeFilename(sa.Filename))
				if err := s.files.Store(relPath, sa.Data); err != nil {
					return fmt.Errorf("store attachment blob: %w", err)
				}
				a.CachePath = &relPath
				a.IsCached = true
			}
		}
		if e.BodyHTML != "" && sa.ContentID != "" && cidrewrite.IsReferenced(e.BodyHTML, sa.ContentID) {
			a.IsInline = true
		}
		if err := s.store.CreateAttachment(a); err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}
	}
	return s.store.Update(e)
}

// ApplyFetchedBody fills an email with a freshly fetched body: body
// columns, recomputed snippet, attachment rows (deduped by hash), and
// sync_status=synced, then refreshes the search index row. Used by the
// background body fetcher once a headers-only message's content arrives.
func (s *Syncer) ApplyFetchedBody(e *model.Email, se provider.SyncEmail) error {
	e.BodyPlain = se.BodyPlain
	e.BodyHTML = se.BodyHTML
	e.Snippet = snippet.Extract(e.BodyPlain)
	e.SyncStatus = model.SyncSynced
	if err := s.reconcileAttachments(e.AccountID, e, se.Attachments); err != nil {
		return fmt.Errorf("reconcile attachments: %w", err)
	}
	if err := s.store.Update(e); err != nil {
		return fmt.Errorf("update email body: %w", err)
	}
	if err := s.index.IndexEmail(e, ""); err != nil {
		return fmt.Errorf("index email: %w", err)
	}
	return s.index.Commit()
}

func toModelEmail(accountID, folderID string, se provider.SyncEmail) *model.Email {
	now := time.Now().UTC()
	e := &model.Email{
		ID:         ids.New(),
		AccountID:  accountID,
		FolderID:   folderID,
		MessageID:  se.MessageID,
		RemoteID:   se.RemoteID,
		From:       model.Address(se.From),
		To:         toAddrSlice(se.To),
		Cc:         toAddrSlice(se.Cc),
		Bcc:        toAddrSlice(se.Bcc),
		ReplyTo:    toAddrSlice(se.ReplyTo),
		Subject:    se.Subject,
		BodyPlain:  se.BodyPlain,
		BodyHTML:   se.BodyHTML,
		Size:       se.Size,
		ReceivedAt: se.ReceivedAt,
		SentAt:     se.SentAt,
		IsRead:     se.IsRead,
		IsFlagged:  se.IsFlagged,
		IsDraft:    se.IsDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if se.ConversationID != "" {
		e.ConversationID = &se.ConversationID
	}
	if se.HasBody {
		e.SyncStatus = model.SyncSynced
	} else {
		e.SyncStatus = model.SyncHeadersOnly
	}
	return e
}

func toAddrSlice(in []provider.SyncAddress) []model.Address {
	out := make([]model.Address, len(in))
	for i, a := range in {
		out[i] = model.Address(a)
	}
	return out
}

// hasBody reports whether this email value carries a fetched body (used
// to decide whether reconcileOne should keep an existing body rather
// than overwrite it with an empty one from a headers-only delta).
func hasBody(e *model.Email) bool {
	return e.BodyPlain != "" || e.BodyHTML != ""
}
