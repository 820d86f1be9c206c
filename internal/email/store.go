// Package email persists the Email/Attachment entities and implements
// the per-folder reconciliation engine that keeps them converged with
// remote state.
package email

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
)

// Store provides email and attachment persistence.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new email store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("email-store")}
}

// NormalizeAddress trims the address and lower-cases its domain portion
// (via IDNA, not a naive strings.ToLower, so internationalized domains
// fold correctly) while preserving the local part and display-name
// casing.
func NormalizeAddress(a model.Address) model.Address {
	addr := strings.TrimSpace(a.Address)
	at := strings.LastIndexByte(addr, '@')
	if at == -1 {
		return model.Address{Address: addr, DisplayName: strings.TrimSpace(a.DisplayName)}
	}
	local, domain := addr[:at], addr[at+1:]
	if folded, err := idna.Lookup.ToUnicode(strings.ToLower(domain)); err == nil {
		domain = folded
	} else {
		domain = strings.ToLower(domain)
	}
	return model.Address{Address: local + "@" + domain, DisplayName: strings.TrimSpace(a.DisplayName)}
}

func normalizeAll(addrs []model.Address) []model.Address {
	out := make([]model.Address, len(addrs))
	for i, a := range addrs {
		out[i] = NormalizeAddress(a)
	}
	return out
}

func marshalAddrs(addrs []model.Address) string {
	b, _ := json.Marshal(addrs)
	return string(b)
}

func unmarshalAddrs(s string) []model.Address {
	if s == "" {
		return nil
	}
	var addrs []model.Address
	_ = json.Unmarshal([]byte(s), &addrs)
	return addrs
}

// GetByMessageID looks up an email by (account_id, message_id) — the
// upsert key: unique per account.
func (s *Store) GetByMessageID(accountID, messageID string) (*model.Email, error) {
	row := s.db.QueryRow(selectEmailCols+`FROM emails WHERE account_id = ? AND message_id = ?`,
		accountID, messageID)
	return scanEmail(row)
}

// Get fetches an email by id, or (nil, nil) if not found.
func (s *Store) Get(id string) (*model.Email, error) {
	row := s.db.QueryRow(selectEmailCols+`FROM emails WHERE id = ?`, id)
	return scanEmail(row)
}

// GetByRemoteID looks up an email by its provider per-folder id within a
// folder; unique per (account, folder) when set.
func (s *Store) GetByRemoteID(accountID, folderID, remoteID string) (*model.Email, error) {
	row := s.db.QueryRow(selectEmailCols+`FROM emails WHERE account_id = ? AND folder_id = ? AND remote_id = ?`,
		accountID, folderID, remoteID)
	return scanEmail(row)
}

// Create inserts a new email, allocating a fresh time-ordered id when
// the caller hasn't set one.
func (s *Store) Create(e *model.Email) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.From = NormalizeAddress(e.From)
	e.To, e.Cc, e.Bcc, e.ReplyTo = normalizeAll(e.To), normalizeAll(e.Cc), normalizeAll(e.Bcc), normalizeAll(e.ReplyTo)

	_, err := s.db.Exec(`
		INSERT INTO emails (id, account_id, folder_id, message_id, conversation_id, remote_id,
			from_address, from_name, to_list, cc_list, bcc_list, reply_to_list, subject, snippet,
			body_plain, body_html, category, size, received_at, sent_at, scheduled_send_at,
			is_read, is_flagged, is_draft, has_attachments, is_deleted, tracking_blocked,
			images_blocked, sync_status, body_fetch_attempts, last_body_fetch_attempt, ai_cache,
			created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, e.ID, e.AccountID, e.FolderID, e.MessageID, e.ConversationID, nullIfEmpty(e.RemoteID),
		e.From.Address, e.From.DisplayName, marshalAddrs(e.To), marshalAddrs(e.Cc), marshalAddrs(e.Bcc),
		marshalAddrs(e.ReplyTo), e.Subject, e.Snippet, e.BodyPlain, e.BodyHTML, e.Category, e.Size,
		e.ReceivedAt, e.SentAt, e.ScheduledSendAt, e.IsRead, e.IsFlagged, e.IsDraft, e.HasAttachments,
		e.IsDeleted, e.TrackingBlocked, e.ImagesBlocked, string(e.SyncStatus), e.BodyFetchAttempts,
		e.LastBodyFetchAttempt, nullIfEmpty(e.AICache), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}

// Update persists mutable fields for an existing row, preserving id and
// created_at.
func (s *Store) Update(e *model.Email) error {
	e.UpdatedAt = time.Now().UTC()
	e.From = NormalizeAddress(e.From)
	e.To, e.Cc, e.Bcc, e.ReplyTo = normalizeAll(e.To), normalizeAll(e.Cc), normalizeAll(e.Bcc), normalizeAll(e.ReplyTo)

	_, err := s.db.Exec(`
		UPDATE emails SET folder_id = ?, conversation_id = ?, remote_id = ?, from_address = ?,
			from_name = ?, to_list = ?, cc_list = ?, bcc_list = ?, reply_to_list = ?, subject = ?,
			snippet = ?, body_plain = ?, body_html = ?, category = ?, size = ?, received_at = ?,
			sent_at = ?, scheduled_send_at = ?, is_read = ?, is_flagged = ?, is_draft = ?,
			has_attachments = ?, is_deleted = ?, tracking_blocked = ?, images_blocked = ?,
			sync_status = ?, body_fetch_attempts = ?, last_body_fetch_attempt = ?, ai_cache = ?,
			updated_at = ?
		WHERE id = ?
	`, e.FolderID, e.ConversationID, nullIfEmpty(e.RemoteID), e.From.Address, e.From.DisplayName,
		marshalAddrs(e.To), marshalAddrs(e.Cc), marshalAddrs(e.Bcc), marshalAddrs(e.ReplyTo),
		e.Subject, e.Snippet, e.BodyPlain, e.BodyHTML, e.Category, e.Size, e.ReceivedAt, e.SentAt,
		e.ScheduledSendAt, e.IsRead, e.IsFlagged, e.IsDraft, e.HasAttachments, e.IsDeleted,
		e.TrackingBlocked, e.ImagesBlocked, string(e.SyncStatus), e.BodyFetchAttempts,
		e.LastBodyFetchAttempt, nullIfEmpty(e.AICache), e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	return nil
}

// MarkDeleted tombstones an email; rows are never hard-deleted here,
// the cleanup loop reaps them later.
func (s *Store) MarkDeleted(id string) error {
	_, err := s.db.Exec(`UPDATE emails SET is_deleted = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// DeletePermanent hard-deletes a tombstoned row; used only by the
// cleanup loop, never by reconciliation directly.
func (s *Store) DeletePermanent(id string) error {
	_, err := s.db.Exec(`DELETE FROM emails WHERE id = ?`, id)
	return err
}

// ListActiveRemoteIDs returns the remote_id -> id map of non-deleted
// emails in a folder, used for the full-sync local\remote diff.
func (s *Store) ListActiveRemoteIDs(folderID string) (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT id, remote_id FROM emails WHERE folder_id = ? AND is_deleted = 0 AND remote_id IS NOT NULL
	`, folderID)
	if err != nil {
		return nil, fmt.Errorf("list active remote ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, remoteID string
		if err := rows.Scan(&id, &remoteID); err != nil {
			return nil, fmt.Errorf("scan remote id row: %w", err)
		}
		out[remoteID] = id
	}
	return out, rows.Err()
}

// CountFolder returns (unread, total) counts over non-deleted emails.
func (s *Store) CountFolder(folderID string) (unread, total int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0)
		FROM emails WHERE folder_id = ? AND is_deleted = 0
	`, folderID).Scan(&total, &unread)
	return unread, total, err
}

// ListByFolder returns emails in a folder, applying pagination, sort
// and the optional read/attachment filters.
func (s *Store) ListByFolder(folderID string, limit, offset int, sortBy, sortOrder string, filterRead, filterAttachments *bool) ([]*model.Email, error) {
	col := "received_at"
	switch sortBy {
	case "subject", "size":
		col = sortBy
	}
	dir := "DESC"
	if sortOrder == "asc" {
		dir = "ASC"
	}

	query := selectEmailCols + `FROM emails WHERE folder_id = ? AND is_deleted = 0`
	args := []any{folderID}
	if filterRead != nil {
		query += ` AND is_read = ?`
		args = append(args, *filterRead)
	}
	if filterAttachments != nil {
		query += ` AND has_attachments = ?`
		args = append(args, *filterAttachments)
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT ? OFFSET ?`, col, dir)
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list emails by folder: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// ListByConversation returns every non-deleted email sharing a
// conversation id, oldest first.
func (s *Store) ListByConversation(conversationID string) ([]*model.Email, error) {
	rows, err := s.db.Query(selectEmailCols+`FROM emails WHERE conversation_id = ? AND is_deleted = 0 ORDER BY received_at`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list emails by conversation: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// ListHeadersOnly returns up to limit emails pending a body fetch.
func (s *Store) ListHeadersOnly(limit int) ([]*model.Email, error) {
	rows, err := s.db.Query(selectEmailCols+`FROM emails WHERE sync_status = 'headers_only' AND is_deleted = 0 LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list headers-only emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// ListAIPending returns up to limit personal-inbox messages awaiting AI
// enrichment: inbox folder, not a draft,
// ai_cache is null, body present.
func (s *Store) ListAIPending(limit int) ([]*model.Email, error) {
	rows, err := s.db.Query(selectEmailCols+`
		FROM emails e JOIN folders f ON f.id = e.folder_id
		WHERE f.type = 'inbox' AND e.is_draft = 0 AND e.is_deleted = 0
			AND (e.ai_cache IS NULL OR e.ai_cache = '') AND e.sync_status = 'synced'
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ai-pending emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// ListDeleted returns up to limit tombstoned emails for BackgroundCleanup.
func (s *Store) ListDeleted(limit int) ([]*model.Email, error) {
	rows, err := s.db.Query(selectEmailCols+`FROM emails WHERE is_deleted = 1 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// FindByMessageID looks an email up by RFC 822 message id alone, across
// accounts; the first match wins. Used by get_conversation_for_message_id
// where the caller only has the header value.
func (s *Store) FindByMessageID(messageID string) (*model.Email, error) {
	row := s.db.QueryRow(selectEmailCols+`FROM emails WHERE message_id = ? AND is_deleted = 0 LIMIT 1`, messageID)
	return scanEmail(row)
}

// ListActive returns every non-deleted email, optionally scoped to one
// account, for search-index rebuilds. Rows stream in id order so a
// rebuild over a large mailbox reuses the index's batch path.
func (s *Store) ListActive(accountID string) ([]*model.Email, error) {
	query := selectEmailCols + `FROM emails WHERE is_deleted = 0`
	args := []any{}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

// IncrementBodyFetchAttempts records a failed body-fetch attempt and, if
// attempts now exceed 5, flips sync_status to error so the fetch loop
// stops retrying.
func (s *Store) IncrementBodyFetchAttempts(id string) (attempts int, err error) {
	now := time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE emails SET body_fetch_attempts = body_fetch_attempts + 1, last_body_fetch_attempt = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRow(`SELECT body_fetch_attempts FROM emails WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, err
	}
	if attempts > 5 {
		_, err = s.db.Exec(`UPDATE emails SET sync_status = 'error' WHERE id = ?`, id)
	}
	return attempts, err
}

// SetAICache writes the enrichment JSON blob.
func (s *Store) SetAICache(id, jsonBlob string) error {
	_, err := s.db.Exec(`UPDATE emails SET ai_cache = ? WHERE id = ?`, jsonBlob, id)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectEmailCols = `
	SELECT id, account_id, folder_id, message_id, conversation_id, remote_id, from_address,
		from_name, to_list, cc_list, bcc_list, reply_to_list, subject, snippet, body_plain,
		body_html, category, size, received_at, sent_at, scheduled_send_at, is_read, is_flagged,
		is_draft, has_attachments, is_deleted, tracking_blocked, images_blocked, sync_status,
		body_fetch_attempts, last_body_fetch_attempt, ai_cache, created_at, updated_at
`

func scanEmails(rows *sql.Rows) ([]*model.Email, error) {
	var out []*model.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmail(row interface{ Scan(dest ...any) error }) (*model.Email, error) {
	e := &model.Email{}
	var conversationID, remoteID, snippet, aiCache sql.NullString
	var toJSON, ccJSON, bccJSON, replyToJSON string
	var syncStatus string
	if err := row.Scan(&e.ID, &e.AccountID, &e.FolderID, &e.MessageID, &conversationID, &remoteID,
		&e.From.Address, &e.From.DisplayName, &toJSON, &ccJSON, &bccJSON, &replyToJSON, &e.Subject,
		&snippet, &e.BodyPlain, &e.BodyHTML, &e.Category, &e.Size, &e.ReceivedAt, &e.SentAt,
		&e.ScheduledSendAt, &e.IsRead, &e.IsFlagged, &e.IsDraft, &e.HasAttachments, &e.IsDeleted,
		&e.TrackingBlocked, &e.ImagesBlocked, &syncStatus, &e.BodyFetchAttempts,
		&e.LastBodyFetchAttempt, &aiCache, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if conversationID.Valid {
		e.ConversationID = &conversationID.String
	}
	if remoteID.Valid {
		e.RemoteID = remoteID.String
	}
	if snippet.Valid {
		e.Snippet = &snippet.String
	}
	e.AICache = aiCache.String
	e.To, e.Cc, e.Bcc, e.ReplyTo = unmarshalAddrs(toJSON), unmarshalAddrs(ccJSON), unmarshalAddrs(bccJSON), unmarshalAddrs(replyToJSON)
	e.SyncStatus = model.SyncStatus(syncStatus)
	return e, nil
}
