// Package conversation persists Conversation rows, derived from emails
// sharing a provider thread token.
package conversation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/model"
)

// Store provides conversation persistence operations.
type Store struct {
	db *database.DB
}

// NewStore creates a new conversation store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// UpsertByRemoteID inserts or fetches the conversation for a provider
// thread token. message_count is set by the caller once it knows the
// member count.
func (s *Store) UpsertByRemoteID(remoteID string) (*model.Conversation, error) {
	if remoteID == "" {
		return nil, nil
	}
	c, err := s.GetByRemoteID(remoteID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	now := time.Now().UTC()
	c = &model.Conversation{ID: ids.New(), RemoteID: remoteID, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.Exec(`
		INSERT INTO conversations (id, remote_id, message_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, c.ID, c.RemoteID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// GetByRemoteID fetches a conversation by its provider thread token.
func (s *Store) GetByRemoteID(remoteID string) (*model.Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, remote_id, message_count, ai_cache, created_at, updated_at
		FROM conversations WHERE remote_id = ?
	`, remoteID)
	return scanConversation(row)
}

// Get fetches a conversation by id.
func (s *Store) Get(id string) (*model.Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, remote_id, message_count, ai_cache, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	return scanConversation(row)
}

// SetMessageCount stores message_count for a conversation (step
// step 2f: "set message_count to the count of its member emails").
func (s *Store) SetMessageCount(id string, count int) error {
	_, err := s.db.Exec(`UPDATE conversations SET message_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id)
	return err
}

// CountMemberEmails returns the number of non-deleted emails belonging to
// a conversation.
func (s *Store) CountMemberEmails(id string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM emails WHERE conversation_id = ? AND is_deleted = 0`, id).Scan(&n)
	return n, err
}

func scanConversation(row interface{ Scan(dest ...any) error }) (*model.Conversation, error) {
	c := &model.Conversation{}
	var aiCache sql.NullString
	if err := row.Scan(&c.ID, &c.RemoteID, &c.MessageCount, &aiCache, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.AICache = aiCache.String
	return c, nil
}
