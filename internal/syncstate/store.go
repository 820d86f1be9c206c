// Package syncstate persists the per-(account,folder) SyncState row
// that anchors incremental sync and the error-streak
// invariant.
package syncstate

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/model"
)

// Store provides sync_state persistence.
type Store struct {
	db *database.DB
}

// NewStore creates a new sync state store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Get fetches the sync state for (account, folder), or a zero-value idle
// state (not persisted yet) if none exists.
func (s *Store) Get(accountID, folderID string) (*model.SyncState, error) {
	row := s.db.QueryRow(`
		SELECT account_id, folder_id, status, error_message, error_count, last_sync_at,
			next_sync_at, last_uid, sync_token
		FROM sync_state WHERE account_id = ? AND folder_id = ?
	`, accountID, folderID)

	st := &model.SyncState{AccountID: accountID, FolderID: folderID, Status: model.SyncStateIdle}
	var status string
	var errMsg sql.NullString
	var lastUID sql.NullInt64
	var syncToken sql.NullString
	err := row.Scan(&st.AccountID, &st.FolderID, &status, &errMsg, &st.ErrorCount, &st.LastSyncAt,
		&st.NextSyncAt, &lastUID, &syncToken)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	st.Status = model.SyncRunState(status)
	st.ErrorMessage = errMsg.String
	if lastUID.Valid {
		v := uint32(lastUID.Int64)
		st.LastUID = &v
	}
	if syncToken.Valid {
		st.SyncToken = &syncToken.String
	}
	return st, nil
}

// MarkRunning sets status=running, conflict target (account_id,
// folder_id).
func (s *Store) MarkRunning(accountID, folderID string) error {
	return s.upsert(accountID, folderID, func(st *model.SyncState) {
		st.Status = model.SyncStateRunning
	})
}

// MarkSuccess persists a successful reconciliation: sync_token,
// last_sync_at, status=idle, error_count reset to 0.
func (s *Store) MarkSuccess(accountID, folderID string, token *string) error {
	return s.upsert(accountID, folderID, func(st *model.SyncState) {
		now := time.Now().UTC()
		st.Status = model.SyncStateIdle
		st.ErrorMessage = ""
		st.ErrorCount = 0
		st.LastSyncAt = &now
		st.SyncToken = token
	})
}

// MarkError persists a failed reconciliation: status=error,
// error_message set, error_count incremented monotonically within a
// contiguous streak. The previous token is NOT cleared, so the next
// attempt continues from it.
func (s *Store) MarkError(accountID, folderID string, message string) error {
	return s.upsert(accountID, folderID, func(st *model.SyncState) {
		st.Status = model.SyncStateError
		st.ErrorMessage = message
		st.ErrorCount++
	})
}

// SetNextSyncAt records the next due time for (account, folder).
func (s *Store) SetNextSyncAt(accountID, folderID string, at time.Time) error {
	return s.upsert(accountID, folderID, func(st *model.SyncState) {
		st.NextSyncAt = &at
	})
}

func (s *Store) upsert(accountID, folderID string, mutate func(*model.SyncState)) error {
	st, err := s.Get(accountID, folderID)
	if err != nil {
		return err
	}
	mutate(st)

	var lastUID any
	if st.LastUID != nil {
		lastUID = *st.LastUID
	}
	_, err = s.db.Exec(`
		INSERT INTO sync_state (account_id, folder_id, status, error_message, error_count,
			last_sync_at, next_sync_at, last_uid, sync_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, folder_id) DO UPDATE SET
			status = excluded.status, error_message = excluded.error_message,
			error_count = excluded.error_count, last_sync_at = excluded.last_sync_at,
			next_sync_at = excluded.next_sync_at, last_uid = excluded.last_uid,
			sync_token = excluded.sync_token
	`, accountID, folderID, string(st.Status), st.ErrorMessage, st.ErrorCount, st.LastSyncAt,
		st.NextSyncAt, lastUID, st.SyncToken)
	if err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}
	return nil
}
