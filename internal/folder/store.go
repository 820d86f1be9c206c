// Package folder persists Folder rows and reconciles the local folder
// tree against a provider's remote listing.
package folder

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/rs/zerolog"
)

// Store provides folder persistence operations.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new folder store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("folder-store")}
}

// Create inserts a new folder, allocating a fresh id. The parent, if
// set, must belong to the same account — enforced by callers (FolderSync
// only ever links parents found within the same account's folder set).
func (s *Store) Create(f *model.Folder) error {
	if f.ID == "" {
		f.ID = ids.New()
	}
	if f.SyncInterval == 0 {
		f.SyncInterval = f.Type.DefaultSyncInterval()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	_, err := s.db.Exec(`
		INSERT INTO folders (id, account_id, name, type, remote_id, parent_id, icon, color,
			sort_order, expanded, hidden, sync_interval, last_synced_at, unread_count, total_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.AccountID, f.Name, string(f.Type), f.RemoteID, f.ParentID, f.Icon, f.Color,
		f.SortOrder, f.Expanded, f.Hidden, f.SyncInterval, f.LastSyncedAt, f.UnreadCount, f.TotalCount,
		f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

// Update persists mutable folder fields.
func (s *Store) Update(f *model.Folder) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE folders SET name = ?, type = ?, parent_id = ?, icon = ?, color = ?, sort_order = ?,
			expanded = ?, hidden = ?, sync_interval = ?, last_synced_at = ?, unread_count = ?,
			total_count = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, string(f.Type), f.ParentID, f.Icon, f.Color, f.SortOrder, f.Expanded, f.Hidden,
		f.SyncInterval, f.LastSyncedAt, f.UnreadCount, f.TotalCount, f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	return nil
}

// UpdateCounters stores freshly computed unread/total counts.
func (s *Store) UpdateCounters(folderID string, unread, total int) error {
	_, err := s.db.Exec(`
		UPDATE folders SET unread_count = ?, total_count = ?, updated_at = ? WHERE id = ?
	`, unread, total, time.Now().UTC(), folderID)
	if err != nil {
		return fmt.Errorf("update folder counters: %w", err)
	}
	return nil
}

// TouchSynced sets last_synced_at to now.
func (s *Store) TouchSynced(folderID string) error {
	_, err := s.db.Exec(`UPDATE folders SET last_synced_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), folderID)
	return err
}

// Get fetches one folder by id, or (nil, nil) if not found.
func (s *Store) Get(id string) (*model.Folder, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, name, type, remote_id, parent_id, icon, color, sort_order, expanded,
			hidden, sync_interval, last_synced_at, unread_count, total_count, created_at, updated_at
		FROM folders WHERE id = ?
	`, id)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return f, nil
}

// GetByRemoteID looks up a folder by its provider-assigned remote id
// within an account, used by FolderSync to detect existing rows.
func (s *Store) GetByRemoteID(accountID, remoteID string) (*model.Folder, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, name, type, remote_id, parent_id, icon, color, sort_order, expanded,
			hidden, sync_interval, last_synced_at, unread_count, total_count, created_at, updated_at
		FROM folders WHERE account_id = ? AND remote_id = ?
	`, accountID, remoteID)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder by remote id: %w", err)
	}
	return f, nil
}

// ListByAccount returns every folder owned by an account.
func (s *Store) ListByAccount(accountID string) ([]*model.Folder, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, name, type, remote_id, parent_id, icon, color, sort_order, expanded,
			hidden, sync_interval, last_synced_at, unread_count, total_count, created_at, updated_at
		FROM folders WHERE account_id = ? ORDER BY sort_order, name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SumUnread totals unread counts across the given folders; an empty
// list totals every folder. Used for the OS badge count.
func (s *Store) SumUnread(folderIDs []string) (int, error) {
	query := `SELECT COALESCE(SUM(unread_count), 0) FROM folders`
	args := []any{}
	if len(folderIDs) > 0 {
		query += ` WHERE id IN (?` + strings.Repeat(",?", len(folderIDs)-1) + `)`
		for _, id := range folderIDs {
			args = append(args, id)
		}
	}
	var total int
	err := s.db.QueryRow(query, args...).Scan(&total)
	return total, err
}

// Delete removes a folder; dependent emails/sync_state cascade.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(row scanner) (*model.Folder, error) {
	f := &model.Folder{}
	var typ string
	if err := row.Scan(&f.ID, &f.AccountID, &f.Name, &typ, &f.RemoteID, &f.ParentID, &f.Icon,
		&f.Color, &f.SortOrder, &f.Expanded, &f.Hidden, &f.SyncInterval, &f.LastSyncedAt,
		&f.UnreadCount, &f.TotalCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Type = model.FolderType(typ)
	return f, nil
}
