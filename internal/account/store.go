// Package account persists Account rows. Accounts own every
// dependent Folder, Email and SyncState; deleting one cascades via the
// foreign keys declared in internal/database's migrations. Contacts are
// not keyed by account and are not removed with it.
package account

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/rs/zerolog"
)

// Store provides account persistence operations.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new account store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("account-store")}
}

// Create inserts a new account, allocating a fresh time-ordered id.
func (s *Store) Create(a *model.Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err = s.db.Exec(`
		INSERT INTO accounts (id, display_name, email, type, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.DisplayName, a.Email, string(a.Type), string(settings), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update persists mutable account fields.
func (s *Store) Update(a *model.Account) error {
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	a.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE accounts SET display_name = ?, email = ?, type = ?, settings = ?, updated_at = ?
		WHERE id = ?
	`, a.DisplayName, a.Email, string(a.Type), string(settings), a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// Get fetches one account by id, or (nil, nil) if not found.
func (s *Store) Get(id string) (*model.Account, error) {
	row := s.db.QueryRow(`
		SELECT id, display_name, email, type, settings, created_at, updated_at
		FROM accounts WHERE id = ?
	`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// List returns every configured account.
func (s *Store) List() ([]*model.Account, error) {
	rows, err := s.db.Query(`
		SELECT id, display_name, email, type, settings, created_at, updated_at
		FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListSyncEnabled returns accounts with settings.sync_enabled = true,
// used by the coordinator's start-up pass.
func (s *Store) ListSyncEnabled() ([]*model.Account, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []*model.Account
	for _, a := range all {
		if a.Settings.SyncEnabled {
			out = append(out, a)
		}
	}
	return out, nil
}

// Delete removes an account; dependent rows cascade via foreign keys.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	a := &model.Account{}
	var typ, settingsJSON string
	if err := row.Scan(&a.ID, &a.DisplayName, &a.Email, &typ, &settingsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Type = model.AccountType(typ)
	if err := json.Unmarshal([]byte(settingsJSON), &a.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return a, nil
}
