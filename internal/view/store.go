// Package view persists named saved queries (list, kanban, calendar,
// smart, unified). At most one view is marked default; SetDefault swaps
// the flag inside a transaction so readers never observe two defaults.
package view

import (
	"database/sql"
	"fmt"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/model"
)

// Store is the views table access layer.
type Store struct {
	db *database.DB
}

// NewStore wraps a database handle.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a view. An empty ID is allocated.
func (s *Store) Create(v *model.View) error {
	if v.ID == "" {
		v.ID = ids.New()
	}
	_, err := s.db.Exec(`
		INSERT INTO views (id, name, type, config, is_default)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.Name, string(v.Type), v.Config, v.IsDefault)
	if err != nil {
		return fmt.Errorf("create view: %w", err)
	}
	return nil
}

// Update rewrites a view's name, type and config.
func (s *Store) Update(v *model.View) error {
	_, err := s.db.Exec(`
		UPDATE views SET name = ?, type = ?, config = ? WHERE id = ?
	`, v.Name, string(v.Type), v.Config, v.ID)
	if err != nil {
		return fmt.Errorf("update view: %w", err)
	}
	return nil
}

// Get returns one view, or nil when absent.
func (s *Store) Get(id string) (*model.View, error) {
	return scanView(s.db.QueryRow(`SELECT id, name, type, config, is_default FROM views WHERE id = ?`, id))
}

// List returns every view, default first then by name.
func (s *Store) List() ([]*model.View, error) {
	rows, err := s.db.Query(`SELECT id, name, type, config, is_default FROM views ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	defer rows.Close()

	var out []*model.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetDefault marks one view default and clears the flag everywhere else,
// atomically.
func (s *Store) SetDefault(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin set default view: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE views SET is_default = 0 WHERE is_default = 1`); err != nil {
		return fmt.Errorf("clear default view: %w", err)
	}
	res, err := tx.Exec(`UPDATE views SET is_default = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("set default view: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set default view: no view with id %s", id)
	}
	return tx.Commit()
}

// GetDefault returns the default view, or nil when none is marked.
func (s *Store) GetDefault() (*model.View, error) {
	return scanView(s.db.QueryRow(`SELECT id, name, type, config, is_default FROM views WHERE is_default = 1`))
}

// Delete removes a view.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM views WHERE id = ?`, id)
	return err
}

func scanView(row interface{ Scan(dest ...any) error }) (*model.View, error) {
	v := &model.View{}
	var viewType string
	if err := row.Scan(&v.ID, &v.Name, &viewType, &v.Config, &v.IsDefault); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan view: %w", err)
	}
	v.Type = model.ViewType(viewType)
	return v, nil
}
