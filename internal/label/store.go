// Package label implements CRUD for the global Label entity and its
// many-to-many join with Email. Labels are user-assigned local state:
// remote reconciliation never overwrites email_labels, so a remote
// update can change flags and placement but never strips labels.
package label

import (
	"fmt"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/model"
)

// Store provides label persistence and the email_labels join.
type Store struct {
	db *database.DB
}

// NewStore creates a new label store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new label.
func (s *Store) Create(l *model.Label) error {
	if l.ID == "" {
		l.ID = ids.New()
	}
	_, err := s.db.Exec(`INSERT INTO labels (id, name, color, icon) VALUES (?, ?, ?, ?)`,
		l.ID, l.Name, l.Color, l.Icon)
	if err != nil {
		return fmt.Errorf("insert label: %w", err)
	}
	return nil
}

// List returns every label.
func (s *Store) List() ([]*model.Label, error) {
	rows, err := s.db.Query(`SELECT id, name, color, icon FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	var out []*model.Label
	for rows.Next() {
		l := &model.Label{}
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.Icon); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Delete removes a label; the email_labels join cascades.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM labels WHERE id = ?`, id)
	return err
}

// Attach adds a label to an email, idempotently.
func (s *Store) Attach(emailID, labelID string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO email_labels (email_id, label_id) VALUES (?, ?)`,
		emailID, labelID)
	return err
}

// Detach removes a label from an email.
func (s *Store) Detach(emailID, labelID string) error {
	_, err := s.db.Exec(`DELETE FROM email_labels WHERE email_id = ? AND label_id = ?`, emailID, labelID)
	return err
}

// DetachAll removes every label from an email; used by the cleanup loop
// before it hard-deletes a tombstoned row.
func (s *Store) DetachAll(emailID string) error {
	_, err := s.db.Exec(`DELETE FROM email_labels WHERE email_id = ?`, emailID)
	return err
}

// ForEmail returns the labels attached to an email.
func (s *Store) ForEmail(emailID string) ([]*model.Label, error) {
	rows, err := s.db.Query(`
		SELECT l.id, l.name, l.color, l.icon
		FROM labels l JOIN email_labels el ON el.label_id = l.id
		WHERE el.email_id = ? ORDER BY l.name
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list email labels: %w", err)
	}
	defer rows.Close()

	var out []*model.Label
	for rows.Next() {
		l := &model.Label{}
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.Icon); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// NamesText joins every label name attached to an email with spaces, for
// indexing into the search index's labels facet.
func (s *Store) NamesText(emailID string) (string, error) {
	labels, err := s.ForEmail(emailID)
	if err != nil {
		return "", err
	}
	var out string
	for i, l := range labels {
		if i > 0 {
			out += " "
		}
		out += l.Name
	}
	return out, nil
}
