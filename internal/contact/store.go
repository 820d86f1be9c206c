// Package contact implements the Contact entity and the counter
// extraction that feeds it: deriving per-address
// send/receive counters and last-used timestamps from observed emails.
package contact

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/model"
)

// Store provides contact persistence and counter maintenance.
type Store struct {
	db *database.DB
}

// NewStore creates a new contact store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetByEmail fetches a contact by its unique address, or (nil, nil).
func (s *Store) GetByEmail(address string) (*model.Contact, error) {
	row := s.db.QueryRow(`
		SELECT id, email, display_name, company, source, avatar_type, avatar_path,
			send_count, receive_count, last_used_at, first_seen_at
		FROM contacts WHERE email = ?
	`, strings.ToLower(address))
	return scanContact(row)
}

// ensure returns the contact row for address, creating an "observed" one
// if it doesn't exist yet.
func (s *Store) ensure(address, displayName string) (*model.Contact, error) {
	address = strings.ToLower(address)
	c, err := s.GetByEmail(address)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	now := time.Now().UTC()
	c = &model.Contact{
		ID: ids.New(), Email: address, DisplayName: displayName,
		Source: model.ContactObserved, AvatarType: model.AvatarNone, FirstSeenAt: now,
	}
	_, err = s.db.Exec(`
		INSERT INTO contacts (id, email, display_name, company, source, avatar_type,
			send_count, receive_count, first_seen_at)
		VALUES (?, ?, ?, '', ?, ?, 0, 0, ?)
	`, c.ID, c.Email, c.DisplayName, string(c.Source), string(c.AvatarType), c.FirstSeenAt)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// IncrementSend bumps send_count and sets last_used_at := sentAt;
// called for every recipient when an email in a Sent-type folder is
// reconciled.
func (s *Store) IncrementSend(address, displayName string, sentAt time.Time) error {
	c, err := s.ensure(address, displayName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE contacts SET send_count = send_count + 1, last_used_at = ? WHERE id = ?`,
		sentAt, c.ID)
	return err
}

// IncrementReceive bumps receive_count for the sender of a non-Sent-
// folder email.
func (s *Store) IncrementReceive(address, displayName string, receivedAt time.Time) error {
	c, err := s.ensure(address, displayName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE contacts SET receive_count = receive_count + 1, last_used_at = ? WHERE id = ?`,
		receivedAt, c.ID)
	return err
}

// SetCounters overwrites send/receive counts directly, used by the
// ground-truth counter resync.
func (s *Store) SetCounters(id string, sendCount, receiveCount int, lastUsedAt *time.Time) error {
	_, err := s.db.Exec(`UPDATE contacts SET send_count = ?, receive_count = ?, last_used_at = ? WHERE id = ?`,
		sendCount, receiveCount, lastUsedAt, id)
	return err
}

// ListNeedingAvatar returns contacts with avatar_type = 'none', for
// the avatar fetch loop, capped at limit.
func (s *Store) ListNeedingAvatar(limit int) ([]*model.Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, email, display_name, company, source, avatar_type, avatar_path,
			send_count, receive_count, last_used_at, first_seen_at
		FROM contacts WHERE avatar_type = 'none' LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts needing avatar: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// SetAvatar records a fetched avatar.
func (s *Store) SetAvatar(id string, avatarType model.AvatarType, path string) error {
	_, err := s.db.Exec(`UPDATE contacts SET avatar_type = ?, avatar_path = ? WHERE id = ?`,
		string(avatarType), path, id)
	return err
}

// Search finds contacts whose email or display name contains query.
func (s *Store) Search(query string, limit int) ([]*model.Contact, error) {
	like := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT id, email, display_name, company, source, avatar_type, avatar_path,
			send_count, receive_count, last_used_at, first_seen_at
		FROM contacts WHERE email LIKE ? OR display_name LIKE ? ORDER BY send_count + receive_count DESC LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// List returns every contact.
func (s *Store) List() ([]*model.Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, email, display_name, company, source, avatar_type, avatar_path,
			send_count, receive_count, last_used_at, first_seen_at
		FROM contacts
	`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// TopContacts returns contacts ranked by model.Contact.UsageScore
// descending.
func (s *Store) TopContacts(limit int) ([]*model.Contact, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sortByUsageDesc(all, now)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortByUsageDesc(contacts []*model.Contact, now time.Time) {
	for i := 1; i < len(contacts); i++ {
		for j := i; j > 0 && contacts[j].UsageScore(now) > contacts[j-1].UsageScore(now); j-- {
			contacts[j], contacts[j-1] = contacts[j-1], contacts[j]
		}
	}
}

func scanContacts(rows *sql.Rows) ([]*model.Contact, error) {
	var out []*model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContact(row interface{ Scan(dest ...any) error }) (*model.Contact, error) {
	c := &model.Contact{}
	var source, avatarType string
	var avatarPath sql.NullString
	var lastUsedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Email, &c.DisplayName, &c.Company, &source, &avatarType,
		&avatarPath, &c.SendCount, &c.ReceiveCount, &lastUsedAt, &c.FirstSeenAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Source = model.ContactSource(source)
	c.AvatarType = model.AvatarType(avatarType)
	if avatarPath.Valid {
		c.AvatarPath = &avatarPath.String
	}
	if lastUsedAt.Valid {
		c.LastUsedAt = &lastUsedAt.Time
	}
	return c, nil
}
