package email

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/model"
)

// CreateAttachment inserts a new attachment row, allocating a fresh id.
func (s *Store) CreateAttachment(a *model.Attachment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO attachments (id, email_id, filename, content_type, size, hash, cache_path,
			is_inline, is_cached, content_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.EmailID, a.Filename, a.ContentType, a.Size, a.Hash, a.CachePath, a.IsInline,
		a.IsCached, a.ContentID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// SetCached records a fetched blob's cache path (A1: is_cached iff
// cache_path is set and the file exists — the file-existence half of
// that invariant is the caller's responsibility, checked against
// storage.FileStorage before calling this).
func (s *Store) SetCached(id, cachePath string) error {
	_, err := s.db.Exec(`UPDATE attachments SET cache_path = ?, is_cached = 1 WHERE id = ?`, cachePath, id)
	return err
}

// SetInline marks an attachment as inline (matched by Content-ID against
// a cid: reference in body_html).
func (s *Store) SetInline(id string) error {
	_, err := s.db.Exec(`UPDATE attachments SET is_inline = 1 WHERE id = ?`, id)
	return err
}

// GetByHash finds an existing cached attachment with the same content
// hash anywhere in the account, implementing the dedup rule: two
// attachments with equal hash share one physical blob.
func (s *Store) GetByHash(accountID, hash string) (*model.Attachment, error) {
	row := s.db.QueryRow(`
		SELECT a.id, a.email_id, a.filename, a.content_type, a.size, a.hash, a.cache_path,
			a.is_inline, a.is_cached, a.content_id, a.created_at
		FROM attachments a JOIN emails e ON e.id = a.email_id
		WHERE e.account_id = ? AND a.hash = ? AND a.is_cached = 1
		LIMIT 1
	`, accountID, hash)
	return scanAttachment(row)
}

// CountByHash returns how many attachment rows (across the whole
// account) reference this hash — used to decide whether deleting one
// attachment's blob should also delete the file, i.e. only when the
// reference count falls to zero.
func (s *Store) CountByHash(accountID, hash string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM attachments a JOIN emails e ON e.id = a.email_id
		WHERE e.account_id = ? AND a.hash = ?
	`, accountID, hash).Scan(&n)
	return n, err
}

// ListByEmail returns every attachment for an email.
func (s *Store) ListByEmail(emailID string) ([]*model.Attachment, error) {
	rows, err := s.db.Query(`
		SELECT id, email_id, filename, content_type, size, hash, cache_path, is_inline, is_cached,
			content_id, created_at
		FROM attachments WHERE email_id = ?
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []*model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttachment removes an attachment row (the caller handles blob
// refcounting via CountByHash before deleting the underlying file).
func (s *Store) DeleteAttachment(id string) error {
	_, err := s.db.Exec(`DELETE FROM attachments WHERE id = ?`, id)
	return err
}

func scanAttachment(row interface{ Scan(dest ...any) error }) (*model.Attachment, error) {
	a := &model.Attachment{}
	var cachePath sql.NullString
	if err := row.Scan(&a.ID, &a.EmailID, &a.Filename, &a.ContentType, &a.Size, &a.Hash,
		&cachePath, &a.IsInline, &a.IsCached, &a.ContentID, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if cachePath.Valid {
		a.CachePath = &cachePath.String
	}
	return a, nil
}
