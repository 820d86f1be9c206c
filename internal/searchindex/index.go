// Package searchindex is the full-text index over (subject, snippet,
// body, sender, recipients, labels), backed by a self-contained SQLite
// FTS5 table declared in migration 2 and maintained exclusively by this
// writer. The index is authoritative for search but not a source of
// truth: a rebuild from the emails table recovers it without data
// loss.
package searchindex

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/model"
)

// Index is the FTS5-backed search index. The writer is effectively
// single-threaded: SQLite serializes writers.
type Index struct {
	db *database.DB
}

// New wraps a database handle as a search index. There is no separate
// on-disk index directory because FTS5 lives inside the same SQLite
// file, under the same single-writer WAL semantics.
func New(db *database.DB) *Index {
	return &Index{db: db}
}

// IndexEmail upserts one email's index row: delete-then-add keyed by
// email id, so re-indexing an already-indexed message never duplicates
// postings.
func (ix *Index) IndexEmail(e *model.Email, labelsText string) error {
	if _, err := ix.db.Exec(`DELETE FROM emails_fts WHERE email_id = ?`, e.ID); err != nil {
		return fmt.Errorf("delete stale fts row: %w", err)
	}
	if _, err := ix.db.Exec(insertFTSRow, ftsArgs(e, labelsText)...); err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}
	return nil
}

const insertFTSRow = `
	INSERT INTO emails_fts(email_id, subject, snippet, body_plain, from_address, to_addresses, labels_text)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func ftsArgs(e *model.Email, labelsText string) []any {
	snippet := ""
	if e.Snippet != nil {
		snippet = *e.Snippet
	}
	return []any{e.ID, e.Subject, snippet, e.BodyPlain, e.From.Address,
		addressesText(e.To, e.Cc, e.Bcc), labelsText}
}

// IndexEmailsBatch upserts many emails inside a single writer
// transaction, with delete-then-add semantics per id.
func (ix *Index) IndexEmailsBatch(emails []*model.Email, labelsTextByID map[string]string) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin fts batch: %w", err)
	}
	defer tx.Rollback()

	for _, e := range emails {
		if _, err := tx.Exec(`DELETE FROM emails_fts WHERE email_id = ?`, e.ID); err != nil {
			return fmt.Errorf("delete stale fts row: %w", err)
		}
		if _, err := tx.Exec(insertFTSRow, ftsArgs(e, labelsTextByID[e.ID])...); err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteByID removes an email's row from the index. Missing rows are a
// no-op, so tombstone and hard-delete paths can both call it safely.
func (ix *Index) DeleteByID(emailID string) error {
	_, err := ix.db.Exec(`DELETE FROM emails_fts WHERE email_id = ?`, emailID)
	return err
}

// Commit is a no-op for the FTS5 backend: every write above is already
// transactional and durable on return. Kept so callers written against
// a buffered index writer don't need to care which backend they got.
func (ix *Index) Commit() error { return nil }

// ClearIndex truncates the FTS5 table, used before a full rebuild.
func (ix *Index) ClearIndex() error {
	if _, err := ix.db.Exec(`DELETE FROM emails_fts`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Result is one ranked search hit.
type Result struct {
	EmailID    string
	ReceivedAt time.Time
}

// Query scopes and pages a search request.
type Query struct {
	AccountID        string
	FolderID         string
	Limit            int
	Offset           int
}

// Search runs a parsed query (see ParseQuery) against the index,
// returning results ordered by relevance (bm25) then received_at
// descending.
func (ix *Index) Search(pq ParsedQuery, scope Query) ([]Result, error) {
	limit := scope.Limit
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := strings.Builder{}
	sqlQuery.WriteString(`
		SELECT e.id, e.received_at
		FROM emails_fts
		JOIN emails e ON e.id = emails_fts.email_id
		WHERE e.is_deleted = 0
	`)
	args := []any{}
	if pq.MatchExpr != "" {
		sqlQuery.WriteString(` AND emails_fts MATCH ?`)
		args = append(args, pq.MatchExpr)
	}
	if scope.AccountID != "" {
		sqlQuery.WriteString(` AND e.account_id = ?`)
		args = append(args, scope.AccountID)
	}
	if scope.FolderID != "" {
		sqlQuery.WriteString(` AND e.folder_id = ?`)
		args = append(args, scope.FolderID)
	}
	if pq.HasAttachment {
		sqlQuery.WriteString(` AND e.has_attachments = 1`)
	}
	switch pq.ReadFilter {
	case "read":
		sqlQuery.WriteString(` AND e.is_read = 1`)
	case "unread":
		sqlQuery.WriteString(` AND e.is_read = 0`)
	case "flagged":
		sqlQuery.WriteString(` AND e.is_flagged = 1`)
	}
	if pq.MatchExpr != "" {
		sqlQuery.WriteString(` ORDER BY bm25(emails_fts) ASC, e.received_at DESC`)
	} else {
		sqlQuery.WriteString(` ORDER BY e.received_at DESC`)
	}
	sqlQuery.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, scope.Offset)

	rows, err := ix.db.Query(sqlQuery.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.EmailID, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func addressesText(groups ...[]model.Address) string {
	var b strings.Builder
	for _, g := range groups {
		for _, a := range g {
			b.WriteString(a.Address)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// SetIndexStatus records per-folder indexing progress in
// fts_index_status.
func (ix *Index) SetIndexStatus(folderID string, indexed, total int, complete bool) error {
	_, err := ix.db.Exec(`
		INSERT INTO fts_index_status (folder_id, indexed_count, total_count, is_complete, last_indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (folder_id) DO UPDATE SET
			indexed_count = excluded.indexed_count, total_count = excluded.total_count,
			is_complete = excluded.is_complete, last_indexed_at = excluded.last_indexed_at
	`, folderID, indexed, total, complete, time.Now().UTC())
	return err
}

// IndexStatus reports a folder's indexing progress.
func (ix *Index) IndexStatus(folderID string) (indexed, total int, complete bool, err error) {
	err = ix.db.QueryRow(`
		SELECT indexed_count, total_count, is_complete FROM fts_index_status WHERE folder_id = ?
	`, folderID).Scan(&indexed, &total, &complete)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	return indexed, total, complete, err
}
