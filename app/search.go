package app

import (
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/searchindex"
)

const reindexBatchSize = 500

// SearchEmails runs a full-text query, optionally scoped to one account
// and/or folder, and resolves the hits back to email rows in ranked
// order.
func (a *App) SearchEmails(query, accountID, folderID string, limit, offset int) ([]*model.Email, error) {
	pq := searchindex.ParseQuery(query)
	results, err := a.Index.Search(pq, searchindex.Query{
		AccountID: accountID,
		FolderID:  folderID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Email, 0, len(results))
	for _, r := range results {
		e, err := a.Emails.Get(r.EmailID)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReindexAllEmails rebuilds the search index from the emails table.
func (a *App) ReindexAllEmails() error {
	if err := a.Index.ClearIndex(); err != nil {
		return err
	}
	return a.reindex("")
}

// ReindexAccountEmails re-adds every non-deleted email of one account;
// the batch upsert's delete-then-add semantics replace any stale rows.
func (a *App) ReindexAccountEmails(accountID string) error {
	return a.reindex(accountID)
}

func (a *App) reindex(accountID string) error {
	emails, err := a.Emails.ListActive(accountID)
	if err != nil {
		return err
	}
	for start := 0; start < len(emails); start += reindexBatchSize {
		end := start + reindexBatchSize
		if end > len(emails) {
			end = len(emails)
		}
		batch := emails[start:end]
		labels := make(map[string]string, len(batch))
		for _, e := range batch {
			text, err := a.Labels.NamesText(e.ID)
			if err == nil && text != "" {
				labels[e.ID] = text
			}
		}
		if err := a.Index.IndexEmailsBatch(batch, labels); err != nil {
			return err
		}
	}
	a.log.Info().Int("count", len(emails)).Str("account_id", accountID).Msg("reindex complete")
	return a.Index.Commit()
}
