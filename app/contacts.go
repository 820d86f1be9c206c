package app

import "github.com/ravnmail/ravncore/internal/model"

// SearchContacts matches contacts whose address or display name contains
// the query.
func (a *App) SearchContacts(query string, limit int) ([]*model.Contact, error) {
	if limit <= 0 {
		limit = 20
	}
	return a.Contacts.Search(query, limit)
}

// GetTopContacts returns contacts ranked by usage score.
func (a *App) GetTopContacts(limit int) ([]*model.Contact, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.Contacts.TopContacts(limit)
}

// GetContacts returns every contact.
func (a *App) GetContacts() ([]*model.Contact, error) {
	return a.Contacts.List()
}

// ResyncContactCounters recomputes send/receive counters for one account
// from the emails table as ground truth.
func (a *App) ResyncContactCounters(accountID string) error {
	return a.Contacts.ResyncAccountCounters(accountID)
}
