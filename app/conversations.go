package app

import (
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// ConversationResult is a conversation plus its member emails, ordered
// oldest first.
type ConversationResult struct {
	Conversation *model.Conversation `json:"conversation"`
	Emails       []*model.Email      `json:"emails"`
}

// GetConversationsForFolder pages through a folder's emails with the
// given sort and filters. Emails without a conversation id surface as
// single-message entries.
func (a *App) GetConversationsForFolder(folderID string, limit, offset int,
	sortBy, sortOrder string, filterRead, filterHasAttachments *bool) ([]*model.Email, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.Emails.ListByFolder(folderID, limit, offset, sortBy, sortOrder, filterRead, filterHasAttachments)
}

// GetConversationByID returns one conversation with its emails.
func (a *App) GetConversationByID(conversationID string) (*ConversationResult, error) {
	conv, err := a.Conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, syncerr.ErrNotFound
	}
	emails, err := a.Emails.ListByConversation(conversationID)
	if err != nil {
		return nil, err
	}
	return &ConversationResult{Conversation: conv, Emails: emails}, nil
}

// GetConversationForMessageID resolves an RFC 822 message id to its
// conversation. A message without a conversation returns NotFound.
func (a *App) GetConversationForMessageID(messageID string) (*ConversationResult, error) {
	e, err := a.Emails.FindByMessageID(messageID)
	if err != nil {
		return nil, err
	}
	if e == nil || e.ConversationID == nil {
		return nil, syncerr.ErrNotFound
	}
	return a.GetConversationByID(*e.ConversationID)
}
