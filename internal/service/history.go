package service

import (
	"context"

	"evocrm/internal/errors"
	"evocrm/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryService serves the chat UI's read side: contact listings and
// per-contact message pages.
type HistoryService struct {
	contacts ContactStore
	messages MessageStore
}

func NewHistoryService(contacts ContactStore, messages MessageStore) *HistoryService {
	return &HistoryService{
		contacts: contacts,
		messages: messages,
	}
}

// ListContacts returns a page of contacts ordered by recency.
func (h *HistoryService) ListContacts(ctx context.Context, limit, offset int) ([]*models.Contact, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	return h.contacts.ListContacts(ctx, limit, offset)
}

// ListMessages returns a keyset page of a contact's messages, newest first.
// beforeTimestamp of zero starts from the latest message.
func (h *HistoryService) ListMessages(ctx context.Context, contactID int64, beforeTimestamp int64, limit int) ([]*models.Message, error) {
	contact, err := h.contacts.GetContactByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "contact not found")
	}

	return h.messages.ListMessagesByContact(ctx, contactID, beforeTimestamp, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
