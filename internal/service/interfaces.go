package service

import (
	"context"

	"evocrm/internal/models"
)

// ContactStore is the identity resolver's persistence surface.
type ContactStore interface {
	CreateContact(ctx context.Context, contact *models.Contact) (int64, error)
	GetContactByJID(ctx context.Context, jid string) (*models.Contact, error)
	GetContactByID(ctx context.Context, id int64) (*models.Contact, error)
	SetContactAvatar(ctx context.Context, contactID, attachmentID int64) (bool, error)
	ListContacts(ctx context.Context, limit, offset int) ([]*models.Contact, error)
}

// MessageStore is the ingestor's persistence surface.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) (int64, bool, error)
	GetMessageByWAID(ctx context.Context, waMessageID string) (*models.Message, error)
	LinkAttachment(ctx context.Context, messageID, attachmentID int64) error
	ListMessagesByContact(ctx context.Context, contactID int64, beforeTimestamp int64, limit int) ([]*models.Message, error)
}

// MediaStore persists media payloads and returns attachment row ids.
type MediaStore interface {
	StoreBase64(ctx context.Context, payload, mimeType string) (int64, error)
	Download(ctx context.Context, fileURL string) (int64, error)
}

// IdentityResolver maps a sender JID to a contact row, creating one when the
// JID is unknown.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, jid, pushName, instance string) (int64, bool)
}

// AvatarFetcher pulls a contact's profile picture from the gateway and
// attaches it, at most once per contact. The bool reports whether the
// contact has an avatar recorded when the call returns.
type AvatarFetcher interface {
	FetchAndStoreIfAbsent(ctx context.Context, contactID int64, jid, instance string) bool
}

// MessageIngestor turns a validated webhook envelope into a persisted message.
type MessageIngestor interface {
	Ingest(ctx context.Context, envelope *models.WebhookEnvelope) (*IngestResult, error)
}
