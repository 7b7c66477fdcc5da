package models

import "time"

// MessageType classifies the content variant of an ingested message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	// MessageTypeFile is the fallback for payloads carrying binary data with
	// an unrecognized variant.
	MessageTypeFile MessageType = "file"
)

// Direction indicates whether a message left or entered the instance.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is one persisted chat event. Messages are immutable after creation
// except for the attachment link, which may be set right after insert.
type Message struct {
	ID             int64       `json:"id"`
	WAMessageID    string      `json:"waMessageId"` // network id, dedup key
	ContactID      *int64      `json:"contactId,omitempty"`
	InstanceName   string      `json:"instanceName"`
	SenderJID      string      `json:"senderJid"`
	RecipientJID   string      `json:"recipientJid"`
	Direction      Direction   `json:"direction"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content,omitempty"`
	AttachmentID   *int64      `json:"attachmentId,omitempty"`
	IsGroup        bool        `json:"isGroup"`
	ParticipantJID string      `json:"participantJid,omitempty"`
	Timestamp      int64       `json:"timestamp"` // event-reported epoch seconds
	CreatedAt      time.Time   `json:"createdAt"`
}

// Attachment is a stored binary blob referenced by a message or used as a
// contact avatar.
type Attachment struct {
	ID        int64     `json:"id"`
	FilePath  string    `json:"filePath"`
	FileURL   string    `json:"fileUrl"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}
