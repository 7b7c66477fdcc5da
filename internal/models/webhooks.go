package models

// Evolution API webhook event types. The gateway is inconsistent about the
// separator depending on version ("messages.upsert" vs "messages-upsert"), so
// event names are normalized before comparison.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventContactsUpdate   = "contacts.update"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
)

// WebhookEnvelope is the outer payload delivered by the Evolution API for
// every event type. Data is only meaningful for message events.
type WebhookEnvelope struct {
	Event    string    `json:"event"`
	Instance string    `json:"instance"`
	Sender   string    `json:"sender"`
	Data     EventData `json:"data"`
}

// EventData carries the message-specific portion of a webhook delivery.
type EventData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp"`
	Message          *MessageContent `json:"message,omitempty"`
	// Base64 holds the raw media bytes when the instance is configured with
	// webhook_base64 enabled.
	Base64 string `json:"base64,omitempty"`
}

// MessageKey identifies a single message on the network.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// MessageContent is the tagged union of message variants. At most one variant
// field is expected to be set; the ingestor classifies by a fixed precedence
// when a payload carries more than one.
type MessageContent struct {
	Conversation        string           `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedText    `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaVariant    `json:"imageMessage,omitempty"`
	VideoMessage        *MediaVariant    `json:"videoMessage,omitempty"`
	AudioMessage        *AudioVariant    `json:"audioMessage,omitempty"`
	DocumentMessage     *DocumentVariant `json:"documentMessage,omitempty"`
}

type ExtendedText struct {
	Text string `json:"text"`
}

// MediaVariant covers image and video messages, which share their shape.
type MediaVariant struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
}

type AudioVariant struct {
	// MimeType may carry codec parameters ("audio/ogg; codecs=opus") which are
	// stripped during ingestion.
	MimeType string `json:"mimetype,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

type DocumentVariant struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// WebhookAck is the body returned to the gateway for every delivery,
// regardless of the internal processing outcome.
type WebhookAck struct {
	Status string `json:"status"`
}
