package service

import (
	"context"
	"strings"

	apperrors "evocrm/internal/errors"
	"evocrm/internal/metrics"
	"evocrm/internal/models"
	"evocrm/internal/validation"

	"github.com/sirupsen/logrus"
)

// IngestOutcome describes what happened to one webhook delivery.
type IngestOutcome string

const (
	// OutcomePersisted means a new message row was created.
	OutcomePersisted IngestOutcome = "persisted"
	// OutcomeDuplicate means the network message id was already stored.
	OutcomeDuplicate IngestOutcome = "duplicate"
	// OutcomeSkipped means the payload carried nothing storable.
	OutcomeSkipped IngestOutcome = "skipped"
)

// IngestResult is returned to the dispatcher for logging and metrics.
type IngestResult struct {
	Outcome   IngestOutcome
	MessageID int64
	ContactID int64
	Type      models.MessageType
}

// classified is the outcome of variant classification.
type classified struct {
	msgType  models.MessageType
	content  string
	mimeType string
	hasMedia bool
}

// messageIngestor persists message events. Deduplication rides on the unique
// network message id constraint, so concurrent redeliveries collapse to one
// row without a read-before-write window.
type messageIngestor struct {
	messages MessageStore
	identity IdentityResolver
	media    MediaStore
	relay    RelayPublisher
	logger   *logrus.Logger
}

// NewMessageIngestor wires an ingestor. relay may be nil when the websocket
// relay is disabled.
func NewMessageIngestor(messages MessageStore, identity IdentityResolver, media MediaStore, relay RelayPublisher, logger *logrus.Logger) MessageIngestor {
	return &messageIngestor{
		messages: messages,
		identity: identity,
		media:    media,
		relay:    relay,
		logger:   logger,
	}
}

// Ingest stores one message event. Media failures degrade to a message
// without attachment rather than failing the delivery.
func (in *messageIngestor) Ingest(ctx context.Context, envelope *models.WebhookEnvelope) (*IngestResult, error) {
	if err := validation.ValidateMessageEvent(&envelope.Data); err != nil {
		return nil, err
	}

	data := &envelope.Data
	cls, ok := classify(data)
	if !ok {
		in.logger.WithFields(logrus.Fields{
			LogFieldInstance:  envelope.Instance,
			LogFieldMessageID: SanitizeMessageID(ctx, data.Key.ID),
		}).Debug("Skipping message with no storable content")
		metrics.IncrementCounter("messages_skipped", map[string]string{"instance": envelope.Instance}, "Deliveries with no storable content")
		return &IngestResult{Outcome: OutcomeSkipped}, nil
	}

	msg, err := in.buildMessage(ctx, envelope, cls)
	if err != nil {
		return nil, err
	}

	id, created, err := in.messages.SaveMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !created {
		in.logger.WithFields(logrus.Fields{
			LogFieldInstance:  envelope.Instance,
			LogFieldMessageID: SanitizeMessageID(ctx, data.Key.ID),
		}).Debug("Duplicate delivery, keeping existing message")
		metrics.IncrementCounter("messages_duplicate", map[string]string{"instance": envelope.Instance}, "Redelivered messages")
		return &IngestResult{Outcome: OutcomeDuplicate, MessageID: id, Type: cls.msgType}, nil
	}

	if cls.hasMedia {
		in.attachMedia(ctx, id, data, cls)
	}

	result := &IngestResult{Outcome: OutcomePersisted, MessageID: id, Type: cls.msgType}
	if msg.ContactID != nil {
		result.ContactID = *msg.ContactID
	}

	metrics.IncrementCounter("messages_persisted", map[string]string{
		"instance": envelope.Instance,
		"type":     string(cls.msgType),
	}, "Messages persisted")

	if in.relay != nil {
		in.relay.Publish(RelayEvent{
			Event:     RelayEventMessageNew,
			MessageID: id,
			ContactID: result.ContactID,
			Instance:  envelope.Instance,
		})
	}

	return result, nil
}

// buildMessage resolves addressing, direction and contact linkage. Failing to
// resolve the counterpart of a direct chat aborts ingestion; a group message
// proceeds with a null author.
func (in *messageIngestor) buildMessage(ctx context.Context, envelope *models.WebhookEnvelope, cls classified) (*models.Message, error) {
	data := &envelope.Data
	remote := data.Key.RemoteJID
	isGroup := validation.IsGroupJID(remote)

	msg := &models.Message{
		WAMessageID:  data.Key.ID,
		InstanceName: envelope.Instance,
		Type:         cls.msgType,
		Content:      cls.content,
		IsGroup:      isGroup,
		Timestamp:    data.MessageTimestamp,
	}

	if data.Key.FromMe {
		msg.Direction = models.DirectionOutgoing
		msg.SenderJID = envelope.Sender
		msg.RecipientJID = remote
	} else {
		msg.Direction = models.DirectionIncoming
		msg.RecipientJID = envelope.Sender
		if isGroup {
			msg.SenderJID = data.Key.Participant
			msg.ParticipantJID = data.Key.Participant
		} else {
			msg.SenderJID = remote
		}
	}

	// The contact is the conversation counterpart: the remote party for
	// direct chats, the actual author for group messages. Outgoing messages
	// never use the push name, it describes the remote device's owner only.
	counterpart := remote
	pushName := ""
	if !data.Key.FromMe {
		pushName = data.PushName
		if isGroup {
			counterpart = data.Key.Participant
		}
	}

	if id, ok := in.identity.ResolveOrCreate(ctx, counterpart, pushName, envelope.Instance); ok {
		msg.ContactID = &id
	} else if !isGroup {
		return nil, apperrors.New(apperrors.ErrCodeIdentityCreation, "could not resolve contact for direct message")
	}

	return msg, nil
}

// attachMedia stores the base64 payload and links it to the saved message.
// Every failure path leaves the message intact without an attachment.
func (in *messageIngestor) attachMedia(ctx context.Context, messageID int64, data *models.EventData, cls classified) {
	if data.Base64 == "" {
		in.logger.WithField(LogFieldMessageID, messageID).Debug("Media variant without payload, storing message only")
		return
	}

	attachmentID, err := in.media.StoreBase64(ctx, data.Base64, cls.mimeType)
	if err != nil {
		in.logger.WithError(err).WithField(LogFieldMessageID, messageID).Warn("Media storage failed, message kept without attachment")
		metrics.IncrementCounter("media_store_failures", nil, "Media payloads that could not be stored")
		return
	}

	if err := in.messages.LinkAttachment(ctx, messageID, attachmentID); err != nil {
		in.logger.WithError(err).WithField(LogFieldMessageID, messageID).Warn("Attachment link failed")
	}
}

// classify picks the message variant by fixed precedence. ok is false when
// the payload has no storable content at all.
func classify(data *models.EventData) (classified, bool) {
	m := data.Message
	if m != nil {
		switch {
		case m.Conversation != "":
			return classified{msgType: models.MessageTypeText, content: m.Conversation}, true
		case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
			return classified{msgType: models.MessageTypeText, content: m.ExtendedTextMessage.Text}, true
		case m.ImageMessage != nil:
			return classified{
				msgType:  models.MessageTypeImage,
				content:  m.ImageMessage.Caption,
				mimeType: m.ImageMessage.MimeType,
				hasMedia: true,
			}, true
		case m.VideoMessage != nil:
			return classified{
				msgType:  models.MessageTypeVideo,
				content:  m.VideoMessage.Caption,
				mimeType: m.VideoMessage.MimeType,
				hasMedia: true,
			}, true
		case m.AudioMessage != nil:
			return classified{
				msgType:  models.MessageTypeAudio,
				mimeType: stripMimeParams(m.AudioMessage.MimeType),
				hasMedia: true,
			}, true
		case m.DocumentMessage != nil:
			return classified{
				msgType:  models.MessageTypeDocument,
				content:  documentContent(m.DocumentMessage),
				mimeType: m.DocumentMessage.MimeType,
				hasMedia: true,
			}, true
		}
	}

	// Unknown variant but raw bytes present: store as a generic file so the
	// payload is not lost.
	if data.Base64 != "" {
		return classified{msgType: models.MessageTypeFile, hasMedia: true}, true
	}

	return classified{}, false
}

// stripMimeParams drops codec parameters, "audio/ogg; codecs=opus" becomes
// "audio/ogg".
func stripMimeParams(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		return strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

func documentContent(doc *models.DocumentVariant) string {
	if doc.Caption != "" {
		return doc.Caption
	}
	return doc.FileName
}
