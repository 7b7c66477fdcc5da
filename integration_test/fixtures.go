package integration_test

import (
	"encoding/base64"
	"fmt"
	"time"

	"evocrm/internal/models"
)

var messageSeq int64

func nextMessageID() string {
	messageSeq++
	return fmt.Sprintf("3EB0INTEGRATION%06d%d", messageSeq, time.Now().UnixNano())
}

func incomingText(jid, pushName, text string) *models.WebhookEnvelope {
	return &models.WebhookEnvelope{
		Event:    models.EventMessagesUpsert,
		Instance: "integration",
		Sender:   "5511888888888@s.whatsapp.net",
		Data: models.EventData{
			Key: models.MessageKey{
				RemoteJID: jid,
				ID:        nextMessageID(),
			},
			PushName:         pushName,
			MessageTimestamp: time.Now().Unix(),
			Message:          &models.MessageContent{Conversation: text},
		},
	}
}

func incomingImage(jid, caption string, payload []byte) *models.WebhookEnvelope {
	envelope := incomingText(jid, "Media Sender", "")
	envelope.Data.Message = &models.MessageContent{
		ImageMessage: &models.MediaVariant{Caption: caption, MimeType: "image/jpeg"},
	}
	envelope.Data.Base64 = base64.StdEncoding.EncodeToString(payload)
	return envelope
}

func groupText(groupJID, participantJID, pushName, text string) *models.WebhookEnvelope {
	envelope := incomingText(groupJID, pushName, text)
	envelope.Data.Key.Participant = participantJID
	return envelope
}

func outgoingText(jid, text string) *models.WebhookEnvelope {
	envelope := incomingText(jid, "", text)
	envelope.Data.Key.FromMe = true
	return envelope
}
