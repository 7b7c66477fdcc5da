package service

import (
	"context"
	"io"
	"testing"

	apperrors "evocrm/internal/errors"
	"evocrm/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func textEnvelope(text string) *models.WebhookEnvelope {
	return &models.WebhookEnvelope{
		Event:    models.EventMessagesUpsert,
		Instance: "main",
		Sender:   "5511888888888@s.whatsapp.net",
		Data: models.EventData{
			Key: models.MessageKey{
				RemoteJID: "5511999999999@s.whatsapp.net",
				ID:        "3EB0C431C26A1916E07E",
			},
			PushName:         "Alice",
			MessageTimestamp: 1700000000,
			Message:          &models.MessageContent{Conversation: text},
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		message     *models.MessageContent
		base64      string
		wantOK      bool
		wantType    models.MessageType
		wantContent string
		wantMime    string
		wantMedia   bool
	}{
		{
			name:        "plain conversation",
			message:     &models.MessageContent{Conversation: "hola"},
			wantOK:      true,
			wantType:    models.MessageTypeText,
			wantContent: "hola",
		},
		{
			name:        "extended text",
			message:     &models.MessageContent{ExtendedTextMessage: &models.ExtendedText{Text: "linked text"}},
			wantOK:      true,
			wantType:    models.MessageTypeText,
			wantContent: "linked text",
		},
		{
			name: "conversation wins over media",
			message: &models.MessageContent{
				Conversation: "rather this",
				ImageMessage: &models.MediaVariant{MimeType: "image/jpeg"},
			},
			wantOK:      true,
			wantType:    models.MessageTypeText,
			wantContent: "rather this",
		},
		{
			name:        "image with caption",
			message:     &models.MessageContent{ImageMessage: &models.MediaVariant{Caption: "look", MimeType: "image/png"}},
			wantOK:      true,
			wantType:    models.MessageTypeImage,
			wantContent: "look",
			wantMime:    "image/png",
			wantMedia:   true,
		},
		{
			name:      "video",
			message:   &models.MessageContent{VideoMessage: &models.MediaVariant{MimeType: "video/mp4"}},
			wantOK:    true,
			wantType:  models.MessageTypeVideo,
			wantMime:  "video/mp4",
			wantMedia: true,
		},
		{
			name:      "audio strips codec params",
			message:   &models.MessageContent{AudioMessage: &models.AudioVariant{MimeType: "audio/ogg; codecs=opus"}},
			wantOK:    true,
			wantType:  models.MessageTypeAudio,
			wantMime:  "audio/ogg",
			wantMedia: true,
		},
		{
			name: "document caption preferred",
			message: &models.MessageContent{DocumentMessage: &models.DocumentVariant{
				Caption:  "invoice",
				FileName: "invoice.pdf",
				MimeType: "application/pdf",
			}},
			wantOK:      true,
			wantType:    models.MessageTypeDocument,
			wantContent: "invoice",
			wantMime:    "application/pdf",
			wantMedia:   true,
		},
		{
			name: "document falls back to file name",
			message: &models.MessageContent{DocumentMessage: &models.DocumentVariant{
				FileName: "report.xlsx",
				MimeType: "application/vnd.ms-excel",
			}},
			wantOK:      true,
			wantType:    models.MessageTypeDocument,
			wantContent: "report.xlsx",
			wantMime:    "application/vnd.ms-excel",
			wantMedia:   true,
		},
		{
			name:      "unknown variant with raw bytes",
			message:   nil,
			base64:    "aGVsbG8=",
			wantOK:    true,
			wantType:  models.MessageTypeFile,
			wantMedia: true,
		},
		{
			name:    "nothing storable",
			message: &models.MessageContent{},
			wantOK:  false,
		},
		{
			name:    "nil message no bytes",
			message: nil,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &models.EventData{Message: tt.message, Base64: tt.base64}
			cls, ok := classify(data)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantType, cls.msgType)
			assert.Equal(t, tt.wantContent, cls.content)
			assert.Equal(t, tt.wantMime, cls.mimeType)
			assert.Equal(t, tt.wantMedia, cls.hasMedia)
		})
	}
}

func TestIngestPersistsTextMessage(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}
	media := &mockMediaStore{}
	relay := &capturingRelay{}

	identity.On("ResolveOrCreate", mock.Anything, "5511999999999@s.whatsapp.net", "Alice", "main").
		Return(int64(7), true)

	var saved *models.Message
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Message) }).
		Return(int64(42), true, nil)

	ingestor := NewMessageIngestor(messages, identity, media, relay, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), textEnvelope("hola"))
	require.NoError(t, err)

	assert.Equal(t, OutcomePersisted, result.Outcome)
	assert.Equal(t, int64(42), result.MessageID)
	assert.Equal(t, int64(7), result.ContactID)
	assert.Equal(t, models.MessageTypeText, result.Type)

	require.NotNil(t, saved)
	assert.Equal(t, models.DirectionIncoming, saved.Direction)
	assert.Equal(t, "5511999999999@s.whatsapp.net", saved.SenderJID)
	assert.Equal(t, "5511888888888@s.whatsapp.net", saved.RecipientJID)
	assert.False(t, saved.IsGroup)
	require.NotNil(t, saved.ContactID)
	assert.Equal(t, int64(7), *saved.ContactID)

	events := relay.Events()
	require.Len(t, events, 1)
	assert.Equal(t, RelayEventMessageNew, events[0].Event)
	assert.Equal(t, int64(42), events[0].MessageID)
	assert.Equal(t, int64(7), events[0].ContactID)

	media.AssertNotCalled(t, "StoreBase64", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestOutgoingAddressing(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}

	// Outgoing deliveries never carry the counterpart's push name.
	identity.On("ResolveOrCreate", mock.Anything, "5511999999999@s.whatsapp.net", "", "main").
		Return(int64(3), true)

	var saved *models.Message
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Message) }).
		Return(int64(1), true, nil)

	envelope := textEnvelope("sent from phone")
	envelope.Data.Key.FromMe = true

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, nil, newTestLogger())
	_, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, models.DirectionOutgoing, saved.Direction)
	assert.Equal(t, "5511888888888@s.whatsapp.net", saved.SenderJID)
	assert.Equal(t, "5511999999999@s.whatsapp.net", saved.RecipientJID)
}

func TestIngestGroupMessageLinksAuthor(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}

	identity.On("ResolveOrCreate", mock.Anything, "5511777777777@s.whatsapp.net", "Bob", "main").
		Return(int64(11), true)

	var saved *models.Message
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Message) }).
		Return(int64(5), true, nil)

	envelope := textEnvelope("group chatter")
	envelope.Data.Key.RemoteJID = "120363025246125486@g.us"
	envelope.Data.Key.Participant = "5511777777777@s.whatsapp.net"
	envelope.Data.PushName = "Bob"

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)
	assert.Equal(t, OutcomePersisted, result.Outcome)

	require.NotNil(t, saved)
	assert.True(t, saved.IsGroup)
	assert.Equal(t, "5511777777777@s.whatsapp.net", saved.SenderJID)
	assert.Equal(t, "5511777777777@s.whatsapp.net", saved.ParticipantJID)
	require.NotNil(t, saved.ContactID)
	assert.Equal(t, int64(11), *saved.ContactID)
}

func TestIngestGroupMessageSurvivesIdentityFailure(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), false)

	var saved *models.Message
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Message) }).
		Return(int64(9), true, nil)

	envelope := textEnvelope("anonymous group author")
	envelope.Data.Key.RemoteJID = "120363025246125486@g.us"
	envelope.Data.Key.Participant = "status@broadcast"

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	assert.Equal(t, OutcomePersisted, result.Outcome)
	assert.Equal(t, int64(0), result.ContactID)
	require.NotNil(t, saved)
	assert.Nil(t, saved.ContactID)
}

func TestIngestDirectMessageIdentityFailureAborts(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), false)

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, nil, newTestLogger())
	_, err := ingestor.Ingest(context.Background(), textEnvelope("orphaned"))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIdentityCreation, apperrors.GetCode(err))
	messages.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}

func TestIngestDuplicateDelivery(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}
	relay := &capturingRelay{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(7), true)
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Return(int64(42), false, nil)

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, relay, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), textEnvelope("again"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, int64(42), result.MessageID)
	assert.Empty(t, relay.Events())
}

func TestIngestSkipsEmptyPayload(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}

	envelope := textEnvelope("")
	envelope.Data.Message = &models.MessageContent{}

	ingestor := NewMessageIngestor(messages, identity, &mockMediaStore{}, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, result.Outcome)
	messages.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
	identity.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestRejectsMalformedEvent(t *testing.T) {
	envelope := textEnvelope("no id")
	envelope.Data.Key.ID = ""

	ingestor := NewMessageIngestor(&mockMessageStore{}, &mockIdentityResolver{}, &mockMediaStore{}, nil, newTestLogger())
	_, err := ingestor.Ingest(context.Background(), envelope)
	require.Error(t, err)
}

func TestIngestStoresAndLinksMedia(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}
	media := &mockMediaStore{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(7), true)
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Return(int64(42), true, nil)
	media.On("StoreBase64", mock.Anything, "aW1hZ2VieXRlcw==", "image/jpeg").
		Return(int64(99), nil)
	messages.On("LinkAttachment", mock.Anything, int64(42), int64(99)).Return(nil)

	envelope := textEnvelope("")
	envelope.Data.Message = &models.MessageContent{
		ImageMessage: &models.MediaVariant{Caption: "photo", MimeType: "image/jpeg"},
	}
	envelope.Data.Base64 = "aW1hZ2VieXRlcw=="

	ingestor := NewMessageIngestor(messages, identity, media, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	assert.Equal(t, OutcomePersisted, result.Outcome)
	assert.Equal(t, models.MessageTypeImage, result.Type)
	messages.AssertExpectations(t)
	media.AssertExpectations(t)
}

func TestIngestMediaFailureKeepsMessage(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}
	media := &mockMediaStore{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(7), true)
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Return(int64(42), true, nil)
	media.On("StoreBase64", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), assert.AnError)

	envelope := textEnvelope("")
	envelope.Data.Message = &models.MessageContent{
		VideoMessage: &models.MediaVariant{MimeType: "video/mp4"},
	}
	envelope.Data.Base64 = "dmlkZW8="

	ingestor := NewMessageIngestor(messages, identity, media, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	assert.Equal(t, OutcomePersisted, result.Outcome)
	messages.AssertNotCalled(t, "LinkAttachment", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestMediaVariantWithoutPayload(t *testing.T) {
	messages := &mockMessageStore{}
	identity := &mockIdentityResolver{}
	media := &mockMediaStore{}

	identity.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(7), true)
	messages.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Return(int64(42), true, nil)

	envelope := textEnvelope("")
	envelope.Data.Message = &models.MessageContent{
		AudioMessage: &models.AudioVariant{MimeType: "audio/ogg; codecs=opus", PTT: true},
	}

	ingestor := NewMessageIngestor(messages, identity, media, nil, newTestLogger())
	result, err := ingestor.Ingest(context.Background(), envelope)
	require.NoError(t, err)

	assert.Equal(t, OutcomePersisted, result.Outcome)
	assert.Equal(t, models.MessageTypeAudio, result.Type)
	media.AssertNotCalled(t, "StoreBase64", mock.Anything, mock.Anything, mock.Anything)
}
