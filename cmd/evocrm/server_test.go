package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "evocrm/internal/errors"
	"evocrm/internal/models"
	"evocrm/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIngestor struct {
	result  *service.IngestResult
	err     error
	calls   int
	lastCtx context.Context
}

func (s *stubIngestor) Ingest(ctx context.Context, _ *models.WebhookEnvelope) (*service.IngestResult, error) {
	s.calls++
	s.lastCtx = ctx
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubContactStore struct {
	contacts []*models.Contact
	byID     map[int64]*models.Contact
}

func (s *stubContactStore) CreateContact(context.Context, *models.Contact) (int64, error) {
	return 0, nil
}

func (s *stubContactStore) GetContactByJID(context.Context, string) (*models.Contact, error) {
	return nil, nil
}

func (s *stubContactStore) GetContactByID(_ context.Context, id int64) (*models.Contact, error) {
	return s.byID[id], nil
}

func (s *stubContactStore) SetContactAvatar(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (s *stubContactStore) ListContacts(context.Context, int, int) ([]*models.Contact, error) {
	return s.contacts, nil
}

type stubMessageStore struct {
	messages []*models.Message
}

func (s *stubMessageStore) SaveMessage(context.Context, *models.Message) (int64, bool, error) {
	return 0, false, nil
}

func (s *stubMessageStore) GetMessageByWAID(context.Context, string) (*models.Message, error) {
	return nil, nil
}

func (s *stubMessageStore) LinkAttachment(context.Context, int64, int64) error {
	return nil
}

func (s *stubMessageStore) ListMessagesByContact(context.Context, int64, int64, int) ([]*models.Message, error) {
	return s.messages, nil
}

type serverFixture struct {
	server   *Server
	ingestor *stubIngestor
}

func newTestServer(t *testing.T, cfg *models.Config) *serverFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if cfg == nil {
		cfg = &models.Config{LifecycleTags: []string{"nuevo", "cliente"}}
	}

	ingestor := &stubIngestor{result: &service.IngestResult{Outcome: service.OutcomePersisted, MessageID: 1}}
	dispatcher := service.NewWebhookDispatcher(ingestor, logger)

	contacts := &stubContactStore{
		contacts: []*models.Contact{{ID: 1, DisplayName: "Alice"}},
		byID:     map[int64]*models.Contact{1: {ID: 1, DisplayName: "Alice"}},
	}
	history := service.NewHistoryService(contacts, &stubMessageStore{
		messages: []*models.Message{{ID: 10}, {ID: 9}},
	})

	return &serverFixture{
		server:   NewServer(cfg, dispatcher, history, nil, nil, false, logger),
		ingestor: ingestor,
	}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)
	return rec
}

func webhookBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "main",
		Sender:   "5511888888888@s.whatsapp.net",
		Data: models.EventData{
			Key: models.MessageKey{
				RemoteJID: "5511999999999@s.whatsapp.net",
				ID:        "3EB0C431C26A1916E07E",
			},
			MessageTimestamp: 1700000000,
			Message:          &models.MessageContent{Conversation: "hola"},
		},
	})
	require.NoError(t, err)
	return body
}

func TestHealthEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWebhookAcceptsDelivery(t *testing.T) {
	f := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader(webhookBody(t)))
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.ingestor.calls)

	var ack models.WebhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "success", ack.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	cfg := &models.Config{
		Gateway:       models.GatewayConfig{WebhookSecret: "topsecret"},
		LifecycleTags: []string{"nuevo"},
	}
	f := newTestServer(t, cfg)

	req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader(webhookBody(t)))
	req.Header.Set("X-Evolution-Signature", "deadbeef")
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.ingestor.calls)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	cfg := &models.Config{
		Gateway:       models.GatewayConfig{WebhookSecret: "topsecret"},
		LifecycleTags: []string{"nuevo"},
	}
	f := newTestServer(t, cfg)

	body := webhookBody(t)
	req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader(body))
	req.Header.Set("X-Evolution-Signature", "sha256="+sign("topsecret", body))
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.ingestor.calls)
}

func TestWebhookAcknowledgesMalformedJSON(t *testing.T) {
	f := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader([]byte("not json")))
	rec := f.do(req)

	// Broken payloads get a 200 so the gateway does not retry them forever.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.ingestor.calls)
}

func TestWebhookAcknowledgesProcessingFailure(t *testing.T) {
	f := newTestServer(t, nil)
	f.ingestor.err = apperrors.New(apperrors.ErrCodeDatabaseQuery, "db down")

	req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader(webhookBody(t)))
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.ingestor.calls)
}

func TestTagsEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/tags", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []string{"nuevo", "cliente"}, payload.Tags)
}

func TestTagsEndpointFollowsResolver(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{LifecycleTags: []string{"stale"}}
	dispatcher := service.NewWebhookDispatcher(&stubIngestor{}, logger)
	history := service.NewHistoryService(&stubContactStore{}, &stubMessageStore{})

	current := []string{"fresh", "tags"}
	server := NewServer(cfg, dispatcher, history, nil, func() []string { return current }, false, logger)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tags", nil))

	var payload struct {
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, current, payload.Tags)
}

func TestVerboseFlagReachesRequestContexts(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{LifecycleTags: []string{"nuevo"}}
	history := service.NewHistoryService(&stubContactStore{}, &stubMessageStore{})

	for _, verbose := range []bool{true, false} {
		ingestor := &stubIngestor{result: &service.IngestResult{Outcome: service.OutcomePersisted, MessageID: 1}}
		dispatcher := service.NewWebhookDispatcher(ingestor, logger)
		server := NewServer(cfg, dispatcher, history, nil, nil, verbose, logger)

		req := httptest.NewRequest("POST", "/webhook/evolution", bytes.NewReader(webhookBody(t)))
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, ingestor.lastCtx)
		assert.Equal(t, verbose, service.IsVerboseLogging(ingestor.lastCtx),
			"verbose=%v should be visible to services handling the request", verbose)
	}
}

func TestContactsEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contacts?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Contacts []*models.Contact `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Contacts, 1)
	assert.Equal(t, "Alice", payload.Contacts[0].DisplayName)
}

func TestContactMessagesEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contacts/1/messages?before=1700000000&limit=50", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Messages []*models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Messages, 2)
}

func TestContactMessagesUnknownContact(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contacts/99/messages", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContactMessagesBadID(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contacts/abc/messages", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.do(httptest.NewRequest("GET", "/webhook/evolution", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"limit=25", 25},
		{"limit=0", 0},
		{"limit=-5", 7},
		{"limit=abc", 7},
		{"", 7},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/v1/contacts?"+tt.query, nil)
		assert.Equal(t, tt.want, queryInt(req, "limit", 7), "query %q", tt.query)
	}
}
