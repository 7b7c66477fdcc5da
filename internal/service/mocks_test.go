package service

import (
	"context"
	"sync"

	"evocrm/internal/models"
	"evocrm/pkg/evolution"

	"github.com/stretchr/testify/mock"
)

type mockContactStore struct {
	mock.Mock
}

func (m *mockContactStore) CreateContact(ctx context.Context, contact *models.Contact) (int64, error) {
	args := m.Called(ctx, contact)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockContactStore) GetContactByJID(ctx context.Context, jid string) (*models.Contact, error) {
	args := m.Called(ctx, jid)
	if c := args.Get(0); c != nil {
		return c.(*models.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContactStore) GetContactByID(ctx context.Context, id int64) (*models.Contact, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*models.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContactStore) SetContactAvatar(ctx context.Context, contactID, attachmentID int64) (bool, error) {
	args := m.Called(ctx, contactID, attachmentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockContactStore) ListContacts(ctx context.Context, limit, offset int) ([]*models.Contact, error) {
	args := m.Called(ctx, limit, offset)
	if c := args.Get(0); c != nil {
		return c.([]*models.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) SaveMessage(ctx context.Context, msg *models.Message) (int64, bool, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockMessageStore) GetMessageByWAID(ctx context.Context, waMessageID string) (*models.Message, error) {
	args := m.Called(ctx, waMessageID)
	if msg := args.Get(0); msg != nil {
		return msg.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageStore) LinkAttachment(ctx context.Context, messageID, attachmentID int64) error {
	args := m.Called(ctx, messageID, attachmentID)
	return args.Error(0)
}

func (m *mockMessageStore) ListMessagesByContact(ctx context.Context, contactID int64, beforeTimestamp int64, limit int) ([]*models.Message, error) {
	args := m.Called(ctx, contactID, beforeTimestamp, limit)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMediaStore struct {
	mock.Mock
}

func (m *mockMediaStore) StoreBase64(ctx context.Context, payload, mimeType string) (int64, error) {
	args := m.Called(ctx, payload, mimeType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMediaStore) Download(ctx context.Context, fileURL string) (int64, error) {
	args := m.Called(ctx, fileURL)
	return args.Get(0).(int64), args.Error(1)
}

type mockIdentityResolver struct {
	mock.Mock
}

func (m *mockIdentityResolver) ResolveOrCreate(ctx context.Context, jid, pushName, instance string) (int64, bool) {
	args := m.Called(ctx, jid, pushName, instance)
	return args.Get(0).(int64), args.Bool(1)
}

type mockAvatarFetcher struct {
	mock.Mock
}

func (m *mockAvatarFetcher) FetchAndStoreIfAbsent(ctx context.Context, contactID int64, jid, instance string) bool {
	args := m.Called(ctx, contactID, jid, instance)
	return args.Bool(0)
}

type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) FetchProfilePictureURL(ctx context.Context, instance, jid string) (string, error) {
	args := m.Called(ctx, instance, jid)
	return args.String(0), args.Error(1)
}

func (m *mockGatewayClient) FetchInstances(ctx context.Context) ([]evolution.Instance, error) {
	args := m.Called(ctx)
	if instances := args.Get(0); instances != nil {
		return instances.([]evolution.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Ingest(ctx context.Context, envelope *models.WebhookEnvelope) (*IngestResult, error) {
	args := m.Called(ctx, envelope)
	if r := args.Get(0); r != nil {
		return r.(*IngestResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// capturingRelay records published events without a real websocket.
type capturingRelay struct {
	mu     sync.Mutex
	events []RelayEvent
}

func (c *capturingRelay) Publish(event RelayEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturingRelay) Events() []RelayEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RelayEvent, len(c.events))
	copy(out, c.events)
	return out
}
