package service

import (
	"context"
	"testing"
	"time"

	"evocrm/internal/models"
	"evocrm/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestBreaker(t *testing.T) *circuitbreaker.Breaker {
	t.Helper()
	return circuitbreaker.New("test-gateway", 3, time.Minute, newTestLogger())
}

func TestAvatarFetchAndStore(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	media := &mockMediaStore{}
	fetcher := NewAvatarFetcher(gateway, store, media, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7, JID: "5511999999999@s.whatsapp.net"}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, "main", "5511999999999@s.whatsapp.net").
		Return("https://cdn.example.com/pic.jpg", nil)
	media.On("Download", mock.Anything, "https://cdn.example.com/pic.jpg").
		Return(int64(99), nil)
	store.On("SetContactAvatar", mock.Anything, int64(7), int64(99)).
		Return(true, nil)

	assert.True(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
	media.AssertExpectations(t)
}

func TestAvatarFetchSkipsWhenAlreadySet(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	fetcher := NewAvatarFetcher(gateway, store, &mockMediaStore{}, newTestBreaker(t), newTestLogger())

	avatarID := int64(12)
	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7, AvatarID: &avatarID}, nil)

	// Second and later calls are cheap: the gateway is never consulted once an
	// avatar is recorded, and the caller still learns the contact is covered.
	assert.True(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	gateway.AssertNotCalled(t, "FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything)
}

func TestAvatarFetchSkipsOnLookupFailure(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	fetcher := NewAvatarFetcher(gateway, store, &mockMediaStore{}, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).Return(nil, assert.AnError)

	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	gateway.AssertNotCalled(t, "FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything)
}

func TestAvatarFetchEmptyURLIsNoOp(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	media := &mockMediaStore{}
	fetcher := NewAvatarFetcher(gateway, store, media, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything).
		Return("", nil)

	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	media.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestAvatarFetchSwallowsGatewayError(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	media := &mockMediaStore{}
	fetcher := NewAvatarFetcher(gateway, store, media, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything).
		Return("", assert.AnError)

	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	media.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestAvatarFetchStopsAtOpenBreaker(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	breaker := circuitbreaker.New("test-gateway", 1, time.Minute, newTestLogger())
	fetcher := NewAvatarFetcher(gateway, store, &mockMediaStore{}, breaker, newTestLogger())

	store.On("GetContactByID", mock.Anything, mock.Anything).
		Return(&models.Contact{ID: 7}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything).
		Return("", assert.AnError).Once()

	// First call trips the breaker, the second is rejected without reaching
	// the gateway.
	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))
	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	gateway.AssertNumberOfCalls(t, "FetchProfilePictureURL", 1)
}

func TestAvatarFetchDownloadFailure(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	media := &mockMediaStore{}
	fetcher := NewAvatarFetcher(gateway, store, media, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything).
		Return("https://cdn.example.com/pic.jpg", nil)
	media.On("Download", mock.Anything, mock.Anything).
		Return(int64(0), assert.AnError)

	assert.False(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	store.AssertNotCalled(t, "SetContactAvatar", mock.Anything, mock.Anything, mock.Anything)
}

func TestAvatarFetchLosingRaceIsSilent(t *testing.T) {
	store := &mockContactStore{}
	gateway := &mockGatewayClient{}
	media := &mockMediaStore{}
	fetcher := NewAvatarFetcher(gateway, store, media, newTestBreaker(t), newTestLogger())

	store.On("GetContactByID", mock.Anything, int64(7)).
		Return(&models.Contact{ID: 7}, nil)
	gateway.On("FetchProfilePictureURL", mock.Anything, mock.Anything, mock.Anything).
		Return("https://cdn.example.com/pic.jpg", nil)
	media.On("Download", mock.Anything, mock.Anything).
		Return(int64(99), nil)
	store.On("SetContactAvatar", mock.Anything, int64(7), int64(99)).
		Return(false, nil)

	// The winner recorded an avatar, so the contact is covered either way.
	assert.True(t, fetcher.FetchAndStoreIfAbsent(context.Background(), 7, "5511999999999@s.whatsapp.net", "main"))

	store.AssertExpectations(t)
}
