package integration_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"evocrm/internal/database"
	"evocrm/internal/models"
	"evocrm/internal/service"
	"evocrm/pkg/circuitbreaker"
	"evocrm/pkg/evolution"
	"evocrm/pkg/media"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment wires the real ingestion pipeline against a temporary
// SQLite database, a temporary media cache and a mock gateway server.
type TestEnvironment struct {
	t          *testing.T
	db         *database.Database
	mediaStore *media.Store
	dispatcher *service.WebhookDispatcher
	gateway    *httptest.Server

	avatarRequests atomic.Int32
	avatarURL      string
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()

	db, err := database.New(filepath.Join(dir, "evocrm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &TestEnvironment{t: t, db: db}

	env.gateway = httptest.NewServer(http.HandlerFunc(env.serveGateway))
	t.Cleanup(env.gateway.Close)

	mediaStore, err := media.NewStore(models.MediaConfig{
		CacheDir:      filepath.Join(dir, "media"),
		PublicBaseURL: "http://localhost:8090/media",
		MaxSizeMB:     models.MediaSizeLimits{Image: 5, Video: 10, Audio: 5, Document: 10},
	}, db, logger)
	require.NoError(t, err)
	env.mediaStore = mediaStore

	gatewayClient := evolution.NewClient(evolution.ClientConfig{
		BaseURL:    env.gateway.URL,
		APIKey:     "integration-key",
		Timeout:    5 * time.Second,
		RetryCount: 1,
	})

	breaker := circuitbreaker.New("evolution-gateway", 5, 30*time.Second, logger)
	avatars := service.NewAvatarFetcher(gatewayClient, db, mediaStore, breaker, logger)

	identity := service.NewIdentityResolver(db, avatars, models.GatewayConfig{
		UsePushName:      true,
		AvatarTimeoutSec: 5,
	}, func() string { return "nuevo" }, logger)

	ingestor := service.NewMessageIngestor(db, identity, mediaStore, nil, logger)
	env.dispatcher = service.NewWebhookDispatcher(ingestor, logger)

	return env
}

// serveGateway mimics the Evolution API endpoints the pipeline calls.
func (env *TestEnvironment) serveGateway(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/media/avatar.jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("integration avatar bytes"))

	case r.Method == http.MethodPost && len(r.URL.Path) > len("/chat/fetchProfilePictureUrl/"):
		env.avatarRequests.Add(1)
		json.NewEncoder(w).Encode(evolution.ProfilePictureResponse{
			ProfilePictureURL: env.avatarURL,
		})

	default:
		http.NotFound(w, r)
	}
}

// AvatarRequests reports how many profile-picture lookups the mock gateway
// has seen.
func (env *TestEnvironment) AvatarRequests() int {
	return int(env.avatarRequests.Load())
}

// EnableAvatars makes the mock gateway return a downloadable avatar URL.
func (env *TestEnvironment) EnableAvatars() {
	env.avatarURL = env.gateway.URL + "/media/avatar.jpg"
}
