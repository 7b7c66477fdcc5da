package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"evocrm/internal/constants"
	"evocrm/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// RelayEvent is the notification pushed to connected chat UI clients after a
// message is persisted.
type RelayEvent struct {
	Event     string `json:"event"`
	MessageID int64  `json:"messageId"`
	ContactID int64  `json:"contactId,omitempty"`
	Instance  string `json:"instance"`
}

// RelayEventMessageNew announces a newly persisted message.
const RelayEventMessageNew = "message.new"

// RelayPublisher is the ingestor's view of the relay.
type RelayPublisher interface {
	Publish(event RelayEvent)
}

// RelayHub fans notification events out to websocket subscribers. Delivery is
// best effort: a slow or dead client is dropped, never waited on.
type RelayHub struct {
	logger       *logrus.Logger
	writeTimeout time.Duration
	write        func(ctx context.Context, conn *websocket.Conn, event RelayEvent) error

	mu      sync.Mutex
	nextID  int64
	clients map[int64]*websocket.Conn
}

// NewRelayHub creates an empty hub.
func NewRelayHub(cfg models.RelayConfig, logger *logrus.Logger) *RelayHub {
	timeout := time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultRelayWriteTimeoutMs) * time.Millisecond
	}
	return &RelayHub{
		logger:       logger,
		writeTimeout: timeout,
		write: func(ctx context.Context, conn *websocket.Conn, event RelayEvent) error {
			return wsjson.Write(ctx, conn, event)
		},
		clients: make(map[int64]*websocket.Conn),
	}
}

// ServeHTTP upgrades the request to a websocket subscription. The connection
// stays registered until the client goes away.
func (h *RelayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-origin policy is enforced upstream
	})
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	id := h.register(conn)
	h.logger.WithField("client_id", id).Debug("Relay client connected")

	// Reads are discarded; the relay is one-way. The read loop exists to
	// notice the peer closing.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	h.unregister(id)
	conn.Close(websocket.StatusNormalClosure, "")
	h.logger.WithField("client_id", id).Debug("Relay client disconnected")
}

// Publish sends the event to every connected client. Each write runs in its
// own goroutine so one stalled client cannot delay delivery to the rest or
// hold up the caller.
func (h *RelayHub) Publish(event RelayEvent) {
	h.mu.Lock()
	conns := make(map[int64]*websocket.Conn, len(h.clients))
	for id, conn := range h.clients {
		conns[id] = conn
	}
	h.mu.Unlock()

	for id, conn := range conns {
		go h.send(id, conn, event)
	}
}

func (h *RelayHub) send(id int64, conn *websocket.Conn, event RelayEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()

	if err := h.write(ctx, conn, event); err != nil {
		h.logger.WithError(err).WithField("client_id", id).Debug("Dropping relay client after failed write")
		h.unregister(id)
		conn.Close(websocket.StatusPolicyViolation, "write timeout")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *RelayHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every client connection.
func (h *RelayHub) Shutdown() {
	h.mu.Lock()
	conns := h.clients
	h.clients = make(map[int64]*websocket.Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *RelayHub) register(conn *websocket.Conn) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.clients[id] = conn
	return id
}

func (h *RelayHub) unregister(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}
