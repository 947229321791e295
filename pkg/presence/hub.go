package presence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/contextkeys"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

const (
	writeTimeout = 5 * time.Second
	stateTimeout = 5 * time.Second
)

// StateStore persists a user's connect state
type StateStore interface {
	SetConnectState(ctx context.Context, userID string, state auth.ConnectState) error
}

// Invalidator drops a cached user projection
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Status is the payload of a presence event
type Status struct {
	ConnectState auth.ConnectState `json:"connectState"`
}

// Event is sent to every open socket when a user goes online or offline
type Event struct {
	Event string `json:"event"`
	Data  Status `json:"data"`
}

// EventName is the event a user's presence changes are published under
func EventName(userID string) string {
	return "user-status:" + userID
}

type peer struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	userID string
}

func (p *peer) send(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(p.conn, event)
}

// Hub tracks presence sockets. A user is ONLINE while at least one of their
// sockets is open.
type Hub struct {
	mu     sync.Mutex
	peers  map[*peer]struct{}
	counts map[string]int

	store    StateStore
	sessions Invalidator
	origins  []string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewHub creates a presence hub. sessions and metrics may be nil.
// Upgrades are accepted only from origins, where "*" allows any.
func NewHub(store StateStore, sessions Invalidator, origins []string, logger *observability.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Hub{
		peers:    make(map[*peer]struct{}),
		counts:   make(map[string]int),
		store:    store,
		sessions: sessions,
		origins:  origins,
		logger:   logger.WithField("component", "presence"),
		metrics:  metrics,
	}
}

// Handler upgrades authenticated requests to presence sockets. It must run
// behind the auth middleware.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{
		Handshake: h.handshake,
		Handler:   h.serve,
	}
}

// Online reports whether userID has an open socket
func (h *Hub) Online(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[userID] > 0
}

func (h *Hub) handshake(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	if origin == nil {
		return fmt.Errorf("origin required")
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin.String() {
			cfg.Origin = origin
			return nil
		}
	}
	return fmt.Errorf("origin %q not allowed", origin.String())
}

func (h *Hub) serve(conn *websocket.Conn) {
	defer conn.Close()

	authCtx, ok := contextkeys.GetAuth(conn.Request().Context())
	if !ok || authCtx.UserID == "" {
		return
	}
	p := &peer{conn: conn, userID: authCtx.UserID}
	logger := h.logger.WithField("user_id", p.userID)

	h.join(conn.Request().Context(), p)
	defer h.leave(conn.Request().Context(), p)
	logger.Debug("Presence socket opened")

	// Clients have nothing to say; reading only detects the close
	if _, err := io.Copy(io.Discard, conn); err != nil {
		logger.WithError(err).Debug("Presence socket closed with error")
	}
}

func (h *Hub) join(ctx context.Context, p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.counts[p.userID]++
	first := h.counts[p.userID] == 1
	h.mu.Unlock()

	h.metrics.RecordPresenceConnection(true)
	if first {
		h.transition(ctx, p.userID, auth.ConnectStateOnline)
	}
}

func (h *Hub) leave(ctx context.Context, p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.counts[p.userID]--
	last := h.counts[p.userID] <= 0
	if last {
		delete(h.counts, p.userID)
	}
	h.mu.Unlock()

	h.metrics.RecordPresenceConnection(false)
	if last {
		h.transition(ctx, p.userID, auth.ConnectStateOffline)
	}
}

// transition persists state, drops the stale projection and tells every socket
func (h *Hub) transition(ctx context.Context, userID string, state auth.ConnectState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateTimeout)
	defer cancel()

	logger := h.logger.WithFields(map[string]interface{}{
		"user_id":       userID,
		"connect_state": state,
	})
	if err := h.store.SetConnectState(ctx, userID, state); err != nil {
		logger.WithError(err).Error("Failed to persist connect state")
	}
	if h.sessions != nil {
		if err := h.sessions.Invalidate(ctx, userID); err != nil {
			logger.WithError(err).Warn("Failed to invalidate cached user")
		}
	}
	logger.Info("Presence changed")

	h.broadcast(Event{Event: EventName(userID), Data: Status{ConnectState: state}})
}

func (h *Hub) broadcast(event Event) {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		if err := p.send(event); err != nil {
			// The reader sees the close and leaves
			h.logger.WithError(err).WithField("user_id", p.userID).Debug("Dropping unwritable presence socket")
			p.conn.Close()
		}
	}
}
