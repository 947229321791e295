package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/middleware"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

const testOrigin = "http://localhost:5173"

type fakeStore struct {
	mu     sync.Mutex
	states map[string][]auth.ConnectState
}

func (f *fakeStore) SetConnectState(_ context.Context, userID string, state auth.ConnectState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[userID] = append(f.states[userID], state)
	return nil
}

func (f *fakeStore) history(userID string) []auth.ConnectState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.ConnectState(nil), f.states[userID]...)
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, userID)
	return nil
}

type presenceEnv struct {
	hub      *Hub
	store    *fakeStore
	sessions *fakeInvalidator
	tokens   *auth.TokenService
	metrics  *observability.Metrics
	srv      *httptest.Server
}

func newPresenceEnv(t *testing.T) *presenceEnv {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	require.NoError(t, err)

	env := &presenceEnv{
		store:    &fakeStore{states: make(map[string][]auth.ConnectState)},
		sessions: &fakeInvalidator{},
		tokens:   tokens,
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	env.hub = NewHub(env.store, env.sessions, []string{testOrigin}, nil, env.metrics)
	env.srv = httptest.NewServer(middleware.NewAuthMiddleware(tokens).Handler(env.hub.Handler()))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *presenceEnv) dial(userID, origin string) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/", origin)
	if err != nil {
		return nil, err
	}
	token, err := e.tokens.Issue(userID)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Cookie", middleware.AccessCookie+"="+token)
	return websocket.DialConfig(cfg)
}

func (e *presenceEnv) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, err := e.dial(userID, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Event
	require.NoError(t, websocket.JSON.Receive(conn, &event))
	return event
}

func TestHub_OnlineThenOffline(t *testing.T) {
	env := newPresenceEnv(t)

	ada := env.connect(t, "u1")
	assert.Equal(t, Event{Event: "user-status:u1", Data: Status{ConnectState: auth.ConnectStateOnline}}, readEvent(t, ada))
	assert.True(t, env.hub.Online("u1"))

	grace := env.connect(t, "u2")
	assert.Equal(t, "user-status:u2", readEvent(t, ada).Event)
	assert.Equal(t, "user-status:u2", readEvent(t, grace).Event)
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.PresenceConnections))

	require.NoError(t, grace.Close())
	event := readEvent(t, ada)
	assert.Equal(t, "user-status:u2", event.Event)
	assert.Equal(t, auth.ConnectStateOffline, event.Data.ConnectState)

	assert.Equal(t, []auth.ConnectState{auth.ConnectStateOnline, auth.ConnectStateOffline}, env.store.history("u2"))
	assert.False(t, env.hub.Online("u2"))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.PresenceConnections) == 1
	}, time.Second, 10*time.Millisecond)

	env.sessions.mu.Lock()
	defer env.sessions.mu.Unlock()
	assert.Equal(t, []string{"u1", "u2", "u2"}, env.sessions.ids)
}

func TestHub_SecondSocketKeepsUserOnline(t *testing.T) {
	env := newPresenceEnv(t)

	first := env.connect(t, "u1")
	readEvent(t, first)
	second := env.connect(t, "u1")
	require.NoError(t, first.Close())

	// The next event the remaining socket sees is another user's, never u1 going offline
	env.connect(t, "u2")
	assert.Equal(t, "user-status:u2", readEvent(t, second).Event)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.PresenceConnections) == 2
	}, time.Second, 10*time.Millisecond)
	assert.True(t, env.hub.Online("u1"))
	assert.Equal(t, []auth.ConnectState{auth.ConnectStateOnline}, env.store.history("u1"))
}

func TestHub_RequiresSession(t *testing.T) {
	env := newPresenceEnv(t)

	past := time.Now().Add(-time.Hour)
	stale, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	}, auth.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := stale.Issue("u1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		cookie  *http.Cookie
		message string
	}{
		{"no cookie", nil, middleware.MsgUnauthorized},
		{"garbage token", &http.Cookie{Name: middleware.AccessCookie, Value: "nope"}, middleware.MsgUnauthorized},
		{"expired token", &http.Cookie{Name: middleware.AccessCookie, Value: expired}, middleware.MsgSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/", nil)
			require.NoError(t, err)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body struct {
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.message, body.Message)
		})
	}

	assert.Empty(t, env.store.history("u1"))
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	env := newPresenceEnv(t)

	_, err := env.dial("u1", "https://evil.example")
	require.Error(t, err)
	assert.False(t, env.hub.Online("u1"))
}
