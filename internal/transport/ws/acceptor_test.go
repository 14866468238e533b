package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/office/internal/config"
	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/testutil"
)

var errBadToken = errors.New("bad token")

// stubAuth accepts tokens of the form "user:<id>".
type stubAuth struct{}

func (stubAuth) Authenticate(token string) (presence.Identity, error) {
	id, ok := strings.CutPrefix(token, "user:")
	if !ok || id == "" {
		return presence.Identity{}, errBadToken
	}
	return presence.Identity{UserID: id, DisplayName: "User " + id}, nil
}

// echoHandler writes every text frame back prefixed with the user id.
type echoHandler struct {
	sessions atomic.Int32
	lastErr  atomic.Pointer[error]
}

func (h *echoHandler) HandleSession(_ context.Context, conn *Conn) error {
	h.sessions.Add(1)
	out := make(chan []byte, 8)
	pumpDone := make(chan struct{})
	go func() {
		conn.WritePump(out)
		close(pumpDone)
	}()
	defer func() {
		close(out)
		<-pumpDone
	}()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			h.lastErr.Store(&err)
			return err
		}
		if string(frame) == "quit" {
			return nil
		}
		out <- []byte(conn.Identity().UserID + ": " + string(frame))
	}
}

func wsConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   2 * time.Second,
		PingInterval:   time.Second,
		MaxMessageSize: 128,
		SendBuffer:     8,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newTestServer(t *testing.T, handler SessionHandler) (*Acceptor, *httptest.Server) {
	t.Helper()
	acc := NewAcceptor(wsConfig(), stubAuth{}, handler, zaptest.NewLogger(t))
	srv := httptest.NewServer(acc)
	t.Cleanup(func() {
		srv.Close()
		acc.Stop()
	})
	return acc, srv
}

func TestAcceptorEcho(t *testing.T) {
	handler := &echoHandler{}
	_, srv := newTestServer(t, handler)

	conn, _, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), "user:alice")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "alice: hello", string(data))
	assert.Equal(t, int32(1), handler.sessions.Load())
}

func TestAcceptorRejectsBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"invalid token", "nobody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &echoHandler{}
			_, srv := newTestServer(t, handler)

			_, resp, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), tt.token)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.True(t, IsUnauthorized(resp, err))
			assert.Equal(t, int32(0), handler.sessions.Load())
		})
	}
}

func TestAcceptorBearerHeader(t *testing.T) {
	handler := &echoHandler{}
	_, srv := newTestServer(t, handler)

	header := http.Header{}
	header.Set("Authorization", "Bearer user:bob")
	conn, _, err := websocket.DefaultDialer.Dial(testutil.WSURL(srv.URL, "/"), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "bob: hi", string(data))
}

func TestAcceptorDisallowedOrigin(t *testing.T) {
	handler := &echoHandler{}
	_, srv := newTestServer(t, handler)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(testutil.WSURL(srv.URL, "/?token=user:carol"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int32(0), handler.sessions.Load())
}

func TestAcceptorRejectsNonGet(t *testing.T) {
	_, srv := newTestServer(t, &echoHandler{})

	resp, err := http.Post(srv.URL+"/?token=user:dave", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAcceptorReadLimit(t *testing.T) {
	handler := &echoHandler{}
	_, srv := newTestServer(t, handler)

	conn, _, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), "user:erin")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 512))))

	require.Eventually(t, func() bool {
		last := handler.lastErr.Load()
		return last != nil && closeReason(*last) == "message too large"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptorClosesWhenEventsClosed(t *testing.T) {
	handler := SessionHandlerFunc(func(_ context.Context, conn *Conn) error {
		out := make(chan []byte, 1)
		out <- []byte("bye")
		close(out)
		conn.WritePump(out)
		return nil
	})
	_, srv := newTestServer(t, handler)

	conn, _, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), "user:frank")
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestAcceptorStopEndsSessions(t *testing.T) {
	started := make(chan struct{})
	var ended atomic.Bool
	handler := SessionHandlerFunc(func(ctx context.Context, conn *Conn) error {
		close(started)
		_, err := conn.ReadFrame()
		ended.Store(true)
		return err
	})
	acc, srv := newTestServer(t, handler)

	conn, _, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), "user:gina")
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	stopped := make(chan struct{})
	go func() {
		acc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}
	assert.True(t, ended.Load())

	_, resp, err := testutil.DialWS(testutil.WSURL(srv.URL, "/"), "user:gina")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"query", "/ws?token=abc", "", "abc"},
		{"bearer", "/ws", "Bearer xyz", "xyz"},
		{"bearer lowercase", "/ws", "bearer xyz", "xyz"},
		{"query wins", "/ws?token=abc", "Bearer xyz", "abc"},
		{"basic ignored", "/ws", "Basic xyz", ""},
		{"none", "/ws", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, tokenFromRequest(r))
		})
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(func() int { return 3 }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get("X-Presence-Sessions"))
}
