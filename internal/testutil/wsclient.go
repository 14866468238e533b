package testutil

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one decoded server frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v or fails the test.
func (e Event) Decode(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, v); err != nil {
		t.Fatalf("decoding %q payload %s: %v", e.Event, e.Data, err)
	}
}

// WSClient is a WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    testing.TB
}

// WSURL converts an httptest server URL into a ws:// URL for path.
func WSURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialWS connects to rawURL presenting token as the "token" query parameter.
// An empty token is omitted. The response is returned so callers can inspect
// handshake rejections.
func DialWS(rawURL, token string) (*websocket.Conn, *http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(u.String(), nil)
}

// NewWSClient dials rawURL with token and returns a test client.
//
// Precondition: rawURL must point at a listening WebSocket endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t testing.TB, rawURL, token string) *WSClient {
	t.Helper()
	start := time.Now()

	conn, resp, err := DialWS(rawURL, token)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("connecting to %s: %v (status %d) [%s]", rawURL, err, status, time.Since(start))
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("ws client connected to %s [%s]", rawURL, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// ReadEvent reads the next frame or fails on timeout.
func (c *WSClient) ReadEvent(timeout time.Duration) Event {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.t.Fatalf("decoding frame %s: %v", data, err)
	}
	return ev
}

// ExpectEvent reads frames until one named name arrives, skipping others.
//
// Postcondition: Returns the matching event, or fails on timeout.
func (c *WSClient) ExpectEvent(name string, timeout time.Duration) Event {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", name)
		}
		ev := c.ReadEvent(remaining)
		if ev.Event == name {
			return ev
		}
	}
}

// ExpectSilence fails the test if any frame arrives within wait. The client
// cannot read again afterwards; only Send and Close remain usable.
func (c *WSClient) ExpectSilence(wait time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("expected no frames, got %s", data)
	}
}

// Send writes one event frame.
func (c *WSClient) Send(event string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("encoding %q payload: %v", event, err)
	}
	frame, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		c.t.Fatalf("encoding %q frame: %v", event, err)
	}
	c.SendRaw(frame)
}

// SendRaw writes frame as a single text message.
func (c *WSClient) SendRaw(frame []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("sending %s: %v", frame, err)
	}
}

// Close sends a normal close frame and closes the connection.
func (c *WSClient) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.conn.Close()
}
