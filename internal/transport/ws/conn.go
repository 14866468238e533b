package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/office/internal/config"
	"github.com/cory-johannsen/office/internal/presence"
)

// ErrConnClosed is returned by ReadFrame once the connection is closed.
var ErrConnClosed = errors.New("connection closed")

// Conn is one authenticated WebSocket connection. ReadFrame may be called from
// one goroutine and WritePump from another; Close is safe from any goroutine.
type Conn struct {
	ws         *websocket.Conn
	id         string
	identity   presence.Identity
	remoteAddr string

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(raw *websocket.Conn, id string, identity presence.Identity, remoteAddr string, cfg config.WebSocketConfig) *Conn {
	c := &Conn{
		ws:           raw,
		id:           id,
		identity:     identity,
		remoteAddr:   remoteAddr,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		done:         make(chan struct{}),
	}
	raw.SetReadLimit(cfg.MaxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	})
	return c
}

// ID returns the transport-assigned connection identifier.
func (c *Conn) ID() string { return c.id }

// Identity returns the identity the connection authenticated as.
func (c *Conn) Identity() presence.Identity { return c.identity }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// ReadFrame blocks until the next text frame arrives.
// Binary frames are skipped.
//
// Postcondition: Returns the frame, or an error once the peer disconnects,
// the read deadline passes, or Close is called.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil, ErrConnClosed
			default:
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// WritePump is the connection's only writer. It sends every frame from events
// in order, pings on an interval, and when events is closed sends a close
// frame. It closes the connection before returning.
func (c *Conn) WritePump(events <-chan []byte) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case frame, ok := <-events:
			if !ok {
				c.writeClose(websocket.CloseNormalClosure, "")
				return
			}
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(kind int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}

func (c *Conn) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
}

// Close closes the underlying connection, unblocking ReadFrame and WritePump.
// It is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	if isExpectedCloseError(err) {
		return nil
	}
	return err
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// closeReason classifies a read error for logging.
func closeReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "server shutdown"
	case errors.Is(err, ErrConnClosed):
		return "closed by server"
	case errors.Is(err, websocket.ErrReadLimit):
		return "message too large"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "client closed"
	case websocket.IsCloseError(err, websocket.CloseAbnormalClosure), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "connection dropped"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "idle timeout"
	}
	if isExpectedCloseError(err) {
		return "connection dropped"
	}
	return "read error"
}

// isExpectedCloseError reports whether err is the normal noise of a closing socket.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return strings.Contains(err.Error(), "broken pipe")
}
