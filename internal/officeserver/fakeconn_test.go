package officeserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/protocol"
	"github.com/cory-johannsen/office/internal/rooms"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory Connection. Frames the server writes are
// collected for inspection. A stalled fakeConn never drains its queue.
type fakeConn struct {
	id       string
	identity presence.Identity
	stalled  bool

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	frames []protocol.Envelope
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{
		id:       id,
		identity: presence.Identity{UserID: userID, DisplayName: "Name " + userID},
		inbound:  make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Identity() presence.Identity { return c.identity }

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case <-c.done:
		return nil, errFakeClosed
	default:
	}
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.done:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WritePump(events <-chan []byte) {
	if c.stalled {
		<-c.done
		return
	}
	for {
		select {
		case frame, ok := <-events:
			if !ok {
				_ = c.Close()
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				panic(err)
			}
			c.mu.Lock()
			c.frames = append(c.frames, env)
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(t *testing.T, msg protocol.Inbound) {
	t.Helper()
	frame, err := protocol.EncodeInbound(msg)
	require.NoError(t, err)
	c.inbound <- frame
}

// received returns the frames named event, in arrival order.
func (c *fakeConn) received(event string) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// firstEvent returns the name of the first frame received, or "" if none.
func (c *fakeConn) firstEvent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return ""
	}
	return c.frames[0].Event
}

func (c *fakeConn) waitFor(t *testing.T, event string, count int) []protocol.Envelope {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.received(event)) >= count
	}, 2*time.Second, 5*time.Millisecond, "connection %s waiting for %d %q", c.id, count, event)
	return c.received(event)
}

type harness struct {
	svc      *Service
	registry *presence.Registry
	rooms    *rooms.Manager

	mu    sync.Mutex
	ended map[string]chan error
}

func newHarness(t *testing.T, catalog *rooms.Catalog, buffer int) *harness {
	t.Helper()
	registry := presence.NewRegistry(buffer)
	roomMgr := rooms.NewManager(catalog)
	return &harness{
		svc:      NewService(registry, roomMgr, zaptest.NewLogger(t)),
		registry: registry,
		rooms:    roomMgr,
		ended:    make(map[string]chan error),
	}
}

// start runs HandleSession for conn and waits until it is registered.
func (h *harness) start(t *testing.T, ctx context.Context, conn *fakeConn) {
	t.Helper()
	ended := make(chan error, 1)
	h.mu.Lock()
	h.ended[conn.id] = ended
	h.mu.Unlock()

	go func() { ended <- h.svc.HandleSession(ctx, conn) }()
	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-ended:
		case <-time.After(2 * time.Second):
		}
	})

	require.Eventually(t, func() bool {
		_, ok := h.registry.Get(conn.id)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) connect(t *testing.T, id string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id, "user-"+id)
	h.start(t, context.Background(), conn)
	return conn
}

func (h *harness) waitEnded(t *testing.T, id string) error {
	t.Helper()
	h.mu.Lock()
	ended := h.ended[id]
	h.mu.Unlock()
	select {
	case err := <-ended:
		ended <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not end", id)
		return nil
	}
}

func decodeRoster(t *testing.T, env protocol.Envelope) []protocol.SessionSummary {
	t.Helper()
	var roster []protocol.SessionSummary
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	return roster
}

func decodeString(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}
