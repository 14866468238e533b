// Package officeserver runs each connected session: registration, presence
// broadcast, inbound routing, and disconnect cleanup.
package officeserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/observability"
	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/protocol"
	"github.com/cory-johannsen/office/internal/rooms"
)

// Connection is the transport side of one authenticated client.
type Connection interface {
	ID() string
	Identity() presence.Identity
	// ReadFrame blocks for the next inbound frame and fails once the
	// connection is closed.
	ReadFrame() ([]byte, error)
	// WritePump delivers events to the client until events is closed or the
	// connection fails.
	WritePump(events <-chan []byte)
	Close() error
}

// Service owns the presence registry and room manager and drives the
// lifecycle of every session.
type Service struct {
	registry    *presence.Registry
	rooms       *rooms.Manager
	broadcaster *Broadcaster
	movement    *MovementHandler
	cabins      *CabinHandler
	logger      *zap.Logger

	// rosterMu orders presence and user-left broadcasts so every peer sees
	// roster changes in the same order.
	rosterMu sync.Mutex

	connMu sync.Mutex
	conns  map[string]Connection
}

// NewService creates a Service with the given dependencies.
//
// Precondition: registry, roomMgr, and logger must be non-nil.
// Postcondition: Returns a Service with no live sessions.
func NewService(registry *presence.Registry, roomMgr *rooms.Manager, logger *zap.Logger) *Service {
	s := &Service{
		registry: registry,
		rooms:    roomMgr,
		logger:   logger,
		conns:    make(map[string]Connection),
	}
	s.broadcaster = NewBroadcaster(registry, logger, s.evict)
	s.movement = NewMovementHandler(registry, s.broadcaster, logger)
	s.cabins = NewCabinHandler(registry, roomMgr, s.broadcaster, logger)
	return s
}

// HandleSession serves conn until it closes or ctx is cancelled. The
// connection has already been authenticated.
//
// Postcondition: The session is registered while this method runs and is
// removed, with user-left sent to every remaining peer, before it returns.
func (s *Service) HandleSession(ctx context.Context, conn Connection) error {
	id := conn.ID()
	identity := conn.Identity()
	logger := observability.ConnectionLogger(s.logger, id, identity.UserID)
	logger.Debug("session state", zap.Stringer("state", StateAuthenticated))

	entity, err := s.join(id, identity, conn)
	if err != nil {
		logger.Error("registering session",
			zap.Stringer("state", StateRejected),
			zap.Error(err),
		)
		_ = conn.Close()
		return err
	}
	logger.Info("session state",
		zap.Stringer("state", StateActive),
		zap.String("display_name", identity.DisplayName),
	)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		conn.WritePump(entity.Events())
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err = s.readLoop(id, conn, logger)

	s.leave(id)
	<-pumpDone
	logger.Info("session state", zap.Stringer("state", StateDisconnected))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// join registers the session and sends the updated roster to everyone.
// The newcomer's copy is queued before it can be addressed by any other
// broadcast, so a roster is always the first frame it receives.
func (s *Service) join(id string, identity presence.Identity, conn Connection) (*presence.Entity, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	_, roster, err := s.registry.RegisterWelcomed(id, identity, func(roster []presence.Session) ([]byte, error) {
		return protocol.Encode(protocol.NewPresence(roster))
	})
	if err != nil {
		return nil, fmt.Errorf("registering session: %w", err)
	}
	entity, _ := s.registry.Entity(id)
	s.connMu.Lock()
	s.conns[id] = conn
	s.connMu.Unlock()

	s.broadcaster.ToAll(protocol.NewPresence(roster), id)
	return entity, nil
}

// readLoop routes inbound frames until the connection fails. Frames are
// handled one at a time, which keeps each sender's moves in order.
func (s *Service) readLoop(id string, conn Connection, logger *zap.Logger) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			logger.Warn("dropping inbound frame", zap.Error(err))
			s.broadcaster.ToConnection(id, protocol.Error{Message: inboundErrorMessage(err)})
			continue
		}

		switch m := msg.(type) {
		case protocol.Move:
			s.movement.OnMove(id, m.Position())
		case protocol.EnterCabin:
			if err := s.cabins.Enter(id, m.Cabin); err != nil {
				logger.Info("cabin join refused", zap.String("cabin", m.Cabin), zap.Error(err))
			}
		case protocol.LeaveCabin:
			s.cabins.Leave(id, m.Cabin)
		}
	}
}

// leave runs the disconnect sequence. It is safe to call more than once;
// only the first call broadcasts user-left.
func (s *Service) leave(id string) {
	left := s.rooms.LeaveAll(id)

	s.connMu.Lock()
	delete(s.conns, id)
	s.connMu.Unlock()

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	entity, _ := s.registry.Entity(id)
	if _, removed := s.registry.Remove(id); !removed {
		return
	}
	n := s.broadcaster.ToAll(protocol.UserLeft{ConnectionID: id}, "")
	delivered, dropped := entity.Stats()
	s.logger.Debug("session removed",
		zap.String("connection_id", id),
		zap.Stringer("close_reason", entity.Reason()),
		zap.Uint64("frames_delivered", delivered),
		zap.Uint64("frames_dropped", dropped),
		zap.Strings("cabins", left),
		zap.Int("notified", n),
	)
}

// evict closes a connection whose outbound queue overflowed. Its own session
// goroutine then runs the disconnect sequence.
func (s *Service) evict(id string) {
	s.Disconnect(id)
}

// Disconnect forces connectionID closed. Cleanup runs on the session's own
// goroutine.
//
// Postcondition: Returns true if a live connection was closed.
func (s *Service) Disconnect(connectionID string) bool {
	s.connMu.Lock()
	conn, ok := s.conns[connectionID]
	s.connMu.Unlock()
	if !ok {
		return false
	}
	_ = conn.Close()
	return true
}

// Sessions returns the live roster in registration order.
func (s *Service) Sessions() []presence.Session {
	return s.registry.Snapshot()
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	return s.registry.Count()
}

func inboundErrorMessage(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "malformed frame"
	case errors.Is(err, protocol.ErrUnknownEvent), errors.Is(err, protocol.ErrInvalidPayload):
		return err.Error()
	default:
		return "invalid message"
	}
}
