package officeserver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/protocol"
)

// Broadcaster encodes outbound messages once and queues them on recipient
// entities. It never blocks: a recipient whose queue is full is handed to
// evict and skipped.
type Broadcaster struct {
	registry *presence.Registry
	logger   *zap.Logger
	evict    func(connectionID string)
}

// NewBroadcaster creates a Broadcaster over registry.
//
// Precondition: registry and logger must be non-nil. evict may be nil.
func NewBroadcaster(registry *presence.Registry, logger *zap.Logger, evict func(connectionID string)) *Broadcaster {
	if evict == nil {
		evict = func(string) {}
	}
	return &Broadcaster{registry: registry, logger: logger, evict: evict}
}

// ToAll sends msg to every live session except exclude.
// Pass an empty exclude to include everyone.
//
// Postcondition: Returns the number of recipients the message was queued for.
func (b *Broadcaster) ToAll(msg protocol.Outbound, exclude string) int {
	data, ok := b.encode(msg)
	if !ok {
		return 0
	}
	sent := 0
	for _, rcp := range b.registry.Recipients(exclude) {
		if b.push(rcp.ConnectionID, rcp.Entity, msg, data) {
			sent++
		}
	}
	return sent
}

// ToConnections sends msg to each listed connection that is still live.
func (b *Broadcaster) ToConnections(connectionIDs []string, msg protocol.Outbound) int {
	if len(connectionIDs) == 0 {
		return 0
	}
	data, ok := b.encode(msg)
	if !ok {
		return 0
	}
	sent := 0
	for _, id := range connectionIDs {
		entity, found := b.registry.Entity(id)
		if !found {
			continue
		}
		if b.push(id, entity, msg, data) {
			sent++
		}
	}
	return sent
}

// ToConnection sends msg to a single connection.
func (b *Broadcaster) ToConnection(connectionID string, msg protocol.Outbound) bool {
	return b.ToConnections([]string{connectionID}, msg) == 1
}

func (b *Broadcaster) encode(msg protocol.Outbound) ([]byte, bool) {
	data, err := protocol.Encode(msg)
	if err != nil {
		b.logger.Error("encoding outbound event",
			zap.String("event", msg.EventName()),
			zap.Error(err),
		)
		return nil, false
	}
	return data, true
}

func (b *Broadcaster) push(connectionID string, entity *presence.Entity, msg protocol.Outbound, data []byte) bool {
	err := entity.Push(data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, presence.ErrBufferFull):
		b.logger.Warn("evicting slow consumer",
			zap.String("connection_id", connectionID),
			zap.String("event", msg.EventName()),
		)
		b.evict(connectionID)
	case errors.Is(err, presence.ErrEntityClosed):
		// Removed or already evicted between Recipients and Push.
		b.logger.Debug("skipping closed entity",
			zap.String("connection_id", connectionID),
			zap.String("event", msg.EventName()),
		)
	default:
		b.logger.Warn("push to entity failed",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
	}
	return false
}
