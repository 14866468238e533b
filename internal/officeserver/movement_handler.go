package officeserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/protocol"
)

// MovementHandler records position updates and relays them to peers.
type MovementHandler struct {
	registry    *presence.Registry
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewMovementHandler creates a MovementHandler with the given dependencies.
//
// Precondition: all arguments must be non-nil.
func NewMovementHandler(registry *presence.Registry, broadcaster *Broadcaster, logger *zap.Logger) *MovementHandler {
	return &MovementHandler{registry: registry, broadcaster: broadcaster, logger: logger}
}

// OnMove stores pos as the position of connectionID and sends player-move to
// every other session. Coordinates are stored as received.
//
// Postcondition: Returns false when the connection has no session; nothing is
// changed or sent in that case.
func (h *MovementHandler) OnMove(connectionID string, pos presence.Position) bool {
	sess, ok := h.registry.UpdatePosition(connectionID, pos)
	if !ok {
		h.logger.Debug("dropping move for unknown session", zap.String("connection_id", connectionID))
		return false
	}
	h.broadcaster.ToAll(protocol.PlayerMove{SessionSummary: protocol.Summarize(sess)}, connectionID)
	return true
}
