package officeserver

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/protocol"
	"github.com/cory-johannsen/office/internal/rooms"
)

// CabinHandler handles enter-cabin and leave-cabin requests.
type CabinHandler struct {
	registry    *presence.Registry
	rooms       *rooms.Manager
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewCabinHandler creates a CabinHandler with the given dependencies.
//
// Precondition: all arguments must be non-nil.
func NewCabinHandler(registry *presence.Registry, roomMgr *rooms.Manager, broadcaster *Broadcaster, logger *zap.Logger) *CabinHandler {
	return &CabinHandler{
		registry:    registry,
		rooms:       roomMgr,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Enter joins connectionID to cabin. Existing members are told with
// cabin-joined; a rejected join sends an error event to the requester.
//
// Postcondition: Returns nil on success, on a repeat join, or for an unknown
// session. Returns a wrapped rooms error when the join is refused.
func (h *CabinHandler) Enter(connectionID, cabin string) error {
	if _, ok := h.registry.Get(connectionID); !ok {
		h.logger.Debug("dropping enter-cabin for unknown session", zap.String("connection_id", connectionID))
		return nil
	}

	added, err := h.rooms.Join(connectionID, cabin)
	if err != nil {
		h.broadcaster.ToConnection(connectionID, protocol.Error{Message: err.Error()})
		return fmt.Errorf("entering cabin: %w", err)
	}
	if !added {
		return nil
	}

	h.logger.Debug("entered cabin",
		zap.String("connection_id", connectionID),
		zap.String("cabin", cabin),
	)
	h.broadcaster.ToConnections(h.others(cabin, connectionID), protocol.CabinJoined{
		CabinID:      cabin,
		ConnectionID: connectionID,
	})
	return nil
}

// Leave removes connectionID from cabin and tells the remaining members.
// Leaving a cabin never joined is a no-op.
func (h *CabinHandler) Leave(connectionID, cabin string) {
	if !h.rooms.Leave(connectionID, cabin) {
		return
	}
	h.logger.Debug("left cabin",
		zap.String("connection_id", connectionID),
		zap.String("cabin", cabin),
	)
	h.broadcaster.ToConnections(h.rooms.Members(cabin), protocol.CabinLeft{
		CabinID:      cabin,
		ConnectionID: connectionID,
	})
}

func (h *CabinHandler) others(cabin, exclude string) []string {
	return lo.Without(h.rooms.Members(cabin), exclude)
}
