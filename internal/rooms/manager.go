// Package rooms manages named cabin channels that connections join and leave
// for scoped broadcast, independent of global presence.
package rooms

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrUnknownRoom is returned when a catalog is configured and the room is not in it.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrRoomFull is returned when a catalogued room is at capacity.
	ErrRoomFull = errors.New("room is full")
)

// Manager tracks room membership in both directions.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // room → set of connection ids
	joined  map[string]map[string]bool // connection id → set of rooms
	catalog *Catalog
}

// NewManager creates an empty room Manager. A nil catalog allows any room name.
func NewManager(catalog *Catalog) *Manager {
	return &Manager{
		members: make(map[string]map[string]bool),
		joined:  make(map[string]map[string]bool),
		catalog: catalog,
	}
}

// Join adds connectionID to room.
//
// Precondition: connectionID and room must be non-empty.
// Postcondition: Returns true when the membership is new, false when it already
// existed. Returns ErrUnknownRoom or ErrRoomFull when the catalog rejects the join.
func (m *Manager) Join(connectionID, room string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[room][connectionID] {
		return false, nil
	}

	if m.catalog != nil {
		def, ok := m.catalog.Lookup(room)
		if !ok {
			return false, fmt.Errorf("joining %q: %w", room, ErrUnknownRoom)
		}
		if def.Capacity > 0 && len(m.members[room]) >= def.Capacity {
			return false, fmt.Errorf("joining %q: %w", room, ErrRoomFull)
		}
	}

	if m.members[room] == nil {
		m.members[room] = make(map[string]bool)
	}
	m.members[room][connectionID] = true
	if m.joined[connectionID] == nil {
		m.joined[connectionID] = make(map[string]bool)
	}
	m.joined[connectionID][room] = true
	return true, nil
}

// Leave removes connectionID from room.
//
// Postcondition: Returns true when a membership was removed; leaving a room
// never joined is a no-op returning false.
func (m *Manager) Leave(connectionID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connectionID, room)
}

func (m *Manager) leaveLocked(connectionID, room string) bool {
	set, ok := m.members[room]
	if !ok || !set[connectionID] {
		return false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(m.members, room)
	}
	if rooms, ok := m.joined[connectionID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.joined, connectionID)
		}
	}
	return true
}

// LeaveAll removes connectionID from every room it belongs to.
//
// Postcondition: Returns the sorted names of the rooms left; the connection
// has no memberships afterwards.
func (m *Manager) LeaveAll(connectionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	left := lo.Keys(m.joined[connectionID])
	for _, room := range left {
		m.leaveLocked(connectionID, room)
	}
	sort.Strings(left)
	return left
}

// Members returns the sorted connection ids currently in room.
func (m *Manager) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lo.Keys(m.members[room])
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the sorted rooms connectionID belongs to.
func (m *Manager) RoomsOf(connectionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := lo.Keys(m.joined[connectionID])
	sort.Strings(rooms)
	return rooms
}

// IsMember reports whether connectionID is in room.
func (m *Manager) IsMember(connectionID, room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[room][connectionID]
}

// RoomCount returns the number of rooms with at least one member.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}
