package presence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// ErrDuplicateRegistration is returned when a connection id is registered twice.
// The transport never reuses a live id, so this signals a programming error.
var ErrDuplicateRegistration = errors.New("connection already registered")

// Identity is who a connection authenticated as. It never changes for the
// lifetime of a session.
type Identity struct {
	UserID      string
	DisplayName string
}

// Position is an avatar location in world coordinates.
type Position struct {
	X float64
	Y float64
	Z float64
}

// Session is a point-in-time copy of one connection's presence state.
type Session struct {
	ConnectionID string
	Identity     Identity
	Position     Position
	JoinedAt     time.Time

	seq uint64
}

type entry struct {
	session Session
	entity  *Entity
}

// Registry tracks all live sessions keyed by connection id.
// All methods are safe for concurrent use; reads return copies so callers
// never observe a session mid-write.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	nextSeq    uint64
	bufferSize int
	now        func() time.Time
}

// NewRegistry creates an empty Registry whose entities buffer bufferSize frames.
func NewRegistry(bufferSize int) *Registry {
	return &Registry{
		sessions:   make(map[string]*entry),
		bufferSize: bufferSize,
		now:        time.Now,
	}
}

// Register creates a session at the origin for connectionID.
//
// Precondition: connectionID must be non-empty.
// Postcondition: Returns the new session, or ErrDuplicateRegistration if the id is live.
func (r *Registry) Register(connectionID string, identity Identity) (Session, error) {
	sess, _, err := r.RegisterWelcomed(connectionID, identity, nil)
	return sess, err
}

// RegisterWelcomed creates a session like Register, and when welcome is
// non-nil queues the frame it encodes on the new entity before the session
// is visible to Recipients. welcome receives the roster including the new
// session, ordered by registration; that roster is also returned.
//
// Precondition: connectionID must be non-empty. welcome must not call back
// into the registry.
// Postcondition: On success the welcome frame is the first frame on the new
// entity. On error nothing is registered.
func (r *Registry) RegisterWelcomed(connectionID string, identity Identity, welcome func(roster []Session) ([]byte, error)) (Session, []Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return Session{}, nil, fmt.Errorf("connection %q: %w", connectionID, ErrDuplicateRegistration)
	}

	e := &entry{
		session: Session{
			ConnectionID: connectionID,
			Identity:     identity,
			JoinedAt:     r.now(),
			seq:          r.nextSeq + 1,
		},
		entity: NewEntity(connectionID, r.bufferSize),
	}

	roster := append(r.snapshotLocked(), e.session)
	if welcome != nil {
		frame, err := welcome(roster)
		if err != nil {
			return Session{}, nil, fmt.Errorf("welcoming connection %q: %w", connectionID, err)
		}
		if err := e.entity.Push(frame); err != nil {
			return Session{}, nil, fmt.Errorf("welcoming connection %q: %w", connectionID, err)
		}
	}

	r.nextSeq++
	r.sessions[connectionID] = e
	return e.session, roster, nil
}

// Get returns a copy of the session for connectionID.
//
// Postcondition: Returns (session, true) if found, or (Session{}, false) otherwise.
func (r *Registry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// Entity returns the outbound entity for connectionID.
func (r *Registry) Entity(connectionID string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[connectionID]
	if !ok {
		return nil, false
	}
	return e.entity, true
}

// UpdatePosition overwrites the position of connectionID.
//
// Postcondition: Returns the updated session and true, or false when the
// session no longer exists (the update is then a no-op).
func (r *Registry) UpdatePosition(connectionID string, pos Position) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	e.session.Position = pos
	return e.session, true
}

// Remove deletes the session for connectionID and closes its entity.
//
// Postcondition: Returns the removed session and true the first time, and
// (Session{}, false) on every later call.
func (r *Registry) Remove(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connectionID)
	e.entity.Close()
	return e.session, true
}

// Snapshot returns a copy of every live session ordered by registration.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Session {
	out := lo.MapToSlice(r.sessions, func(_ string, e *entry) Session {
		return e.session
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Recipient pairs a connection id with its outbound entity.
type Recipient struct {
	ConnectionID string
	Entity       *Entity
}

// Recipients returns every live connection except exclude, ordered by registration.
// Pass an empty exclude to address everyone.
func (r *Registry) Recipients(exclude string) []Recipient {
	r.mu.RLock()
	type ranked struct {
		seq uint64
		rcp Recipient
	}
	list := make([]ranked, 0, len(r.sessions))
	for id, e := range r.sessions {
		if id == exclude {
			continue
		}
		list = append(list, ranked{seq: e.session.seq, rcp: Recipient{ConnectionID: id, Entity: e.entity}})
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return lo.Map(list, func(item ranked, _ int) Recipient { return item.rcp })
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
