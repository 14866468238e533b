// Package presence tracks the live sessions of connected clients and the
// position each one last reported.
package presence

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEntityClosed is returned when pushing to a closed entity.
	ErrEntityClosed = errors.New("entity closed")
	// ErrBufferFull is returned by the push that overflows an entity's queue.
	// The entity is closed by that push, so later pushes see ErrEntityClosed.
	ErrBufferFull = errors.New("entity event buffer full")
)

// CloseReason records why an entity stopped accepting frames.
type CloseReason int

const (
	// Open means the entity still accepts frames.
	Open CloseReason = iota
	// Removed means the session left the registry.
	Removed
	// Overflowed means a frame arrived while the queue was full.
	Overflowed
)

// String returns the reason as a log-friendly word.
func (r CloseReason) String() string {
	switch r {
	case Open:
		return "open"
	case Removed:
		return "removed"
	case Overflowed:
		return "overflowed"
	default:
		return fmt.Sprintf("CloseReason(%d)", int(r))
	}
}

// Entity is the outbound side of one session: a bounded FIFO of encoded
// frames drained by the connection's writer.
//
// A session that cannot keep up is not allowed to fall behind silently. The
// first frame that finds the queue full is dropped and the entity closes with
// reason Overflowed; the writer drains what was already queued and then ends
// the connection.
type Entity struct {
	connectionID string
	events       chan []byte

	mu        sync.Mutex
	reason    CloseReason
	delivered uint64
	dropped   uint64
}

// NewEntity creates an Entity for the given connection.
//
// Precondition: connectionID must be non-empty.
// Postcondition: Returns an open Entity.
func NewEntity(connectionID string, bufferSize int) *Entity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Entity{
		connectionID: connectionID,
		events:       make(chan []byte, bufferSize),
	}
}

// ConnectionID returns the connection this entity delivers to.
func (e *Entity) ConnectionID() string {
	return e.connectionID
}

// Push enqueues data without blocking.
//
// Postcondition: Data is enqueued and nil returned; or the queue was full, the
// frame is dropped, the entity is now Overflowed and ErrBufferFull is
// returned; or the entity was already closed and ErrEntityClosed is returned.
func (e *Entity) Push(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reason != Open {
		e.dropped++
		return fmt.Errorf("connection %s (%s): %w", e.connectionID, e.reason, ErrEntityClosed)
	}
	select {
	case e.events <- data:
		e.delivered++
		return nil
	default:
		e.dropped++
		e.closeLocked(Overflowed)
		return fmt.Errorf("connection %s: %w", e.connectionID, ErrBufferFull)
	}
}

// Events returns the read-only events channel. It is closed when the entity closes.
func (e *Entity) Events() <-chan []byte {
	return e.events
}

// Close marks the entity Removed unless it was already closed for another
// reason. Frames already queued remain readable.
//
// Postcondition: Further Push calls return ErrEntityClosed.
func (e *Entity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked(Removed)
}

func (e *Entity) closeLocked(reason CloseReason) {
	if e.reason != Open {
		return
	}
	e.reason = reason
	close(e.events)
}

// IsClosed reports whether the entity has been closed.
func (e *Entity) IsClosed() bool {
	return e.Reason() != Open
}

// Reason returns why the entity closed, or Open while it is live.
func (e *Entity) Reason() CloseReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// Stats returns how many frames were queued and how many were dropped.
func (e *Entity) Stats() (delivered, dropped uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered, e.dropped
}
