// Package protocol defines the closed set of messages exchanged with clients
// over a connection. Every frame is a JSON envelope {"event", "data"}; inbound
// frames are decoded into a typed variant and validated before any handler
// sees them.
package protocol

import (
	"github.com/cory-johannsen/office/internal/presence"
)

// Client to server event names.
const (
	EventMove       = "move"
	EventEnterCabin = "enter-cabin"
	EventLeaveCabin = "leave-cabin"
)

// Server to client event names.
const (
	EventPlayerMove  = "player-move"
	EventPresence    = "presence"
	EventUserLeft    = "user-left"
	EventCabinJoined = "cabin-joined"
	EventCabinLeft   = "cabin-left"
	EventError       = "error"
)

// Inbound is implemented by every client to server message.
type Inbound interface {
	EventName() string
	inbound()
}

// Move reports the sender's new position.
type Move struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
	Z *float64 `json:"z" validate:"required"`
}

func (Move) EventName() string { return EventMove }
func (Move) inbound()          {}

// Position converts a validated Move into a registry position.
func (m Move) Position() presence.Position {
	return presence.Position{X: *m.X, Y: *m.Y, Z: *m.Z}
}

// EnterCabin asks to join a cabin channel.
type EnterCabin struct {
	Cabin string `validate:"required,max=64,printascii"`
}

func (EnterCabin) EventName() string { return EventEnterCabin }
func (EnterCabin) inbound()          {}

// LeaveCabin asks to leave a cabin channel.
type LeaveCabin struct {
	Cabin string `validate:"required,max=64,printascii"`
}

func (LeaveCabin) EventName() string { return EventLeaveCabin }
func (LeaveCabin) inbound()          {}

// Outbound is implemented by every server to client message.
type Outbound interface {
	EventName() string
	payload() any
}

// SessionSummary is the public view of one session.
type SessionSummary struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId"`
	DisplayName  string  `json:"displayName"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
}

// Summarize builds the public view of a session.
func Summarize(s presence.Session) SessionSummary {
	return SessionSummary{
		ConnectionID: s.ConnectionID,
		UserID:       s.Identity.UserID,
		DisplayName:  s.Identity.DisplayName,
		X:            s.Position.X,
		Y:            s.Position.Y,
		Z:            s.Position.Z,
	}
}

// PlayerMove tells peers that a session moved.
type PlayerMove struct {
	SessionSummary
}

func (PlayerMove) EventName() string { return EventPlayerMove }
func (m PlayerMove) payload() any    { return m.SessionSummary }

// Presence is the full ordered roster.
type Presence struct {
	Sessions []SessionSummary
}

func (Presence) EventName() string { return EventPresence }
func (p Presence) payload() any {
	if p.Sessions == nil {
		return []SessionSummary{}
	}
	return p.Sessions
}

// NewPresence builds a roster message from a registry snapshot.
func NewPresence(snapshot []presence.Session) Presence {
	out := make([]SessionSummary, 0, len(snapshot))
	for _, s := range snapshot {
		out = append(out, Summarize(s))
	}
	return Presence{Sessions: out}
}

// UserLeft tells peers that a connection went away. Its payload is the bare id.
type UserLeft struct {
	ConnectionID string
}

func (UserLeft) EventName() string { return EventUserLeft }
func (u UserLeft) payload() any    { return u.ConnectionID }

// CabinJoined tells cabin members that a connection entered.
type CabinJoined struct {
	CabinID      string `json:"cabinId"`
	ConnectionID string `json:"connectionId"`
}

func (CabinJoined) EventName() string { return EventCabinJoined }
func (c CabinJoined) payload() any    { return c }

// CabinLeft tells cabin members that a connection left.
type CabinLeft struct {
	CabinID      string `json:"cabinId"`
	ConnectionID string `json:"connectionId"`
}

func (CabinLeft) EventName() string { return EventCabinLeft }
func (c CabinLeft) payload() any    { return c }

// Error reports a rejected request to its sender only.
type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return EventError }
func (e Error) payload() any    { return e }
