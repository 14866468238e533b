package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/office/internal/presence"
)

func TestDecode_Move(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"move","data":{"x":1,"y":0,"z":2.5}}`))
	require.NoError(t, err)

	move, ok := msg.(Move)
	require.True(t, ok)
	assert.Equal(t, presence.Position{X: 1, Y: 0, Z: 2.5}, move.Position())
}

func TestDecode_MoveMissingCoordinate(t *testing.T) {
	_, err := Decode([]byte(`{"event":"move","data":{"x":1,"y":0}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_MoveWrongType(t *testing.T) {
	_, err := Decode([]byte(`{"event":"move","data":{"x":"far","y":0,"z":0}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_MoveMissingData(t *testing.T) {
	_, err := Decode([]byte(`{"event":"move"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_Cabins(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"enter-cabin","data":"focus-1"}`))
	require.NoError(t, err)
	assert.Equal(t, EnterCabin{Cabin: "focus-1"}, msg)

	msg, err = Decode([]byte(`{"event":"leave-cabin","data":"focus-1"}`))
	require.NoError(t, err)
	assert.Equal(t, LeaveCabin{Cabin: "focus-1"}, msg)
}

func TestDecode_CabinValidation(t *testing.T) {
	cases := map[string]string{
		"empty":     `{"event":"enter-cabin","data":""}`,
		"too long":  `{"event":"enter-cabin","data":"` + strings.Repeat("a", 65) + `"}`,
		"not ascii": `{"event":"leave-cabin","data":"café"}`,
		"object":    `{"event":"enter-cabin","data":{"id":"a"}}`,
	}
	for name, frame := range cases {
		_, err := Decode([]byte(frame))
		assert.ErrorIs(t, err, ErrInvalidPayload, name)
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"teleport","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	// Server-bound names only: a client cannot inject outbound events.
	_, err = Decode([]byte(`{"event":"user-left","data":"someone"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Decode([]byte(`{"data":1}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncode_PlayerMove(t *testing.T) {
	frame, err := Encode(PlayerMove{SessionSummary{ConnectionID: "A", UserID: "u1", DisplayName: "Alice", X: 1, Y: 0, Z: 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"player-move","data":{"connectionId":"A","userId":"u1","displayName":"Alice","x":1,"y":0,"z":2}}`, string(frame))
}

func TestEncode_UserLeft(t *testing.T) {
	frame, err := Encode(UserLeft{ConnectionID: "A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user-left","data":"A"}`, string(frame))
}

func TestEncode_EmptyPresenceIsArray(t *testing.T) {
	frame, err := Encode(NewPresence(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"presence","data":[]}`, string(frame))
}

func TestNewPresence_PreservesOrder(t *testing.T) {
	snap := []presence.Session{
		{ConnectionID: "b", Identity: presence.Identity{UserID: "u2", DisplayName: "Bob"}, JoinedAt: time.Now()},
		{ConnectionID: "a", Identity: presence.Identity{UserID: "u1", DisplayName: "Alice"}, Position: presence.Position{X: 3}},
	}
	p := NewPresence(snap)
	require.Len(t, p.Sessions, 2)
	assert.Equal(t, "b", p.Sessions[0].ConnectionID)
	assert.Equal(t, "a", p.Sessions[1].ConnectionID)
	assert.Equal(t, 3.0, p.Sessions[1].X)
}

func TestEncode_CabinAndError(t *testing.T) {
	frame, err := Encode(CabinJoined{CabinID: "focus", ConnectionID: "A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"cabin-joined","data":{"cabinId":"focus","connectionId":"A"}}`, string(frame))

	frame, err = Encode(Error{Message: "unknown room"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"unknown room"}}`, string(frame))
}

func TestEncodeInbound_DecodesBack(t *testing.T) {
	frame, err := EncodeInbound(EnterCabin{Cabin: "focus"})
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EventEnterCabin, env.Event)
	assert.JSONEq(t, `"focus"`, string(env.Data))
}

func TestPropertyMoveFramesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-1e9, 1e9).Draw(t, "x")
		y := rapid.Float64Range(-1e9, 1e9).Draw(t, "y")
		z := rapid.Float64Range(-1e9, 1e9).Draw(t, "z")

		frame, err := EncodeInbound(NewMove(x, y, z))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		msg, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got := msg.(Move).Position()
		if got != (presence.Position{X: x, Y: y, Z: z}) {
			t.Fatalf("position changed in transit: %+v", got)
		}
	})
}

func TestPropertyDecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frame := rapid.SliceOf(rapid.Byte()).Draw(t, "frame")
		_, _ = Decode(frame)
	})
}
