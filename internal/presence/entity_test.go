package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntity_Push(t *testing.T) {
	e := NewEntity("c1", 4)
	require.NoError(t, e.Push([]byte("hello")))

	data := <-e.Events()
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "c1", e.ConnectionID())
}

func TestEntity_PushClosed(t *testing.T) {
	e := NewEntity("c1", 4)
	e.Close()
	assert.True(t, e.IsClosed())
	assert.Equal(t, Removed, e.Reason())
	assert.ErrorIs(t, e.Push([]byte("fail")), ErrEntityClosed)

	delivered, dropped := e.Stats()
	assert.Equal(t, uint64(0), delivered)
	assert.Equal(t, uint64(1), dropped)
}

func TestEntity_PushFull(t *testing.T) {
	e := NewEntity("c1", 1)
	require.NoError(t, e.Push([]byte("first")))
	assert.Equal(t, Open, e.Reason())

	assert.ErrorIs(t, e.Push([]byte("overflow")), ErrBufferFull)
	assert.Equal(t, Overflowed, e.Reason(), "the overflowing push closes the entity")
	assert.ErrorIs(t, e.Push([]byte("late")), ErrEntityClosed, "only the first overflow reports ErrBufferFull")

	delivered, dropped := e.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(2), dropped)
}

func TestEntity_OverflowKeepsQueuedFrames(t *testing.T) {
	e := NewEntity("c1", 2)
	require.NoError(t, e.Push([]byte("a")))
	require.NoError(t, e.Push([]byte("b")))
	require.ErrorIs(t, e.Push([]byte("c")), ErrBufferFull)

	var got []string
	for data := range e.Events() {
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"a", "b"}, got, "the writer drains the backlog and then sees the channel close")
}

func TestEntity_CloseKeepsFirstReason(t *testing.T) {
	e := NewEntity("c1", 1)
	require.NoError(t, e.Push([]byte("first")))
	require.ErrorIs(t, e.Push([]byte("overflow")), ErrBufferFull)

	e.Close()
	assert.Equal(t, Overflowed, e.Reason())
}

func TestEntity_CloseIdempotent(t *testing.T) {
	e := NewEntity("c1", 4)
	e.Close()
	e.Close()
	assert.True(t, e.IsClosed())
	assert.Equal(t, Removed, e.Reason())
}

func TestCloseReason_String(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "overflowed", Overflowed.String())
	assert.Equal(t, "CloseReason(9)", CloseReason(9).String())
}

func TestEntity_QueuedFramesSurviveClose(t *testing.T) {
	e := NewEntity("c1", 4)
	require.NoError(t, e.Push([]byte("a")))
	require.NoError(t, e.Push([]byte("b")))
	e.Close()

	var got []string
	for data := range e.Events() {
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEntity_DefaultBuffer(t *testing.T) {
	e := NewEntity("c1", 0)
	assert.Equal(t, 64, cap(e.events))
}
