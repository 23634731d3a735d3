package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStorageAddGet(t *testing.T) {
	s := NewConnectionStorage()
	a, b := newFakeConn(), newFakeConn()

	_, err := s.Get(42)
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	s.Add(42, a)
	s.Add(42, b)
	s.Add(7, newFakeConn())

	conns, err := s.Get(42)
	require.NoError(t, err)
	assert.Len(t, conns, 2)
	assert.Same(t, a, conns[a.ID()])

	delete(conns, a.ID())
	assert.Equal(t, 2, s.SizeOf(42), "Get returns a copy")

	assert.True(t, s.Exists(42))
	assert.False(t, s.Exists(9))
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, 3, s.Connections())
}

func TestConnectionStorageRemove(t *testing.T) {
	var removed []ConnID
	s := NewConnectionStorage()
	s.OnRemove(func(_ UserID, c Connection) { removed = append(removed, c.ID()) })

	a, b, c := newFakeConn(), newFakeConn(), newFakeConn()
	s.Add(1, a)
	s.Add(1, b)
	s.Add(2, c)

	assert.True(t, s.RemoveConn(1, a.ID()))
	assert.False(t, s.RemoveConn(1, a.ID()))

	user, ok := s.RemoveConnection(b)
	assert.True(t, ok)
	assert.Equal(t, UserID(1), user)
	assert.False(t, s.Exists(1), "empty user entry is dropped")

	_, ok = s.RemoveConnection(b)
	assert.False(t, ok)

	assert.Equal(t, 1, s.Remove(2))
	assert.Equal(t, 0, s.Remove(2))

	assert.Equal(t, []ConnID{a.ID(), b.ID(), c.ID()}, removed, "hook fires once per connection")
	assert.Equal(t, 0, s.Connections())
}

func TestConnectionStorageForEach(t *testing.T) {
	s := NewConnectionStorage()
	a, b := newFakeConn(), newFakeConn()
	s.Add(42, a)
	s.Add(42, b)

	visited := 0
	s.ForEach(42, func(c Connection) {
		visited++
		s.RemoveConnection(c)
	}, func() {
		t.Fatal("user is online")
	})
	assert.Equal(t, 2, visited)
	assert.False(t, s.Exists(42))

	notFound := false
	s.ForEach(42, func(Connection) {
		t.Fatal("user is offline")
	}, func() {
		notFound = true
	})
	assert.True(t, notFound)
}

func TestDisconnectWithoutPong(t *testing.T) {
	s := NewConnectionStorage()
	quiet, answering, unprobed := newFakeConn(), newFakeConn(), newFakeConn()
	s.Add(1, quiet)
	s.Add(1, answering)
	s.Add(2, unprobed)

	s.MarkPongWait(quiet)
	s.MarkPongWait(answering)
	assert.True(t, s.AwaitingPong(quiet))
	s.MarkPongReceived(answering)
	assert.False(t, s.AwaitingPong(answering))

	assert.Equal(t, 1, s.DisconnectWithoutPong(CloseInactive, "no pong"))
	assert.Equal(t, 0, s.DisconnectWithoutPong(CloseInactive, "no pong"), "second sweep without probes evicts nothing")

	closed, code, reason := quiet.closeState()
	assert.True(t, closed)
	assert.Equal(t, CloseInactive, code)
	assert.Equal(t, "no pong", reason)

	assert.Equal(t, 1, s.SizeOf(1))
	assert.True(t, s.Exists(2))
	closed, _, _ = answering.closeState()
	assert.False(t, closed)
}

func TestMarkPongWaitIgnoresUnknownConnection(t *testing.T) {
	s := NewConnectionStorage()
	c := newFakeConn()

	s.MarkPongWait(c)
	assert.False(t, s.AwaitingPong(c))

	s.Add(1, c)
	s.MarkPongWait(c)
	s.RemoveConnection(c)
	assert.False(t, s.AwaitingPong(c), "removal clears pong wait")
}

func TestConnectionStorageClose(t *testing.T) {
	s := NewConnectionStorage()
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	s.Add(1, conns[0])
	s.Add(1, conns[1])
	s.Add(2, conns[2])

	assert.Equal(t, 3, s.Close(1001, "bye"))
	assert.Equal(t, 0, s.Size())
	for _, c := range conns {
		closed, code, _ := c.closeState()
		assert.True(t, closed)
		assert.Equal(t, 1001, code)
	}
}

func TestConnectionStorageConcurrent(t *testing.T) {
	s := NewConnectionStorage()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(user UserID) {
			defer wg.Done()
			c := newFakeConn()
			s.Add(user, c)
			s.MarkPongWait(c)
			s.Range(func(UserID, Connection) bool { return true })
			s.ForEach(user, func(Connection) {}, nil)
			if user%2 == 0 {
				s.RemoveConnection(c)
			}
		}(UserID(i % 10))
	}
	wg.Wait()

	assert.Equal(t, 25, s.Connections())
	assert.Equal(t, 25, s.DisconnectWithoutPong(CloseInactive, ""))
	assert.Equal(t, 0, s.Connections())
}
