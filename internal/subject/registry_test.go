package subject

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/evsync/internal/eventsync"
)

func TestRegistry_ConnectDisconnect(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsConnected("p1"))
	assert.True(t, r.Connect("p1"))
	assert.False(t, r.Connect("p1"), "second connect is a no-op")
	assert.True(t, r.IsConnected("p1"))

	assert.True(t, r.Disconnect("p1"))
	assert.False(t, r.Disconnect("p1"), "second disconnect is a no-op")
	assert.False(t, r.IsConnected("p1"))
}

func TestRegistry_ConnectedSorted(t *testing.T) {
	r := NewRegistry()
	r.Connect("p3")
	r.Connect("p1")
	r.Connect("p2")

	assert.Equal(t, []eventsync.SubjectID{"p1", "p2", "p3"}, r.Connected())
}

func TestRegistry_OnDisconnectHooks(t *testing.T) {
	r := NewRegistry()

	var got []eventsync.SubjectID
	r.OnDisconnect(func(id eventsync.SubjectID) { got = append(got, id) })
	r.OnDisconnect(nil)

	r.Connect("p1")
	r.Disconnect("p1")
	r.Disconnect("p2") // never connected

	assert.Equal(t, []eventsync.SubjectID{"p1"}, got)
}

func TestRegistry_HookMayUseRegistry(t *testing.T) {
	r := NewRegistry()
	r.Connect("p1")
	r.Connect("p2")

	var stillConnected []eventsync.SubjectID
	r.OnDisconnect(func(eventsync.SubjectID) { stillConnected = r.Connected() })

	r.Disconnect("p1")
	assert.Equal(t, []eventsync.SubjectID{"p2"}, stillConnected)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := eventsync.SubjectID(fmt.Sprintf("p%d", i))
			r.Connect(id)
			_ = r.IsConnected(id)
			if i%2 == 0 {
				r.Disconnect(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Connected(), 10)
}
