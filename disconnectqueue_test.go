package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisconnectQueueNotifyDeliverRoundTrip(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)

	done := make(chan Event, 1)
	c.eventCB = func(_ *Client, ev Event) { done <- ev }

	lib.disconnectQueue.notify(c.engine)

	select {
	case ev := <-done:
		assert.Equal(t, EventDisconnect, ev.Kind)
		assert.Equal(t, DisconnectNetworkDown, ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected the queue worker to deliver the disconnect event")
	}
	assert.False(t, c.IsConnected())
}

func TestDisconnectQueueDeliverIgnoresUnresolvedContext(t *testing.T) {
	lib := newTestLibrary(t)
	assert.NotPanics(t, func() { lib.disconnectQueue.deliver(newEngineContext()) })
}

func TestDisconnectQueueDeliverNoopWhenSessionAlreadyCleared(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)
	c.sessionEstablished = false

	fired := false
	c.eventCB = func(*Client, Event) { fired = true }

	lib.disconnectQueue.deliver(c.engine)
	assert.False(t, fired)
}

// TestDisconnectQueueNotifyDropsWhenFullAndUndrained covers the "dropped
// with a log" branch of notify: a queue whose single slot is already taken
// and whose worker isn't draining it must give up after its timeout rather
// than block the caller forever.
func TestDisconnectQueueNotifyDropsWhenFullAndUndrained(t *testing.T) {
	l := &Library{tunables: DefaultTunables()}
	l.tunables.DisconnectQueueTimeout = 20 * time.Millisecond
	l.registry = newHandleRegistry(1)
	q := newDisconnectQueue(l, 1)
	q.ch <- newEngineContext()

	start := time.Now()
	q.notify(newEngineContext())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}
