package mqtt

import (
	"time"
)

// disconnectQueue is the process-wide bounded queue + single worker that
// serializes transport-originated disconnect notifications (Component H).
// A real disconnect callback runs on a thread (here, a goroutine) the core
// doesn't control and is handed nothing but the identity the transport was
// bound with; rather than re-enter client state directly from that unknown
// context, it only enqueues that identity, with a bounded timeout, and the
// single worker goroutine resolves it back to the owning Client through the
// handle registry (Component A) — the same recovery path the registry
// exists for — before firing the application callback under the client's
// own mutex.
type disconnectQueue struct {
	lib     *Library
	ch      chan *engineContext
	stopCh  chan struct{}
	done    chan struct{}
	timeout time.Duration
}

func newDisconnectQueue(lib *Library, capacity int) *disconnectQueue {
	return &disconnectQueue{
		lib:     lib,
		ch:      make(chan *engineContext, capacity),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		timeout: lib.tunables.DisconnectQueueTimeout,
	}
}

func (q *disconnectQueue) start() {
	go q.run()
}

func (q *disconnectQueue) stop() {
	close(q.stopCh)
	<-q.done
}

// notify is the transport disconnect callback binding: it enqueues ctx with
// a bounded timeout and drops the event (with a log) if the queue is full
// or the enqueue doesn't land within the timeout — the next transport
// operation on that client will surface the failure synchronously instead.
func (q *disconnectQueue) notify(ctx *engineContext) {
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.ch <- ctx:
	case <-timer.C:
		q.lib.tunables.Logger.Warn("disconnect event dropped: queue enqueue timed out")
	case <-q.stopCh:
	}
}

func (q *disconnectQueue) run() {
	defer close(q.done)
	for {
		select {
		case ctx := <-q.ch:
			q.deliver(ctx)
		case <-q.stopCh:
			return
		}
	}
}

// deliver implements §4.H's worker body: resolve ctx back to its owning
// Client through the handle registry, acquire that client's mutex, fire
// DISCONNECT{NETWORK_DOWN} if a session is still considered established,
// clear it, release. It never touches the transport — by the time a
// disconnect notification reaches here, the transport has already torn
// itself down on its own side. A nil resolution means the client was
// deleted between enqueue and delivery; per §4.A that can only happen after
// disconnect already joined the receive pump, so there is nothing left to
// notify.
func (q *disconnectQueue) deliver(ctx *engineContext) {
	c := q.lib.registry.resolve(ctx)
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.sessionEstablished {
		c.sessionEstablished = false
		c.connStatus.Store(false)
		c.fireEvent(Event{Kind: EventDisconnect, Reason: DisconnectNetworkDown})
	}
	c.mu.Unlock()
}
