package mqtt

import "time"

// pump is the receive pump worker of Component D: one goroutine per client,
// spawned on first successful CONNECT, that periodically drives the
// protocol engine's process loop while a session is established.
//
// The pump holds c.mu only while actually draining the process loop; it is
// released before the per-tick sleep, which is what makes "terminate then
// join" (the only cancellation primitive it supports, per §5) safe to call
// without deadlocking a caller that is not itself holding c.mu.
type pump struct {
	client *Client
	stop   chan struct{}
	done   chan struct{}
}

func newPump(c *Client) *pump {
	return &pump{client: c, stop: make(chan struct{}), done: make(chan struct{})}
}

func (p *pump) start() {
	go p.run()
}

// terminate forcefully signals the pump to exit and waits for it to return.
// The caller must not be holding c.mu: the pump may currently be blocked
// trying to acquire it, and terminate only unblocks that once the lock is
// released.
func (p *pump) terminate() {
	close(p.stop)
	<-p.done
}

func (p *pump) run() {
	defer close(p.done)
	c := p.client

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		c.mu.Lock()
		if c.sessionEstablished {
			status := c.processLoop()
			if status.isTerminal() {
				c.handleTerminalStatus(status)
			}
		}
		c.mu.Unlock()

		select {
		case <-p.stop:
			return
		case <-time.After(c.lib.tunables.ReceiveThreadSleep):
		}
	}
}

// handleTerminalStatus implements §4.D step 3. KeepAliveTimeout is a
// protocol-level judgment the pump makes on its own clock, so it clears the
// session and fires DISCONNECT{BROKER_DOWN} directly, in place, exactly as
// §4.D describes.
//
// RecvFailed and SendFailed mean the underlying connection itself broke.
// Rather than fire NETWORK_DOWN inline here too, those hand off to the
// disconnect event subsystem (Component H, disconnectqueue.go): the session
// is left established and the client handle is enqueued, so the clear+fire
// happens atomically from the queue worker under its own lock acquisition —
// the same separation of concerns §4.H gives a transport whose disconnect
// notification genuinely arrives on a different thread. BadResponse and
// IllegalState are malformed-protocol conditions, not wire failures; they
// end the session silently, surfacing only as ErrNotConnected on the next
// request, per §4.D/§4.E's literal text naming only KeepAliveTimeout and
// NETWORK_DOWN as event-producing terminal conditions. Caller must hold c.mu.
func (c *Client) handleTerminalStatus(status processStatus) {
	switch status {
	case statusKeepAliveTimeout:
		c.sessionEstablished = false
		c.connStatus.Store(false)
		c.fireEvent(Event{Kind: EventDisconnect, Reason: DisconnectBrokerDown})
	case statusRecvFailed, statusSendFailed:
		c.lib.disconnectQueue.notify(c.engine)
	default: // statusBadResponse, statusIllegalState
		c.sessionEstablished = false
		c.connStatus.Store(false)
	}
}
