package mqtt

import (
	"fmt"
	"sync"
)

// handleRegistry is the process-wide table mapping protocol-engine contexts
// back to the Client that owns them (Component A). It exists so that the
// disconnect worker, which is only ever handed an engine context pointer,
// can recover the owning Client without threading an owner pointer through
// every call site.
//
// register/unregister run under registryMu; resolve does not take the lock
// at all. That is safe because the table is append-on-create and
// clear-on-delete, and delete is only legal once the client is fully
// disconnected and its receive pump has been joined — so no live upcall can
// be resolving a slot that is concurrently being cleared.
type handleRegistry struct {
	registryMu sync.Mutex
	slots      []registrySlot
}

type registrySlot struct {
	client *Client
	ctx    *engineContext
}

func newHandleRegistry(capacity int) *handleRegistry {
	return &handleRegistry{slots: make([]registrySlot, capacity)}
}

// register finds the first free slot, stores the pair, and returns the slot
// index. It fails with ErrCreateFail when the table is full.
func (r *handleRegistry) register(c *Client, ctx *engineContext) (int, error) {
	r.registryMu.Lock()
	defer r.registryMu.Unlock()

	for i := range r.slots {
		if r.slots[i].client == nil {
			r.slots[i] = registrySlot{client: c, ctx: ctx}
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: handle registry full (capacity %d)", ErrCreateFail, len(r.slots))
}

// unregister clears the slot at index. Index must have come from a prior
// successful register call on this registry.
func (r *handleRegistry) unregister(index int) {
	r.registryMu.Lock()
	defer r.registryMu.Unlock()
	r.slots[index] = registrySlot{}
}

// resolve recovers the Client owning ctx, or nil if none is registered
// (e.g. a stale upcall racing a delete that has since fully unwound — which
// cannot happen per the invariant above, but resolve stays defensive about
// it rather than panic).
func (r *handleRegistry) resolve(ctx *engineContext) *Client {
	for i := range r.slots {
		if r.slots[i].ctx == ctx {
			return r.slots[i].client
		}
	}
	return nil
}

// len reports how many slots are currently occupied; used only by tests.
func (r *handleRegistry) len() int {
	r.registryMu.Lock()
	defer r.registryMu.Unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].client != nil {
			n++
		}
	}
	return n
}
