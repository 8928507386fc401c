package mqtt

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cypresssemiconductorco/mqtt/internal/wire"
)

// engineContext is the identity token the handle registry resolves upcalls
// against (Component A), and the home for the small bits of protocol-engine
// state that don't belong to the session-lifecycle fields on Client: packet
// id allocation and the publish-resend cursor. Kept distinct from Client so
// the registry's "resolve by context identity" contract (§4.A) is exercised
// by an object that is not also the thing being resolved to.
type engineContext struct {
	nextPacketID atomic.Uint32
	resendCursor int
}

func newEngineContext() *engineContext {
	e := &engineContext{}
	e.nextPacketID.Store(1)
	return e
}

// allocatePacketID returns the next packet id, wrapping from 65535 back to
// 1 and never returning 0 — 0 is reserved to mean "no packet id" throughout
// this package, matching get_packet_id's contract.
func (e *engineContext) allocatePacketID() uint16 {
	for {
		v := e.nextPacketID.Add(1) - 1
		id := uint16(v)
		if id != 0 {
			return id
		}
		// v wrapped to a multiple of 65536; skip the 0 value and retry.
	}
}

// processStatus is the result of one process-loop iteration (§6 codec
// contract: process_loop(ctx, timeout_ms) -> status).
type processStatus int

const (
	statusNoData processStatus = iota
	statusOK
	statusRecvFailed
	statusSendFailed
	statusBadResponse
	statusKeepAliveTimeout
	statusIllegalState
)

// isTerminal reports whether the receive pump must treat status as fatal
// for the session, per §4.D step 3.
func (s processStatus) isTerminal() bool {
	switch s {
	case statusRecvFailed, statusSendFailed, statusBadResponse, statusKeepAliveTimeout, statusIllegalState:
		return true
	default:
		return false
	}
}

// processLoop attempts exactly one frame: it reads and dispatches at most
// one incoming MQTT control packet, and separately checks for keep-alive
// expiry. It never blocks waiting for data to arrive beyond the transport
// adapter's bounded re-read (Component C) — if nothing is available it
// returns statusNoData immediately, which is what makes it safe to call
// from the receive pump's 100ms tick as well as from the request path's
// inner ACK-wait loop. Caller must hold c.mu.
func (c *Client) processLoop() processStatus {
	if !c.lastActivity.IsZero() && c.keepAlive > 0 {
		if time.Since(c.lastActivity) > c.keepAlive+c.keepAlive/2 {
			return statusKeepAliveTimeout
		}
	}

	pkt, status := c.tryReadFrame()
	if status != statusOK {
		return status
	}

	c.packetsReceived.Add(1)
	c.lastActivity = time.Now()
	return c.dispatch(pkt)
}

// tryReadFrame peeks for a fixed-header byte and, if one is available,
// reads the rest of the frame and decodes it with the wire codec. Returns
// statusNoData if nothing was waiting.
func (c *Client) tryReadFrame() (wire.Packet, processStatus) {
	var first [1]byte
	n, err := c.conn.recv(first[:])
	if err != nil {
		c.logger.Debug("transport recv failed", "error", err)
		return nil, statusRecvFailed
	}
	if n == 0 {
		return nil, statusNoData
	}

	header, rest, err := c.readRemainingLength(first[0])
	if err != nil {
		c.logger.Debug("failed reading fixed header", "error", err)
		return nil, statusBadResponse
	}

	body := make([]byte, header.remainingLength)
	if header.remainingLength > 0 {
		if err := c.recvFull(body); err != nil {
			c.logger.Debug("failed reading packet body", "error", err)
			return nil, statusRecvFailed
		}
	}

	full := bytes.NewBuffer(nil)
	full.Write(append([]byte{first[0]}, rest...))
	full.Write(body)

	pkt, err := wire.ReadPacket(full, mqttProtocolLevel, 0)
	if err != nil {
		c.logger.Debug("failed decoding packet", "error", err)
		return nil, statusBadResponse
	}
	return pkt, statusOK
}

// fixedHeaderInfo is the minimal parse of a frame's fixed header: the
// remaining length decoded from the varint bytes after the first byte.
type fixedHeaderInfo struct {
	remainingLength int
}

// readRemainingLength reads the variable-length-encoded remaining-length
// field that follows the packet-type/flags byte, one byte at a time, via
// the bounded re-read adapter.
func (c *Client) readRemainingLength(firstByte byte) (fixedHeaderInfo, []byte, error) {
	var consumed []byte
	value := 0
	multiplier := 1
	for i := 0; i < 4; i++ {
		var b [1]byte
		if err := c.recvFull(b[:]); err != nil {
			return fixedHeaderInfo{}, consumed, err
		}
		consumed = append(consumed, b[0])
		value += int(b[0]&0x7f) * multiplier
		if b[0]&0x80 == 0 {
			return fixedHeaderInfo{remainingLength: value}, consumed, nil
		}
		multiplier *= 128
	}
	return fixedHeaderInfo{}, consumed, fmt.Errorf("malformed remaining length")
}

// recvFull reads len(buf) bytes using the transport adapter's bounded
// re-read, treating a short, budget-exhausted read as a hard failure: once
// the fixed header's first byte is in hand, the rest of the frame is
// expected to follow within the message-receive budget.
func (c *Client) recvFull(buf []byte) error {
	total := 0
	deadline := time.Now().Add(c.conn.messageRecvTO)
	for total < len(buf) {
		n, err := c.conn.recv(buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			if time.Now().Before(deadline) {
				continue
			}
			return fmt.Errorf("short read: got %d of %d bytes", total, len(buf))
		}
		total += n
		deadline = time.Now().Add(c.conn.messageRecvTO) // progress resets the budget
	}
	return nil
}

const mqttProtocolLevel = 4 // MQTT v3.1.1

// encodePacket serializes pkt through the wire codec's WriteTo contract
// into a plain byte slice ready for transportConn.send.
func encodePacket(pkt wire.Packet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := pkt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
