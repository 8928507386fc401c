package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/cypresssemiconductorco/mqtt/internal/wire"
)

// validateConnectInfo performs the argument validation §7 requires before
// any network I/O: reject malformed input, mutate nothing.
func validateConnectInfo(info ConnectInfo) error {
	if info.Will != nil {
		if info.Will.Topic == "" {
			return fmt.Errorf("%w: will topic cannot be empty", ErrBadArg)
		}
		if info.Will.QoS < QoS0 || info.Will.QoS > QoS2 {
			return fmt.Errorf("%w: will QoS must be 0, 1, or 2", ErrBadArg)
		}
	}
	if info.KeepAlive < 0 || info.KeepAlive/time.Second > 65535 {
		return fmt.Errorf("%w: keep-alive out of range for a 16-bit seconds field", ErrBadArg)
	}
	return nil
}

// Connect implements §4.F: dial the broker (TCP/TLS/WebSocket, with bounded
// backoff handled by dialBroker), send CONNECT, and on success establish
// the session — spawning the receive pump on first connect and resending
// any stashed unacked PUBLISHes when the broker reports a resumed session.
func (c *Client) Connect(ctx context.Context, info ConnectInfo) error {
	if !c.initialized {
		return ErrObjNotInitialized
	}
	if c.connStatus.Load() {
		return fmt.Errorf("%w: client is already connected", ErrConnectFail)
	}
	if err := validateConnectInfo(info); err != nil {
		return err
	}

	clientID := info.ClientID
	if clientID == "" {
		clientID = defaultClientID()
	}

	raw, err := dialBroker(ctx, c.broker, c.lib.tunables)
	if err != nil {
		return err
	}

	conn := newTransportConn(raw, c.lib.tunables, &c.bytesSent, &c.bytesReceived)

	c.mu.Lock()
	c.conn = conn

	if err := c.sendConnectPacket(info, clientID); err != nil {
		c.mu.Unlock()
		raw.Close()
		return fmt.Errorf("%w: %v", ErrConnectFail, err)
	}

	ack, err := c.readConnack(time.Now().Add(c.lib.tunables.ConnackRecvTimeout))
	if err != nil {
		c.mu.Unlock()
		raw.Close()
		return fmt.Errorf("%w: %v", ErrConnectFail, err)
	}
	if ack.ReturnCode != wire.ConnAccepted {
		c.mu.Unlock()
		raw.Close()
		return &ProtocolError{Kind: ErrConnectFail, Reason: ConnectRefusedReason(ack.ReturnCode)}
	}

	isReconnect := c.connectedClientID != ""

	c.brokerSessionPresent = ack.SessionPresent
	c.sessionEstablished = true
	c.keepAlive = info.KeepAlive
	c.lastActivity = time.Now()
	c.connectedClientID = clientID

	// A pump is still running here if the previous session ended through a
	// keep-alive timeout or a network-down notification rather than
	// Disconnect; it resumes driving the process loop now that
	// sessionEstablished is set, so it is reused instead of spawning another.
	if c.recvPump == nil {
		c.recvPump = newPump(c)
		c.recvPump.start()
	}
	if isReconnect {
		c.reconnectCount.Add(1)
	}

	var resendErr error
	if ack.SessionPresent && !info.CleanSession {
		resendErr = c.resendUnacked()
	} else {
		c.clearOutgoing()
	}

	if resendErr != nil {
		c.sessionEstablished = false
		pendingPump := c.recvPump
		c.recvPump = nil
		c.mu.Unlock()

		pendingPump.terminate()

		c.mu.Lock()
		c.codecDisconnectBestEffort()
		c.mu.Unlock()
		raw.Close()
		return resendErr
	}

	c.connStatus.Store(true)
	c.mu.Unlock()
	return nil
}

// sendConnectPacket builds and sends the CONNECT packet for info. Caller
// must hold c.mu and have already assigned c.conn.
func (c *Client) sendConnectPacket(info ConnectInfo, clientID string) error {
	pkt := &wire.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: mqttProtocolLevel,
		CleanSession:  info.CleanSession,
		KeepAlive:     uint16(info.KeepAlive / time.Second),
		ClientID:      clientID,
	}

	creds := info.Credentials
	if creds == nil {
		creds = c.creds
	}
	if creds != nil && creds.Username != "" {
		pkt.UsernameFlag = true
		pkt.Username = creds.Username
		if creds.Password != "" {
			pkt.PasswordFlag = true
			pkt.Password = creds.Password
		}
	}

	if info.Will != nil {
		pkt.WillFlag = true
		pkt.WillQoS = uint8(info.Will.QoS)
		pkt.WillRetain = info.Will.Retain
		pkt.WillTopic = info.Will.Topic
		pkt.WillMessage = info.Will.Payload
	}

	buf, err := encodePacket(pkt)
	if err != nil {
		return err
	}
	if err := c.conn.send(buf); err != nil {
		return err
	}
	c.packetsSent.Add(1)
	return nil
}

// readConnack blocks, polling the transport adapter's bounded re-read, until
// a CONNACK arrives or deadline passes. Anything else arriving first is
// logged and skipped: a compliant v3.1.1 broker sends nothing before
// CONNACK. Caller must hold c.mu.
func (c *Client) readConnack(deadline time.Time) (*wire.ConnackPacket, error) {
	for {
		pkt, status := c.tryReadFrame()
		switch status {
		case statusOK:
			if ack, ok := pkt.(*wire.ConnackPacket); ok {
				return ack, nil
			}
			c.logger.Debug("unexpected packet while awaiting CONNACK", "type", wire.PacketNames[pkt.Type()])
		case statusNoData:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timed out waiting for CONNACK")
			}
			time.Sleep(c.lib.tunables.SocketReceiveTimeout)
		default:
			return nil, fmt.Errorf("transport error waiting for CONNACK")
		}
	}
}

// resendUnacked drives the publish-resend cursor (engineContext.resendCursor
// walking c.outgoing in slot order, which is original-send order since
// Publish always claims the lowest free slot) and retransmits each stashed
// PUBLISH with dup=1 and its original packet id. Caller must hold c.mu.
func (c *Client) resendUnacked() error {
	c.engine.resendCursor = 0
	for {
		id := c.nextResendID()
		if id == 0 {
			return nil
		}
		idx := c.findOutgoingSlot(id)
		if idx < 0 {
			return fmt.Errorf("%w: resend cursor returned unknown packet id %d", ErrPublishFail, id)
		}

		slot := &c.outgoing[idx]
		slot.dup = true
		pkt := &wire.PublishPacket{
			Dup:      true,
			QoS:      uint8(slot.info.QoS),
			Retain:   slot.info.Retain,
			Topic:    slot.info.Topic,
			PacketID: id,
			Payload:  slot.info.Payload,
			Version:  mqttProtocolLevel,
		}
		buf, err := encodePacket(pkt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFail, err)
		}
		if err := c.conn.send(buf); err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFail, err)
		}
		c.packetsSent.Add(1)
	}
}

func (c *Client) nextResendID() uint16 {
	for c.engine.resendCursor < len(c.outgoing) {
		id := c.outgoing[c.engine.resendCursor].packetID
		c.engine.resendCursor++
		if id != 0 {
			return id
		}
	}
	return 0
}

func (c *Client) findOutgoingSlot(id uint16) int {
	for i := range c.outgoing {
		if c.outgoing[i].packetID == id {
			return i
		}
	}
	return -1
}

func (c *Client) findFreeOutgoingSlot() int {
	for i := range c.outgoing {
		if c.outgoing[i].packetID == 0 {
			return i
		}
	}
	return -1
}

func (c *Client) clearOutgoing() {
	for i := range c.outgoing {
		c.outgoing[i] = outgoingPublish{}
	}
}

// codecDisconnectBestEffort sends an MQTT DISCONNECT and ignores any error —
// per §4.F/§4.H, transport errors during teardown are logged and swallowed.
// Caller must hold c.mu and c.conn must be non-nil.
func (c *Client) codecDisconnectBestEffort() {
	buf, err := encodePacket(&wire.DisconnectPacket{Version: mqttProtocolLevel})
	if err != nil {
		c.logger.Debug("failed to encode DISCONNECT", "error", err)
		return
	}
	if err := c.conn.send(buf); err != nil {
		c.logger.Debug("failed to send DISCONNECT", "error", err)
	}
}

// Disconnect implements §4.F's teardown sequence. §9's Open Questions flags
// that the source acquires its single lock before validating preconditions
// and can return with it still held on failure; this implementation instead
// releases on every exit path, and additionally releases the lock before
// terminating the receive pump — terminate+join needs the pump to observe
// the stop signal, which it can only do once it acquires c.mu itself, so
// holding c.mu across terminate() here would deadlock against the pump.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrObjNotInitialized
	}
	if !c.connStatus.Load() {
		c.mu.Unlock()
		return ErrNotConnected
	}

	p := c.recvPump
	c.recvPump = nil
	c.mu.Unlock()

	if p != nil {
		p.terminate()
	}

	c.mu.Lock()
	c.codecDisconnectBestEffort()
	c.sessionEstablished = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.close()
	}
	c.connStatus.Store(false)
	return nil
}
