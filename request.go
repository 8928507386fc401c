package mqtt

import (
	"fmt"
	"time"

	"github.com/cypresssemiconductorco/mqtt/internal/wire"
)

// Publish implements Component G's publish operation: a QoS 0 send is
// fire-and-forget; a QoS 1/2 send claims a slot in the outgoing-PUBLISH
// store and retries send+ACK-wait up to Tunables.MaxRetryValue times,
// setting dup on every retry. The ACK wait cooperatively drives the same
// process loop the receive pump uses, which is why Publish excludes the
// pump for its duration (§5).
func (c *Client) Publish(info PublishInfo) error {
	if !c.initialized {
		return ErrObjNotInitialized
	}
	if err := validatePublishTopic(info.Topic); err != nil {
		return err
	}
	if err := validatePayload(info.Payload); err != nil {
		return err
	}
	if info.QoS < QoS0 || info.QoS > QoS2 {
		return fmt.Errorf("%w: publish QoS must be 0, 1, or 2", ErrBadArg)
	}
	if !c.connStatus.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sessionEstablished {
		return ErrNotConnected
	}

	if info.QoS == QoS0 {
		pkt := &wire.PublishPacket{
			Topic:   info.Topic,
			Payload: info.Payload,
			QoS:     uint8(QoS0),
			Retain:  info.Retain,
			Version: mqttProtocolLevel,
		}
		buf, err := encodePacket(pkt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFail, err)
		}
		if err := c.conn.send(buf); err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFail, err)
		}
		c.packetsSent.Add(1)
		return nil
	}

	slotIdx := c.findFreeOutgoingSlot()
	if slotIdx < 0 {
		return fmt.Errorf("%w: outgoing publish store is full", ErrPublishFail)
	}

	packetID := c.engine.allocatePacketID()
	c.outgoing[slotIdx] = outgoingPublish{packetID: packetID, info: info}
	c.pubAck = pubAckRendezvous{packetID: packetID}

	dup := false
	var lastErr error
	for attempt := 0; attempt <= c.lib.tunables.MaxRetryValue; attempt++ {
		pkt := &wire.PublishPacket{
			Dup:      dup,
			QoS:      uint8(info.QoS),
			Retain:   info.Retain,
			Topic:    info.Topic,
			PacketID: packetID,
			Payload:  info.Payload,
			Version:  mqttProtocolLevel,
		}
		buf, err := encodePacket(pkt)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrPublishFail, err)
			break
		}
		if err := c.conn.send(buf); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrPublishFail, err)
			break
		}
		c.packetsSent.Add(1)

		if c.waitForAck(func() bool { return c.pubAck.acked && c.pubAck.packetID == packetID }) {
			lastErr = nil
			break
		}
		lastErr = fmt.Errorf("%w: timed out waiting for ack of packet %d", ErrPublishFail, packetID)
		dup = true
		c.outgoing[slotIdx].dup = true
	}

	if lastErr != nil {
		c.outgoing[slotIdx] = outgoingPublish{}
	}
	return lastErr
}

// Subscribe implements Component G's subscribe operation across up to
// Tunables.MaxOutgoingSubscribes topic filters, one SUBSCRIBE packet and
// rendezvous per attempt. AllocatedQoS is only meaningful on entries after a
// nil return.
func (c *Client) Subscribe(entries []SubscribeEntry) error {
	if !c.initialized {
		return ErrObjNotInitialized
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: subscribe requires at least one topic filter", ErrBadArg)
	}
	if len(entries) > c.lib.tunables.MaxOutgoingSubscribes {
		return fmt.Errorf("%w: subscribe count %d exceeds maximum %d", ErrBadArg, len(entries), c.lib.tunables.MaxOutgoingSubscribes)
	}

	topics := make([]string, len(entries))
	qos := make([]uint8, len(entries))
	for i, e := range entries {
		if err := validateSubscribeFilter(e.Topic); err != nil {
			return err
		}
		if e.QoS < QoS0 || e.QoS > QoS2 {
			return fmt.Errorf("%w: subscribe QoS must be 0, 1, or 2", ErrSubscribeFail)
		}
		topics[i] = e.Topic
		qos[i] = uint8(e.QoS)
	}

	if !c.connStatus.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sessionEstablished {
		return ErrNotConnected
	}

	var lastErr error
	for attempt := 0; attempt <= c.lib.tunables.MaxRetryValue; attempt++ {
		for i := range c.subAck {
			c.subAck[i] = QoSInvalid
		}
		c.subAckFailed = false
		c.numSubsInReq = len(entries)
		c.sentPacketID = c.engine.allocatePacketID()

		pkt := &wire.SubscribePacket{PacketID: c.sentPacketID, Topics: topics, QoS: qos, Version: mqttProtocolLevel}
		buf, err := encodePacket(pkt)
		if err != nil {
			c.numSubsInReq = 0
			return fmt.Errorf("%w: %v", ErrSubscribeFail, err)
		}
		if err := c.conn.send(buf); err != nil {
			c.numSubsInReq = 0
			return fmt.Errorf("%w: %v", ErrSubscribeFail, err)
		}
		c.packetsSent.Add(1)

		if !c.waitForAck(func() bool { return c.numSubsInReq == 0 }) {
			lastErr = fmt.Errorf("%w: timed out waiting for SUBACK", ErrSubscribeFail)
			c.numSubsInReq = 0
			continue
		}

		if c.subAckFailed {
			return &ProtocolError{Kind: ErrMQTTError, Detail: "SUBACK status count mismatch"}
		}

		anySucceeded := false
		for i := range entries {
			entries[i].AllocatedQoS = c.subAck[i]
			if c.subAck[i] != QoSInvalid {
				anySucceeded = true
			}
		}
		if !anySucceeded {
			return fmt.Errorf("%w: broker refused all topic filters", ErrSubscribeFail)
		}
		return nil
	}
	return lastErr
}

// Unsubscribe implements Component G's unsubscribe operation: analogous to
// Subscribe but with a single boolean rendezvous bit rather than per-topic
// status codes.
func (c *Client) Unsubscribe(topics []string) error {
	if !c.initialized {
		return ErrObjNotInitialized
	}
	if len(topics) == 0 {
		return fmt.Errorf("%w: unsubscribe requires at least one topic filter", ErrBadArg)
	}
	for _, t := range topics {
		if err := validateSubscribeFilter(t); err != nil {
			return err
		}
	}

	if !c.connStatus.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sessionEstablished {
		return ErrNotConnected
	}

	var lastErr error
	for attempt := 0; attempt <= c.lib.tunables.MaxRetryValue; attempt++ {
		c.unsubAcked = false
		c.sentPacketID = c.engine.allocatePacketID()

		pkt := &wire.UnsubscribePacket{PacketID: c.sentPacketID, Topics: topics, Version: mqttProtocolLevel}
		buf, err := encodePacket(pkt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsubscribeFail, err)
		}
		if err := c.conn.send(buf); err != nil {
			return fmt.Errorf("%w: %v", ErrUnsubscribeFail, err)
		}
		c.packetsSent.Add(1)

		if c.waitForAck(func() bool { return c.unsubAcked }) {
			return nil
		}
		lastErr = fmt.Errorf("%w: timed out waiting for UNSUBACK", ErrUnsubscribeFail)
	}
	return lastErr
}

// waitForAck cooperatively drives the process loop until done reports true,
// a terminal protocol status ends the session, or the ACK-wait budget
// (Tunables.AckReceiveTimeout, decremented by Tunables.SocketReceiveTimeout
// per inner iteration per §4.G) is exhausted. Caller must hold c.mu.
func (c *Client) waitForAck(done func() bool) bool {
	budget := c.lib.tunables.AckReceiveTimeout
	for budget > 0 {
		status := c.processLoop()
		if status.isTerminal() {
			c.handleTerminalStatus(status)
			return false
		}
		if done() {
			return true
		}
		budget -= c.lib.tunables.SocketReceiveTimeout
		if status == statusNoData {
			time.Sleep(c.lib.tunables.SocketReceiveTimeout)
		}
	}
	return false
}
