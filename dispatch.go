package mqtt

import (
	"github.com/cypresssemiconductorco/mqtt/internal/wire"
)

// dispatch is the codec upcall sink (Component E): it classifies one
// decoded incoming packet, updates ACK rendezvous state, issues whatever
// reply the protocol owes (PUBACK/PUBREC/PUBREL/PUBCOMP), and invokes the
// application callback for incoming PUBLISH packets; a DISCONNECT sent by
// the server is only logged. Caller must hold
// c.mu; this is always true here since dispatch is only ever reached from
// processLoop.
func (c *Client) dispatch(pkt wire.Packet) processStatus {
	switch p := pkt.(type) {
	case *wire.PublishPacket:
		return c.dispatchPublish(p)

	case *wire.SubackPacket:
		c.dispatchSuback(p)

	case *wire.UnsubackPacket:
		c.unsubAcked = p.PacketID == c.sentPacketID

	case *wire.PingrespPacket:
		// nothing to verify beyond having decoded successfully; a failed
		// decode already returned statusBadResponse upstream.

	case *wire.PubackPacket:
		c.completePublishAck(p.PacketID)

	case *wire.PubrecPacket:
		c.completePublishAck(p.PacketID)
		if err := c.sendPubrel(p.PacketID); err != nil {
			return statusSendFailed
		}

	case *wire.PubrelPacket:
		err := c.sendPubcomp(p.PacketID)
		delete(c.incomingQoS2, p.PacketID)
		if err != nil {
			return statusSendFailed
		}

	case *wire.PubcompPacket:
		// No rendezvous state beyond what completePublishAck already set at
		// PUBREC time; nothing further to do.

	case *wire.DisconnectPacket:
		c.logger.Debug("server sent DISCONNECT")

	default:
		c.logger.Debug("ignoring unexpected packet", "type", wire.PacketNames[pkt.Type()])
	}
	return statusOK
}

func (c *Client) dispatchPublish(p *wire.PublishPacket) processStatus {
	qos := QoS(p.QoS)

	if qos == QoS2 {
		if c.incomingQoS2 == nil {
			c.incomingQoS2 = make(map[uint16]struct{})
		}
		if _, dup := c.incomingQoS2[p.PacketID]; dup {
			// Already delivered to the application; the broker is retrying
			// because our PUBREC/PUBCOMP was lost. Ack again, don't redeliver.
			if err := c.sendPubrec(p.PacketID); err != nil {
				return statusSendFailed
			}
			return statusOK
		}
		c.incomingQoS2[p.PacketID] = struct{}{}
	}

	msg := Message{
		Topic:    p.Topic,
		Payload:  p.Payload,
		QoS:      qos,
		Retain:   p.Retain,
		Dup:      p.Dup,
		PacketID: p.PacketID,
	}

	var ackErr error
	switch qos {
	case QoS1:
		ackErr = c.sendPuback(p.PacketID)
	case QoS2:
		ackErr = c.sendPubrec(p.PacketID)
	}
	if ackErr != nil {
		return statusSendFailed
	}

	c.fireEvent(Event{Kind: EventPublishReceive, Message: msg})
	return statusOK
}

// dispatchSuback implements §4.E's SUBACK handling: a mismatched packet id
// is logged and otherwise ignored; a matching id with the wrong status
// count fails the subscribe; otherwise the codes are copied in and
// numSubsInReq is cleared to signal completion to the request path.
func (c *Client) dispatchSuback(p *wire.SubackPacket) {
	if p.PacketID != c.sentPacketID {
		c.logger.Warn("SUBACK packet id mismatch", "got", p.PacketID, "want", c.sentPacketID)
		return
	}
	if len(p.ReturnCodes) != c.numSubsInReq {
		c.logger.Warn("SUBACK status count mismatch", "got", len(p.ReturnCodes), "want", c.numSubsInReq)
		c.numSubsInReq = 0
		c.subAckFailed = true
		return
	}
	for i, code := range p.ReturnCodes {
		c.subAck[i] = subackStatus(code)
	}
	c.numSubsInReq = 0
}

// completePublishAck implements the PUBACK/PUBREC bullet of §4.E: set the
// rendezvous bit only on a matching id, and clean up the matching slot in
// the outgoing-PUBLISH store.
func (c *Client) completePublishAck(packetID uint16) {
	c.pubAck.acked = packetID == c.pubAck.packetID
	for i := range c.outgoing {
		if c.outgoing[i].packetID == packetID {
			c.outgoing[i] = outgoingPublish{}
			return
		}
	}
}

func (c *Client) fireEvent(ev Event) {
	c.eventCB(c, ev)
}

func (c *Client) sendPuback(packetID uint16) error {
	return c.sendAckPacket(&wire.PubackPacket{PacketID: packetID, Version: mqttProtocolLevel})
}

func (c *Client) sendPubrec(packetID uint16) error {
	return c.sendAckPacket(&wire.PubrecPacket{PacketID: packetID, Version: mqttProtocolLevel})
}

func (c *Client) sendPubrel(packetID uint16) error {
	return c.sendAckPacket(&wire.PubrelPacket{PacketID: packetID, Version: mqttProtocolLevel})
}

func (c *Client) sendPubcomp(packetID uint16) error {
	return c.sendAckPacket(&wire.PubcompPacket{PacketID: packetID, Version: mqttProtocolLevel})
}

// sendAckPacket encodes and sends a PUBACK/PUBREC/PUBREL/PUBCOMP. A failure
// here means the connection itself is broken, not a recoverable protocol
// condition, so unlike most logging-and-swallowing in this package it is
// returned to the caller as statusSendFailed.
func (c *Client) sendAckPacket(pkt wire.Packet) error {
	buf, err := encodePacket(pkt)
	if err != nil {
		c.logger.Warn("failed to encode ack packet", "error", err)
		return err
	}
	if err := c.conn.send(buf); err != nil {
		c.logger.Debug("failed to send ack packet", "error", err)
		return err
	}
	c.packetsSent.Add(1)
	return nil
}
