package wire

import "io"

// DisconnectPacket represents an MQTT v3.1.1 DISCONNECT control packet.
// A v3.1.1 DISCONNECT has no variable header or payload at all.
type DisconnectPacket struct {
	Version uint8
}

// Type returns the packet type.
func (p *DisconnectPacket) Type() uint8 {
	return DISCONNECT
}

// WriteTo writes the DISCONNECT packet to the writer.
func (p *DisconnectPacket) WriteTo(w io.Writer) (int64, error) {
	header := &FixedHeader{
		PacketType:      DISCONNECT,
		Flags:           0,
		RemainingLength: 0,
	}
	return header.WriteTo(w)
}

// DecodeDisconnect decodes a DISCONNECT packet.
func DecodeDisconnect(buf []byte, version uint8) (*DisconnectPacket, error) {
	return &DisconnectPacket{Version: version}, nil
}
