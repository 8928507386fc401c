package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// UnsubackPacket represents an MQTT v3.1.1 UNSUBACK control packet.
// A v3.1.1 UNSUBACK carries only the packet id; no payload.
type UnsubackPacket struct {
	PacketID uint16
	Version  uint8
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() uint8 {
	return UNSUBACK
}

// WriteTo writes the UNSUBACK packet to the writer.
func (p *UnsubackPacket) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var packetIDBytes [2]byte

	header := &FixedHeader{
		PacketType:      UNSUBACK,
		Flags:           0,
		RemainingLength: 2,
	}

	hN, err := header.WriteTo(w)
	total += hN
	if err != nil {
		return total, err
	}

	binary.BigEndian.PutUint16(packetIDBytes[:], p.PacketID)
	n, err := w.Write(packetIDBytes[:])
	total += int64(n)
	if err != nil {
		return total, err
	}

	return total, nil
}

// DecodeUnsuback decodes an UNSUBACK packet from the buffer.
func DecodeUnsuback(buf []byte, version uint8) (*UnsubackPacket, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("buffer too short for UNSUBACK packet")
	}

	return &UnsubackPacket{
		PacketID: binary.BigEndian.Uint16(buf[0:2]),
		Version:  version,
	}, nil
}
