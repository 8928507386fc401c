package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PubcompPacket represents an MQTT v3.1.1 PUBCOMP control packet (QoS 2, step 3).
type PubcompPacket struct {
	PacketID uint16
	Version  uint8
}

// Type returns the packet type.
func (p *PubcompPacket) Type() uint8 {
	return PUBCOMP
}

// WriteTo writes the PUBCOMP packet to the writer.
func (p *PubcompPacket) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var packetIDBytes [2]byte

	// PUBCOMP has fixed header flags = 0 (unlike PUBREL's 0x02).
	header := &FixedHeader{
		PacketType:      PUBCOMP,
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

// DecodePubcomp decodes a PUBCOMP packet from the buffer.
func DecodePubcomp(buf []byte, version uint8) (*PubcompPacket, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("buffer too short for PUBCOMP packet")
	}

	return &PubcompPacket{
		PacketID: binary.BigEndian.Uint16(buf[0:2]),
		Version:  version,
	}, nil
}
