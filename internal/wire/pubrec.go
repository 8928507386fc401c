package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PubrecPacket represents an MQTT v3.1.1 PUBREC control packet (QoS 2, step 1).
type PubrecPacket struct {
	PacketID uint16
	Version  uint8
}

// Type returns the packet type.
func (p *PubrecPacket) Type() uint8 {
	return PUBREC
}

// WriteTo writes the PUBREC packet to the writer.
func (p *PubrecPacket) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var packetIDBytes [2]byte

	header := &FixedHeader{
		PacketType:      PUBREC,
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

// DecodePubrec decodes a PUBREC packet from the buffer.
func DecodePubrec(buf []byte, version uint8) (*PubrecPacket, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("buffer too short for PUBREC packet")
	}

	return &PubrecPacket{
		PacketID: binary.BigEndian.Uint16(buf[0:2]),
		Version:  version,
	}, nil
}
