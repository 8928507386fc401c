package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ConnectPacket represents an MQTT v3.1.1 CONNECT control packet.
type ConnectPacket struct {
	// Protocol name, "MQTT" for v3.1.1.
	ProtocolName string

	// Protocol level, 4 for v3.1.1.
	ProtocolLevel uint8

	// Connect flags
	CleanSession bool
	WillFlag     bool
	WillQoS      uint8
	WillRetain   bool
	PasswordFlag bool
	UsernameFlag bool

	// Keep alive timer in seconds
	KeepAlive uint16

	// Payload
	ClientID string

	// Will fields (only used if WillFlag is true)
	WillTopic   string
	WillMessage []byte

	// Credentials (only used if respective flags are true)
	Username string
	Password string
}

// Type returns the packet type.
func (p *ConnectPacket) Type() uint8 {
	return CONNECT
}

// WriteTo writes the CONNECT packet to the writer.
func (p *ConnectPacket) WriteTo(w io.Writer) (int64, error) {
	var total int64

	// 1. Calculate Variable Header length
	protocolNameBytes := encodeString(p.ProtocolName)
	protocolNameLen := len(protocolNameBytes)

	var connectFlags uint8
	if p.CleanSession {
		connectFlags |= 0x02
	}
	if p.WillFlag {
		connectFlags |= 0x04
		connectFlags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			connectFlags |= 0x20
		}
	}
	if p.PasswordFlag {
		connectFlags |= 0x40
	}
	if p.UsernameFlag {
		connectFlags |= 0x80
	}

	variableHeaderLen := protocolNameLen + 1 + 1 + 2 // Name + Level + Flags + KeepAlive

	// 2. Calculate Payload Length
	var keepAliveBytes [2]byte
	clientIDBytes := encodeString(p.ClientID)
	payloadLen := len(clientIDBytes)

	var willTopicBytes, willMsgBytes []byte
	if p.WillFlag {
		willTopicBytes = encodeString(p.WillTopic)
		willMsgBytes = encodeBinary(p.WillMessage)
		payloadLen += len(willTopicBytes) + len(willMsgBytes)
	}

	var usernameBytes, passwordBytes []byte
	if p.UsernameFlag {
		usernameBytes = encodeString(p.Username)
		payloadLen += len(usernameBytes)
	}
	if p.PasswordFlag {
		passwordBytes = encodeString(p.Password)
		payloadLen += len(passwordBytes)
	}

	// 3. Write Fixed Header
	header := &FixedHeader{
		PacketType:      CONNECT,
		Flags:           0,
		RemainingLength: variableHeaderLen + payloadLen,
	}

	hN, err := header.WriteTo(w)
	total += hN
	if err != nil {
		return total, err
	}
	var n int

	// 4. Write Variable Header
	n, err = w.Write(protocolNameBytes)
	total += int64(n)
	if err != nil {
		return total, err
	}

	if err := binary.Write(w, binary.BigEndian, p.ProtocolLevel); err != nil {
		return total, err
	}
	total++

	if err := binary.Write(w, binary.BigEndian, connectFlags); err != nil {
		return total, err
	}
	total++

	binary.BigEndian.PutUint16(keepAliveBytes[:], p.KeepAlive)
	n, err = w.Write(keepAliveBytes[:])
	total += int64(n)
	if err != nil {
		return total, err
	}

	// 5. Write Payload
	n, err = w.Write(clientIDBytes)
	total += int64(n)
	if err != nil {
		return total, err
	}

	if p.WillFlag {
		n, err = w.Write(willTopicBytes)
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = w.Write(willMsgBytes)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	if p.UsernameFlag {
		n, err = w.Write(usernameBytes)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	if p.PasswordFlag {
		n, err = w.Write(passwordBytes)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// DecodeConnect decodes a CONNECT packet from the buffer.
func DecodeConnect(buf []byte) (*ConnectPacket, error) {
	if len(buf) < 10 {
		return nil, fmt.Errorf("buffer too short for CONNECT packet")
	}

	pkt := &ConnectPacket{}
	offset := 0

	protocolName, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode protocol name: %w", err)
	}
	pkt.ProtocolName = protocolName
	offset += n

	if offset >= len(buf) {
		return nil, fmt.Errorf("buffer too short for protocol level")
	}
	pkt.ProtocolLevel = buf[offset]
	offset++

	if offset >= len(buf) {
		return nil, fmt.Errorf("buffer too short for connect flags")
	}
	connectFlags := buf[offset]
	offset++

	pkt.CleanSession = (connectFlags & 0x02) != 0
	pkt.WillFlag = (connectFlags & 0x04) != 0
	pkt.WillQoS = (connectFlags >> 3) & 0x03
	pkt.WillRetain = (connectFlags & 0x20) != 0
	pkt.PasswordFlag = (connectFlags & 0x40) != 0
	pkt.UsernameFlag = (connectFlags & 0x80) != 0

	if offset+2 > len(buf) {
		return nil, fmt.Errorf("buffer too short for keep alive")
	}
	pkt.KeepAlive = uint16(buf[offset])<<8 | uint16(buf[offset+1])
	offset += 2

	clientID, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode client ID: %w", err)
	}
	pkt.ClientID = clientID
	offset += n

	if pkt.WillFlag {
		willTopic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode will topic: %w", err)
		}
		pkt.WillTopic = willTopic
		offset += n

		willMessage, n, err := decodeBinary(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode will message: %w", err)
		}
		// Copy willMessage because the underlying buffer is reused
		pkt.WillMessage = make([]byte, len(willMessage))
		copy(pkt.WillMessage, willMessage)
		offset += n
	}

	if pkt.UsernameFlag {
		username, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
		pkt.Username = username
		offset += n
	}

	if pkt.PasswordFlag {
		password, _, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode password: %w", err)
		}
		pkt.Password = password
	}

	return pkt, nil
}
