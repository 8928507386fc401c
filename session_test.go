package mqtt

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cypresssemiconductorco/mqtt/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConnectInfo(t *testing.T) {
	assert.NoError(t, validateConnectInfo(ConnectInfo{}))

	assert.ErrorIs(t, validateConnectInfo(ConnectInfo{Will: &WillInfo{Topic: ""}}), ErrBadArg)
	assert.ErrorIs(t, validateConnectInfo(ConnectInfo{Will: &WillInfo{Topic: "t", QoS: 9}}), ErrBadArg)
	assert.NoError(t, validateConnectInfo(ConnectInfo{Will: &WillInfo{Topic: "t", QoS: QoS1}}))

	assert.ErrorIs(t, validateConnectInfo(ConnectInfo{KeepAlive: -1}), ErrBadArg)
	assert.ErrorIs(t, validateConnectInfo(ConnectInfo{KeepAlive: 70000 * time.Second}), ErrBadArg)
	assert.NoError(t, validateConnectInfo(ConnectInfo{KeepAlive: 60 * time.Second}))
}

func TestDisconnectRequiresConnected(t *testing.T) {
	lib := newTestLibrary(t)
	c, err := lib.Create(make([]byte, 1024), nil, Broker{Host: "h"}, func(*Client, Event) {}, nil)
	require.NoError(t, err)
	defer c.Delete()

	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
}

func TestDisconnectClearsSessionAndClosesTransport(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	go func() {
		_, _ = wire.ReadPacket(server, mqttProtocolLevel, 0)
	}()

	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	assert.False(t, c.sessionEstablished)
	assert.Nil(t, c.conn)
}

func TestResendUnackedRetransmitsStashedPublishesInSlotOrder(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	c.outgoing[0] = outgoingPublish{packetID: 5, info: PublishInfo{Topic: "a", QoS: QoS1}}
	c.outgoing[2] = outgoingPublish{packetID: 9, info: PublishInfo{Topic: "b", QoS: QoS1}}

	type received struct {
		id  uint16
		dup bool
	}
	var got []received
	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			pkt, err := wire.ReadPacket(server, mqttProtocolLevel, 0)
			if err != nil {
				readErr = err
				return
			}
			pub := pkt.(*wire.PublishPacket)
			got = append(got, received{id: pub.PacketID, dup: pub.Dup})
		}
	}()

	require.NoError(t, c.resendUnacked())
	<-done

	require.NoError(t, readErr)
	require.Len(t, got, 2)
	assert.Equal(t, uint16(5), got[0].id)
	assert.Equal(t, uint16(9), got[1].id)
	assert.True(t, got[0].dup)
	assert.True(t, got[1].dup)
	assert.True(t, c.outgoing[0].dup)
	assert.True(t, c.outgoing[2].dup)
}

func TestResendUnackedNoopWhenStoreEmpty(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)
	assert.NoError(t, c.resendUnacked())
}

func TestFindOutgoingSlotAndFreeSlot(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)

	c.outgoing[3] = outgoingPublish{packetID: 42}
	assert.Equal(t, 3, c.findOutgoingSlot(42))
	assert.Equal(t, -1, c.findOutgoingSlot(1))
	assert.Equal(t, 0, c.findFreeOutgoingSlot())
}

func TestCodecDisconnectBestEffortSwallowsSendError(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)
	require.NoError(t, server.Close())

	assert.NotPanics(t, func() { c.codecDisconnectBestEffort() })
}

// TestConnectResumedSessionResendsBeforeReturning drives Connect through its
// real path — dial, CONNECT, CONNACK, pump spawn — against a fake broker
// listening on loopback, covering the one branch newTestClient's shortcut
// never exercises: a broker reporting SessionPresent resends stashed QoS1
// PUBLISHes, with dup set, before Connect returns to the caller.
func TestConnectResumedSessionResendsBeforeReturning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	lib := newTestLibrary(t)
	c, err := lib.Create(make([]byte, 1024), nil, Broker{Host: "127.0.0.1", Port: port}, func(*Client, Event) {}, nil)
	require.NoError(t, err)
	defer c.Delete()

	c.outgoing[0] = outgoingPublish{packetID: 7, info: PublishInfo{Topic: "a/b", QoS: QoS1, Payload: []byte("resend-me")}}

	resultCh := make(chan fakeBrokerResult, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			resultCh <- fakeBrokerResult{nil, err}
			return
		}
		defer conn.Close()

		connectPkt, err := wire.ReadPacket(conn, mqttProtocolLevel, 0)
		if err != nil {
			resultCh <- fakeBrokerResult{nil, err}
			return
		}
		if _, ok := connectPkt.(*wire.ConnectPacket); !ok {
			resultCh <- fakeBrokerResult{nil, fmt.Errorf("want CONNECT, got %T", connectPkt)}
			return
		}

		ack := &wire.ConnackPacket{SessionPresent: true, ReturnCode: wire.ConnAccepted}
		if _, err := ack.WriteTo(conn); err != nil {
			resultCh <- fakeBrokerResult{nil, err}
			return
		}

		pkt, err := wire.ReadPacket(conn, mqttProtocolLevel, 0)
		resultCh <- fakeBrokerResult{pkt, err}
	}()

	err = c.Connect(context.Background(), ConnectInfo{CleanSession: false, KeepAlive: 60 * time.Second})
	require.NoError(t, err)
	defer c.Disconnect()

	assert.True(t, c.IsConnected())
	assert.True(t, c.brokerSessionPresent)

	resent := recvOne(t, resultCh)
	pub, ok := resent.(*wire.PublishPacket)
	require.True(t, ok, "broker expected a resent PUBLISH, got %T", resent)
	assert.Equal(t, uint16(7), pub.PacketID)
	assert.True(t, pub.Dup)
	assert.Equal(t, "a/b", pub.Topic)
}
