package mqtt

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/cypresssemiconductorco/mqtt/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePacketTo(conn net.Conn, pkt wire.Packet) error {
	_, err := pkt.WriteTo(conn)
	return err
}

// fakeBrokerResult carries one decoded packet (or the error reading it) from
// a fake-broker goroutine back to the test goroutine, which owns every
// testify assertion: FailNow-based assertions are only safe to call from the
// goroutine running the test itself.
type fakeBrokerResult struct {
	pkt wire.Packet
	err error
}

func recvOne(t *testing.T, ch <-chan fakeBrokerResult) wire.Packet {
	t.Helper()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.pkt
	case <-time.After(2 * time.Second):
		t.Fatal("fake broker never received a packet")
		return nil
	}
}

func TestPublishQoS0DoesNotWaitForAck(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	ch := make(chan fakeBrokerResult, 1)
	go func() {
		pkt, err := readPacketFrom(server)
		ch <- fakeBrokerResult{pkt, err}
	}()

	err := c.Publish(PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: QoS0})
	require.NoError(t, err)

	pub, ok := recvOne(t, ch).(*wire.PublishPacket)
	require.True(t, ok)
	assert.EqualValues(t, 0, pub.QoS)
	assert.Equal(t, uint16(0), pub.PacketID, "QoS 0 publishes carry no packet id")
}

func TestPublishQoS1SucceedsOnFirstAck(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	go func() {
		pkt, err := readPacketFrom(server)
		if err != nil {
			return
		}
		pub, ok := pkt.(*wire.PublishPacket)
		if !ok {
			return
		}
		_ = writePacketTo(server, &wire.PubackPacket{PacketID: pub.PacketID, Version: mqttProtocolLevel})
	}()

	err := c.Publish(PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: QoS1})
	require.NoError(t, err)
	assert.True(t, c.pubAck.acked)
}

// TestPublishQoS1RetriesWithDupThenSucceeds drops the first PUBLISH on the
// floor (no ack) and only answers the dup=true retry, covering the
// retry-with-dup behavior of Component G.
func TestPublishQoS1RetriesWithDupThenSucceeds(t *testing.T) {
	lib := newTestLibrary(t, WithMaxRetryValue(2), WithAckReceiveTimeout(50*time.Millisecond))
	c, server := newTestClient(t, lib)

	firstDup := make(chan bool, 1)
	go func() {
		first, err := readPacketFrom(server)
		if err != nil {
			return
		}
		firstDup <- first.(*wire.PublishPacket).Dup

		retry, err := readPacketFrom(server)
		if err != nil {
			return
		}
		pub, ok := retry.(*wire.PublishPacket)
		if !ok {
			return
		}
		_ = writePacketTo(server, &wire.PubackPacket{PacketID: pub.PacketID, Version: mqttProtocolLevel})
	}()

	err := c.Publish(PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: QoS1})
	require.NoError(t, err)

	select {
	case dup := <-firstDup:
		assert.False(t, dup, "the first send must not carry dup")
	case <-time.After(time.Second):
		t.Fatal("fake broker never observed the first PUBLISH")
	}
}

func TestPublishQoS1TimesOutWhenNeverAcked(t *testing.T) {
	lib := newTestLibrary(t, WithMaxRetryValue(0))
	c, server := newTestClient(t, lib)
	go io.Copy(io.Discard, server)

	err := c.Publish(PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: QoS1})
	assert.ErrorIs(t, err, ErrPublishFail)
	assert.Equal(t, uint16(0), c.outgoing[0].packetID, "a failed publish must free its slot")
}

func TestPublishFailsWhenOutgoingStoreIsFull(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)
	go io.Copy(io.Discard, server)

	for i := range c.outgoing {
		c.outgoing[i] = outgoingPublish{packetID: uint16(i + 1)}
	}

	err := c.Publish(PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: QoS1})
	assert.ErrorIs(t, err, ErrPublishFail)
}

func TestPublishValidatesArgumentsBeforeLockingOrSending(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)

	err := c.Publish(PublishInfo{Topic: "a/+", QoS: QoS0})
	assert.ErrorIs(t, err, ErrBadArg)

	err = c.Publish(PublishInfo{Topic: "a", QoS: 9})
	assert.ErrorIs(t, err, ErrBadArg)
}

func TestSubscribeGrantsMixedQoSAndSucceedsOnAnyGrant(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	ch := make(chan fakeBrokerResult, 1)
	go func() {
		pkt, err := readPacketFrom(server)
		if err != nil {
			ch <- fakeBrokerResult{err: err}
			return
		}
		sub := pkt.(*wire.SubscribePacket)
		err = writePacketTo(server, &wire.SubackPacket{
			PacketID:    sub.PacketID,
			ReturnCodes: []uint8{0x01, 0x80},
			Version:     mqttProtocolLevel,
		})
		ch <- fakeBrokerResult{pkt, err}
	}()

	entries := []SubscribeEntry{{Topic: "a", QoS: QoS1}, {Topic: "b", QoS: QoS2}}
	err := c.Subscribe(entries)
	require.NoError(t, err)
	assert.Equal(t, QoS1, entries[0].AllocatedQoS)
	assert.Equal(t, QoSInvalid, entries[1].AllocatedQoS)
	recvOne(t, ch)
}

func TestSubscribeFailsWhenAllFiltersRefused(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	go func() {
		pkt, err := readPacketFrom(server)
		if err != nil {
			return
		}
		sub := pkt.(*wire.SubscribePacket)
		_ = writePacketTo(server, &wire.SubackPacket{
			PacketID:    sub.PacketID,
			ReturnCodes: []uint8{0x80},
			Version:     mqttProtocolLevel,
		})
	}()

	err := c.Subscribe([]SubscribeEntry{{Topic: "a", QoS: QoS1}})
	assert.ErrorIs(t, err, ErrSubscribeFail)
}

func TestSubscribeRejectsTooManyFilters(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)

	entries := make([]SubscribeEntry, lib.tunables.MaxOutgoingSubscribes+1)
	for i := range entries {
		entries[i] = SubscribeEntry{Topic: "a", QoS: QoS0}
	}

	err := c.Subscribe(entries)
	assert.ErrorIs(t, err, ErrBadArg)
}

func TestSubscribeStatusCountMismatchReturnsMQTTError(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	go func() {
		pkt, err := readPacketFrom(server)
		if err != nil {
			return
		}
		sub := pkt.(*wire.SubscribePacket)
		_ = writePacketTo(server, &wire.SubackPacket{
			PacketID:    sub.PacketID,
			ReturnCodes: []uint8{0x00, 0x00},
			Version:     mqttProtocolLevel,
		})
	}()

	err := c.Subscribe([]SubscribeEntry{{Topic: "a", QoS: QoS0}})
	assert.ErrorIs(t, err, ErrMQTTError)
}

func TestUnsubscribeMatchingIDSucceeds(t *testing.T) {
	lib := newTestLibrary(t)
	c, server := newTestClient(t, lib)

	go func() {
		pkt, err := readPacketFrom(server)
		if err != nil {
			return
		}
		unsub := pkt.(*wire.UnsubscribePacket)
		_ = writePacketTo(server, &wire.UnsubackPacket{PacketID: unsub.PacketID, Version: mqttProtocolLevel})
	}()

	err := c.Unsubscribe([]string{"a/b"})
	require.NoError(t, err)
}

func TestUnsubscribeRejectsEmptyList(t *testing.T) {
	lib := newTestLibrary(t)
	c, _ := newTestClient(t, lib)

	err := c.Unsubscribe(nil)
	assert.ErrorIs(t, err, ErrBadArg)
}

func TestRequestsFailWhenNotConnected(t *testing.T) {
	lib := newTestLibrary(t)
	c, err := lib.Create(make([]byte, 1024), nil, Broker{Host: "h"}, func(*Client, Event) {}, nil)
	require.NoError(t, err)
	defer c.Delete()

	assert.ErrorIs(t, c.Publish(PublishInfo{Topic: "a", QoS: QoS0}), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe([]SubscribeEntry{{Topic: "a"}}), ErrNotConnected)
	assert.ErrorIs(t, c.Unsubscribe([]string{"a"}), ErrNotConnected)
}
