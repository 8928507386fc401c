package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is delivered to a Client's callback. Kind discriminates between a
// received application message and an asynchronous disconnect.
type Event struct {
	Kind    EventKind
	Message Message          // valid when Kind == EventPublishReceive
	Reason  DisconnectReason // valid when Kind == EventDisconnect
}

// EventKind discriminates the Event union.
type EventKind uint8

const (
	EventPublishReceive EventKind = iota
	EventDisconnect
)

// DisconnectReason explains why an EventDisconnect fired.
type DisconnectReason uint8

const (
	// DisconnectBrokerDown is fired by the receive pump when the keep-alive
	// deadline passes without a response from the broker. A malformed
	// response ends the session without an event, and a failed send/receive
	// seen by the process loop is reported as DisconnectNetworkDown.
	DisconnectBrokerDown DisconnectReason = iota
	// DisconnectNetworkDown covers a transport-originated disconnect
	// notification delivered through the disconnect event subsystem.
	DisconnectNetworkDown
)

func (r DisconnectReason) String() string {
	if r == DisconnectNetworkDown {
		return "NETWORK_DOWN"
	}
	return "BROKER_DOWN"
}

// Message is an application-level MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      QoS
	Retain   bool
	Dup      bool
	PacketID uint16
}

// EventCallback is the application upcall. It must not call Publish,
// Subscribe, Unsubscribe, or Disconnect on the same Client — process_mutex
// is held for the duration of the call, and doing so would deadlock.
type EventCallback func(*Client, Event)

// outgoingPublish is one slot of the fixed-size outgoing-PUBLISH store:
// in flight awaiting PUBACK/PUBREC, or stashed between sessions for resend.
type outgoingPublish struct {
	packetID uint16 // 0 means the slot is free
	info     PublishInfo
	dup      bool
}

// pubAckRendezvous is the single-slot rendezvous for the PUBACK/PUBREC of
// the publish currently in flight.
type pubAckRendezvous struct {
	packetID uint16
	acked    bool
}

// Client is a single MQTT session's handle: configuration, transport,
// protocol-engine context, the outgoing-PUBLISH store, ACK rendezvous
// slots, and the mutex that serializes the receive pump against the
// request path (Component B).
//
// All fields below mu are only ever touched while holding mu: by the
// receive pump, by Publish/Subscribe/Unsubscribe, or by the disconnect
// worker. This is the single most important invariant in the package;
// see the package doc for why it exists.
type Client struct {
	lib    *Library
	broker Broker
	creds  *Credentials
	logger *slog.Logger

	buf    []byte // scratch network buffer supplied at Create, owned exclusively by this client
	engine *engineContext
	index  int // slot in the handle registry

	eventCB  EventCallback
	userData any

	mu sync.Mutex

	initialized          bool
	sessionEstablished   bool
	brokerSessionPresent bool
	connStatus           atomic.Bool

	conn     *transportConn
	recvPump *pump

	outgoing     []outgoingPublish
	pubAck       pubAckRendezvous
	subAck       []QoS // per-topic SUBACK codes for the in-flight SUBSCRIBE
	subAckFailed bool
	numSubsInReq int
	sentPacketID uint16
	unsubAcked   bool
	incomingQoS2 map[uint16]struct{}

	keepAlive         time.Duration
	lastActivity      time.Time
	connectedClientID string

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	reconnectCount  atomic.Uint64
}

// Create allocates a Client, gives it a fresh protocol-engine context, and
// registers it in the library's handle registry. buf must be at least
// Tunables.MinNetworkBufferSize; the Client keeps the slice for its
// lifetime but does not read or write it, since packets are encoded and
// decoded in buffers of their own. creds, if non-nil, is the default MQTT
// username/password CONNECT will use when a Connect call's own
// ConnectInfo.Credentials is nil; like broker and buf it is immutable for
// the Client's lifetime.
//
// If broker.Host is given but ConnectInfo.ClientID is left empty at
// Connect time, a random client id is generated (see uuid.NewString),
// mirroring what most brokers do server-side for MQTT v5 but doing it
// client-side here since this is a v3.1.1 core.
func (l *Library) Create(buf []byte, creds *Credentials, broker Broker, cb EventCallback, userData any) (*Client, error) {
	if !l.initialized.Load() {
		return nil, fmt.Errorf("%w: library not initialized", ErrCreateFail)
	}
	if broker.Host == "" || cb == nil {
		return nil, fmt.Errorf("%w: broker host and callback are required", ErrBadArg)
	}
	if len(buf) < l.tunables.MinNetworkBufferSize {
		return nil, fmt.Errorf("%w: buffer length %d below minimum %d", ErrBadArg, len(buf), l.tunables.MinNetworkBufferSize)
	}

	c := &Client{
		lib:      l,
		broker:   broker,
		creds:    creds,
		logger:   l.tunables.Logger,
		buf:      buf,
		engine:   newEngineContext(),
		eventCB:  cb,
		userData: userData,
		outgoing: make([]outgoingPublish, l.tunables.MaxOutgoingPublishes),
		subAck:   make([]QoS, l.tunables.MaxOutgoingSubscribes),
	}
	c.initialized = true

	index, err := l.registry.register(c, c.engine)
	if err != nil {
		return nil, err
	}
	c.index = index

	l.clientCount.Add(1)
	return c, nil
}

// Delete tears down a Client. The client must not be connected.
func (c *Client) Delete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrObjNotInitialized
	}
	if c.connStatus.Load() {
		return fmt.Errorf("%w: delete requires the client to be disconnected first", ErrBadArg)
	}

	c.lib.registry.unregister(c.index)
	c.initialized = false
	c.lib.clientCount.Add(-1)
	return nil
}

// IsConnected reports the user-visible connected flag.
func (c *Client) IsConnected() bool {
	return c.connStatus.Load()
}

func defaultClientID() string {
	return "go-mqtt-" + uuid.NewString()
}
