package mqtt

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Broker identifies the network endpoint a Client connects to.
type Broker struct {
	Host string
	Port int

	// TLS, if non-nil, dials the broker over TLS using this configuration.
	TLS *tls.Config

	// WebSocket, if true, tunnels the MQTT stream over a WebSocket
	// connection to ws(s)://Host:Port/mqtt instead of a raw TCP/TLS socket.
	WebSocket bool
}

// Credentials carries an optional MQTT username/password pair.
type Credentials struct {
	Username string
	Password string
}

// WillInfo describes the Last Will and Testament published by the broker on
// this client's behalf if the session ends ungracefully.
type WillInfo struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// ConnectInfo parameterizes a CONNECT handshake.
type ConnectInfo struct {
	ClientID     string
	KeepAlive    time.Duration
	CleanSession bool
	Credentials  *Credentials
	Will         *WillInfo
}

// PublishInfo parameterizes a single PUBLISH request.
type PublishInfo struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// SubscribeEntry is both the input (Topic, QoS) and output (AllocatedQoS) of
// a single topic filter within a Subscribe call: after Subscribe returns,
// AllocatedQoS holds the broker's grant, or QoSInvalid if that filter was
// refused.
type SubscribeEntry struct {
	Topic        string
	QoS          QoS
	AllocatedQoS QoS
}

// Tunables mirrors the compile-time defaults of a constrained MQTT client
// SDK. All fields have workable zero-value-safe defaults (see
// DefaultTunables); override only the ones your deployment needs.
type Tunables struct {
	// MaxHandle bounds the process-wide handle registry (Component A).
	MaxHandle int
	// MaxOutgoingPublishes bounds the number of QoS>0 PUBLISHes a single
	// client can have in flight or stashed for resend at once.
	MaxOutgoingPublishes int
	// MaxOutgoingSubscribes bounds topic filters per Subscribe call.
	MaxOutgoingSubscribes int
	// MinNetworkBufferSize is the minimum scratch buffer size Create will
	// accept.
	MinNetworkBufferSize int
	// MaxRetryValue bounds the publish/subscribe/unsubscribe send+ACK-wait
	// retry cycles (not TCP/TLS reconnect, which uses Tunables.ConnectRetries).
	MaxRetryValue int

	ConnackRecvTimeout     time.Duration
	SocketReceiveTimeout   time.Duration
	MessageReceiveTimeout  time.Duration
	MessageSendTimeout     time.Duration
	ReceiveThreadSleep     time.Duration
	AckReceiveTimeout      time.Duration
	DisconnectQueueTimeout time.Duration

	// ConnectRetries bounds the TCP/TLS (re)connect attempts in Connect,
	// each attempt separated by exponential backoff.
	ConnectRetries int

	Logger *slog.Logger
}

// DefaultTunables returns the package's compile-time defaults, named after
// the constants of the embedded SDKs this design is descended from.
func DefaultTunables() Tunables {
	return Tunables{
		MaxHandle:              64,
		MaxOutgoingPublishes:   16,
		MaxOutgoingSubscribes:  8,
		MinNetworkBufferSize:   512,
		MaxRetryValue:          3,
		ConnackRecvTimeout:     2000 * time.Millisecond,
		SocketReceiveTimeout:   20 * time.Millisecond,
		MessageReceiveTimeout:  1000 * time.Millisecond,
		MessageSendTimeout:     5000 * time.Millisecond,
		ReceiveThreadSleep:     100 * time.Millisecond,
		AckReceiveTimeout:      5000 * time.Millisecond,
		DisconnectQueueTimeout: 500 * time.Millisecond,
		ConnectRetries:         5,
		Logger:                 slog.Default(),
	}
}

// LibOption configures Init.
type LibOption func(*Tunables)

// WithMaxHandle overrides the handle registry capacity.
func WithMaxHandle(n int) LibOption {
	return func(t *Tunables) { t.MaxHandle = n }
}

// WithLogger overrides the default slog.Logger used for all clients created
// from this library instance.
func WithLogger(l *slog.Logger) LibOption {
	return func(t *Tunables) { t.Logger = l }
}

// WithMaxRetryValue overrides the send+ACK-wait retry ceiling.
func WithMaxRetryValue(n int) LibOption {
	return func(t *Tunables) { t.MaxRetryValue = n }
}

// WithAckReceiveTimeout overrides how long Publish/Subscribe/Unsubscribe
// wait for their acknowledgement on each retry attempt.
func WithAckReceiveTimeout(d time.Duration) LibOption {
	return func(t *Tunables) { t.AckReceiveTimeout = d }
}

// WithConnectRetries overrides the bounded TCP/TLS reconnect attempt count.
func WithConnectRetries(n int) LibOption {
	return func(t *Tunables) { t.ConnectRetries = n }
}
