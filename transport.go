package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// rawConn is the minimum byte-stream contract the transport adapter needs
// from whatever carries the MQTT stream: a plain TCP socket, a TLS socket,
// or a WebSocket connection wrapped to look like one.
type rawConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// transportConn is the adapted interface the protocol engine drives: a
// short-read-tolerant recv and a plain send, both accounted into the
// owning client's traffic counters (Component C) via countingReader and
// countingWriter.
type transportConn struct {
	raw           rawConn
	r             *countingReader
	w             *countingWriter
	messageRecvTO time.Duration
	socketRecvTO  time.Duration
	sendTO        time.Duration
}

// newTransportConn wraps raw with byte-counting Read/Write, reporting into
// bytesSent/bytesReceived regardless of what mutex discipline the caller is
// under.
func newTransportConn(raw rawConn, tunables Tunables, bytesSent, bytesReceived *atomic.Uint64) *transportConn {
	return &transportConn{
		raw:           raw,
		r:             &countingReader{Reader: raw, bytesReceived: bytesReceived},
		w:             &countingWriter{Writer: raw, bytesSent: bytesSent},
		messageRecvTO: tunables.MessageReceiveTimeout,
		socketRecvTO:  tunables.SocketReceiveTimeout,
		sendTO:        tunables.MessageSendTimeout,
	}
}

// recv implements the bounded re-read loop of Component C: it polls the
// underlying connection with a short per-attempt deadline, aggregating
// bytes into buf, and is tolerant of the peer delivering fewer bytes than
// requested in a single OS-level read.
//
//   - A hard I/O error (anything but a deadline timeout) is propagated
//     immediately.
//   - If nothing at all has been received yet when an attempt times out,
//     recv returns (0, nil) right away — the caller is expected to retry
//     later; this is what keeps the receive pump's drain non-blocking.
//   - Once at least one byte has arrived, a subsequent timeout only ends
//     the call once the aggregate budget (messageRecvTO) is exhausted;
//     any further progress resets that budget, on the theory that a peer
//     still trickling bytes is still alive.
func (t *transportConn) recv(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	budget := t.messageRecvTO
	total := 0
	for total < len(buf) {
		quantum := t.socketRecvTO
		if quantum <= 0 {
			quantum = time.Millisecond
		}
		_ = t.raw.SetReadDeadline(time.Now().Add(quantum))
		n, err := t.r.Read(buf[total:])
		if n > 0 {
			total += n
			budget = t.messageRecvTO // progress resets the budget
			continue
		}
		if isTimeout(err) {
			if total == 0 {
				return 0, nil
			}
			budget -= quantum
			if budget <= 0 {
				return total, nil
			}
			continue
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// send writes one complete packet, enforcing a send deadline and
// accounting bytes into the client's stats.
func (t *transportConn) send(data []byte) error {
	_ = t.raw.SetWriteDeadline(time.Now().Add(t.sendTO))
	_, err := t.w.Write(data)
	return err
}

func (t *transportConn) close() error {
	return t.raw.Close()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// dialBroker resolves broker.Host/Port (and TLS/WebSocket options) into a
// rawConn, retrying with exponential backoff up to tunables.ConnectRetries
// times. This is the "bounded TCP/TLS reconnect" of §4.F step 3; the MQTT
// CONNECT handshake itself happens one layer up, once a rawConn exists.
func dialBroker(ctx context.Context, broker Broker, tunables Tunables) (rawConn, error) {
	addr := net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port))

	var conn rawConn
	operation := func() error {
		c, err := dialOnce(ctx, addr, broker)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(tunables.ConnectRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFail, err)
	}
	return conn, nil
}

func dialOnce(ctx context.Context, addr string, broker Broker) (rawConn, error) {
	if broker.WebSocket {
		return dialWebSocket(ctx, addr, broker)
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if broker.TLS != nil {
		tlsConn := tls.Client(conn, broker.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return conn, nil
}

func dialWebSocket(ctx context.Context, addr string, broker Broker) (rawConn, error) {
	scheme := "ws"
	if broker.TLS != nil {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/mqtt"}
	dialer := websocket.Dialer{TLSClientConfig: broker.TLS, Subprotocols: []string{"mqtt"}}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a message-oriented *websocket.Conn to the byte-stream
// rawConn contract by buffering each inbound WebSocket message and draining
// it across successive Read calls.
type wsConn struct {
	conn *websocket.Conn
	buf  bytes.Buffer
}

func (w *wsConn) Read(p []byte) (int, error) {
	if w.buf.Len() == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.buf.Write(data)
	}
	return w.buf.Read(p)
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }
func (w *wsConn) Close() error                       { return w.conn.Close() }
