package mqtt

import (
	"io"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of a client's traffic counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ReconnectCount  uint64
	Connected       bool
}

// Stats returns the client's current traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		ReconnectCount:  c.reconnectCount.Load(),
		Connected:       c.IsConnected(),
	}
}

// countingReader tallies bytes read from the transport onto the owning
// client's atomic counters, independent of whatever mutex discipline the
// caller is under.
type countingReader struct {
	io.Reader
	bytesReceived *atomic.Uint64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.bytesReceived.Add(uint64(n))
	}
	return n, err
}

// countingWriter is the send-side counterpart of countingReader.
type countingWriter struct {
	io.Writer
	bytesSent *atomic.Uint64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	if n > 0 {
		w.bytesSent.Add(uint64(n))
	}
	return n, err
}
