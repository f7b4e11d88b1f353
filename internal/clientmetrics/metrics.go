// Package clientmetrics counts per-connection traffic for the streaming
// client.
package clientmetrics

import (
	"sync/atomic"
	"time"
)

// ClientMetrics tracks connection and message statistics for one client
// or a group of clients sharing it. All methods are safe for concurrent use.
type ClientMetrics struct {
	connectedAt  atomic.Int64 // unix nanos, 0 when disconnected
	streams      atomic.Int64
	messagesSent atomic.Int64
	messagesRecv atomic.Int64
	bytesSent    atomic.Int64
	bytesRecv    atomic.Int64
	errors       atomic.Int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.connectedAt.Store(time.Now().UnixNano())
}

// StreamOpened counts one server-streaming call.
func (m *ClientMetrics) StreamOpened() {
	m.streams.Add(1)
}

// IncrementSent increments messages sent and bytes sent counters.
func (m *ClientMetrics) IncrementSent(bytes int64) {
	m.messagesSent.Add(1)
	m.bytesSent.Add(bytes)
}

// IncrementReceived increments messages received and bytes received counters.
func (m *ClientMetrics) IncrementReceived(bytes int64) {
	m.messagesRecv.Add(1)
	m.bytesRecv.Add(bytes)
}

// IncrementErrors increments the error counter.
func (m *ClientMetrics) IncrementErrors() {
	m.errors.Add(1)
}

// Reset clears the connection time (used when disconnecting).
func (m *ClientMetrics) Reset() {
	m.connectedAt.Store(0)
}

// ConnectionDuration returns the duration since connection was established.
// Returns 0 if not connected.
func (m *ClientMetrics) ConnectionDuration() time.Duration {
	at := m.connectedAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

// Snapshot is the state of a ClientMetrics at a point in time.
type Snapshot struct {
	ConnectionDuration time.Duration
	StreamsOpened      int64
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Snapshot returns a copy of all counters. Counters are read one by one, so
// a snapshot taken mid-stream may straddle an update.
func (m *ClientMetrics) Snapshot() Snapshot {
	return Snapshot{
		ConnectionDuration: m.ConnectionDuration(),
		StreamsOpened:      m.streams.Load(),
		MessagesSent:       m.messagesSent.Load(),
		MessagesReceived:   m.messagesRecv.Load(),
		BytesSent:          m.bytesSent.Load(),
		BytesReceived:      m.bytesRecv.Load(),
		Errors:             m.errors.Load(),
	}
}
