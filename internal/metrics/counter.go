package metrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(n int64)
	Value() int64
}

// Gauge is a value that moves both ways and never drops below zero.
// Dec reports whether it moved the value; a refused Dec counts as an
// underflow.
type Gauge interface {
	Inc()
	Dec() bool
	Value() int64
	Underflows() int64
}

type atomicCounter struct {
	v atomic.Int64
}

// NewCounter returns a lock-free Counter.
func NewCounter() Counter { return &atomicCounter{} }

func (c *atomicCounter) Inc() { c.v.Add(1) }

func (c *atomicCounter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.v.Add(n)
}

func (c *atomicCounter) Value() int64 { return c.v.Load() }

type atomicGauge struct {
	v         atomic.Int64
	underflow atomic.Int64
}

// NewGauge returns a lock-free Gauge clamped at zero.
func NewGauge() Gauge { return &atomicGauge{} }

func (g *atomicGauge) Inc() { g.v.Add(1) }

func (g *atomicGauge) Dec() bool {
	for {
		cur := g.v.Load()
		if cur <= 0 {
			g.underflow.Add(1)
			return false
		}
		if g.v.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (g *atomicGauge) Value() int64 { return g.v.Load() }

// Underflows counts Dec calls that hit zero; anything above zero is a bug
// in the caller's bookkeeping.
func (g *atomicGauge) Underflows() int64 { return g.underflow.Load() }

// StreamKey labels a replica's stream counters.
type StreamKey struct {
	Quality string
	NodeID  string
}

// QualityKey labels the driver's stream counters.
type QualityKey struct {
	Quality string
}

// ErrorKey labels error counters.
type ErrorKey struct {
	Kind string
}

// counterMap is a set of Counters indexed by a comparable label key.
type counterMap[K comparable] struct {
	mu     sync.RWMutex
	values map[K]Counter
}

func newCounterMap[K comparable]() *counterMap[K] {
	return &counterMap[K]{values: make(map[K]Counter)}
}

func (m *counterMap[K]) get(key K) Counter {
	m.mu.RLock()
	c, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.values[key]; ok {
		return c
	}
	c = NewCounter()
	m.values[key] = c
	return c
}

func (m *counterMap[K]) snapshot() map[K]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[K]int64, len(m.values))
	for k, c := range m.values {
		out[k] = c.Value()
	}
	return out
}
