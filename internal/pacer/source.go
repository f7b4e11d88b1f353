package pacer

import (
	"math/rand"
	"sync"
	"time"
)

// Source supplies uniform draws in [0, 1).
type Source interface {
	Float64() float64
}

// lockedSource guards a math/rand generator so many sessions can share it.
type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSource returns a goroutine-safe Source seeded with seed.
func NewSource(seed int64) Source {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

// NewClockSource seeds a Source from the wall clock.
func NewClockSource() Source {
	return NewSource(time.Now().UnixNano())
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// SequenceSource replays a fixed list of draws, cycling when exhausted.
type SequenceSource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequenceSource returns a Source that yields values in order.
func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{values: append([]float64(nil), values...)}
}

func (s *SequenceSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Uniform draws a duration uniformly from [min, max].
func Uniform(src Source, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(src.Float64()*float64(max-min))
}

// UniformFloat draws a float64 uniformly from [min, max).
func UniformFloat(src Source, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + src.Float64()*(max-min)
}

// Intn draws an integer uniformly from [0, n).
func Intn(src Source, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
