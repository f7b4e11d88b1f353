package pacer

import "time"

const (
	DefaultMinDelay        = 50 * time.Millisecond
	DefaultMaxDelay        = 100 * time.Millisecond
	DefaultVideoSeconds    = 60
	DefaultChunksPerSecond = 20
	DefaultFailureRate     = 0.01
)

// Options tune a Pacer. Zero values select the defaults.
type Options struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	VideoSeconds    int
	ChunksPerSecond int
	// FailureRate is the per-chunk failure probability. Negative disables
	// injection; zero selects DefaultFailureRate.
	FailureRate float64
	// NoDelay turns pacing off entirely, for tests that only care about
	// sequencing.
	NoDelay bool
	Source  Source
}

func (o *Options) normalize() {
	if o.MinDelay <= 0 && !o.NoDelay {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay <= 0 && !o.NoDelay {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.VideoSeconds <= 0 {
		o.VideoSeconds = DefaultVideoSeconds
	}
	if o.ChunksPerSecond <= 0 {
		o.ChunksPerSecond = DefaultChunksPerSecond
	}
	if o.FailureRate == 0 {
		o.FailureRate = DefaultFailureRate
	}
	if o.FailureRate < 0 {
		o.FailureRate = 0
	}
	if o.Source == nil {
		o.Source = NewClockSource()
	}
}

// Pacer is the chunking and pacing policy shared by every session on a
// replica.
type Pacer struct {
	opt Options
}

// New builds a Pacer from opt.
func New(opt Options) *Pacer {
	opt.normalize()
	return &Pacer{opt: opt}
}

// NewDefault returns the production policy with a clock-seeded source.
func NewDefault() *Pacer {
	return New(Options{})
}

// ChunkSize returns the fixed chunk size for q.
func (p *Pacer) ChunkSize(q Quality) int {
	return ChunkSize(q)
}

// TotalChunks is the chunk count of one synthetic video.
func (p *Pacer) TotalChunks() int {
	return p.opt.VideoSeconds * p.opt.ChunksPerSecond
}

// Delay draws the wait before the next chunk.
func (p *Pacer) Delay() time.Duration {
	if p.opt.NoDelay && p.opt.MaxDelay == 0 {
		return 0
	}
	return Uniform(p.opt.Source, p.opt.MinDelay, p.opt.MaxDelay)
}

// FailureRate is the configured per-chunk failure probability.
func (p *Pacer) FailureRate() float64 {
	return p.opt.FailureRate
}

// ShouldFail runs one independent failure trial.
func (p *Pacer) ShouldFail() bool {
	if p.opt.FailureRate <= 0 {
		return false
	}
	return p.opt.Source.Float64() < p.opt.FailureRate
}

// Source exposes the random source so collaborators draw from the same
// stream.
func (p *Pacer) Source() Source {
	return p.opt.Source
}
