// Package session drives one viewer's chunk sequence from acceptance to a
// terminal state.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
)

// State is a session's lifecycle position.
type State int

const (
	Active State = iota
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s != Active }

// Request is an immutable stream request.
type Request struct {
	VideoID  string
	Quality  pacer.Quality
	ClientID string
}

// Chunk is one slice of synthetic media.
type Chunk struct {
	Data      []byte
	Number    int64
	Timestamp time.Time
	SizeBytes int64
	Quality   pacer.Quality
}

// Emitter hands a chunk to the consumer. An error means the chunk was not
// delivered.
type Emitter func(ctx context.Context, chunk Chunk) error

// Result summarises a finished session.
type Result struct {
	ID            string
	State         State
	ChunksEmitted int64
	Duration      time.Duration
}

// Config carries a session's collaborators. Pacer and Accounting are
// required; the rest default.
type Config struct {
	Pacer      *pacer.Pacer
	Accounting metrics.ServerAccounting
	Payload    PayloadFunc
	Logger     *zap.Logger
}

// Session is owned by exactly one goroutine for its whole life.
type Session struct {
	id      ulid.ULID
	req     Request
	cfg     Config
	state   State
	emitted int64
}

// New creates a session for req. Accounting is untouched until Run.
func New(req Request, cfg Config) *Session {
	if cfg.Pacer == nil {
		cfg.Pacer = pacer.NewDefault()
	}
	if cfg.Accounting == nil {
		cfg.Accounting = metrics.NopServerAccounting{}
	}
	if cfg.Payload == nil {
		cfg.Payload = RandomPayload
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{id: ulid.Make(), req: req, cfg: cfg}
}

// ID is the session's unique identifier.
func (s *Session) ID() string { return s.id.String() }

// Request returns the request the session serves.
func (s *Session) Request() Request { return s.req }

// Run emits chunks 0..TotalChunks-1 in order until the video ends, a
// failure is injected, the consumer fails, or ctx is cancelled. The active
// session count is incremented on entry and decremented exactly once on
// return, whichever way the session ends.
//
// Errors: ErrDeliveryFailed (as *DeliveryError) for injected faults,
// ErrSessionCancelled when ctx ends or the consumer goes away, and
// ErrUnexpectedFault for anything else.
func (s *Session) Run(ctx context.Context, emit Emitter) (res Result, err error) {
	start := time.Now()
	acct := s.cfg.Accounting
	log := s.cfg.Logger.With(
		zap.String("session_id", s.ID()),
		zap.String("client_id", s.req.ClientID),
		zap.String("video_id", s.req.VideoID),
		zap.String("quality", string(s.req.Quality)),
	)

	s.state = Active
	acct.SessionStarted(string(s.req.Quality))

	defer func() {
		if r := recover(); r != nil {
			s.state = Failed
			acct.ChunkError()
			err = fmt.Errorf("%w: %v", ErrUnexpectedFault, r)
		}
		acct.SessionEnded()

		res = Result{
			ID:            s.ID(),
			State:         s.state,
			ChunksEmitted: s.emitted,
			Duration:      time.Since(start),
		}
		fields := []zap.Field{
			zap.Stringer("state", s.state),
			zap.Int64("chunks", s.emitted),
			zap.Duration("duration", res.Duration),
		}
		switch s.state {
		case Failed:
			log.Warn("stream ended with error", append(fields, zap.Error(err))...)
		case Cancelled:
			log.Info("stream cancelled by consumer", fields...)
		default:
			log.Debug("stream completed", fields...)
		}
	}()

	if emit == nil {
		panic("session: nil emitter")
	}

	p := s.cfg.Pacer
	total := int64(p.TotalChunks())
	size := p.ChunkSize(s.req.Quality)

	for n := int64(0); n < total; n++ {
		if werr := wait(ctx, p.Delay()); werr != nil {
			s.state = Cancelled
			return res, fmt.Errorf("%w: %v", ErrSessionCancelled, werr)
		}

		if p.ShouldFail() {
			s.state = Failed
			acct.ChunkError()
			return res, &DeliveryError{SessionID: s.ID(), Chunk: n}
		}

		produced := time.Now()
		chunk := Chunk{
			Data:      s.cfg.Payload(size),
			Number:    n,
			Timestamp: produced,
			SizeBytes: int64(size),
			Quality:   s.req.Quality,
		}
		if eerr := emit(ctx, chunk); eerr != nil {
			if ctx.Err() != nil || errors.Is(eerr, context.Canceled) {
				s.state = Cancelled
				return res, fmt.Errorf("%w: %v", ErrSessionCancelled, eerr)
			}
			s.state = Failed
			acct.ChunkError()
			return res, fmt.Errorf("%w: emit chunk %d: %v", ErrUnexpectedFault, n, eerr)
		}

		s.emitted++
		acct.ChunkSent()
		acct.ObserveChunkLatency(time.Since(produced))
	}

	s.state = Completed
	return res, nil
}

// wait parks the calling goroutine for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
