package session_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
)

func fastPacer(src pacer.Source, failureRate float64) *pacer.Pacer {
	return pacer.New(pacer.Options{NoDelay: true, FailureRate: failureRate, Source: src})
}

func collect(chunks *[]session.Chunk) session.Emitter {
	return func(_ context.Context, c session.Chunk) error {
		c.Data = nil
		*chunks = append(*chunks, c)
		return nil
	}
}

func TestCompletedSessionEmitsEveryChunkInOrder(t *testing.T) {
	acct := metrics.NewServerAccounting("node-1", nil)
	s := session.New(session.Request{VideoID: "video_1", Quality: pacer.QualityLow, ClientID: "client_0"}, session.Config{
		Pacer:      fastPacer(pacer.NewSource(1), -1),
		Accounting: acct,
		Payload:    session.ZeroPayload,
	})

	var got []session.Chunk
	res, err := s.Run(context.Background(), collect(&got))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != session.Completed {
		t.Fatalf("state = %s, want completed", res.State)
	}
	if len(got) != 1200 || res.ChunksEmitted != 1200 {
		t.Fatalf("emitted %d chunks (result %d), want 1200", len(got), res.ChunksEmitted)
	}
	for i, c := range got {
		if c.Number != int64(i) {
			t.Fatalf("chunk %d has number %d", i, c.Number)
		}
		if c.SizeBytes != 262144 || c.Quality != pacer.QualityLow {
			t.Fatalf("chunk %d = size %d quality %q", i, c.SizeBytes, c.Quality)
		}
	}
	snap := acct.Snapshot()
	if snap.ChunksSent != 1200 || snap.ActiveSessions != 0 || snap.ChunkErrors != 0 {
		t.Fatalf("unexpected accounting %+v", snap)
	}
}

func TestInjectedFailureIsRepeatableAndHaltsEmission(t *testing.T) {
	const seed = 20240611

	// Replay the same generator to find where the first trial succeeds.
	replay := rand.New(rand.NewSource(seed))
	want := int64(-1)
	for n := int64(0); n < 1200; n++ {
		if replay.Float64() < 0.01 {
			want = n
			break
		}
	}
	if want < 0 {
		t.Skip("seed produced no failure within one video")
	}

	run := func() (session.Result, []session.Chunk, error) {
		acct := metrics.NewServerAccounting("node-1", nil)
		s := session.New(session.Request{Quality: pacer.QualityMedium}, session.Config{
			Pacer:      fastPacer(pacer.NewSource(seed), 0.01),
			Accounting: acct,
			Payload:    session.ZeroPayload,
		})
		var got []session.Chunk
		res, err := s.Run(context.Background(), collect(&got))
		if snap := acct.Snapshot(); snap.ChunkErrors != 1 || snap.ActiveSessions != 0 {
			t.Fatalf("unexpected accounting %+v", snap)
		}
		return res, got, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		res, got, err := run()
		if !errors.Is(err, session.ErrDeliveryFailed) {
			t.Fatalf("attempt %d: error = %v, want ErrDeliveryFailed", attempt, err)
		}
		var derr *session.DeliveryError
		if !errors.As(err, &derr) || derr.Chunk != want {
			t.Fatalf("attempt %d: failure at %+v, want chunk %d", attempt, derr, want)
		}
		if res.State != session.Failed {
			t.Fatalf("attempt %d: state = %s, want failed", attempt, res.State)
		}
		if int64(len(got)) != want || res.ChunksEmitted != want {
			t.Fatalf("attempt %d: emitted %d chunks, want %d", attempt, len(got), want)
		}
	}
}

func TestFailureOnFirstTrial(t *testing.T) {
	s := session.New(session.Request{Quality: pacer.QualityHigh}, session.Config{
		Pacer:   fastPacer(pacer.NewSequenceSource(0), 0.01),
		Payload: session.ZeroPayload,
	})
	var got []session.Chunk
	res, err := s.Run(context.Background(), collect(&got))
	if !errors.Is(err, session.ErrDeliveryFailed) {
		t.Fatalf("error = %v", err)
	}
	if len(got) != 0 || res.ChunksEmitted != 0 {
		t.Fatalf("emitted %d chunks after immediate failure", len(got))
	}
}

func TestConcurrentSessionsDoNotLoseUpdates(t *testing.T) {
	const k = 64
	acct := metrics.NewServerAccounting("node-1", nil)
	src := pacer.NewSource(99)
	p := pacer.New(pacer.Options{NoDelay: true, VideoSeconds: 5, Source: src, FailureRate: 0.01})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int64
	)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := session.New(session.Request{Quality: pacer.QualityLow}, session.Config{
				Pacer: p, Accounting: acct, Payload: session.ZeroPayload,
			})
			res, _ := s.Run(context.Background(), func(context.Context, session.Chunk) error { return nil })
			mu.Lock()
			emitted += res.ChunksEmitted
			mu.Unlock()
		}()
	}
	wg.Wait()

	snap := acct.Snapshot()
	if snap.ChunksSent != emitted {
		t.Fatalf("chunks sent = %d, sum of sessions = %d", snap.ChunksSent, emitted)
	}
	if snap.ActiveSessions != 0 || snap.GaugeUnderflows != 0 {
		t.Fatalf("gauge not at baseline: %+v", snap)
	}
	if snap.TotalStreams() != k {
		t.Fatalf("streams started = %d, want %d", snap.TotalStreams(), k)
	}
}

func TestGaugeBalancedOnEveryTerminalPath(t *testing.T) {
	acct := metrics.NewServerAccounting("node-1", nil)

	paths := []struct {
		name  string
		src   pacer.Source
		rate  float64
		emit  func(cancel context.CancelFunc) session.Emitter
		state session.State
	}{
		{
			name: "completed",
			src:  pacer.NewSource(1),
			rate: -1,
			emit: func(context.CancelFunc) session.Emitter {
				return func(context.Context, session.Chunk) error { return nil }
			},
			state: session.Completed,
		},
		{
			name: "failed",
			src:  pacer.NewSequenceSource(0.5, 0.5, 0.001),
			rate: 0.01,
			emit: func(context.CancelFunc) session.Emitter {
				return func(context.Context, session.Chunk) error { return nil }
			},
			state: session.Failed,
		},
		{
			name: "cancelled",
			src:  pacer.NewSource(1),
			rate: -1,
			emit: func(cancel context.CancelFunc) session.Emitter {
				return func(_ context.Context, c session.Chunk) error {
					if c.Number == 2 {
						cancel()
					}
					return nil
				}
			},
			state: session.Cancelled,
		},
		{
			name: "consumer fault",
			src:  pacer.NewSource(1),
			rate: -1,
			emit: func(context.CancelFunc) session.Emitter {
				return func(context.Context, session.Chunk) error { return errors.New("broken pipe") }
			},
			state: session.Failed,
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		for _, path := range paths {
			path := path
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				s := session.New(session.Request{Quality: pacer.QualityMedium}, session.Config{
					Pacer:      pacer.New(pacer.Options{NoDelay: true, VideoSeconds: 1, FailureRate: path.rate, Source: path.src}),
					Accounting: acct,
					Payload:    session.ZeroPayload,
				})
				res, _ := s.Run(ctx, path.emit(cancel))
				if res.State != path.state {
					t.Errorf("%s: state = %s, want %s", path.name, res.State, path.state)
				}
			}()
		}
	}
	wg.Wait()

	snap := acct.Snapshot()
	if snap.ActiveSessions != 0 {
		t.Fatalf("active sessions = %d after all sessions ended", snap.ActiveSessions)
	}
	if snap.GaugeUnderflows != 0 {
		t.Fatalf("gauge underflowed %d times", snap.GaugeUnderflows)
	}
	if snap.TotalStreams() != 100 {
		t.Fatalf("streams started = %d, want 100", snap.TotalStreams())
	}
}

func TestCancellationStopsWithinBoundedTime(t *testing.T) {
	acct := metrics.NewServerAccounting("node-1", nil)
	p := pacer.New(pacer.Options{
		MinDelay:    time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		FailureRate: -1,
		Source:      pacer.NewSource(3),
	})
	s := session.New(session.Request{Quality: pacer.QualityLow}, session.Config{
		Pacer: p, Accounting: acct, Payload: session.ZeroPayload,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan session.Result, 1)
	go func() {
		res, err := s.Run(ctx, func(_ context.Context, c session.Chunk) error {
			if c.Number == 5 {
				cancel()
			}
			return nil
		})
		if !errors.Is(err, session.ErrSessionCancelled) {
			t.Errorf("error = %v, want ErrSessionCancelled", err)
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.State != session.Cancelled {
			t.Fatalf("state = %s, want cancelled", res.State)
		}
		if res.ChunksEmitted != 6 {
			t.Fatalf("emitted %d chunks, want 6", res.ChunksEmitted)
		}
	case <-time.After(time.Second):
		t.Fatal("session did not observe cancellation")
	}
	if got := acct.Snapshot().ActiveSessions; got != 0 {
		t.Fatalf("active sessions = %d, want 0", got)
	}
}

func TestPanicInProductionIsRecovered(t *testing.T) {
	acct := metrics.NewServerAccounting("node-1", nil)
	s := session.New(session.Request{Quality: pacer.QualityLow}, session.Config{
		Pacer:      fastPacer(pacer.NewSource(1), -1),
		Accounting: acct,
		Payload:    func(int) []byte { panic("encoder exploded") },
	})
	res, err := s.Run(context.Background(), func(context.Context, session.Chunk) error { return nil })
	if !errors.Is(err, session.ErrUnexpectedFault) {
		t.Fatalf("error = %v, want ErrUnexpectedFault", err)
	}
	if res.State != session.Failed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	snap := acct.Snapshot()
	if snap.ActiveSessions != 0 || snap.ChunkErrors != 1 {
		t.Fatalf("unexpected accounting %+v", snap)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[session.State]string{
		session.Active:    "active",
		session.Completed: "completed",
		session.Failed:    "failed",
		session.Cancelled: "cancelled",
	} {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
	if session.Active.Terminal() || !session.Cancelled.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
