// Package server hosts the VideoStreamingService on one replica: it admits
// stream requests into a bounded session pool, runs each as a session and
// reports replica health.
package server

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
	"github.com/torosent/streamload/internal/tracing"
	"github.com/torosent/streamload/internal/wire"
)

const (
	DefaultMaxSessions = 100
	healthyStatus      = "healthy"
)

// Options configure a VideoService. Zero values select the defaults.
type Options struct {
	NodeID      string
	Pacer       *pacer.Pacer
	Accounting  metrics.ServerAccounting
	Payload     session.PayloadFunc
	MaxSessions int
	// Source feeds the simulated resource usage in health reports. It
	// defaults to the pacer's source.
	Source pacer.Source
	Logger *zap.Logger
	Tracer trace.Tracer
}

func (o *Options) normalize() {
	if o.NodeID == "" {
		o.NodeID = "node-1"
	}
	if o.Pacer == nil {
		o.Pacer = pacer.NewDefault()
	}
	if o.Accounting == nil {
		o.Accounting = metrics.NopServerAccounting{}
	}
	if o.Payload == nil {
		o.Payload = session.RandomPayload
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.Source == nil {
		o.Source = o.Pacer.Source()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("server")
	}
}

// VideoService implements wire.Service. Sessions beyond MaxSessions wait
// for a free slot or for their context to end.
type VideoService struct {
	opts  Options
	slots chan struct{}
	log   *zap.Logger
}

var _ wire.Service = (*VideoService)(nil)

// NewVideoService builds a service from opts.
func NewVideoService(opts Options) *VideoService {
	opts.normalize()
	return &VideoService{
		opts:  opts,
		slots: make(chan struct{}, opts.MaxSessions),
		log:   opts.Logger.With(zap.String("node_id", opts.NodeID)),
	}
}

// Accounting exposes the replica's counters.
func (s *VideoService) Accounting() metrics.ServerAccounting {
	return s.opts.Accounting
}

// StreamVideoChunks runs one session for req, handing each chunk to send.
func (s *VideoService) StreamVideoChunks(ctx context.Context, req session.Request, send func(session.Chunk) error) error {
	if q, ok := pacer.ParseQuality(string(req.Quality)); ok {
		req.Quality = q
	}

	ctx, span := tracing.StartSessionSpan(ctx, s.opts.Tracer, tracing.StreamAttributes{
		NodeID:   s.opts.NodeID,
		VideoID:  req.VideoID,
		Quality:  string(req.Quality),
		ClientID: req.ClientID,
	})

	if err := s.acquire(ctx); err != nil {
		tracing.EndSpan(span, err)
		return status.FromContextError(err).Err()
	}
	defer s.release()

	sess := session.New(req, session.Config{
		Pacer:      s.opts.Pacer,
		Accounting: s.opts.Accounting,
		Payload:    s.opts.Payload,
		Logger:     s.log,
	})
	res, err := sess.Run(ctx, func(_ context.Context, c session.Chunk) error {
		return send(c)
	})
	tracing.EndSpan(span, err,
		attribute.String("streamload.session_id", res.ID),
		attribute.String("streamload.state", res.State.String()),
		attribute.Int64("streamload.chunks", res.ChunksEmitted),
	)
	return toStatus(err)
}

// GetServerHealth reports the replica's live counters alongside simulated
// resource usage.
func (s *VideoService) GetServerHealth(context.Context) (wire.Health, error) {
	snap := s.opts.Accounting.Snapshot()
	return wire.Health{
		Status:            healthyStatus,
		ActiveConnections: int32(snap.ActiveSessions),
		CPUUsage:          pacer.UniformFloat(s.opts.Source, 20, 80),
		MemoryUsage:       pacer.UniformFloat(s.opts.Source, 30, 70),
		TotalChunksSent:   snap.ChunksSent,
	}, nil
}

func (s *VideoService) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	default:
	}
	s.log.Debug("session pool full, waiting for a slot", zap.Int("capacity", cap(s.slots)))
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *VideoService) release() { <-s.slots }

// toStatus maps a session error to the status the client observes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrDeliveryFailed):
		return status.Error(codes.Unavailable, "chunk delivery failed")
	case errors.Is(err, session.ErrSessionCancelled):
		return status.Error(codes.Canceled, "stream cancelled")
	case errors.Is(err, session.ErrUnexpectedFault):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
