package grpcclient

import (
	"context"

	"github.com/torosent/streamload/internal/clientmetrics"
	"github.com/torosent/streamload/internal/session"
)

// Streamer opens a fresh connection for every stream, the way each viewer
// iteration of the load driver reconnects. All clients it creates report
// into one shared ClientMetrics.
type Streamer struct {
	base Config
}

// NewStreamer returns a Streamer whose clients inherit base. base.Target is
// ignored.
func NewStreamer(base Config) *Streamer {
	if base.Metrics == nil {
		base.Metrics = clientmetrics.New()
	}
	return &Streamer{base: base}
}

// Stream connects to target, runs one stream and closes the connection.
func (s *Streamer) Stream(ctx context.Context, target string, req session.Request, onChunk func(session.Chunk) error) error {
	cfg := s.base
	cfg.Target = target
	c := NewClient(cfg)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()
	return c.Stream(ctx, req, onChunk)
}

// Metrics is the traffic summed over every stream so far.
func (s *Streamer) Metrics() clientmetrics.Snapshot {
	return s.base.Metrics.Snapshot()
}
