// Package grpcclient is the load driver's view of a VideoStreamingService
// replica.
package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/torosent/streamload/internal/clientmetrics"
	"github.com/torosent/streamload/internal/session"
	"github.com/torosent/streamload/internal/tracing"
	"github.com/torosent/streamload/internal/wire"
)

// maxRecvSize leaves headroom above the 1 MiB high-quality chunk.
const maxRecvSize = 8 * 1024 * 1024

// ErrNotConnected is returned by calls made before Connect.
var ErrNotConnected = errors.New("client not connected")

// Metrics holds traffic counters for one client.
type Metrics struct {
	ConnectionDuration time.Duration
	Streams            int64
	MessagesSent       int64
	MessagesRecv       int64
	BytesSent          int64
	BytesRecv          int64
	Errors             int64
	StatusCode         string
}

// Config holds configuration for the gRPC client.
type Config struct {
	Target string
	// DialOptions are appended to the defaults; tests use them to dial an
	// in-memory listener.
	DialOptions []grpc.DialOption
	// Metrics is shared when several short-lived clients report into one
	// set of counters. Nil allocates a private one.
	Metrics   *clientmetrics.ClientMetrics
	Tracer    trace.Tracer
	Propagate bool
}

// Client owns one logical connection to a replica.
type Client struct {
	cfg        Config
	conn       *grpc.ClientConn
	mu         sync.Mutex
	metrics    *clientmetrics.ClientMetrics
	ownMetrics bool
	lastStatus string
}

// NewClient creates an unconnected client for cfg.Target.
func NewClient(cfg Config) *Client {
	own := cfg.Metrics == nil
	if own {
		cfg.Metrics = clientmetrics.New()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("grpcclient")
	}
	return &Client{
		cfg:        cfg,
		metrics:    cfg.Metrics,
		ownMetrics: own,
		lastStatus: "UNSET",
	}
}

// Target is the replica address the client talks to.
func (c *Client) Target() string { return c.cfg.Target }

// Connect establishes the gRPC connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("client already connected")
	}

	conn, err := Dial(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.conn = conn
	c.metrics.MarkConnected()
	return nil
}

// Dial creates a plaintext connection to cfg.Target.
func Dial(_ context.Context, cfg Config) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvSize)),
	}
	opts = append(opts, cfg.DialOptions...)

	// grpc.NewClient is non-blocking; connection errors surface on the
	// first call.
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Target, err)
	}
	return conn, nil
}

func (c *Client) connection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Stream requests req and hands every chunk to onChunk in order. It
// returns nil when the video ends normally, the stream's status error when
// the server ends it early, or onChunk's error, which cancels the stream.
func (c *Client) Stream(ctx context.Context, req session.Request, onChunk func(session.Chunk) error) (err error) {
	conn, err := c.connection()
	if err != nil {
		return err
	}

	ctx, span := tracing.StartClientStreamSpan(ctx, c.cfg.Tracer, tracing.StreamAttributes{
		Target:   c.cfg.Target,
		VideoID:  req.VideoID,
		Quality:  string(req.Quality),
		ClientID: req.ClientID,
	}, c.cfg.Propagate)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		c.recordStatus(err)
		tracing.EndSpan(span, err)
	}()

	c.metrics.StreamOpened()
	stream, err := wire.OpenChunkStream(ctx, conn, req)
	if err != nil {
		c.metrics.IncrementErrors()
		return fmt.Errorf("open stream on %s: %w", c.cfg.Target, err)
	}
	c.metrics.IncrementSent(int64(stream.RequestSize()))

	for {
		chunk, rerr := stream.Recv()
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			c.metrics.IncrementErrors()
			return fmt.Errorf("stream from %s: %w", c.cfg.Target, rerr)
		}
		c.metrics.IncrementReceived(int64(len(chunk.Data)))
		if onChunk == nil {
			continue
		}
		if cerr := onChunk(chunk); cerr != nil {
			return cerr
		}
	}
}

// Health calls GetServerHealth.
func (c *Client) Health(ctx context.Context) (h wire.Health, err error) {
	conn, err := c.connection()
	if err != nil {
		return wire.Health{}, err
	}
	defer func() { c.recordStatus(err) }()

	h, err = wire.GetServerHealth(ctx, conn)
	if err != nil {
		c.metrics.IncrementErrors()
		return wire.Health{}, fmt.Errorf("health of %s: %w", c.cfg.Target, err)
	}
	return h, nil
}

func (c *Client) recordStatus(err error) {
	code := status.Code(err).String()
	c.mu.Lock()
	c.lastStatus = code
	c.mu.Unlock()
}

// Close closes the gRPC connection. Private metrics are reset; shared ones
// keep accumulating.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if c.ownMetrics {
		c.metrics.Reset()
	}
	return err
}

// Metrics returns the current metrics (thread-safe).
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	lastStatus := c.lastStatus
	c.mu.Unlock()

	snapshot := c.metrics.Snapshot()
	return Metrics{
		ConnectionDuration: snapshot.ConnectionDuration,
		Streams:            snapshot.StreamsOpened,
		MessagesSent:       snapshot.MessagesSent,
		MessagesRecv:       snapshot.MessagesReceived,
		BytesSent:          snapshot.BytesSent,
		BytesRecv:          snapshot.BytesReceived,
		Errors:             snapshot.Errors,
		StatusCode:         lastStatus,
	}
}
