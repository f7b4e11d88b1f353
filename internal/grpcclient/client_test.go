package grpcclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/torosent/streamload/internal/clientmetrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
	"github.com/torosent/streamload/internal/wire"
)

type scriptedService struct {
	chunks int
	end    error
}

func (s *scriptedService) StreamVideoChunks(ctx context.Context, req session.Request, send func(session.Chunk) error) error {
	for i := 0; i < s.chunks; i++ {
		if err := send(session.Chunk{
			Data:      make([]byte, 16),
			Number:    int64(i),
			Timestamp: time.Now(),
			SizeBytes: 16,
			Quality:   req.Quality,
		}); err != nil {
			return err
		}
	}
	return s.end
}

func (s *scriptedService) GetServerHealth(context.Context) (wire.Health, error) {
	return wire.Health{Status: "healthy", ActiveConnections: 2, TotalChunksSent: 77}, nil
}

func bufTarget(t *testing.T, svc wire.Service) Config {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	wire.Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return Config{
		Target: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		},
	}
}

var testRequest = session.Request{VideoID: "video_9", Quality: pacer.QualityLow, ClientID: "client_0"}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{Target: "localhost:50051"})
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
	if client.Target() != "localhost:50051" {
		t.Errorf("Target() = %q, want localhost:50051", client.Target())
	}
	if client.conn != nil {
		t.Error("Expected conn to be nil initially")
	}
	if got := client.Metrics().StatusCode; got != "UNSET" {
		t.Errorf("StatusCode = %q, want UNSET", got)
	}
}

func TestClientStreamWithoutConnect(t *testing.T) {
	client := NewClient(Config{Target: "localhost:50051"})
	err := client.Stream(context.Background(), testRequest, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Stream() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.Health(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Health() error = %v, want ErrNotConnected", err)
	}
}

func TestClientCloseWithoutConnect(t *testing.T) {
	client := NewClient(Config{Target: "localhost:50051"})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClientDoubleConnect(t *testing.T) {
	client := NewClient(bufTarget(t, &scriptedService{}))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
	if err := client.Connect(context.Background()); err == nil {
		t.Error("second Connect() error = nil, want error")
	}
}

func TestClientStreamCountsChunks(t *testing.T) {
	client := NewClient(bufTarget(t, &scriptedService{chunks: 6}))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var numbers []int64
	err := client.Stream(context.Background(), testRequest, func(c session.Chunk) error {
		numbers = append(numbers, c.Number)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(numbers) != 6 {
		t.Fatalf("received %d chunks, want 6", len(numbers))
	}
	for i, n := range numbers {
		if n != int64(i) {
			t.Errorf("chunk %d has number %d", i, n)
		}
	}

	m := client.Metrics()
	if m.MessagesRecv != 6 || m.BytesRecv != 96 {
		t.Errorf("received = %d msgs / %d bytes, want 6 / 96", m.MessagesRecv, m.BytesRecv)
	}
	if m.MessagesSent != 1 || m.BytesSent <= 0 {
		t.Errorf("sent = %d msgs / %d bytes, want 1 / >0", m.MessagesSent, m.BytesSent)
	}
	if m.Streams != 1 || m.Errors != 0 {
		t.Errorf("streams/errors = %d/%d, want 1/0", m.Streams, m.Errors)
	}
	if m.StatusCode != "OK" {
		t.Errorf("StatusCode = %q, want OK", m.StatusCode)
	}
}

func TestClientStreamSurfacesStatus(t *testing.T) {
	svc := &scriptedService{chunks: 2, end: status.Error(codes.Unavailable, "chunk delivery failed")}
	client := NewClient(bufTarget(t, svc))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	got := 0
	err := client.Stream(context.Background(), testRequest, func(session.Chunk) error {
		got++
		return nil
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("Stream() code = %v (%v), want Unavailable", status.Code(err), err)
	}
	if got != 2 {
		t.Errorf("received %d chunks before failure, want 2", got)
	}
	m := client.Metrics()
	if m.Errors != 1 || m.StatusCode != "Unavailable" {
		t.Errorf("errors/status = %d/%q, want 1/Unavailable", m.Errors, m.StatusCode)
	}
}

func TestClientStreamStopsOnCallbackError(t *testing.T) {
	client := NewClient(bufTarget(t, &scriptedService{chunks: 50}))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	stop := errors.New("enough")
	got := 0
	err := client.Stream(context.Background(), testRequest, func(session.Chunk) error {
		got++
		if got == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Stream() error = %v, want callback error", err)
	}
	if got != 3 {
		t.Errorf("callback ran %d times, want 3", got)
	}
}

func TestClientHealth(t *testing.T) {
	client := NewClient(bufTarget(t, &scriptedService{}))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "healthy" || h.ActiveConnections != 2 || h.TotalChunksSent != 77 {
		t.Errorf("Health() = %+v", h)
	}
}

func TestStreamerSharesMetrics(t *testing.T) {
	cfg := bufTarget(t, &scriptedService{chunks: 4})
	shared := clientmetrics.New()
	cfg.Metrics = shared
	streamer := NewStreamer(cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- streamer.Stream(context.Background(), cfg.Target, testRequest, nil)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
	}

	snap := streamer.Metrics()
	if snap.StreamsOpened != 5 || snap.MessagesReceived != 20 {
		t.Errorf("shared metrics = %+v, want 5 streams / 20 messages", snap)
	}
}

func TestCloseKeepsSharedMetrics(t *testing.T) {
	cfg := bufTarget(t, &scriptedService{chunks: 2})
	shared := clientmetrics.New()
	cfg.Metrics = shared

	client := NewClient(cfg)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Stream(context.Background(), testRequest, nil); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := shared.Snapshot().MessagesReceived; got != 2 {
		t.Errorf("shared MessagesReceived = %d after Close, want 2", got)
	}

	private := NewClient(bufTarget(t, &scriptedService{chunks: 2}))
	if err := private.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := private.Stream(context.Background(), testRequest, nil); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	_ = private.Close()
	if got := private.Metrics().MessagesRecv; got != 0 {
		t.Errorf("private MessagesRecv = %d after Close, want 0", got)
	}
}
