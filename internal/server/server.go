package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/torosent/streamload/internal/wire"
)

const (
	// maxMessageSize leaves headroom above the 1 MiB high-quality chunk.
	maxMessageSize      = 8 * 1024 * 1024
	defaultDrainTimeout = 5 * time.Second
)

// Server owns the gRPC listener lifecycle for one replica.
type Server struct {
	grpc  *grpc.Server
	log   *zap.Logger
	drain time.Duration
}

// New registers svc on a fresh gRPC server. Extra options are appended to
// the defaults.
func New(svc wire.Service, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := []grpc.ServerOption{
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.ChainUnaryInterceptor(unaryLogger(logger)),
		grpc.ChainStreamInterceptor(streamLogger(logger)),
	}
	gs := grpc.NewServer(append(base, opts...)...)
	wire.Register(gs, svc)
	return &Server{grpc: gs, log: logger, drain: defaultDrainTimeout}
}

// SetDrainTimeout bounds how long Serve waits for in-flight streams after
// its context ends before closing them.
func (s *Server) SetDrainTimeout(d time.Duration) {
	s.drain = d
}

// Serve accepts connections on lis until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.log.Info("server listening", zap.String("addr", lis.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server shutting down", zap.Duration("drain", s.drain))
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(s.drain)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		s.log.Warn("drain timeout elapsed, closing active streams")
		s.grpc.Stop()
		<-stopped
	}
	return <-errCh
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("unary call",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

func streamLogger(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Debug("stream call",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}
