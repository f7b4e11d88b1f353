package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Endpoint is a running /metrics HTTP server.
type Endpoint struct {
	addr   string
	server *http.Server
	done   chan struct{}
}

var (
	endpointsMu sync.Mutex
	endpoints   = map[string]*Endpoint{}
)

// StartEndpoint serves gatherer at http://addr/metrics. Calling it again with
// the same addr returns the endpoint already running there.
func StartEndpoint(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) (*Endpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpointsMu.Lock()
	defer endpointsMu.Unlock()

	if ep, ok := endpoints[addr]; ok {
		return ep, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	ep := &Endpoint{
		addr: lis.Addr().String(),
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
	endpoints[addr] = ep

	go func() {
		defer close(ep.done)
		if err := ep.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint stopped", zap.String("addr", ep.addr), zap.Error(err))
		}
	}()
	logger.Info("metrics available", zap.String("url", "http://"+ep.addr+"/metrics"))
	return ep, nil
}

// Addr is the bound listen address.
func (e *Endpoint) Addr() string { return e.addr }

// Shutdown stops the endpoint and forgets it so the address can be reused.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	endpointsMu.Lock()
	for k, v := range endpoints {
		if v == e {
			delete(endpoints, k)
		}
	}
	endpointsMu.Unlock()

	err := e.server.Shutdown(ctx)
	<-e.done
	return err
}
