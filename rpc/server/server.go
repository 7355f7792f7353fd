package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/ValentinKolb/vsign/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var Logger = logger.GetLogger("server")

var errRateLimited = errors.New("server request rate exceeded")

// RPCServer serves the echo, signing and health services
type RPCServer struct {
	config     common.ServerConfig
	serializer serializer.IRPCSerializer
	keys       *signer.KeyManager
	adapters   *xsync.MapOf[uint64, IRPCServerAdapter]
	limiter    *rate.Limiter // nil = unlimited
	transport  *base.Server
	metrics    *serverMetrics
	serving    atomic.Bool
	now        func() time.Time
}

// NewRPCServer creates a server and generates the configured bootstrap keys
//
// Usage:
//
//	s, err := server.NewRPCServer(config, serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	return s.ListenAndServe(ctx)
func NewRPCServer(config common.ServerConfig, s serializer.IRPCSerializer) (*RPCServer, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	keys := signer.NewKeyManager()
	if err := keys.Bootstrap(config.BootstrapKeys...); err != nil {
		return nil, fmt.Errorf("bootstrap keys: %w", err)
	}

	srv := &RPCServer{
		config:     config,
		serializer: s,
		keys:       keys,
		adapters:   xsync.NewMapOf[uint64, IRPCServerAdapter](),
		now:        time.Now,
	}

	if config.RateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(config.RateBurst, 1))
	}

	srv.adapters.Store(common.ServiceEcho, NewEchoServerAdapter(srv.now))
	srv.adapters.Store(common.ServiceSigning, NewSigningServerAdapter(keys, srv.now))
	srv.adapters.Store(common.ServiceHealth, NewHealthServerAdapter(srv.serving.Load, srv.now))

	srv.transport = base.NewServer(srv.handle, base.ServerOptions{
		WorkersPerConn: config.WorkersPerConn,
		BufferSize:     config.BufferSize,
		IdleTimeout:    config.IdleTimeout,
		WriteTimeout:   config.WriteTimeout,
	})
	srv.metrics = newServerMetrics(srv.transport.OpenConnections, keys.Len)

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return srv, nil
}

// Keys returns the server's key manager
func (s *RPCServer) Keys() *signer.KeyManager { return s.keys }

// Serving reports whether the server is accepting connections
func (s *RPCServer) Serving() bool { return s.serving.Load() }

// MetricsHandler returns the HTTP handler for /metrics and /healthz
func (s *RPCServer) MetricsHandler() http.Handler {
	return s.metrics.router(s.serving.Load)
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled
func (s *RPCServer) ListenAndServe(ctx context.Context) error {
	l, err := transport.Listen(s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves connections from l until ctx is cancelled. The metrics
// endpoint, if configured, runs for the same time.
func (s *RPCServer) Serve(ctx context.Context, l *transport.Listener) error {
	if s.config.MetricsEndpoint != "" {
		stop, err := s.serveMetrics()
		if err != nil {
			_ = l.Close()
			return err
		}
		defer stop()
	}

	s.serving.Store(true)
	defer s.serving.Store(false)

	return s.transport.Serve(ctx, l)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handle is the frame handler passed to the transport
func (s *RPCServer) handle(service uint64, req []byte) []byte {
	start := time.Now()
	resp := s.dispatch(service, req)
	s.metrics.observe(service, resp, time.Since(start))

	out, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("Failed to serialize %s response: %v", resp.MsgType, err)
		out, _ = s.serializer.Serialize(*common.NewErrorResponse(common.CodeInternal,
			fmt.Errorf("failed to serialize response: %w", err)))
	}
	return out
}

// dispatch decodes a request and lets the service adapter handle it
func (s *RPCServer) dispatch(service uint64, req []byte) *common.Message {
	if s.limiter != nil && !s.limiter.Allow() {
		return common.NewErrorResponse(common.CodeRateLimited, errRateLimited)
	}

	adapter, ok := s.adapters.Load(service)
	if !ok {
		return common.NewErrorResponse(common.CodeUnknownService, fmt.Errorf("unknown service %d", service))
	}

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return common.NewErrorResponse(common.CodeBadRequest, fmt.Errorf("failed to deserialize request: %w", err))
	}

	return s.safeHandle(adapter, service, &msg)
}

// safeHandle runs the adapter and turns a panic into an internal error
func (s *RPCServer) safeHandle(adapter IRPCServerAdapter, service uint64, msg *common.Message) (resp *common.Message) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Handler for %s panicked on %s request: %v", common.ServiceName(service), msg.MsgType, r)
			resp = common.NewErrorResponse(common.CodeInternal, fmt.Errorf("internal error handling %s", msg.MsgType))
		}
	}()

	resp = adapter.Handle(msg)
	if resp == nil {
		resp = common.NewErrorResponse(common.CodeInternal, fmt.Errorf("no response for %s", msg.MsgType))
	}
	return resp
}

// serveMetrics starts the HTTP metrics endpoint and returns its shutdown func
func (s *RPCServer) serveMetrics() (func(), error) {
	l, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}

	srv := &http.Server{
		Handler:           s.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Infof("Serving metrics on http://%s/metrics", l.Addr())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
