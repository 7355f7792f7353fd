package base

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// HandleFunc processes one request frame for a service and returns the
// response payload. It is called concurrently.
type HandleFunc func(service uint64, req []byte) []byte

// ServerOptions tunes the per-connection serving loop
type ServerOptions struct {
	// WorkersPerConn bounds concurrent handlers per connection (minimum 1)
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers
	BufferSize int
	// IdleTimeout closes connections without a request for this long (0 = never)
	IdleTimeout time.Duration
	// WriteTimeout bounds writing one response (0 = unbounded)
	WriteTimeout time.Duration
}

// DefaultServerOptions returns the options used when nothing is configured
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		WorkersPerConn: 64,
		BufferSize:     64 * 1024,
		IdleTimeout:    5 * time.Minute,
		WriteTimeout:   10 * time.Second,
	}
}

// Server serves frames on accepted connections
type Server struct {
	handler    HandleFunc
	opts       ServerOptions
	bufferPool *sync.Pool
	conns      *xsync.MapOf[*transport.Connection, struct{}]
	wg         sync.WaitGroup
}

// NewServer creates a server calling handler for every request frame
func NewServer(handler HandleFunc, opts ServerOptions) *Server {
	opts.WorkersPerConn = max(opts.WorkersPerConn, 1)
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultServerOptions().BufferSize
	}
	bufferSize := opts.BufferSize

	return &Server{
		handler: handler,
		opts:    opts,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
		conns: xsync.NewMapOf[*transport.Connection, struct{}](),
	}
}

// OpenConnections returns the number of connections currently being served
func (s *Server) OpenConnections() int { return s.conns.Size() }

// Serve accepts connections from l until ctx is cancelled or l is closed.
// On return the listener and every open connection are closed and all
// in-flight handlers have finished. Cancellation is a clean shutdown and
// returns nil.
func (s *Server) Serve(ctx context.Context, l *transport.Listener) error {
	Logger.Infof("Serving %s on %s with %d workers per connection",
		l.Config().Kind(), l.Config(), s.opts.WorkersPerConn)

	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var serveErr error
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			Logger.Errorf("Accept error: %v", err)

			// back off briefly so a persistent error does not spin
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		s.conns.Store(conn, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Delete(conn)
			s.handleConnection(conn)
		}()
	}

	if ctx.Err() == nil {
		serveErr = net.ErrClosed
	}

	// shut down open connections and wait for their workers
	s.conns.Range(func(conn *transport.Connection, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	s.wg.Wait()

	Logger.Infof("Server on %s stopped", l.Config())
	return serveErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection reads frames from conn and hands each to a worker. At most
// WorkersPerConn handlers run at once; reading blocks while all are busy.
func (s *Server) handleConnection(conn *transport.Connection) {
	defer conn.Close()

	Logger.Debugf("Accepted %s connection from %s", conn.Kind(), conn.Peer())

	workerSemaphore := make(chan struct{}, s.opts.WorkersPerConn)
	var wg sync.WaitGroup
	var writeMu sync.Mutex

	respond := func(service, requestID uint64, req []byte) {
		start := time.Now()
		resp := s.handler(service, req)
		Logger.Debugf("Request %d for service %d took %s", requestID, service, time.Since(start))

		writeMu.Lock()
		defer writeMu.Unlock()

		if s.opts.WriteTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}
		if err := writeFrame(conn, service, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response to %s: %v", conn.Peer(), err)
			_ = conn.Close()
		}
	}

	for {
		if s.opts.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				break
			}
		}

		buf := s.bufferPool.Get().([]byte)
		service, requestID, req, err := readFrame(conn, buf)
		if err != nil {
			s.bufferPool.Put(buf)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				Logger.Debugf("Connection from %s closed", conn.Peer())
			default:
				Logger.Warningf("Closing connection from %s: %v", conn.Peer(), err)
			}
			break
		}

		workerSemaphore <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				s.bufferPool.Put(buf)
				<-workerSemaphore
				wg.Done()
			}()
			respond(service, requestID, req)
		}()
	}

	// in-flight handlers finish before the connection is released
	wg.Wait()
}
