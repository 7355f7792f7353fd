package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

// ErrChannelClosed is the cause reported by a Channel closed by its owner
var ErrChannelClosed = errors.New("channel closed")

// result is what the reader goroutine hands to a waiting call
type result struct {
	payload []byte
	err     error
}

// Channel multiplexes concurrent calls over one connection. Each call gets a
// request id, the reader goroutine routes responses back by that id.
//
// Any read or write failure breaks the channel for good: Done is closed, Err
// reports the cause and every pending call fails with a transport failure.
type Channel struct {
	conn         net.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan result]

	done     chan struct{}
	failOnce sync.Once
	err      error // written once before done is closed
}

// NewChannel starts serving calls over conn. The channel owns conn from now
// on and closes it when it breaks. writeTimeout bounds a single frame write
// when the call context has no deadline (0 = unbounded).
func NewChannel(conn net.Conn, writeTimeout time.Duration) *Channel {
	c := &Channel{
		conn:         conn,
		writeTimeout: writeTimeout,
		pending:      xsync.NewMapOf[uint64, chan result](),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Invoke sends payload to service and waits for the matching response.
// Failures are *common.RpcError of kind TransportFailure (the channel is
// broken) or Timeout (ctx expired or was cancelled before the response). A
// payload above MaxFrameSize fails with ErrFrameTooLarge and leaves the
// channel usable.
func (c *Channel) Invoke(ctx context.Context, service uint64, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	if err := ctx.Err(); err != nil {
		return nil, common.NewTimeout(err)
	}
	if c.broken() {
		return nil, common.NewTransportFailure(c.err)
	}

	id := c.nextID.Add(1)
	ch := make(chan result, 1)
	c.pending.Store(id, ch)

	// fail() closes done before draining pending, so a call registered after
	// the drain is caught here
	if c.broken() {
		c.pending.Delete(id)
		return nil, common.NewTransportFailure(c.err)
	}

	if err := c.write(ctx, service, id, payload); err != nil {
		c.pending.Delete(id)
		c.fail(err)
		return nil, common.NewTransportFailure(err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		// a response arriving later finds no entry and is dropped
		c.pending.Delete(id)
		return nil, common.NewTimeout(ctx.Err())
	}
}

// Done is closed once the channel is broken or closed
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the reason the channel broke, nil while it is usable
func (c *Channel) Err() error {
	if c.broken() {
		return c.err
	}
	return nil
}

// Pending returns the number of calls waiting for a response
func (c *Channel) Pending() int { return c.pending.Size() }

// Close breaks the channel with ErrChannelClosed and closes the connection.
// Closing an already broken channel is a no-op.
func (c *Channel) Close() error {
	c.fail(ErrChannelClosed)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Channel) broken() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) write(ctx context.Context, service, id uint64, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok && c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return writeFrame(c.conn, service, id, payload)
}

func (c *Channel) readLoop() {
	for {
		// nil buffer: every payload gets its own slice since it is handed to the caller
		_, id, payload, err := readFrame(c.conn, nil)
		if err != nil {
			c.fail(err)
			return
		}

		ch, ok := c.pending.LoadAndDelete(id)
		if !ok {
			Logger.Debugf("Dropping late response for request %d", id)
			continue
		}
		ch <- result{payload: payload}
	}
}

// fail breaks the channel exactly once
func (c *Channel) fail(cause error) {
	c.failOnce.Do(func() {
		if cause == nil {
			cause = ErrChannelClosed
		}
		c.err = cause
		close(c.done)
		_ = c.conn.Close()

		if !errors.Is(cause, ErrChannelClosed) {
			Logger.Warningf("Channel to %s broken: %v", c.conn.RemoteAddr(), cause)
		}

		rpcErr := common.NewTransportFailure(cause)
		c.pending.Range(func(id uint64, _ chan result) bool {
			if ch, ok := c.pending.LoadAndDelete(id); ok {
				ch <- result{err: rpcErr}
			}
			return true
		})
	})
}
