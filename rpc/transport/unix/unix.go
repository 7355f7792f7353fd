package unix

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"
)

// Dial opens one connection to the unix socket at path
func Dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "unix", path)
}

// ErrPathInUse is returned by Listen when path exists and is not a socket
var ErrPathInUse = errors.New("path exists and is not a socket")

// Listen binds a unix socket at path. A stale socket file left behind by a
// previous process is removed first; any other file at path is left alone.
func Listen(path string) (net.Listener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %w", err)
	}
	return listener, nil
}

func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	case fi.Mode()&fs.ModeSocket == 0:
		return fmt.Errorf("%w: %s (%s)", ErrPathInUse, path, fi.Mode().Type())
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Upgrade sets the socket buffer sizes of conn if it is a unix connection
func Upgrade(conn net.Conn, readBuffer, writeBuffer int) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if writeBuffer > 0 {
		if err := unixConn.SetWriteBuffer(writeBuffer); err != nil {
			return err
		}
	}
	if readBuffer > 0 {
		if err := unixConn.SetReadBuffer(readBuffer); err != nil {
			return err
		}
	}
	return nil
}
