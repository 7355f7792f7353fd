// Package transport lets the rest of vsign address a TCP socket, a virtual
// socket (AF_VSOCK) or a unix domain socket through one Connection/Listener
// surface with identical behavior and error semantics.
//
// The package focuses on:
//   - A tagged-variant address (Config) that is parsed once at configuration
//     time and never re-parsed while connecting
//   - A factory (Dial, Listen) that resolves the variant with a single switch
//   - Uniform errors: every bind, connect or accept failure is a *TransportError
//
// Key Components:
//
//   - Config: immutable address, built with NewTCPConfig, NewVsockConfig,
//     NewUnixConfig or ParseConfig. The textual forms are "host:port",
//     "tcp://host:port", "vsock://cid:port" and "unix:///path".
//
//   - Connection: an open byte stream (net.Conn) tagged with its Kind and peer.
//
//   - Listener: a bound endpoint yielding inbound Connections.
//
//   - Dial / Listen: the factory. Dial makes exactly one attempt bounded by
//     Options.Timeout; retrying is the job of the client lifecycle manager.
//
// Platform Support:
//
//	Virtual sockets are Linux only. On other platforms, and on kernels without
//	vsock support, Dial and Listen fail with a TransportError wrapping
//	ErrUnsupported.
//
// Usage:
//
//	cfg, err := transport.ParseConfig("vsock://3:5000")
//	if err != nil {
//	    return err
//	}
//	conn, err := transport.Dial(ctx, cfg, transport.DefaultOptions())
package transport
