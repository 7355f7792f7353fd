// Package tcp holds the TCP specific part of the transport layer: dialing,
// binding and applying socket options to an established connection.
//
// The package is deliberately small. Everything that does not depend on the
// medium (framing, request correlation, the serving loop) lives in the base
// package, and the selection between TCP, vsock and unix sockets happens once
// in the transport package's factory.
//
// Socket options (see Tuning):
//
//   - NoDelay disables Nagle's algorithm, which is what request/response
//     traffic with small frames wants.
//   - Read and write buffer sizes are passed through to the kernel.
//   - KeepAlive enables TCP keep-alive probes with the given period.
//   - LingerSec sets SO_LINGER when non-negative.
package tcp
