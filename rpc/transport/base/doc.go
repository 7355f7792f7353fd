// Package base implements the framed request/response protocol that runs on
// top of any transport.Connection, independent of whether the stream is TCP,
// vsock or a unix socket.
//
// The package focuses on:
//   - A compact frame format with service and request ids
//   - Request-id multiplexing so many calls can share one connection
//   - Bounded per-connection concurrency on the server side
//
// Key Components:
//
//   - Frame: 8 byte service id, 8 byte request id, 4 byte payload length (all
//     big endian) followed by the payload. Payloads above MaxFrameSize are
//     rejected with ErrFrameTooLarge.
//
//   - Channel: client side of one connection. Invoke registers a request id,
//     writes the frame and waits for the response delivered by the reader
//     goroutine. A read or write failure breaks the channel permanently and
//     fails every pending call with a transport failure.
//
//   - Server: accepts connections from a transport.Listener and runs up to
//     WorkersPerConn handlers per connection. Read buffers are pooled and
//     response writes serialized.
//
// Thread Safety:
//
//	Channel.Invoke may be called from any number of goroutines. Server.Serve
//	runs until its context is cancelled, then closes the listener and all
//	open connections and waits for in-flight handlers.
package base
