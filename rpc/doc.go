// Package rpc provides the request/response layer between vsign clients and
// the signing server. It moves opaque payloads addressed to a service id over
// one connection per session and matches responses to requests by id.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, error taxonomy, retry policy,
//     configuration structures, and logging.
//
//   - transport: Connection setup over TCP, vsock and Unix sockets behind one
//     address type; transport/base adds the frame codec, the multiplexing call
//     channel and the per-connection serving loop.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The connection lifecycle manager, the signing client stub and the
//     benchmark workloads.
//
//   - server: The RPC server with adapters for the echo, signing and health
//     services, an admission limiter and Prometheus metrics.
package rpc
