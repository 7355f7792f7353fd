// Package unix implements the unix domain socket variant of the transport
// layer. It is mainly used for running server and benchmark on the same host
// without going through the network stack, and in tests.
package unix
