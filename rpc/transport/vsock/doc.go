// Package vsock implements the virtual socket (AF_VSOCK) variant of the
// transport layer on top of github.com/mdlayher/vsock.
//
// Virtual sockets connect a hypervisor guest with its host (or, with the
// vsock_loopback module, a machine with itself) without a network stack.
// Endpoints are addressed by a context id and a port. Only Linux supports
// them; on every other platform, and on Linux kernels without vsock support,
// Dial and Listen fail with an error wrapping ErrUnsupported.
package vsock
