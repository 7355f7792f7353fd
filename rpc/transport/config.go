package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport Kind
// --------------------------------------------------------------------------

// Kind identifies the concrete byte-stream mechanism behind a Config
type Kind uint8

const (
	KindTCP   Kind = iota + 1 // standard network socket
	KindVsock                 // hypervisor-local virtual socket (AF_VSOCK)
	KindUnix                  // unix domain socket
)

// String returns the transport name as it is shown in logs and reports
func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "TCP"
	case KindVsock:
		return "VSOCK"
	case KindUnix:
		return "UNIX"
	default:
		return "UNKNOWN"
	}
}

const (
	schemeVsock = "vsock://"
	schemeUnix  = "unix://"
	schemeTCP   = "tcp://"
)

// --------------------------------------------------------------------------
// Config (tagged variant)
// --------------------------------------------------------------------------

// Config is the address of a transport endpoint. Exactly one variant is
// active and the value never changes after construction. Configs are
// comparable with ==.
type Config struct {
	kind Kind
	host string // tcp
	path string // unix
	cid  uint32 // vsock
	port uint32 // tcp, vsock
}

// NewTCPConfig returns a Config for a TCP endpoint
func NewTCPConfig(host string, port uint16) Config {
	return Config{kind: KindTCP, host: host, port: uint32(port)}
}

// NewVsockConfig returns a Config for a virtual socket endpoint. When used for
// Listen, a context id of 0 binds to the local context id.
func NewVsockConfig(contextID, port uint32) Config {
	return Config{kind: KindVsock, cid: contextID, port: port}
}

// NewUnixConfig returns a Config for a unix domain socket
func NewUnixConfig(path string) Config {
	return Config{kind: KindUnix, path: path}
}

// ParseConfig parses the textual address form. Accepted forms:
//
//	vsock://<cid>:<port>
//	unix://<path>
//	tcp://<host>:<port>
//	<host>:<port>
func ParseConfig(text string) (Config, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Config{}, newConfigError(text, "address is empty")
	}

	switch {
	case strings.HasPrefix(text, schemeVsock):
		rest := strings.TrimPrefix(text, schemeVsock)
		cidStr, portStr, ok := strings.Cut(rest, ":")
		if !ok {
			return Config{}, newConfigError(text, "expected vsock://<cid>:<port>")
		}
		cid, err := strconv.ParseUint(cidStr, 10, 32)
		if err != nil {
			return Config{}, newConfigError(text, fmt.Sprintf("invalid context id %q", cidStr))
		}
		port, err := strconv.ParseUint(portStr, 10, 32)
		if err != nil {
			return Config{}, newConfigError(text, fmt.Sprintf("invalid port %q", portStr))
		}
		return NewVsockConfig(uint32(cid), uint32(port)), nil

	case strings.HasPrefix(text, schemeUnix):
		path := strings.TrimPrefix(text, schemeUnix)
		if path == "" {
			return Config{}, newConfigError(text, "unix socket path is empty")
		}
		return NewUnixConfig(path), nil
	}

	hostPort := strings.TrimPrefix(text, schemeTCP)
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return Config{}, newConfigError(text, err.Error())
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Config{}, newConfigError(text, fmt.Sprintf("invalid port %q", portStr))
	}
	return NewTCPConfig(host, uint16(port)), nil
}

// MustParseConfig is like ParseConfig but panics on error. Intended for
// tests and constant addresses.
func MustParseConfig(text string) Config {
	c, err := ParseConfig(text)
	if err != nil {
		panic(err)
	}
	return c
}

// Kind returns the active variant
func (c Config) Kind() Kind { return c.kind }

// Host returns the TCP host (empty for other variants)
func (c Config) Host() string { return c.host }

// Port returns the TCP or vsock port
func (c Config) Port() uint32 { return c.port }

// ContextID returns the vsock context id
func (c Config) ContextID() uint32 { return c.cid }

// Path returns the unix socket path
func (c Config) Path() string { return c.path }

// IsZero reports whether c was never initialized
func (c Config) IsZero() bool { return c.kind == 0 }

// String renders the canonical textual form, which ParseConfig accepts
func (c Config) String() string {
	switch c.kind {
	case KindTCP:
		return net.JoinHostPort(c.host, strconv.FormatUint(uint64(c.port), 10))
	case KindVsock:
		return fmt.Sprintf("%s%d:%d", schemeVsock, c.cid, c.port)
	case KindUnix:
		return schemeUnix + c.path
	default:
		return "<unset>"
	}
}

// --------------------------------------------------------------------------
// Configuration Errors
// --------------------------------------------------------------------------

// ErrInvalidAddress is wrapped by every ConfigError
var ErrInvalidAddress = errors.New("invalid transport address")

// ConfigError reports an address that could not be parsed
type ConfigError struct {
	Address string
	Reason  string
}

func newConfigError(address, reason string) *ConfigError {
	return &ConfigError{Address: address, Reason: reason}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrInvalidAddress, e.Address, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidAddress }
