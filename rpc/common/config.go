package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/transport"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the signing server
type ServerConfig struct {
	// Listen is the address the RPC listener binds to
	Listen transport.Config

	// per connection serving loop
	WorkersPerConn int
	BufferSize     int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration

	// admission limiter (RateLimit 0 = unlimited)
	RateLimit float64
	RateBurst int

	// MetricsEndpoint is the HTTP address for /metrics and /healthz ("" = disabled)
	MetricsEndpoint string

	// BootstrapKeys are generated at startup as default keys
	BootstrapKeys []signer.KeyType

	// Serializer is the wire encoding of messages (json, gob, binary)
	Serializer string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Listen", c.Listen.String())
	addField("Transport", c.Listen.Kind().String())
	addField("Serializer", c.Serializer)
	addField("Workers Per Conn", strconv.Itoa(c.WorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d KB", c.BufferSize/1024))
	addField("Idle Timeout", c.IdleTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())

	addSection("Admission")
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%g req/s", c.RateLimit))
		addField("Burst", strconv.Itoa(c.RateBurst))
	} else {
		addField("Rate Limit", "unlimited")
	}

	addSection("Keys")
	if len(c.BootstrapKeys) == 0 {
		addField("Bootstrap", "none")
	}
	for _, kt := range c.BootstrapKeys {
		addField(kt.String(), kt.DefaultKeyID())
	}

	addSection("Observability")
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the parameters of one client session
type ClientConfig struct {
	// Server is the address of the signing server
	Server transport.Config

	// Dial tunes every connection attempt
	Dial transport.Options

	// Retry bounds connection setup
	Retry RetryPolicy

	// CallTimeout bounds a single call (0 = only the caller's context)
	CallTimeout time.Duration

	// Serializer is the wire encoding of messages (json, gob, binary)
	Serializer string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Server", c.Server.String())
	addField("Transport", c.Server.Kind().String())
	addField("Serializer", c.Serializer)
	addField("Call Timeout", c.CallTimeout.String())

	addSection("Connection Setup")
	addField("Dial Timeout", c.Dial.Timeout.String())
	addField("Max Attempts", strconv.Itoa(c.Retry.MaxAttempts))
	addField("Initial Delay", c.Retry.InitialDelay.String())
	addField("Backoff Multiplier", fmt.Sprintf("%g", c.Retry.BackoffMultiplier))
	addField("Max Delay", c.Retry.MaxDelay.String())
	addField("Per Attempt Timeout", c.Retry.PerAttemptTimeout.String())

	if c.Server.Kind() == transport.KindTCP {
		addSection("TCP")
		addField("No Delay", strconv.FormatBool(c.Dial.TCPNoDelay))
		addField("Keep Alive", c.Dial.TCPKeepAlive.String())
		addField("Linger", fmt.Sprintf("%d sec", c.Dial.TCPLingerSec))
	}

	return sb.String()
}
