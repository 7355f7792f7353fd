package bench

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/vsign/rpc/transport"
)

// DefaultCallTimeout bounds a single call when Config.CallTimeout is 0
const DefaultCallTimeout = 30 * time.Second

// Config describes one benchmark run
type Config struct {
	// Connections is the number of independent sessions
	Connections int
	// WorkersPerConnection is the number of concurrent workers sharing a session
	WorkersPerConnection int

	// TargetRate is the total request rate per second (0 = closed loop)
	TargetRate float64

	// Termination: whichever is reached first (0 = unset, at least one required)
	Duration      time.Duration
	TotalRequests int64

	// CallTimeout bounds a single call (0 = DefaultCallTimeout)
	CallTimeout time.Duration

	// Transport is the server address, reported only
	Transport transport.Config

	// Service is the workload selector, reported only
	Service string

	// ProgressInterval enables a periodic progress log line (0 = off)
	ProgressInterval time.Duration
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Connections:          1,
		WorkersPerConnection: 1,
		TotalRequests:        1000,
		CallTimeout:          DefaultCallTimeout,
		Service:              "echo",
	}
}

// ConfigError reports an invalid benchmark configuration
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid benchmark config: %s %s", e.Field, e.Reason)
}

// Validate checks the configuration and returns a *ConfigError
func (c Config) Validate() error {
	switch {
	case c.Connections < 1:
		return &ConfigError{Field: "connections", Reason: "must be at least 1"}
	case c.WorkersPerConnection < 1:
		return &ConfigError{Field: "workers per connection", Reason: "must be at least 1"}
	case c.Duration < 0:
		return &ConfigError{Field: "duration", Reason: "must not be negative"}
	case c.TotalRequests < 0:
		return &ConfigError{Field: "total requests", Reason: "must not be negative"}
	case c.Duration == 0 && c.TotalRequests == 0:
		return &ConfigError{Field: "duration", Reason: "or total requests must be set"}
	case c.TargetRate < 0 || c.TargetRate != c.TargetRate:
		return &ConfigError{Field: "target rate", Reason: "must be a non-negative number"}
	case c.CallTimeout < 0:
		return &ConfigError{Field: "call timeout", Reason: "must not be negative"}
	case c.ProgressInterval < 0:
		return &ConfigError{Field: "progress interval", Reason: "must not be negative"}
	case c.Service == "":
		return &ConfigError{Field: "service", Reason: "must be set"}
	}
	return nil
}

// TotalWorkers returns the number of workers over all connections
func (c Config) TotalWorkers() int {
	return c.Connections * c.WorkersPerConnection
}

func (c Config) callTimeout() time.Duration {
	if c.CallTimeout == 0 {
		return DefaultCallTimeout
	}
	return c.CallTimeout
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Benchmark")
	addField("Service", c.Service)
	addField("Server", c.Transport.String())
	addField("Connections", strconv.Itoa(c.Connections))
	addField("Workers Per Connection", strconv.Itoa(c.WorkersPerConnection))
	if c.TargetRate > 0 {
		addField("Target Rate", fmt.Sprintf("%g req/s", c.TargetRate))
	} else {
		addField("Target Rate", "closed loop")
	}
	if c.Duration > 0 {
		addField("Duration", c.Duration.String())
	}
	if c.TotalRequests > 0 {
		addField("Total Requests", strconv.FormatInt(c.TotalRequests, 10))
	}
	addField("Call Timeout", c.callTimeout().String())

	return sb.String()
}
