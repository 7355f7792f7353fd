package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is prepended to every flag name to form its environment variable
	EnvPrefix = "vsign"

	// DefaultServerAddress is used by serve, client and bench when nothing is set
	DefaultServerAddress = "127.0.0.1:50051"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes every flag settable as VSIGN_<FLAG>
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// EnvName returns the environment variable viper reads for key
func EnvName(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + strings.ReplaceAll(key, "-", "_"))
}

// BindEnvAliases makes key settable through additional environment
// variables. VSIGN_<KEY> keeps precedence over the aliases.
func BindEnvAliases(key string, aliases ...string) {
	names := append([]string{key, EnvName(key)}, aliases...)
	// only fails without a key
	_ = viper.BindEnv(names...)
}

// EnvSet reports whether VSIGN_<KEY> or one of the aliases is set
func EnvSet(key string, aliases ...string) bool {
	for _, name := range append([]string{EnvName(key)}, aliases...) {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

// PrepareCommand binds the command's flags to viper and sets the log level.
// Every command calls it before reading its configuration.
func PrepareCommand(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// GetDuration reads key as a Go duration ("30s", "2m") or as bare seconds
// ("30", "0.5")
func GetDuration(key string) (time.Duration, error) {
	return ParseDuration(viper.GetString(key))
}

// ParseDuration parses a Go duration or a number of seconds. An empty
// string is zero.
func ParseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(text, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid duration %q: must not be negative", text)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	return d, nil
}

// GetSerializer creates the serializer selected by the serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the flags of a client session to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultRetryPolicy()
	opts := transport.DefaultOptions()

	key := "server"
	cmd.PersistentFlags().String(key, DefaultServerAddress, WrapString("Address of the signing server (host:port, tcp://host:port, vsock://cid:port, unix:///path)"))
	BindEnvAliases(key, "SERVER_ADDR")

	key = "timeout"
	cmd.PersistentFlags().String(key, "30s", WrapString("Timeout of a single call (duration or seconds)"))

	key = "connect-timeout"
	cmd.PersistentFlags().String(key, opts.Timeout.String(), WrapString("Timeout of a single connection attempt (duration or seconds)"))

	key = "retries"
	cmd.PersistentFlags().Int(key, defaults.MaxAttempts, WrapString("How many connection attempts are made before giving up"))

	key = "retry-delay"
	cmd.PersistentFlags().String(key, defaults.InitialDelay.String(), WrapString("Wait after the first failed connection attempt"))

	key = "retry-max-delay"
	cmd.PersistentFlags().String(key, defaults.MaxDelay.String(), WrapString("Upper bound of the wait between connection attempts"))

	key = "retry-multiplier"
	cmd.PersistentFlags().Float64(key, defaults.BackoffMultiplier, WrapString("Growth factor of the wait between connection attempts"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket write buffer in KB (0 = OS default, ignored for vsock)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket read buffer in KB (0 = OS default, ignored for vsock)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, opts.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only, 0 = OS default)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, opts.TCPLingerSec, WrapString("The linger time in seconds (tcp only, negative = OS default)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	server, err := transport.ParseConfig(viper.GetString("server"))
	if err != nil {
		return nil, err
	}

	callTimeout, err := GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	connectTimeout, err := GetDuration("connect-timeout")
	if err != nil {
		return nil, err
	}
	initialDelay, err := GetDuration("retry-delay")
	if err != nil {
		return nil, err
	}
	maxDelay, err := GetDuration("retry-max-delay")
	if err != nil {
		return nil, err
	}

	conf := &common.ClientConfig{
		Server: server,
		Dial: transport.Options{
			Timeout:         connectTimeout,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAlive:    time.Duration(viper.GetInt("transport-tcp-keepalive")) * time.Second,
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
		Retry: common.RetryPolicy{
			MaxAttempts:       viper.GetInt("retries"),
			InitialDelay:      initialDelay,
			BackoffMultiplier: viper.GetFloat64("retry-multiplier"),
			MaxDelay:          maxDelay,
			PerAttemptTimeout: connectTimeout,
		},
		CallTimeout: callTimeout,
		Serializer:  viper.GetString("serializer"),
	}

	if err := conf.Retry.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
