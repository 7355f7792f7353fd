package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/server"
	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/ValentinKolb/vsign/rpc/transport/base"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the signing server",
		Long: `Start the signing server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is VSIGN_<flag> (e.g. VSIGN_RATE_LIMIT=500).

The server stops gracefully on SIGINT or SIGTERM: the listener closes, open connections are shut down and in-flight requests are answered first.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := base.DefaultServerOptions()

	// add flags
	key := "listen"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:50051", cmdUtil.WrapString("The address on which the server will listen (host:port, vsock://cid:port with cid 0 for any, unix:///path)"))
	cmdUtil.BindEnvAliases(key, "SERVER_ADDR")

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, defaults.WorkersPerConn, cmdUtil.WrapString("Maximum number of requests handled concurrently per connection"))
	cmdUtil.BindEnvAliases(key, "WORKER_THREADS")

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, defaults.BufferSize/1024, cmdUtil.WrapString("Read and write buffer size per connection (in KB)"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().String(key, defaults.IdleTimeout.String(), cmdUtil.WrapString("Connections without traffic for this long are closed (duration or seconds, 0 = never)"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().String(key, defaults.WriteTimeout.String(), cmdUtil.WrapString("Timeout for writing a response (duration or seconds)"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum requests per second over all connections, excess requests are rejected (0 = unlimited)"))

	key = "rate-burst"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of requests admitted at once above the rate limit (0 = rate-limit rounded up)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("HTTP address serving /metrics and /healthz (e.g. 127.0.0.1:9090, empty = disabled)"))

	key = "keys"
	ServeCmd.PersistentFlags().String(key, "ecc-p256,ecc-p384,rsa-2048", cmdUtil.WrapString("Comma-separated key types generated as default keys at startup (rsa-2048, rsa-3072, rsa-4096, ecc-p256, ecc-p384, ecc-p521)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.PrepareCommand(cmd); err != nil {
		return err
	}

	listen, err := transport.ParseConfig(viper.GetString("listen"))
	if err != nil {
		return err
	}
	serveCmdConfig.Listen = listen

	if serveCmdConfig.IdleTimeout, err = cmdUtil.GetDuration("idle-timeout"); err != nil {
		return err
	}
	if serveCmdConfig.WriteTimeout, err = cmdUtil.GetDuration("write-timeout"); err != nil {
		return err
	}

	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size") * 1024
	serveCmdConfig.RateLimit = viper.GetFloat64("rate-limit")
	serveCmdConfig.RateBurst = viper.GetInt("rate-burst")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.WorkersPerConn < 1 {
		return fmt.Errorf("workers-per-conn must be at least 1, got %d", serveCmdConfig.WorkersPerConn)
	}
	if serveCmdConfig.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %g", serveCmdConfig.RateLimit)
	}
	if serveCmdConfig.RateLimit > 0 && serveCmdConfig.RateBurst == 0 {
		serveCmdConfig.RateBurst = int(serveCmdConfig.RateLimit + 0.999)
	}

	// parse bootstrap keys
	serveCmdConfig.BootstrapKeys = nil
	for _, name := range strings.Split(viper.GetString("keys"), ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		kt, err := signer.ParseKeyType(name)
		if err != nil {
			return err
		}
		serveCmdConfig.BootstrapKeys = append(serveCmdConfig.BootstrapKeys, kt)
	}

	return nil
}

// run starts the signing server and blocks until it is stopped
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	serv, err := server.NewRPCServer(*serveCmdConfig, s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serv.ListenAndServe(ctx)
	server.Logger.Infof("server stopped")
	return err
}
