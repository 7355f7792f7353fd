package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/vsign/cmd/bench"
	"github.com/ValentinKolb/vsign/cmd/client"
	"github.com/ValentinKolb/vsign/cmd/monitor"
	"github.com/ValentinKolb/vsign/cmd/serve"
	"github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/rpc/serializer"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "vsign",
		Short: "signing service and load generator",
		Long: fmt.Sprintf(`vsign (v%s)

A request/response signing service reachable over TCP, vsock or unix
sockets, together with a client and a load generator that measures
latency and throughput of the echo and signing services.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of vsign",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vsign v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(client.ClientCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(monitor.MonitorCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString(fmt.Sprintf("serializer to use %v", serializer.Names)))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("level at which logs are written to stderr (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
