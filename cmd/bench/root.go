package bench

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/lib/bench"
	"github.com/ValentinKolb/vsign/lib/sysmon"
	"github.com/ValentinKolb/vsign/rpc/client"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchConfig  = bench.DefaultConfig()
	clientConfig *common.ClientConfig
	selectors    []string

	// BenchCmd runs the load generator against a signing server
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Measure latency and throughput of a signing server",
		Long: `Measure latency and throughput of a signing server.

The benchmark opens --connections sessions and runs --workers concurrent
workers on each. Without --rate every worker sends its next request as soon
as the previous one completed; with --rate the requests are spread evenly so
that the total rate is reached. The run ends after --total-requests requests
or after --duration, whichever comes first.

Services: echo, rsa_sign, rsa_pss_sign, ecc_sign, ecc_p384_sign, verify, and
all (runs echo and every signing service in turn).

The environment variables CONNECTIONS, THREADS, TOTAL_REQUESTS, RATE_LIMIT,
SERVICE (or BENCHMARK_TYPE), DURATION and SERVER_ADDR are read as well.`,
		Args:    cobra.NoArgs,
		PreRunE: processBenchConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupRPCClientFlags(BenchCmd)

	key := "connections"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of connections to the server"))
	util.BindEnvAliases(key, "CONNECTIONS", "CONCURRENT_REQUESTS")

	key = "workers"
	BenchCmd.Flags().Int(key, 4, util.WrapString("Number of concurrent workers per connection"))
	util.BindEnvAliases(key, "THREADS")

	key = "total-requests"
	BenchCmd.Flags().Int64(key, 1000, util.WrapString("Number of requests per service (0 = until --duration)"))
	util.BindEnvAliases(key, "TOTAL_REQUESTS", "REQUESTS")

	key = "rate"
	BenchCmd.Flags().Float64(key, 0, util.WrapString("Total requests per second over all workers (0 = as fast as possible)"))
	util.BindEnvAliases(key, "RATE_LIMIT")

	key = "duration"
	BenchCmd.Flags().String(key, "", util.WrapString("Maximum duration per service, e.g. 30s or 30 (empty = until --total-requests)"))
	util.BindEnvAliases(key, "DURATION")

	key = "service"
	BenchCmd.Flags().String(key, client.WorkloadEcho, util.WrapString("Service to benchmark (echo, rsa_sign, rsa_pss_sign, ecc_sign, ecc_p384_sign, verify, all)"))
	util.BindEnvAliases(key, "SERVICE", "BENCHMARK_TYPE")

	key = "progress"
	BenchCmd.Flags().String(key, "", util.WrapString("Interval of live progress log lines, e.g. 5s (empty = off)"))

	key = "cpu"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Sample the CPU utilisation of this machine during the run"))

	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path of a CSV file the results are appended to"))

	key = "json"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path of a file the results are written to as JSON"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.PrepareCommand(cmd); err != nil {
		return err
	}

	var err error
	clientConfig, err = util.GetClientConfig()
	if err != nil {
		return err
	}

	if selectors, err = client.ExpandSelector(viper.GetString("service")); err != nil {
		return err
	}

	benchConfig.Connections = viper.GetInt("connections")
	benchConfig.WorkersPerConnection = viper.GetInt("workers")
	benchConfig.TotalRequests = viper.GetInt64("total-requests")
	benchConfig.TargetRate = viper.GetFloat64("rate")
	benchConfig.CallTimeout = clientConfig.CallTimeout
	benchConfig.Transport = clientConfig.Server

	if benchConfig.Duration, err = util.GetDuration("duration"); err != nil {
		return err
	}
	if benchConfig.ProgressInterval, err = util.GetDuration("progress"); err != nil {
		return err
	}

	// a duration alone runs time based
	if benchConfig.Duration > 0 && !cmd.Flags().Changed("total-requests") && !util.EnvSet("total-requests", "TOTAL_REQUESTS", "REQUESTS") {
		benchConfig.TotalRequests = 0
	}

	// validate before any connection is made
	for _, name := range selectors {
		cfg := benchConfig
		cfg.Service = name
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if viper.GetBool("cpu") {
		monitorCtx, cancel := context.WithCancel(ctx)
		done := startMonitor(monitorCtx)
		defer func() {
			cancel()
			<-done
		}()
	}

	var reports []*bench.Report
	for _, name := range selectors {
		if ctx.Err() != nil {
			break
		}

		report, err := runOne(ctx, name, s)
		if report != nil {
			reports = append(reports, report)
			fmt.Println(report.String())
		}
		if err != nil {
			return err
		}
	}

	return writeResults(reports)
}

// runOne benchmarks a single service
func runOne(ctx context.Context, name string, s serializer.IRPCSerializer) (*bench.Report, error) {
	workload, err := client.NewWorkload(name, s)
	if err != nil {
		return nil, err
	}

	dial := client.Dialer(clientConfig.Server, clientConfig.Dial)

	if workload.NeedsPrepare() {
		err := client.WithSession(ctx, dial, clientConfig.Retry, func(m *client.Manager) error {
			return workload.Prepare(ctx, client.NewSigningClient(m, s))
		}, client.WithName("prepare"))
		if err != nil {
			return nil, err
		}
	}

	cfg := benchConfig
	cfg.Service = name
	bench.Logger.Infof(cfg.String())

	engine, err := bench.NewEngine(cfg, func(i int) (bench.Session, error) {
		m, err := client.NewManager(dial, clientConfig.Retry, client.WithName(fmt.Sprintf("conn-%d", i)))
		if err != nil {
			return nil, err
		}
		return m, nil
	}, workload, bench.WithClassifier(client.ErrorKind))
	if err != nil {
		return nil, err
	}

	return engine.Run(ctx)
}

// startMonitor samples the CPU until ctx ends and logs the overall summary
func startMonitor(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	m, err := sysmon.NewMonitor(sysmon.DefaultConfig())
	if err != nil {
		sysmon.Logger.Errorf("cpu monitor: %v", err)
		close(done)
		return done
	}

	go func() {
		defer close(done)
		total, err := m.Run(ctx)
		if err != nil {
			sysmon.Logger.Errorf("cpu monitor: %v", err)
			return
		}
		sysmon.Logger.Infof("cpu over the whole run (%d samples):", total.Count)
		sysmon.LogSummary(total)
	}()
	return done
}

// writeResults stores the reports in the files given by --csv and --json
func writeResults(reports []*bench.Report) error {
	if path := viper.GetString("csv"); path != "" {
		for _, r := range reports {
			if err := bench.AppendCSV(path, r); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		fmt.Printf("results appended to %s\n", path)
	}

	if path := viper.GetString("json"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		defer f.Close()
		for _, r := range reports {
			if err := r.WriteJSON(f); err != nil {
				return fmt.Errorf("write json: %w", err)
			}
		}
		fmt.Printf("results written to %s\n", path)
	}
	return nil
}
