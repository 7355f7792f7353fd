package monitor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/lib/sysmon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	monitorConfig = sysmon.DefaultConfig()

	// MonitorCmd samples the CPU utilisation of this machine
	MonitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Log CPU utilisation statistics of this machine",
		Long: `Sample the system CPU utilisation every --interval and log min, max,
mean, p95 and p99 of the last --window after every sample. Runs until
interrupted or until --samples samples were taken.

The environment variables CPU_MONITOR_INTERVAL and CPU_MONITOR_SUMMARY
(seconds) are read as well.`,
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "interval"
	MonitorCmd.Flags().String(key, monitorConfig.Interval.String(), util.WrapString("Length of one sample (duration or seconds)"))
	util.BindEnvAliases(key, "CPU_MONITOR_INTERVAL")

	key = "window"
	MonitorCmd.Flags().String(key, monitorConfig.Window.String(), util.WrapString("Period each summary covers (duration or seconds)"))
	util.BindEnvAliases(key, "CPU_MONITOR_SUMMARY")

	key = "samples"
	MonitorCmd.Flags().Int(key, 0, util.WrapString("Stop after this many samples (0 = until interrupted)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.PrepareCommand(cmd); err != nil {
		return err
	}

	var err error
	if monitorConfig.Interval, err = util.GetDuration("interval"); err != nil {
		return err
	}
	if monitorConfig.Window, err = util.GetDuration("window"); err != nil {
		return err
	}
	monitorConfig.Samples = viper.GetInt("samples")
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	m, err := sysmon.NewMonitor(monitorConfig)
	if err != nil {
		return err
	}
	sysmon.Logger.Infof(monitorConfig.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total, err := m.Run(ctx)
	if total.Count > 0 {
		sysmon.Logger.Infof("overall (%d samples):", total.Count)
		sysmon.LogSummary(total)
	}
	return err
}
