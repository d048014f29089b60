package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "sigscreen"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Crypto signal screener with performance feedback",
		Version: version,
		Long: `sigscreen scans the perpetual futures universe for pump, dump and
reversal patterns, scores them against trend, risk and market regime,
and tracks every emitted signal to its outcome so the feedback loop can
flag degrading performance.`,
		SilenceUsage: true,
	}
	// Accept underscore spellings of any flag name.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the continuous scan loop",
		Long:  "Scan the universe on an interval, emit signals, and resolve outcomes in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(configPath)
		},
	}

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single scan cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(configPath)
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the performance report from the signal history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(configPath)
		},
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the monitor endpoints without scanning",
		Long:  "Expose /health, /metrics and /stats over the signal history, without running the scan loop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(configPath)
		},
	}

	rootCmd.AddCommand(scanCmd, onceCmd, statsCmd, monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
