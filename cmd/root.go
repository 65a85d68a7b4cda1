// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rdt",
	Short: "rdt - reliable file transfer over UDP",
	Long: `rdt transfers files over UDP with a stop-and-wait protocol.

Each datagram carries a 16-byte header and up to 1024 bytes of data. Both
ends can simulate packet loss and corruption to exercise retransmission.

Commands:
  receive   fetch a file from a sender
  serve     serve files from a directory
  inspect   decode a pcap trace of rdt traffic
  validate  check a configuration file`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and RDT_* environment variables when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level")

	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig reads the global configuration and applies the --log-level override.
func loadConfig() (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// runtime holds the process-wide services a transfer command starts.
type runtime struct {
	reporter report.Reporter
	metrics  *metrics.Server
}

// startRuntime initializes logging, the metrics endpoint and the reporter.
func startRuntime(ctx context.Context, cfg *config.GlobalConfig) (*runtime, error) {
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := rt.metrics.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	reporter, err := report.New(cfg.Report)
	if err != nil {
		rt.stop()
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}
	rt.reporter = reporter
	return rt, nil
}

func (rt *runtime) stop() {
	logger := log.GetLogger()
	if rt.reporter != nil {
		if err := rt.reporter.Close(); err != nil {
			logger.WithError(err).Warn("failed to close reporter")
		}
	}
	if rt.metrics != nil {
		if err := rt.metrics.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to stop metrics server")
		}
	}
	log.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
