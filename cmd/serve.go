package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
	"github.com/hannahoo/UCLA-CS-118/internal/sender"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve files to rdt receivers",
	Long: `Listen for file requests and send each file with stop-and-wait
retransmission. Requests are handled one at a time until SIGINT or SIGTERM.

Examples:
  rdt serve --listen :5000 --root ./public
  rdt serve --pl 0.2 --pc 0.1 --timeout 200ms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, cfg); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := startRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.stop()

		return runServe(ctx, cfg.Sender, rt.reporter)
	},
}

var (
	serveListen     string
	serveRoot       string
	serveLoss       float64
	serveCorruption float64
	serveTimeout    time.Duration
	serveMaxRetries int
	serveTraceFile  string
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "UDP address to listen on (overrides sender.listen)")
	f.StringVar(&serveRoot, "root", "", "directory files are served from")
	f.Float64Var(&serveLoss, "pl", 0, "probability that a sent data frame is lost")
	f.Float64Var(&serveCorruption, "pc", 0, "probability that a sent data frame is corrupted")
	f.DurationVar(&serveTimeout, "timeout", 0, "retransmission timeout")
	f.IntVar(&serveMaxRetries, "max-retries", 0, "retransmissions per frame before giving up")
	f.StringVar(&serveTraceFile, "trace", "", "write a pcap trace to this file")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.GlobalConfig) error {
	sc := &cfg.Sender
	flags := cmd.Flags()
	if flags.Changed("listen") {
		sc.Listen = serveListen
	}
	if flags.Changed("root") {
		sc.Root = serveRoot
	}
	if flags.Changed("pl") {
		sc.LossProbability = serveLoss
	}
	if flags.Changed("pc") {
		sc.CorruptionProbability = serveCorruption
	}
	if flags.Changed("timeout") {
		sc.Timeout = serveTimeout
	}
	if flags.Changed("max-retries") {
		sc.MaxRetries = serveMaxRetries
	}
	if flags.Changed("trace") {
		sc.TraceFile = serveTraceFile
	}
	return cfg.ValidateAndApplyDefaults()
}

func runServe(ctx context.Context, cfg config.SenderConfig, reporter report.Reporter) error {
	srv, err := sender.NewServer(ctx, cfg, sender.Options{Reporter: reporter})
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(ctx)
}
