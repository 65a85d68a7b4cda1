package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/receiver"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
)

var receiveCmd = &cobra.Command{
	Use:   "receive <host> <port> <filename> <Pl> <Pc>",
	Short: "Fetch a file from an rdt sender",
	Long: `Request <filename> from the sender at <host>:<port> and store it as
new_<filename> in the output directory.

Pl and Pc are the probabilities, between 0 and 1, that an acknowledgement
sent by this receiver is lost or corrupted.

Examples:
  rdt receive localhost 5000 index.html 0.1 0.1
  rdt receive -c rdt.yml --output-dir /tmp 10.0.0.2 5000 big.bin 0 0`,
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		resource, err := applyReceiveArgs(cmd, cfg, args)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := startRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.stop()

		return runReceive(ctx, cfg.Receiver, resource, rt.reporter, cmd.OutOrStdout())
	},
}

var (
	receiveOutputDir   string
	receiveReadTimeout time.Duration
	receiveTraceFile   string
	receiveTOS         int
)

func init() {
	receiveCmd.Flags().StringVarP(&receiveOutputDir, "output-dir", "o", "",
		"directory for the received file (overrides receiver.output_dir)")
	receiveCmd.Flags().DurationVar(&receiveReadTimeout, "read-timeout", 0,
		"give up when no datagram arrives for this long, 0 waits forever")
	receiveCmd.Flags().StringVar(&receiveTraceFile, "trace", "",
		"write a pcap trace of the transfer to this file")
	receiveCmd.Flags().IntVar(&receiveTOS, "tos", 0,
		"IP type of service byte for outgoing datagrams")
}

// applyReceiveArgs folds positional arguments and changed flags into cfg and
// revalidates it. It returns the requested resource name.
func applyReceiveArgs(cmd *cobra.Command, cfg *config.GlobalConfig, args []string) (string, error) {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid port %q", core.ErrConfigInvalid, args[1])
	}
	pl, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid loss probability %q", core.ErrConfigInvalid, args[3])
	}
	pc, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid corruption probability %q", core.ErrConfigInvalid, args[4])
	}

	rc := &cfg.Receiver
	rc.Host = args[0]
	rc.Port = port
	rc.LossProbability = pl
	rc.CorruptionProbability = pc

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		rc.OutputDir = receiveOutputDir
	}
	if flags.Changed("read-timeout") {
		rc.ReadTimeout = receiveReadTimeout
	}
	if flags.Changed("trace") {
		rc.TraceFile = receiveTraceFile
	}
	if flags.Changed("tos") {
		rc.TOS = receiveTOS
	}

	if port <= 0 {
		return "", fmt.Errorf("%w: port must be between 1 and 65535", core.ErrConfigInvalid)
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return "", err
	}
	return args[2], nil
}

func runReceive(ctx context.Context, cfg config.ReceiverConfig, resource string, reporter report.Reporter, out io.Writer) error {
	summary, err := receiver.Fetch(ctx, cfg, resource)
	report.Publish(ctx, reporter, summary)

	switch {
	case err == nil:
		fmt.Fprintf(out, "received %s: %d bytes in %s\n", summary.Path, summary.Bytes, summary.Duration.Round(time.Millisecond))
		return nil
	case errors.Is(err, core.ErrResourceNotFound):
		fmt.Fprintf(out, "%s: file not found on %s\n", resource, summary.Peer)
		return err
	default:
		return fmt.Errorf("transfer of %s failed: %w", resource, err)
	}
}

// exitCode maps an error returned by a command to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, core.ErrConfigInvalid):
		return 2
	default:
		return 1
	}
}

// Exit prints err and terminates the process with its exit code.
func Exit(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
