package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hannahoo/UCLA-CS-118/internal/trace"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <pcap>",
	Short: "Decode rdt frames from a pcap trace",
	Long: `Print every UDP datagram in a pcap file, decoding rdt headers where
possible. Traces are written by "receive --trace" and "serve --trace", and
captures from tcpdump work as well.

Examples:
  rdt inspect rx.pcap
  rdt inspect --port 5000 capture.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0], inspectPort, cmd.OutOrStdout())
	},
}

var inspectPort int

func init() {
	inspectCmd.Flags().IntVarP(&inspectPort, "port", "p", 0,
		"only show datagrams to or from this UDP port")
}

func runInspect(path string, port int, out io.Writer) error {
	records, err := trace.ReadFile(path, port)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintln(out, r.String())
	}
	fmt.Fprintf(out, "%d datagram(s)\n", len(records))
	return nil
}
