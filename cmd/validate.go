package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load the configuration selected by --config, apply defaults and
RDT_* environment overrides, validate it and print the result as YAML.

Examples:
  rdt validate -c rdt.yml
  RDT_SENDER_TIMEOUT=1s rdt validate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}
	data, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "VALID")
	_, err = out.Write(data)
	return err
}
