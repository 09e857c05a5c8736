package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/globalcalls/cmd/globalcalls/commands"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/logger"
)

var rootCmd = &cobra.Command{
	Use:   "globalcalls",
	Short: "globalcalls - propagate and aggregate gene expression calls",
	Long: `globalcalls - propagate raw expression evidence along condition ontologies
and persist one aggregated call per gene and condition.

Available commands:
  run     - Aggregate the calls of one or more species
  am      - Show and validate configuration
  db      - Apply migrations and show row counts
  version - Show build information

Examples:
  globalcalls run --species 9606 --params anat,stage
  globalcalls run --species 9606,10090 --params anat --params anat,stage -v
  globalcalls am show --format yaml
  globalcalls db stats`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := commands.LoadConfig(cmd)
		if err != nil {
			return err
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		level := logger.ParseLevel(cfg.Log.Level)
		if verbosity > 0 {
			level = logger.VerbosityToLevel(verbosity)
		}
		if err := logger.Initialize(jsonLogs || cfg.Log.JSON, level); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file instead of the am.toml cascade")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, "hint:", hints)
		}
		os.Exit(1)
	}
}
