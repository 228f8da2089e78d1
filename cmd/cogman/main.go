package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cogman/internal/logging"
)

var (
	// Global flags
	verbose    bool
	jsonLogs   bool
	configPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cogman",
	Short: "cogman - deterministic control core for an agentic runtime",
	Long: `cogman runs the control core of an agentic runtime: a fixed-order
phase loop that admits perceptual inputs through a threshold gate, attaches
an auditable lifecycle trace to every input, and routes admitted states
through working-memory control.

Every decision the gate makes carries a reason and lands in the trace log;
nothing is admitted silently.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logging.Options{
			Debug:      verbose,
			JSONFormat: jsonLogs,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON log lines")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cogman.yaml", "path to config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(traceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
