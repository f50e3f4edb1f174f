package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/logging"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string

	log zerolog.Logger
)

// GetConfigFile returns the --config flag value, empty when unset.
func GetConfigFile() string {
	return cfgFile
}

// NewRootCmd creates the root command for the forge CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Autonomous development orchestrator",
		Long: `forge turns a product requirements document into a four-level backlog
and drives it to completion: an Architect agent decomposes the PRD, then
the Task Orchestrator dispatches each ready subtask through the PRP
Runtime's researcher -> coder -> verify -> commit cycle.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logging.New(logging.Config{
				Verbose: verbose,
				Format:  logging.Format(logFormat),
				Output:  cmd.ErrOrStderr(),
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: forge.yaml or the XDG global config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logging.FormatAuto), "log output format: auto, console, or json")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newSkipCmd())
	rootCmd.AddCommand(newRevertCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
