package main

import (
	"github.com/spf13/cobra"
)

// configPath is bound to the persistent --config flag; empty means
// "use TASKFLOW_CONFIG or the default search path" (internal/config.Load).
var configPath string

// rootCmd is the base command. Running taskflowd with no subcommand is
// equivalent to `taskflowd serve`; the engine has exactly one long-running
// mode, so the bare invocation should do the useful thing rather than print
// usage.
var rootCmd = &cobra.Command{
	Use:   "taskflowd",
	Short: "Workflow-coordination engine for long-running agent sessions",
	Long: `taskflowd tracks initiatives, PRDs, tasks, checkpoints, and streams for
multi-agent software-development workflows, and exposes them as MCP tools
over a stdio JSON-RPC channel plus a read-only HTTP mirror.

Run without a subcommand to start the server (equivalent to "taskflowd serve").`,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a taskflow.toml config file (default: $TASKFLOW_CONFIG or search path)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
