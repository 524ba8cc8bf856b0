// Command taskflowd runs the workflow-coordination engine's MCP server.
//
// It communicates over stdio using JSON-RPC 2.0 (the MCP protocol) and
// mirrors its read-only tools behind a loopback HTTP API. All state is
// persisted to a single-file embedded store per workspace.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

// Exit codes: 0 success, 1 config error, 2 store invariant violation on
// startup.
const (
	exitConfigError = 1
	exitStoreError  = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskflowd: %v\n", err)
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindStore {
			os.Exit(exitStoreError)
		}
		os.Exit(exitConfigError)
	}
}
