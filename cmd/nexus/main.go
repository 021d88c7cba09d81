// Package main provides the nexus CLI entry point: a single-agent runner
// built on the Agent Turn Loop, the Tool Registry, and the Todo Store.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Run an agent turn loop against a task, locally",
		Long: `nexus drives a single agent run end to end: it loads a task, hands it to
the Agent Turn Loop with a file/exec/todo/sub_agent tool set, streams
progress events to stdout, and prints the final result.`,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath,
		"path to YAML configuration file (optional)")

	root.AddCommand(buildRunCmd(), buildTodoCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
