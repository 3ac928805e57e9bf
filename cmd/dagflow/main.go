// Package main is the entry point for the dagflow binary. It runs the
// hello world flow under the scheduler and exposes the status surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/drblury/dagflow/transport/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dagflow",
		Short: "Run record pipelines arranged as a DAG",
		Long: `dagflow executes stages arranged as a directed acyclic graph.

The built-in demo greets whatever it receives and prints the result:

  dagflow run --interval 1s --runs 5
  dagflow run --subscribe greetings --config dagflow.yaml
  dagflow draw`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	root.PersistentFlags().StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newDrawCmd(), newTransportsCmd())
	return root
}
