// Package commands implements the taskmill CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskmill",
		Short: "Taskmill - in-process task scheduler with a JSON monitor",
		Long: `Taskmill runs scheduled jobs inside a single process and exposes
their state over a JSON API.

Examples:
  taskmill serve
  taskmill serve --config ./taskmill.yaml`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")

	return rootCmd
}
