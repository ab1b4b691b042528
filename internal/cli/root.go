// Package cli wires together the NoETL root Cobra command and its
// subcommands (spec §6: "CLI surface").
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"noetl/internal/cli/commands"
	"noetl/pkg/version"
)

// NewRootCommand constructs the NoETL root Cobra command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "noetl",
		Short:         "NoETL – declarative workflow engine",
		Long:          "NoETL executes declarative YAML playbooks: a step graph of plugin tasks, loops and sinks driven by an event-sourced execution engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("env-file", "", "path to a .env file to load before reading process environment")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the NoETL version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "noetl version %s\n", version.String())
		},
	})

	// Subcommands registered in lexicographic order for deterministic help output.
	cmd.AddCommand(commands.NewCatalogCommand())
	cmd.AddCommand(commands.NewDiagramCommand())
	cmd.AddCommand(commands.NewExecuteCommand())
	cmd.AddCommand(commands.NewRegisterCommand())
	cmd.AddCommand(commands.NewSecretCommand())
	cmd.AddCommand(commands.NewServerCommand())
	cmd.AddCommand(commands.NewWorkerCommand())

	return cmd
}

// Main is the entrypoint called from cmd/noetl/main.go. It mirrors the
// teacher's root-command-plus-centralized-error-printing split:
// SilenceUsage/SilenceErrors on the root command keep Cobra from
// double-printing, and the caller decides the process exit code from the
// returned error.
func Main(args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "noetl: %v\n", err)
		return 1
	}
	return 0
}
