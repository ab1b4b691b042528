package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"noetl/internal/engine"
)

// NewExecuteCommand returns the standalone `noetl execute` command: it
// opens its own store connections and runs the engine in-process, unlike
// `catalog execute` which calls a running server (spec §6).
func NewExecuteCommand() *cobra.Command {
	var version string
	var inputFile string
	var mock bool

	cmd := &cobra.Command{
		Use:   "execute <path>",
		Short: "Execute a playbook from the catalog in-process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayloadFile(inputFile)
			if err != nil {
				return err
			}

			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := LoadConfig(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx := cmd.Context()
			deps, err := BuildDeps(ctx, cfg, mock)
			if err != nil {
				return fmt.Errorf("building dependencies: %w", err)
			}
			defer deps.Close()

			report, err := deps.Engine.Execute(ctx, engine.ExecuteRequest{
				Path: args[0], Version: version, Payload: payload,
			})
			if err != nil {
				if report != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "execution %s failed: %v\n", report.ExecutionID, err)
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "execution failed: %v\n", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "execution %s completed\n", report.ExecutionID)
			return printJSON(cmd, report.Steps)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "playbook version (default: latest)")
	cmd.Flags().StringVar(&inputFile, "input", "", "path to a JSON file with the input payload")
	cmd.Flags().StringVar(&inputFile, "payload", "", "alias for --input")
	cmd.Flags().BoolVar(&mock, "mock", false, "use in-memory stores instead of Postgres")
	return cmd
}
