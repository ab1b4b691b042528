package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"noetl/internal/engine"
	"noetl/internal/logging"
)

// NewWorkerCommand returns the `noetl worker <path>` command: it runs one
// playbook execution in-process, honoring --mock (in-memory stores),
// --pgdb (explicit Postgres DSN override) and --debug (verbose logging),
// per spec §6.
func NewWorkerCommand() *cobra.Command {
	var version string
	var mock bool
	var pgdb string
	var debug bool

	cmd := &cobra.Command{
		Use:   "worker <path>",
		Short: "Run a single playbook execution as a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := LoadConfig(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if pgdb != "" {
				cfg.Database.DSN = pgdb
			}
			if debug {
				cfg.Logging.Level = "debug"
			}

			ctx := cmd.Context()
			deps, err := BuildDeps(ctx, cfg, mock)
			if err != nil {
				return fmt.Errorf("building dependencies: %w", err)
			}
			defer deps.Close()

			log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
			log.Info("worker starting execution", logging.F("path", args[0]), logging.F("version", version))

			report, err := deps.Engine.Execute(ctx, engine.ExecuteRequest{Path: args[0], Version: version})
			if err != nil {
				executionID := ""
				if report != nil {
					executionID = report.ExecutionID
				}
				log.Error("worker execution failed", logging.F("execution_id", executionID), logging.F("error", err.Error()))
				return err
			}

			log.Info("worker execution completed", logging.F("execution_id", report.ExecutionID), logging.F("duration_ms", report.Duration.Milliseconds()))
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "playbook version (default: latest)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use in-memory stores instead of Postgres")
	cmd.Flags().StringVar(&pgdb, "pgdb", "", "explicit Postgres DSN, overriding NOETL_PGDB")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}
