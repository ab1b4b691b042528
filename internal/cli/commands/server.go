package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"noetl/internal/httpapi"
	"noetl/internal/logging"
)

const defaultPIDFile = "noetl-server.pid"

// NewServerCommand returns the `noetl server` command group (spec §6).
func NewServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run or stop the NoETL REST API server",
	}
	cmd.AddCommand(newServerStartCommand())
	cmd.AddCommand(newServerStopCommand())
	return cmd
}

func newServerStartCommand() *cobra.Command {
	var host string
	var port int
	var pidFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the NoETL REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := LoadConfig(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			log := logging.NewDefault("cli.server")
			ctx := cmd.Context()

			deps, err := BuildDeps(ctx, cfg, false)
			if err != nil {
				return fmt.Errorf("building server dependencies: %w", err)
			}
			defer deps.Close()

			api := httpapi.New(deps.Catalog, deps.Credentials, deps.Events, deps.Engine, nil)
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{Addr: addr, Handler: api.Routes()}

			if err := writePIDFile(pidFile); err != nil {
				log.Warn("failed to write pid file", logging.F("path", pidFile), logging.F("error", err.Error()))
			}
			defer os.Remove(pidFile)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("server listening", logging.F("addr", addr))
			fmt.Fprintf(cmd.OutOrStdout(), "noetl server listening on %s\n", addr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server error: %w", err)
				}
			case <-sigCh:
				log.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("graceful shutdown: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override NOETL_HOST")
	cmd.Flags().IntVar(&port, "port", 0, "override NOETL_PORT")
	cmd.Flags().StringVar(&pidFile, "pid-file", defaultPIDFile, "path to write the server's pid")

	return cmd
}

func newServerStopCommand() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running NoETL server by pid file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(pidFile)
			if err != nil {
				return fmt.Errorf("reading pid file %q: %w", pidFile, err)
			}
			pid, err := strconv.Atoi(string(data))
			if err != nil {
				return fmt.Errorf("parsing pid from %q: %w", pidFile, err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("finding process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signaling process %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to pid %d\n", pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", defaultPIDFile, "path to the server's pid file")
	return cmd
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
