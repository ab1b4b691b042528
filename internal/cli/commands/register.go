package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"noetl/internal/domain/catalog"
	"noetl/internal/domain/playbook"
)

// NewRegisterCommand returns the standalone `noetl register <file>`
// command: it registers a playbook or credential file directly against
// the catalog store, without going through a running server (spec §6).
func NewRegisterCommand() *cobra.Command {
	var mock bool

	cmd := &cobra.Command{
		Use:   "register <file>",
		Short: "Register a playbook or credential file with the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			var header struct {
				Kind string `yaml:"kind"`
			}
			if err := yaml.Unmarshal(content, &header); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			var path string
			var typ catalog.ResourceType
			switch header.Kind {
			case "Playbook":
				pb, err := playbook.Parse(content)
				if err != nil {
					return fmt.Errorf("parsing playbook %s: %w", args[0], err)
				}
				path, typ = pb.Path, catalog.ResourcePlaybook
			case "Credential":
				var doc struct {
					Name string `yaml:"name"`
				}
				_ = yaml.Unmarshal(content, &doc)
				path, typ = doc.Name, catalog.ResourceCredential
			case "Secret":
				var doc struct {
					Name string `yaml:"name"`
				}
				_ = yaml.Unmarshal(content, &doc)
				path, typ = doc.Name, catalog.ResourceSecret
			default:
				return fmt.Errorf("unsupported kind %q in %s", header.Kind, args[0])
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

			entry, err := deps.Catalog.Register(ctx, path, typ, string(content), nil, nil)
			if err != nil {
				return fmt.Errorf("registering %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered %s@%s (%s)\n", entry.Path, entry.Version, entry.Type)
			return nil
		},
	}

	cmd.Flags().BoolVar(&mock, "mock", false, "use in-memory catalog store instead of Postgres")
	return cmd
}
