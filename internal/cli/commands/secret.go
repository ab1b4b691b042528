package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"noetl/internal/domain/credential"
)

// NewSecretCommand returns the `noetl secret` command group (spec §6).
func NewSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage stored credentials",
	}
	cmd.AddCommand(newSecretRegisterCommand())
	return cmd
}

func newSecretRegisterCommand() *cobra.Command {
	var typ string
	var data string
	var dataFile string
	var meta string
	var tags string
	var description string
	var mock bool

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawData := data
			if dataFile != "" {
				b, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("reading --data-file %s: %w", dataFile, err)
				}
				rawData = string(b)
			}
			if rawData == "" {
				return fmt.Errorf("one of --data or --data-file is required")
			}

			var dataMap map[string]any
			if err := json.Unmarshal([]byte(rawData), &dataMap); err != nil {
				return fmt.Errorf("parsing credential data as JSON: %w", err)
			}

			var metaMap map[string]any
			if meta != "" {
				if err := json.Unmarshal([]byte(meta), &metaMap); err != nil {
					return fmt.Errorf("parsing --meta as JSON: %w", err)
				}
			}

			var tagList []string
			if tags != "" {
				tagList = strings.Split(tags, ",")
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

			cred := credential.Credential{
				Name: args[0], Type: typ, Data: dataMap, Meta: metaMap,
				Tags: tagList, Description: description,
			}
			if err := deps.Credentials.Put(ctx, cred); err != nil {
				return fmt.Errorf("registering credential %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered credential %s (%s)\n", cred.Name, cred.Type)
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "credential type: postgres|gcs|gcs_hmac|s3|snowflake")
	cmd.Flags().StringVar(&data, "data", "", "inline JSON credential data")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "path to a JSON file with credential data")
	cmd.Flags().StringVar(&meta, "meta", "", "inline JSON metadata")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	cmd.Flags().BoolVar(&mock, "mock", false, "use in-memory credential store instead of Postgres")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
