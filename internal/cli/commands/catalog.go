package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewCatalogCommand returns the `noetl catalog register|execute|list`
// command group, a thin REST client over a running `noetl server` (spec
// §6, §4.11).
func NewCatalogCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Register, list and execute catalog resources against a running server",
	}
	cmd.PersistentFlags().StringVar(&host, "host", "localhost", "NoETL server host")
	cmd.PersistentFlags().IntVar(&port, "port", 8082, "NoETL server port")

	cmd.AddCommand(newCatalogRegisterCommand(&host, &port))
	cmd.AddCommand(newCatalogExecuteCommand(&host, &port))
	cmd.AddCommand(newCatalogListCommand(&host, &port))
	return cmd
}

func newCatalogRegisterCommand(host *string, port *int) *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "register [path]",
		Short: "Register a playbook or credential file with the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			client := newAPIClient(*host, *port)
			result, err := client.post("/catalog/register", map[string]any{
				"content_base64": base64.StdEncoding.EncodeToString(content),
				"resource_type":  resourceType,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", "Playbook", "resource type: Playbook|Credential|Secret")
	return cmd
}

func newCatalogExecuteCommand(host *string, port *int) *cobra.Command {
	var version string
	var inputFile string
	var sync bool
	var merge string

	cmd := &cobra.Command{
		Use:   "execute [path]",
		Short: "Execute a catalog playbook via the server's /agent/execute endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayloadFile(inputFile)
			if err != nil {
				return err
			}
			body := map[string]any{
				"path":             args[0],
				"version":          version,
				"input_payload":    payload,
				"sync_to_postgres": sync,
			}
			if merge != "" {
				var mergeVal map[string]any
				if err := json.Unmarshal([]byte(merge), &mergeVal); err != nil {
					return fmt.Errorf("parsing --merge as JSON: %w", err)
				}
				body["merge"] = mergeVal
			}

			client := newAPIClient(*host, *port)
			result, err := client.post("/agent/execute", body)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "playbook version (default: latest)")
	cmd.Flags().StringVar(&inputFile, "input", "", "path to a JSON file with the input payload")
	cmd.Flags().StringVar(&inputFile, "payload", "", "alias for --input")
	cmd.Flags().BoolVar(&sync, "sync", false, "send sync_to_postgres=true in the request (the server accepts the field but does not act on it)")
	cmd.Flags().StringVar(&merge, "merge", "", "inline JSON object merged over the input payload")
	return cmd
}

func newCatalogListCommand(host *string, port *int) *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*host, *port)
			path := "/catalog/list"
			if resourceType != "" {
				path += "?resource_type=" + resourceType
			}
			result, err := client.get(path)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", "", "filter by resource type")
	return cmd
}

func readPayloadFile(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload file %s: %w", path, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing payload file %s as JSON: %w", path, err)
	}
	return payload, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
