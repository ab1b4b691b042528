package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"noetl/internal/domain/playbook"
)

// NewDiagramCommand returns the `noetl diagram <file>` command. Rendering
// to SVG/PNG is out of scope per spec §1 ("diagram generation
// (PlantUML/Kroki)" is an explicit non-goal, delegated to an external
// Kroki server in a real deployment) — this command emits the PlantUML
// source text for the step graph, which an external renderer can consume.
func NewDiagramCommand() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "diagram <file>",
		Short: "Render a playbook's step graph as PlantUML source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			pb, err := playbook.Parse(content)
			if err != nil {
				return fmt.Errorf("parsing playbook %s: %w", args[0], err)
			}

			switch format {
			case "", "plantuml":
			case "svg", "png":
				return fmt.Errorf("format %q requires an external Kroki renderer; this command only emits PlantUML source", format)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}

			diagram := renderPlantUML(pb)
			if output != "" {
				return os.WriteFile(output, []byte(diagram), 0o644)
			}
			fmt.Fprint(cmd.OutOrStdout(), diagram)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "plantuml", "output format: plantuml|svg|png (svg/png require an external Kroki renderer)")
	cmd.Flags().StringVar(&output, "output", "", "write to this file instead of stdout")
	return cmd
}

func renderPlantUML(pb *playbook.Playbook) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@startuml\ntitle %s\n", pb.Name)
	for _, step := range pb.Workflow {
		label := step.Step
		switch {
		case step.Loop != nil:
			label += " [loop]"
		case step.EndLoop != nil:
			label += " [end_loop]"
		case step.Call != nil:
			label += " [call: " + step.Call.Name + "]"
		}
		fmt.Fprintf(&b, "state \"%s\" as %s\n", label, sanitizeState(step.Step))
		for _, next := range flattenTransitions(step.Next) {
			fmt.Fprintf(&b, "%s --> %s\n", sanitizeState(step.Step), sanitizeState(next))
		}
	}
	b.WriteString("@enduml\n")
	return b.String()
}

// flattenTransitions collects every step name reachable from clauses,
// including nested then/else branches, for a best-effort static diagram.
func flattenTransitions(clauses []playbook.Transition) []string {
	var out []string
	for _, c := range clauses {
		if c.Step != "" {
			out = append(out, c.Step)
		}
		out = append(out, flattenTransitions(c.Then)...)
		out = append(out, flattenTransitions(c.Else)...)
	}
	return out
}

func sanitizeState(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
