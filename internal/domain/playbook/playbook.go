// Package playbook defines the YAML playbook document model: the step
// graph, the reusable task library ("workbook"), and the initial workload
// (spec §3, §6).
package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StartStep and EndStep are the reserved terminal step names.
const (
	StartStep = "start"
	EndStep   = "end"
)

// Playbook is the top-level document: apiVersion/kind/name/path/version,
// initial workload, ordered step graph and reusable task library.
type Playbook struct {
	APIVersion  string         `yaml:"apiVersion"`
	Kind        string         `yaml:"kind"`
	Name        string         `yaml:"name"`
	Path        string         `yaml:"path"`
	Version     string         `yaml:"version,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Workload    map[string]any `yaml:"workload,omitempty"`
	Workflow    []Step         `yaml:"workflow"`
	Workbook    []Task         `yaml:"workbook,omitempty"`
}

// Step is one node in the workflow graph.
type Step struct {
	Step    string         `yaml:"step"`
	Desc    string         `yaml:"desc,omitempty"`
	Loop    *Loop          `yaml:"loop,omitempty"`
	EndLoop *EndLoop       `yaml:"end_loop,omitempty"`
	Call    *Call          `yaml:"call,omitempty"`
	With    map[string]any `yaml:"with,omitempty"`
	Next    []Transition   `yaml:"next,omitempty"`
}

// IsTerminal reports whether the step has no body selector (a terminal
// step that merely transitions, e.g. "start" or "end").
func (s Step) IsTerminal() bool {
	return s.Loop == nil && s.EndLoop == nil && s.Call == nil
}

// Call references a workbook task by name with bound parameters.
type Call struct {
	Name string         `yaml:"name"`
	With map[string]any `yaml:"with,omitempty"`
}

// EndLoop closes out a previously started loop and binds its aggregated
// result into context.
type EndLoop struct {
	Loop   string         `yaml:"loop"`
	Result map[string]any `yaml:"result,omitempty"`
}

// Loop describes an iterator step body (spec §4.7).
type Loop struct {
	Collection string         `yaml:"collection,omitempty"`
	Element    string         `yaml:"element"`
	Mode       string         `yaml:"mode,omitempty"` // sequential (default) | async | parallel
	Concurrency int           `yaml:"concurrency,omitempty"`
	Enumerate  bool           `yaml:"enumerate,omitempty"`
	Where      string         `yaml:"where,omitempty"`
	Limit      int            `yaml:"limit,omitempty"`
	Chunk      int            `yaml:"chunk,omitempty"`
	OrderBy    string         `yaml:"order_by,omitempty"`
	Task       *NestedTask    `yaml:"task,omitempty"`
	Sink       *SinkSpec      `yaml:"sink,omitempty"`
	Pagination *Pagination    `yaml:"pagination,omitempty"`
	With       map[string]any `yaml:"with,omitempty"`
}

// NestedTask is the task body invoked once per iteration.
type NestedTask struct {
	Tool   string         `yaml:"tool"`
	Args   map[string]any `yaml:"args,omitempty"`
	Fields map[string]any `yaml:",inline"`
	Sink   *SinkSpec      `yaml:"sink,omitempty"`
	Auth   any            `yaml:"auth,omitempty"`
}

// Pagination describes the paginated-HTTP loop variant (spec §4.7).
type Pagination struct {
	Request       *NestedTask    `yaml:"request,omitempty"`
	ContinueWhile string         `yaml:"continue_while,omitempty"`
	MaxIterations int            `yaml:"max_iterations,omitempty"`
	MergeStrategy string         `yaml:"merge_strategy,omitempty"` // append|extend|replace|collect|sink_only
	MergePath     string         `yaml:"merge_path,omitempty"`
	NextPage      map[string]any `yaml:"next_page,omitempty"`
	Retry         *Retry         `yaml:"retry,omitempty"`
	Sink          *SinkSpec      `yaml:"sink,omitempty"`
}

// Retry configures HTTP retry on transient failure (spec §4.7 / S5).
type Retry struct {
	MaxAttempts  int    `yaml:"max_attempts"`
	Backoff      string `yaml:"backoff"` // fixed | exponential
	InitialDelay int    `yaml:"initial_delay"`
	MaxDelay     int    `yaml:"max_delay"`
}

// Transition is one `next:` clause.
type Transition struct {
	Step string         `yaml:"step,omitempty"`
	With map[string]any `yaml:"with,omitempty"`
	When string         `yaml:"when,omitempty"`
	Then []Transition   `yaml:"then,omitempty"`
	Else []Transition   `yaml:"else,omitempty"`
}

// UnmarshalYAML accepts the plain-string shorthand (`next: [fetch]`) in
// addition to the object form.
func (t *Transition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&t.Step)
	}
	type plain Transition
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Transition(p)
	return nil
}

// Task is a reusable workbook entry.
type Task struct {
	Name   string         `yaml:"name"`
	Tool   string         `yaml:"tool"`
	Auth   any            `yaml:"auth,omitempty"`
	Sink   *SinkSpec      `yaml:"sink,omitempty"`
	Return string         `yaml:"return,omitempty"`
	With   map[string]any `yaml:"with,omitempty"`
	Fields map[string]any `yaml:",inline"`
}

// SinkSpec is the declarative persistence block (spec §4.6).
type SinkSpec struct {
	Storage   string         `yaml:"storage"`
	Data      any            `yaml:"data,omitempty"`
	Args      any            `yaml:"args,omitempty"`
	Auth      any            `yaml:"auth,omitempty"`
	Table     string         `yaml:"table,omitempty"`
	Mode      string         `yaml:"mode,omitempty"` // append (default) | upsert
	Key       []string       `yaml:"key,omitempty"`
	Statement string         `yaml:"statement,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
	Endpoint  string         `yaml:"endpoint,omitempty"`
	Code      string         `yaml:"code,omitempty"`
}

// Payload returns the rendered-input value for this sink: Data if present,
// else Args (legacy iterator-level alias).
func (s SinkSpec) Payload() any {
	if s.Data != nil {
		return s.Data
	}
	return s.Args
}

// FindTask returns the workbook task with the given name.
func (p Playbook) FindTask(name string) (Task, bool) {
	for _, t := range p.Workbook {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}

// FindStep returns the workflow step with the given name.
func (p Playbook) FindStep(name string) (Step, bool) {
	for _, s := range p.Workflow {
		if s.Step == name {
			return s, true
		}
	}
	return Step{}, false
}

// FindMatchingEndLoop returns the first step in the workflow whose body is
// an end_loop referencing loopName, used by the loop->end_loop auto-chain
// (spec §4.8).
func (p Playbook) FindMatchingEndLoop(loopName string) (string, bool) {
	for _, s := range p.Workflow {
		if s.EndLoop != nil && s.EndLoop.Loop == loopName {
			return s.Step, true
		}
	}
	return "", false
}

// Parse decodes a playbook YAML document and performs structural validation.
func Parse(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parsing playbook: %w", err)
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// Validate checks structural invariants: a start step exists, step names
// are unique, and every call/end_loop reference resolves.
func (p Playbook) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("playbook: name is required")
	}
	seen := make(map[string]bool, len(p.Workflow))
	hasStart := false
	for _, s := range p.Workflow {
		if s.Step == "" {
			return fmt.Errorf("playbook %s: step with empty name", p.Name)
		}
		if seen[s.Step] {
			return fmt.Errorf("playbook %s: duplicate step %q", p.Name, s.Step)
		}
		seen[s.Step] = true
		if s.Step == StartStep {
			hasStart = true
		}
		if s.Call != nil {
			if _, ok := p.FindTask(s.Call.Name); !ok {
				return fmt.Errorf("playbook %s: step %q calls unknown task %q", p.Name, s.Step, s.Call.Name)
			}
		}
	}
	if !hasStart {
		return fmt.Errorf("playbook %s: missing %q step", p.Name, StartStep)
	}
	for _, s := range p.Workflow {
		if s.EndLoop != nil {
			if _, ok := p.FindStep(s.EndLoop.Loop); !ok {
				return fmt.Errorf("playbook %s: step %q ends unknown loop %q", p.Name, s.Step, s.EndLoop.Loop)
			}
		}
	}
	return nil
}
