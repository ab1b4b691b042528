// Package code implements the in-process code task plugin described in
// spec §4.5: base64 script body executed in an isolated goja runtime, a
// required `main` entry point called with the `args` mapping (see
// dispatchArgs; main's declared parameters are not inspected), and
// literal-style coercion of ambiguous string arguments.
//
// Grounded on the goja-based script engine in the retrieved service-layer
// pack (system/tee/script_engine.go): a fresh *goja.Runtime per
// invocation, a console shim, and an Export()-based result conversion.
package code

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"noetl/internal/plugin"
	"noetl/internal/template"
)

// ToolName is the task tool this plugin handles.
const ToolName = "code"

// EntryPoint is the required top-level callable name.
const EntryPoint = "main"

// Plugin implements plugin.Plugin for in-process code tasks.
type Plugin struct{}

// New constructs a code plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Tool() string { return ToolName }

func (p *Plugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	start := time.Now()
	emit("task_start", map[string]any{"tool": ToolName})

	encoded, _ := cfg.Fields["code"].(string)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("decoding base64 code: %w", err))
	}

	args, err := eval.RenderMap(cfg.With, execCtx)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("expanding code task args: %w", err))
	}
	args = coerceArgs(args)

	vm := goja.New()
	logs := []string{}
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		logs = append(logs, strings.Join(parts, " "))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	if _, err := vm.RunString(string(decoded)); err != nil {
		return p.fail(emit, start, fmt.Errorf("loading code body: %w", err))
	}

	mainFn, ok := goja.AssertFunction(vm.Get(EntryPoint))
	if !ok {
		return p.fail(emit, start, fmt.Errorf("code body does not define a %q function", EntryPoint))
	}

	callArgs, err := dispatchArgs(vm, mainFn, args)
	if err != nil {
		return p.fail(emit, start, err)
	}

	resultVal, err := mainFn(goja.Undefined(), callArgs...)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("executing %s: %w", EntryPoint, err))
	}

	output := exportResult(resultVal)
	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "logs": logs})
	return plugin.Result{Status: plugin.StatusSuccess, Data: output}
}

// dispatchArgs decides how to call main from args alone: with no
// arguments when args is empty, otherwise with the whole args map as its
// single positional argument. main's declared arity and parameter names
// are not inspected, so a multi-parameter main receives the map in its
// first parameter and undefined in the rest.
func dispatchArgs(vm *goja.Runtime, fn goja.Callable, args map[string]any) ([]goja.Value, error) {
	switch len(args) {
	case 0:
		return nil, nil
	default:
		return []goja.Value{vm.ToValue(args)}, nil
	}
}

// exportResult converts a goja return value to plain Go data. It always
// round-trips through JSON so numeric types are consistently float64
// regardless of whether goja exported an int64 or float64 for a given
// JS number, matching encoding/json's own decode convention.
func exportResult(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	b, err := json.Marshal(exported)
	if err != nil {
		return fmt.Sprintf("%v", exported)
	}
	var parsed any
	if err := json.Unmarshal(b, &parsed); err != nil {
		return string(b)
	}
	return parsed
}

// coerceArgs rewrites literal-looking string values (numbers, booleans,
// null, JSON objects/arrays) to their native Go type, mirroring the
// plugin contract's "literal-style coercion of ambiguous args" rule.
func coerceArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	case "null", "none", "None":
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return v
}

func (p *Plugin) fail(emit plugin.EventEmitter, start time.Time, err error) plugin.Result {
	emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": err.Error()})
	return plugin.Result{Status: plugin.StatusError, Error: err.Error()}
}
