// Package template implements the Jinja-like expression/string expansion
// engine described in spec §4.1: `{{ ... }}` blocks are evaluated against a
// nested context map using github.com/PaesslerAG/gval as the expression
// engine, with strict-undefined semantics, a `to_json(x)` function (the
// `x | to_json` filter form is not supported), a `now()`
// global, and the auto-unwrap / auto-JSON-parse rules. The direct (non-
// expression) dotted-path accessor lives in lookup.go, built on
// github.com/tidwall/gjson.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"

	"noetl/internal/noerr"
)

// blockPattern matches a single `{{ ... }}` expression block.
var blockPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// singleBlockPattern matches a string that is *entirely* one block, used
// for the auto-unwrap rule.
var singleBlockPattern = regexp.MustCompile(`^\{\{\s*(.*?)\s*\}\}$`)

// Undefined is returned by lookups that fail to resolve a variable.
type Undefined struct{ Path string }

func (u Undefined) Error() string { return fmt.Sprintf("%q is undefined", u.Path) }

// Evaluator renders templates against a context. It is stateless and safe
// for concurrent use; it never mutates the context passed to Render.
type Evaluator struct {
	lang   gval.Language
	strict bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStrict toggles strict-undefined mode (default true per spec §4.1).
func WithStrict(strict bool) Option {
	return func(e *Evaluator) { e.strict = strict }
}

// New constructs an Evaluator with the `to_json(x)` and `now()` functions
// wired into the gval expression language.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{strict: true}
	for _, opt := range opts {
		opt(e)
	}
	e.lang = gval.NewLanguage(
		gval.Full(),
		gval.Function("to_json", func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("to_json: expected 1 argument, got %d", len(args))
			}
			b, err := json.Marshal(args[0])
			if err != nil {
				return nil, fmt.Errorf("to_json: %w", err)
			}
			return string(b), nil
		}),
		gval.Function("now", func(args ...any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		}),
	)
	return e
}

// Render walks value recursively, expanding every string's `{{ ... }}`
// blocks against ctx. Mappings and sequences recurse structurally; other
// scalar types pass through unchanged. ctx is never mutated.
func (e *Evaluator) Render(value any, ctx map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			rendered, err := e.Render(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := e.Render(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}

// RenderLenient behaves like Render but never fails: on a rendering error
// (an undefined name included) it returns value unchanged, or "" when
// value is a string and emptyOnError is set. For a map or slice, an error
// in any element returns the whole original value.
func (e *Evaluator) RenderLenient(value any, ctx map[string]any, emptyOnError bool) any {
	out, err := e.renderValueLenient(value, ctx, emptyOnError)
	if err != nil {
		return value
	}
	return out
}

func (e *Evaluator) renderValueLenient(value any, ctx map[string]any, emptyOnError bool) (any, error) {
	out, err := (&Evaluator{lang: e.lang, strict: true}).Render(value, ctx)
	if err != nil && emptyOnError {
		if _, ok := value.(string); ok {
			return "", nil
		}
	}
	return out, err
}

// renderString expands every `{{ ... }}` block in s.
//
// Auto-unwrap: if s is *entirely* a single block whose resolved value is a
// container (map/slice) or is not a string, the resolved object itself is
// returned, preserving its type, instead of its string form (spec §4.1,
// property 1: a single-variable template returns C.x with its original
// type when C.x is not a string).
func (e *Evaluator) renderString(s string, ctx map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	if m := singleBlockPattern.FindStringSubmatch(s); m != nil {
		val, err := e.eval(m[1], ctx)
		if err != nil {
			if e.strict {
				return nil, err
			}
			return s, nil
		}
		switch val.(type) {
		case map[string]any, []any:
			return val, nil
		case string:
			// fall through to string rendering / JSON auto-parse below
		default:
			return val, nil
		}
	}

	var sb strings.Builder
	lastEnd := 0
	var firstErr error
	for _, loc := range blockPattern.FindAllStringSubmatchIndex(s, -1) {
		sb.WriteString(s[lastEnd:loc[0]])
		expr := s[loc[2]:loc[3]]
		val, err := e.eval(expr, ctx)
		if err != nil {
			if e.strict {
				return nil, err
			}
			firstErr = err
			sb.WriteString(s[loc[0]:loc[1]])
			lastEnd = loc[1]
			continue
		}
		sb.WriteString(stringify(val))
		lastEnd = loc[1]
	}
	sb.WriteString(s[lastEnd:])
	rendered := sb.String()
	if firstErr != nil && !e.strict {
		return rendered, nil
	}

	// JSON auto-parse: a rendered string that parses as a JSON array/object
	// is returned parsed, preserving structure (spec §4.1).
	trimmed := strings.TrimSpace(rendered)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed, nil
		}
	}
	return rendered, nil
}

// flatStepRefPattern matches an `<ident>.result` or `<ident>.status`
// reference, the two attributes the interpreter binds as literal dotted
// keys alongside each step's nested value (spec §4.8 step 7: "Bind
// <step_name>, <step_name>.result, <step_name>.status ... into context").
// gval resolves a dotted path by descending through real nested maps, so
// a context key that is itself a literal string containing a dot (as
// opposed to a nested map) is otherwise unreachable from an expression.
var flatStepRefPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.(result|status)\b`)

func (e *Evaluator) eval(expr string, ctx map[string]any) (any, error) {
	rewritten, vars := rewriteFlatStepRefs(expr, ctx)
	eval, err := e.lang.NewEvaluable(rewritten, vars)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindTemplate, err, "parsing expression %q", expr)
	}
	val, err := eval(nil, vars)
	if err != nil {
		if isUndefined(err) && !e.strict {
			return "", nil
		}
		return nil, noerr.Wrap(noerr.KindTemplate, err, "evaluating expression %q", expr)
	}
	return val, nil
}

// rewriteFlatStepRefs replaces every `<ident>.result`/`<ident>.status`
// occurrence in expr with a synthetic identifier bound, in the returned
// vars map, to the literal flat context key of the same name — so
// `fetch.result.data.max_temp` becomes `__flat_0.data.max_temp` with
// `__flat_0` bound to ctx["fetch.result"], and gval's ordinary nested-map
// descent takes over from there. References with no matching flat key
// (most expressions — plain nested field access like `item.id` never
// matches `.result`/`.status`) pass through untouched.
func rewriteFlatStepRefs(expr string, ctx map[string]any) (string, map[string]any) {
	if ctx == nil {
		ctx = map[string]any{}
	}
	matches := flatStepRefPattern.FindAllStringSubmatchIndex(expr, -1)
	if len(matches) == 0 {
		return expr, ctx
	}

	vars := make(map[string]any, len(ctx))
	for k, v := range ctx {
		vars[k] = v
	}

	var sb strings.Builder
	lastEnd := 0
	replaced := false
	for i, m := range matches {
		ident := expr[m[2]:m[3]]
		suffix := expr[m[4]:m[5]]
		flatKey := ident + "." + suffix
		val, ok := ctx[flatKey]
		if !ok {
			continue
		}
		name := fmt.Sprintf("__flat_%d", i)
		vars[name] = val
		sb.WriteString(expr[lastEnd:m[0]])
		sb.WriteString(name)
		lastEnd = m[1]
		replaced = true
	}
	if !replaced {
		return expr, ctx
	}
	sb.WriteString(expr[lastEnd:])
	return sb.String(), vars
}

func isUndefined(err error) bool {
	return strings.Contains(err.Error(), "unknown parameter") || strings.Contains(err.Error(), "no parameter")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}
