// Package auth implements the credential/auth resolver described in
// spec §4.4: an auth input is either a string key naming a stored
// credential, a single-mode mapping identifying one credential inline,
// or an alias map of single-mode objects producing a named bundle.
package auth

import (
	"context"

	"noetl/internal/domain/credential"
	"noetl/internal/logging"
	"noetl/internal/noerr"
	"noetl/internal/store/credentialstore"
	"noetl/internal/template"
)

// Mode indicates how the auth input was shaped.
type Mode string

const (
	ModeKey      Mode = "key"
	ModeSingle   Mode = "single"
	ModeAliasMap Mode = "alias_map"
)

// ResolvedAuth is one resolved credential, scoped to a service/payload pair.
type ResolvedAuth struct {
	Service string
	Payload map[string]any
	Scope   string
}

// Resolution is the resolver's output: a mode indicator plus the
// alias -> ResolvedAuth bundle. Single-mode and key-mode resolutions are
// returned under the DefaultAlias key so callers can treat every mode
// uniformly.
type Resolution struct {
	Mode  Mode
	Items map[string]ResolvedAuth
}

// DefaultAlias is the synthetic alias used for single-mode and key-mode
// resolutions, which don't carry an explicit alias of their own.
const DefaultAlias = "default"

// Resolver expands auth inputs against catalog-backed credentials and the
// active execution context.
type Resolver struct {
	credentials credentialstore.Store
	evaluator   *template.Evaluator
	log         *logging.Logger
}

// New constructs a Resolver backed by the given credential store.
func New(credentials credentialstore.Store, evaluator *template.Evaluator) *Resolver {
	return &Resolver{
		credentials: credentials,
		evaluator:   evaluator,
		log:         logging.NewDefault("auth"),
	}
}

// Resolve normalizes and resolves raw, which may be:
//   - a string: a credential name to fetch as-is.
//   - a map with a "key", "type", "env" or "secret" field, or with no
//     map-valued entries: single mode.
//   - any other map (one with map-valued entries): an alias map.
//
// Legacy "credential"/"credentials" fields are rewritten to "auth" by
// NormalizeLegacyFields before Resolve is called; Resolve itself only
// understands the "auth" shape.
func (r *Resolver) Resolve(ctx context.Context, raw any, execCtx map[string]any) (*Resolution, error) {
	if raw == nil {
		return &Resolution{Mode: ModeAliasMap, Items: map[string]ResolvedAuth{}}, nil
	}

	switch v := raw.(type) {
	case string:
		item, err := r.resolveOne(ctx, map[string]any{"key": v}, execCtx)
		if err != nil {
			return nil, err
		}
		return &Resolution{Mode: ModeKey, Items: map[string]ResolvedAuth{DefaultAlias: *item}}, nil

	case map[string]any:
		if isSingleMode(v) {
			item, err := r.resolveOne(ctx, v, execCtx)
			if err != nil {
				return nil, err
			}
			return &Resolution{Mode: ModeSingle, Items: map[string]ResolvedAuth{DefaultAlias: *item}}, nil
		}

		items := make(map[string]ResolvedAuth, len(v))
		for alias, entry := range v {
			entryMap, ok := entry.(map[string]any)
			if !ok {
				return nil, noerr.New(noerr.KindCredential, "auth alias %q: expected a mapping, got %T", alias, entry)
			}
			item, err := r.resolveOne(ctx, entryMap, execCtx)
			if err != nil {
				return nil, noerr.Wrap(noerr.KindCredential, err, "resolving auth alias %q", alias)
			}
			items[alias] = *item
		}
		return &Resolution{Mode: ModeAliasMap, Items: items}, nil

	default:
		return nil, noerr.New(noerr.KindCredential, "unsupported auth value of type %T", raw)
	}
}

// isSingleMode reports whether m looks like one credential descriptor
// (has a key/type/env/secret field) rather than a map of aliases to
// descriptors.
func isSingleMode(m map[string]any) bool {
	for _, marker := range []string{"key", "type", "env", "secret"} {
		if _, ok := m[marker]; ok {
			return true
		}
	}
	for _, v := range m {
		if _, ok := v.(map[string]any); ok {
			return false
		}
	}
	return true
}

func (r *Resolver) resolveOne(ctx context.Context, descriptor map[string]any, execCtx map[string]any) (*ResolvedAuth, error) {
	rendered, err := r.evaluator.RenderMap(descriptor, execCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindCredential, err, "expanding auth descriptor templates")
	}

	payload := map[string]any{}
	service, _ := rendered["type"].(string)

	if key, ok := rendered["key"].(string); ok && key != "" {
		cred, err := r.fetch(ctx, key, execCtx)
		if err != nil {
			return nil, err
		}
		for k, v := range cred.Data {
			payload[k] = v
		}
		if service == "" {
			service = cred.Type
		}
	}

	if env, ok := rendered["env"].(string); ok && env != "" {
		r.log.Debug("auth descriptor references env indirection", logging.F("env", env))
	}

	for k, v := range rendered {
		switch k {
		case "key", "type", "env", "secret":
			continue
		}
		payload[k] = v
	}

	scope, _ := rendered["scope"].(string)
	return &ResolvedAuth{Service: service, Payload: payload, Scope: scope}, nil
}

// fetch resolves a credential by name from the catalog-backed store. If the
// name is not found there, callers running in keychain-fallback mode may
// retry with a catalog_id/execution_id scoped lookup; this resolver only
// implements the direct store lookup, matching the in-process engine's
// credential store.
func (r *Resolver) fetch(ctx context.Context, name string, execCtx map[string]any) (*credential.Credential, error) {
	cred, err := r.credentials.Get(ctx, name)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindCredential, err, "fetching credential %q", name)
	}
	return cred, nil
}

// NormalizeLegacyFields rewrites the legacy "credential"/"credentials"
// fields to "auth" in place, logging a warning, per spec §4.4's backward
// compatibility note. It returns the field's value under "auth" (nil if
// neither legacy field nor "auth" was present).
func NormalizeLegacyFields(fields map[string]any, log *logging.Logger) any {
	if v, ok := fields["auth"]; ok {
		return v
	}
	for _, legacy := range []string{"credential", "credentials"} {
		if v, ok := fields[legacy]; ok {
			if log != nil {
				log.Warn("deprecated auth field, rewriting to 'auth'", logging.F("field", legacy))
			}
			delete(fields, legacy)
			fields["auth"] = v
			return v
		}
	}
	return nil
}
