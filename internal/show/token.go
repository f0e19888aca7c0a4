package show

import (
	"fmt"
	"regexp"
	"sort"
)

// tokenPattern matches a whole scalar or key of the form "(name)".
var tokenPattern = regexp.MustCompile(`^\((.+)\)$`)

// tokenName extracts the token name from a "(name)" marker.
func tokenName(s string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// scanTokens walks a compiled step list and indexes every token
// occurrence with its full path. Values nested under a token-marked
// key are scanned too, so a key and a value token can coexist in one
// payload.
func scanTokens(steps []Step) TokenIndex {
	idx := TokenIndex{
		Values: make(map[string][]Path),
		Keys:   make(map[string][]Path),
	}
	for i, step := range steps {
		for section, payload := range step.Actions {
			scanValue(payload, Path{i, section}, &idx)
		}
	}
	return idx
}

// scanValue records token occurrences in v, where p is the path
// locating v itself.
func scanValue(v any, p Path, idx *TokenIndex) {
	switch val := v.(type) {
	case map[string]any:
		for key, inner := range val {
			child := clonePath(p, key)
			if name, ok := tokenName(key); ok {
				idx.Keys[name] = append(idx.Keys[name], child)
			}
			scanValue(inner, child, idx)
		}
	case []any:
		for i, inner := range val {
			scanValue(inner, clonePath(p, i), idx)
		}
	case string:
		if name, ok := tokenName(val); ok {
			idx.Values[name] = append(idx.Values[name], clonePath(p))
		}
	}
}

// clonePath copies p and appends extra elements. Paths must not share
// backing arrays, or appends from sibling branches would clobber each
// other.
func clonePath(p Path, extra ...any) Path {
	out := make(Path, len(p), len(p)+len(extra))
	copy(out, p)
	return append(out, extra...)
}

// substituteTokens replaces token occurrences in a private step copy.
// Scalar-value substitutions run first, then key renames; renamed keys
// are tracked so later paths that traverse a renamed key still
// resolve. The supplied token set must be a subset of the index.
func substituteTokens(showName string, steps []Step, idx TokenIndex, tokens map[string]any) error {
	if len(tokens) == 0 {
		return nil
	}

	var unknown []string
	for name := range tokens {
		if !idx.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &TokenMismatchError{Show: showName, Unknown: unknown, Declared: idx.Names()}
	}

	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	// renamed maps an original "(name)" key to its replacement, consulted
	// when a path element no longer exists under its compiled name.
	renamed := make(map[string]string)

	for _, name := range names {
		for _, p := range idx.Values[name] {
			if err := setAtPath(steps, p, tokens[name], renamed); err != nil {
				return fmt.Errorf("substituting token %q: %w", name, err)
			}
		}
	}

	for _, name := range names {
		newKey := valueString(tokens[name])
		for _, p := range idx.Keys[name] {
			if err := renameKeyAtPath(steps, p, newKey, renamed); err != nil {
				return fmt.Errorf("substituting token key %q: %w", name, err)
			}
		}
		renamed["("+name+")"] = newKey
	}

	return nil
}

// setAtPath writes value at the location p points to.
func setAtPath(steps []Step, p Path, value any, renamed map[string]string) error {
	if len(p) < 2 {
		return fmt.Errorf("path too short: %v", p)
	}
	stepIdx, ok := p[0].(int)
	if !ok || stepIdx < 0 || stepIdx >= len(steps) {
		return fmt.Errorf("bad step index in path %v", p)
	}

	// The actions map is the root container; remaining elements walk
	// into it, with the final element naming the slot to set.
	var container any = steps[stepIdx].Actions
	for _, elem := range p[1 : len(p)-1] {
		next, err := childOf(container, elem, renamed)
		if err != nil {
			return err
		}
		container = next
	}

	last := p[len(p)-1]
	switch c := container.(type) {
	case map[string]any:
		key, ok := last.(string)
		if !ok {
			return fmt.Errorf("non-string key %v in map path %v", last, p)
		}
		key = resolveKey(c, key, renamed)
		c[key] = value
	case []any:
		i, ok := last.(int)
		if !ok || i < 0 || i >= len(c) {
			return fmt.Errorf("bad slice index %v in path %v", last, p)
		}
		c[i] = value
	default:
		return fmt.Errorf("cannot set into %T at path %v", container, p)
	}
	return nil
}

// renameKeyAtPath renames the map key the path's final element names.
func renameKeyAtPath(steps []Step, p Path, newKey string, renamed map[string]string) error {
	if len(p) < 3 {
		return fmt.Errorf("key path too short: %v", p)
	}
	stepIdx, ok := p[0].(int)
	if !ok || stepIdx < 0 || stepIdx >= len(steps) {
		return fmt.Errorf("bad step index in path %v", p)
	}

	var container any = steps[stepIdx].Actions
	for _, elem := range p[1 : len(p)-1] {
		next, err := childOf(container, elem, renamed)
		if err != nil {
			return err
		}
		container = next
	}

	m, ok := container.(map[string]any)
	if !ok {
		return fmt.Errorf("key path %v does not end in a map", p)
	}
	oldKey, ok := p[len(p)-1].(string)
	if !ok {
		return fmt.Errorf("non-string key element in path %v", p)
	}
	val, ok := m[oldKey]
	if !ok {
		return fmt.Errorf("key %q missing at path %v", oldKey, p)
	}
	delete(m, oldKey)
	m[newKey] = val
	return nil
}

// childOf steps one path element into a container.
func childOf(container any, elem any, renamed map[string]string) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		key, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("non-string key %v for map", elem)
		}
		key = resolveKey(c, key, renamed)
		child, ok := c[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		return child, nil
	case []any:
		i, ok := elem.(int)
		if !ok || i < 0 || i >= len(c) {
			return nil, fmt.Errorf("bad slice index %v", elem)
		}
		return c[i], nil
	default:
		return nil, fmt.Errorf("cannot traverse %T", container)
	}
}

// resolveKey follows a rename when the compiled key is gone.
func resolveKey(m map[string]any, key string, renamed map[string]string) string {
	if _, ok := m[key]; ok {
		return key
	}
	if nk, ok := renamed[key]; ok {
		return nk
	}
	return key
}

// valueString renders a token value for use as a map key.
func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
