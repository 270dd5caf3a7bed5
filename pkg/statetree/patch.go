// Package statetree implements the dynamic JSON state tree used by
// Intent.state and the ordered {op, path, value} patch language that
// mutates it (spec.md §4.1, "State patch semantics").
package statetree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op names a single patch operation.
type Op string

const (
	OpSet    Op = "set"
	OpAppend Op = "append"
	OpRemove Op = "remove"
)

// Patch is one entry in an ordered patch list.
type Patch struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Validate checks the shape of a single patch independent of any tree.
func (p Patch) Validate() error {
	switch p.Op {
	case OpSet, OpAppend, OpRemove:
	default:
		return fmt.Errorf("statetree: unknown op %q", p.Op)
	}
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("statetree: empty path")
	}
	if (p.Op == OpSet || p.Op == OpAppend) && p.Value == nil {
		return fmt.Errorf("statetree: op %q at %q requires a value", p.Op, p.Path)
	}
	return nil
}

func segments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Clone returns a deep copy of a JSON-like map, deep enough for our
// purposes: maps, slices and scalars produced by encoding/json.
func Clone(tree map[string]any) map[string]any {
	if tree == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		// tree was built entirely from JSON-decoded values or our own
		// Apply, so this can only fail on cyclic or non-marshalable
		// input, which Apply never produces.
		panic(fmt.Sprintf("statetree: clone failed: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("statetree: clone unmarshal failed: %v", err))
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Apply applies an ordered patch list to tree and returns the resulting
// tree. On any error the original tree is returned unmodified and the
// whole patch list is rejected, per spec.md §4.1.
func Apply(tree map[string]any, patches []Patch) (map[string]any, error) {
	working := Clone(tree)
	for i, p := range patches {
		if err := p.Validate(); err != nil {
			return tree, fmt.Errorf("patch %d: %w", i, err)
		}
		var err error
		switch p.Op {
		case OpSet:
			err = setPath(working, segments(p.Path), p.Value)
		case OpAppend:
			err = appendPath(working, segments(p.Path), p.Value)
		case OpRemove:
			removePath(working, segments(p.Path))
		}
		if err != nil {
			return tree, fmt.Errorf("patch %d (%s %s): %w", i, p.Op, p.Path, err)
		}
	}
	return working, nil
}

// setPath creates intermediate maps as needed and overwrites the leaf.
func setPath(tree map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	m := tree
	for _, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q is not a map", key)
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}

// appendPath requires (or creates) an ordered-sequence value at path and
// appends value to it.
func appendPath(tree map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	m := tree
	for _, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q is not a map", key)
		}
		m = child
	}
	leaf := path[len(path)-1]
	existing, ok := m[leaf]
	if !ok || existing == nil {
		m[leaf] = []any{value}
		return nil
	}
	seq, ok := existing.([]any)
	if !ok {
		return fmt.Errorf("existing value at leaf is not a sequence")
	}
	m[leaf] = append(seq, value)
	return nil
}

// removePath deletes the leaf. No error if the path is absent.
func removePath(tree map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	m := tree
	for _, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok {
			return
		}
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	delete(m, path[len(path)-1])
}

// Get resolves path in tree for read access (used by governance rule
// evaluation and tests). ok is false if any segment is missing.
func Get(tree map[string]any, path string) (value any, ok bool) {
	m := any(tree)
	for _, key := range segments(path) {
		asMap, isMap := m.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, exists := asMap[key]
		if !exists {
			return nil, false
		}
		m = v
	}
	return m, true
}

// InverseRemovePatches builds one {op:"remove"} patch for each distinct
// path a set or append in patches touched. Applying them removes those
// leaves but not intermediate maps a set or append created. Nothing in
// this repository calls it.
func InverseRemovePatches(patches []Patch) []Patch {
	seen := map[string]bool{}
	var out []Patch
	for _, p := range patches {
		if p.Op == OpRemove || seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		out = append(out, Patch{Op: OpRemove, Path: p.Path})
	}
	return out
}

