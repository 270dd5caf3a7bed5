package statetree

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles and caches JSON-Schema documents referenced
// by an intent's governance_policy.state_schema_ref (SPEC_FULL §11: a
// domain-stack home for santhosh-tekuri/jsonschema/v5, otherwise unused
// by spec.md's fixed-field state model).
type SchemaValidator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator creates an empty validator cache.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// Register compiles and caches a schema document under ref.
func (v *SchemaValidator) Register(ref, schemaJSON string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://openintent.local/schemas/" + ref + ".json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("statetree: schema %q load failed: %w", ref, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("statetree: schema %q compile failed: %w", ref, err)
	}
	v.mu.Lock()
	v.compiled[ref] = compiled
	v.mu.Unlock()
	return nil
}

// Validate checks tree against the schema named by ref. A ref with no
// registered schema is treated as "no constraint" rather than an error,
// since governance_policy.state_schema_ref is optional.
func (v *SchemaValidator) Validate(ref string, tree map[string]any) error {
	if ref == "" {
		return nil
	}
	v.mu.RLock()
	schema, ok := v.compiled[ref]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.ValidateInterface(map[string]any(tree)); err != nil {
		return fmt.Errorf("statetree: state violates schema %q: %w", ref, err)
	}
	return nil
}
