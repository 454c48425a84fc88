package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// DefinitionJSONSchema describes a schema definition document: an object
// keyed by non-blank field name, each value a field spec.
func DefinitionJSONSchema() map[string]any {
	field := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":        map[string]any{"type": "string"},
			"required":    map[string]any{"type": "boolean"},
			"nullable":    map[string]any{"type": "boolean"},
			"description": map[string]any{"type": "string"},
			"format":      map[string]any{"type": []any{"string", "null"}},
		},
	}
	return map[string]any{
		"type":                 "object",
		"minProperties":        1,
		"propertyNames":        map[string]any{"minLength": 1, "pattern": `\S`},
		"additionalProperties": field,
	}
}

// ParseDefinition checks a schema definition locally and decodes it.
// Failures wrap common.ErrValidation and never reach the network.
func ParseDefinition(raw []byte) (entity.Schema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return entity.Schema{}, invalid("schema definition is empty", nil)
	}
	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return entity.Schema{}, invalid("schema definition is not valid JSON", err)
	}
	// accept the {"schema": {...}} envelope the server returns
	if obj, ok := doc.(map[string]any); ok && len(obj) == 1 {
		if inner, ok := obj["schema"].(map[string]any); ok {
			var env struct {
				Schema json.RawMessage `json:"schema"`
			}
			if err := json.Unmarshal(trimmed, &env); err != nil {
				return entity.Schema{}, invalid("schema definition", err)
			}
			trimmed, doc = env.Schema, inner
		}
	}
	if err := validateAgainst(DefinitionJSONSchema(), doc); err != nil {
		return entity.Schema{}, invalid("schema definition does not match the expected shape", err)
	}

	for name, spec := range doc.(map[string]any) {
		raw, _ := spec.(map[string]any)["type"].(string)
		if _, ok := constants.CanonicalizeFieldType(raw); !ok {
			return entity.Schema{}, invalid(fmt.Sprintf("field %q: unknown type %q (expected one of %s)",
				name, raw, strings.Join(constants.FieldTypesAsStrings(), ", ")), nil)
		}
	}

	var s entity.Schema
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return entity.Schema{}, invalid("schema definition", err)
	}
	return s, nil
}

func validateAgainst(schemaMap map[string]any, doc any) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("definition.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("definition.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return compiled.Validate(doc)
}

// ValidateFieldSpec checks a single field before it is sent.
func ValidateFieldSpec(spec entity.FieldSpec) error {
	v := common.NewValidator()
	v.Field("name", strings.TrimSpace(spec.Name), common.Required, common.MaxLength(128))
	v.Field("type", string(spec.Type), common.OneOf(constants.FieldTypesAsStrings()...))
	return common.ValidateAndReturnError(v)
}

func invalid(msg string, cause error) error {
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return common.NewAppError("INVALID_SCHEMA", msg, common.ErrValidation)
}
