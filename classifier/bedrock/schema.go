package bedrock

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// intentSchema declares the strict JSON object the model must return for
// intent classification. Responses failing validation are rejected, which
// makes the runtime fall back to the heuristic classifier.
func intentSchema() *jsonschema.Schema {
	zero := 0.0
	one := 1.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"action": {
				Type: "string",
				Enum: []any{"log", "patch", "replace", "delete", "list", "clarify"},
			},
			"meal_ref":     {Type: "integer"},
			"delete_scope": {Type: "string", Enum: []any{"one", "all"}},
			"items": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":         {Type: "string"},
						"display":      {Type: "string"},
						"quantity":     {Type: "number"},
						"unit":         {Type: "string"},
						"size":         {Type: "string"},
						"amount_grams": {Type: "number"},
						"kcal":         {Type: "number"},
						"protein":      {Type: "number"},
						"carbs":        {Type: "number"},
						"fat":          {Type: "number"},
					},
					Required: []string{"name"},
				},
			},
			"confidence":     {Type: "number", Minimum: &zero, Maximum: &one},
			"requires_input": {Type: "string"},
			"reason":         {Type: "string"},
		},
		Required: []string{"action", "confidence"},
	}
}

// nominationSchema declares the strict JSON object the model must return when
// nominating a nutrition candidate.
func nominationSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"candidate_id": {Type: "string"},
			"rationale":    {Type: "string"},
		},
		Required: []string{"candidate_id"},
	}
}

// validateAgainst checks raw JSON text against a declared schema and decodes
// it into out.
func validateAgainst(schema *jsonschema.Schema, raw string, out any) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}

	var instance map[string]any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("response does not match declared schema: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
