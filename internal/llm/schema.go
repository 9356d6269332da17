package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReceiptJSONSchema returns the schema (draft 2020-12 subset) a repaired
// extraction object must satisfy before typed conversion. Money and quantity
// fields are decimal strings; the repairer's sanitize pass coerces numeric
// variants beforehand.
func BuildReceiptJSONSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"raw_name":             map[string]any{"type": "string", "minLength": 1},
			"quantity":             decimalProp(),
			"unit":                 map[string]any{"type": "string"},
			"unit_price":           decimalProp(),
			"line_total":           decimalProp(),
			"discount":             decimalProp(),
			"price_after_discount": decimalProp(),
		},
		"required": []string{"raw_name"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"store": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"location": map[string]any{"type": "string"},
				},
			},
			"purchase": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":           map[string]any{"type": "string", "minLength": 1},
					"declared_total": decimalProp(),
				},
				"required": []string{"date"},
			},
			"items": map[string]any{"type": "array", "items": item},
		},
		"required": []string{"purchase", "items"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // negatives are legal on discount rows
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
