package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema is the JSON schema every extraction pass response must
// satisfy: a flat object mapping field names to {value, confidence,
// original_text} entries.
const extractionSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "properties": {
      "value": {},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1},
      "original_text": {"type": "string"}
    },
    "required": ["value"]
  }
}`

var compiledSchema = mustCompileSchema(extractionSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader([]byte(src))); err != nil {
		panic(fmt.Sprintf("failed to load extraction schema: %v", err))
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile extraction schema: %v", err))
	}
	return schema
}

// validateExtraction checks a parsed pass response against the extraction
// schema.
func validateExtraction(parsed json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode extraction JSON for validation: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("extraction output does not match schema: %w", err)
	}
	return nil
}
