package relayhub

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// configSchema is the shape contract for documents accepted on
// POST /config. Widget-owned sections stay free-form; only the fields
// the sync layer itself depends on are constrained.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["screens"],
  "properties": {
    "screens": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "panels"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "panels": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "widget"],
              "properties": {
                "id": {"type": "string"},
                "widget": {"type": "string"},
                "x": {"type": "number"},
                "y": {"type": "number"},
                "width": {"type": "number"},
                "height": {"type": "number"},
                "refresh": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "activeScreenIndex": {"type": "integer", "minimum": 0},
    "dark": {"type": "boolean"},
    "_saveId": {"type": "string"}
  }
}`

const configSchemaURL = "hearthview://schemas/dashboard-config.json"

func compileConfigSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return nil, fmt.Errorf("parse config schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(configSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("register config schema: %w", err)
	}
	schema, err := compiler.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return schema, nil
}
