package server

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const querySchema = `{
  "type": "object",
  "properties": {
    "filter":   {"type": ["object", "null"]},
    "order":    {"type": "string"},
    "order_by": {"type": "string"},
    "limit":    {"type": "integer", "minimum": 0},
    "start":    {"type": "integer", "minimum": 0},
    "from":     {"type": "string"},
    "until":    {"type": "string"},
    "levels":   {"type": "array", "items": {"type": "string"}},
    "search":   {"type": "string"},
    "fields":   {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

const ingestSchema = `{
  "definitions": {
    "entry": {
      "type": "object",
      "properties": {
        "level":     {"type": "string"},
        "message":   {"type": "string"},
        "timestamp": {"type": ["string", "number"]}
      },
      "required": ["message"]
    }
  },
  "oneOf": [
    {"$ref": "#/definitions/entry"},
    {"type": "array", "items": {"$ref": "#/definitions/entry"}, "minItems": 1}
  ]
}`

type schemas struct {
	query  *gojsonschema.Schema
	ingest *gojsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	q, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(querySchema))
	if err != nil {
		return nil, fmt.Errorf("compile query schema: %w", err)
	}
	in, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ingestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}
	return &schemas{query: q, ingest: in}, nil
}

// validate checks body against schema, returning a 400 listing every
// violation.
func validate(schema *gojsonschema.Schema, body []byte) *AppError {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return badRequest("request body is not valid JSON", err.Error())
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return badRequest("request body does not match schema", details...)
}
