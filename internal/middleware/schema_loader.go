package middleware

import (
	_ "embed"
	"encoding/json"
	"sort"

	contextutils "feedbackhub/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"
)

//go:embed schemas.yaml
var embeddedSchemas []byte

// SchemaLoader holds the compiled request body schemas
type SchemaLoader struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaLoader creates an empty schema loader
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadEmbeddedSchemas compiles the schemas shipped with the binary
func LoadEmbeddedSchemas() (*SchemaLoader, error) {
	sl := NewSchemaLoader()
	if err := sl.LoadSchemas(embeddedSchemas); err != nil {
		return nil, err
	}
	return sl, nil
}

// LoadSchemas compiles every entry of a YAML document's components/schemas
// section. Entries may $ref each other.
func (sl *SchemaLoader) LoadSchemas(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return contextutils.WrapError(err, "failed to parse schema document as YAML")
	}

	components, ok := doc["components"].(map[interface{}]interface{})
	if !ok {
		return contextutils.ErrorWithContextf("no components section found in schema document")
	}
	schemas, ok := components["schemas"].(map[interface{}]interface{})
	if !ok {
		return contextutils.ErrorWithContextf("no schemas section found in components")
	}

	jsonCompatibleSchemas := make(map[string]interface{}, len(schemas))
	for name, schemaData := range schemas {
		nameStr, ok := name.(string)
		if !ok {
			return contextutils.ErrorWithContextf("schema name is not a string: %v", name)
		}
		converted, err := convertToJSONCompatible(schemaData)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to convert schema %s", nameStr)
		}
		jsonCompatibleSchemas[nameStr] = converted
	}

	for name := range jsonCompatibleSchemas {
		// The whole components section travels with each schema so $ref resolves
		completeSchemaDoc := map[string]interface{}{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"components": map[string]interface{}{
				"schemas": jsonCompatibleSchemas,
			},
			"$ref": "#/components/schemas/" + name,
		}
		schemaBytes, err := json.Marshal(completeSchemaDoc)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to marshal schema %s", name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to compile schema %s", name)
		}
		sl.schemas[name] = schema
	}
	return nil
}

// Has reports whether a schema with that name was loaded
func (sl *SchemaLoader) Has(name string) bool {
	_, ok := sl.schemas[name]
	return ok
}

// Names lists the loaded schemas, sorted
func (sl *SchemaLoader) Names() []string {
	names := make([]string, 0, len(sl.schemas))
	for name := range sl.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertToJSONCompatible turns yaml.v2 maps into JSON maps and rewrites the
// OpenAPI nullable keyword into a JSON-schema null type.
func convertToJSONCompatible(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		hasNullable := false

		for k, val := range v {
			keyStr, ok := k.(string)
			if !ok {
				return nil, contextutils.ErrorWithContextf("key is not a string: %v", k)
			}
			if keyStr == "nullable" {
				if nullable, ok := val.(bool); ok && nullable {
					hasNullable = true
				}
				continue
			}
			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[keyStr] = convertedVal
		}

		if hasNullable {
			if ref, hasRef := result["$ref"].(string); hasRef {
				result["oneOf"] = []interface{}{
					map[string]interface{}{"$ref": ref},
					map[string]interface{}{"type": "null"},
				}
				delete(result, "$ref")
			} else if typeVal, hasType := result["type"].(string); hasType {
				result["type"] = []interface{}{typeVal, "null"}
			}
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[i] = convertedVal
		}
		return result, nil
	default:
		return data, nil
	}
}

// Validate checks a JSON body against the named schema and returns one
// FieldError per failure. An empty body is validated as {}.
func (sl *SchemaLoader) Validate(body []byte, name string) ([]contextutils.FieldError, error) {
	schema, ok := sl.schemas[name]
	if !ok {
		return nil, contextutils.ErrorWithContextf("schema %s not found", name)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return []contextutils.FieldError{{Field: "body", Message: "must be valid JSON"}}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, contextutils.WrapError(err, "schema validation error")
	}
	if result.Valid() {
		return nil, nil
	}

	fields := make([]contextutils.FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		fields = append(fields, contextutils.FieldError{Field: fieldName(e), Message: e.Description()})
	}
	return fields, nil
}

// fieldName names the offending property. Required and unknown-property errors
// are reported by gojsonschema against the parent object.
func fieldName(e gojsonschema.ResultError) string {
	field := e.Field()
	if prop, ok := e.Details()["property"].(string); ok && prop != "" {
		switch e.Type() {
		case "required", "additional_property_not_allowed":
			if field == "(root)" {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == "(root)" {
		return "body"
	}
	return field
}
