package schema

// JSONSchema builds the JSON-schema document a tool declares to the MCP
// transport. It is derived from the same field table that drives
// validation, so the two can never drift apart.
func JSONSchema(spec *Spec) map[string]any {
	properties := make(map[string]any, len(spec.Fields))
	var required []string

	for i := range spec.Fields {
		field := &spec.Fields[i]
		properties[field.Name] = fieldSchema(field)
		if field.Required {
			required = append(required, field.Name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func fieldSchema(field *Field) map[string]any {
	doc := map[string]any{}
	if field.Description != "" {
		doc["description"] = field.Description
	}

	switch field.Type {
	case TypeString:
		doc["type"] = "string"
		if field.MinLen > 0 {
			doc["minLength"] = field.MinLen
		}
		if field.MaxLen > 0 {
			doc["maxLength"] = field.MaxLen
		}
		if field.UUID {
			doc["format"] = "uuid"
		}
	case TypeInt:
		doc["type"] = "integer"
		if field.Min != nil {
			doc["minimum"] = *field.Min
		}
		if field.Max != nil {
			doc["maximum"] = *field.Max
		}
	case TypeNumber:
		doc["type"] = "number"
		if field.Min != nil {
			doc["minimum"] = *field.Min
		}
		if field.Max != nil {
			doc["maximum"] = *field.Max
		}
	case TypeBool:
		doc["type"] = "boolean"
	case TypeFile:
		doc["type"] = "string"
		doc["contentEncoding"] = "base64"
	case TypeMap:
		doc["type"] = "object"
	case TypeMessages:
		doc["type"] = "array"
		doc["minItems"] = 1
		doc["items"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"role":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required":             []string{"role", "content"},
			"additionalProperties": false,
		}
	}
	return doc
}
