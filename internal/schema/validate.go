package schema

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/qolaba/qolaba-mcp/internal/json"
	"github.com/qolaba/qolaba-mcp/internal/upstream"
)

// Issue is one validation failure.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Validate checks args against the spec and returns a normalized copy:
// integers as int64, numbers as float64, files as decoded byte slices.
// Unknown fields are rejected; types are never coerced from strings.
func Validate(spec *Spec, args map[string]any) (map[string]any, []Issue) {
	var issues []Issue
	add := func(path, message, code string) {
		issues = append(issues, Issue{Path: path, Message: message, Code: code})
	}

	known := make(map[string]*Field, len(spec.Fields))
	for i := range spec.Fields {
		known[spec.Fields[i].Name] = &spec.Fields[i]
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			add(name, "unknown field", "unknown_field")
		}
	}

	normalized := make(map[string]any, len(args))
	for i := range spec.Fields {
		field := &spec.Fields[i]
		raw, present := args[field.Name]
		if !present || raw == nil {
			if field.Required {
				add(field.Name, "field is required", "required")
			}
			continue
		}
		value, ok := checkField(field, raw, add)
		if ok {
			normalized[field.Name] = value
		}
	}

	if len(issues) == 0 && spec.CrossCheck != nil {
		issues = append(issues, spec.CrossCheck(normalized)...)
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return normalized, nil
}

func checkField(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	switch field.Type {
	case TypeString:
		return checkString(field, raw, add)
	case TypeInt:
		return checkInt(field, raw, add)
	case TypeNumber:
		return checkNumber(field, raw, add)
	case TypeBool:
		v, ok := raw.(bool)
		if !ok {
			add(field.Name, "must be a boolean", "type")
			return nil, false
		}
		return v, true
	case TypeFile:
		return checkFile(field, raw, add)
	case TypeMap:
		v, ok := raw.(map[string]any)
		if !ok {
			add(field.Name, "must be an object", "type")
			return nil, false
		}
		return v, true
	case TypeMessages:
		return checkMessages(field, raw, add)
	default:
		add(field.Name, "unsupported field type", "internal")
		return nil, false
	}
}

func checkString(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	v, ok := raw.(string)
	if !ok {
		add(field.Name, "must be a string", "type")
		return nil, false
	}
	if length := utf8.RuneCountInString(v); length < field.MinLen {
		add(field.Name, fmt.Sprintf("must be at least %d characters", field.MinLen), "min_length")
		return nil, false
	} else if field.MaxLen > 0 && length > field.MaxLen {
		add(field.Name, fmt.Sprintf("must be at most %d characters", field.MaxLen), "max_length")
		return nil, false
	}
	if field.UUID {
		if _, err := uuid.Parse(v); err != nil {
			add(field.Name, "must be a UUID", "uuid")
			return nil, false
		}
	}
	return v, true
}

func checkInt(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	var v int64
	switch n := raw.(type) {
	case int:
		v = int64(n)
	case int64:
		v = n
	case float64:
		if n != math.Trunc(n) {
			add(field.Name, "must be an integer", "type")
			return nil, false
		}
		v = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			add(field.Name, "must be an integer", "type")
			return nil, false
		}
		v = parsed
	default:
		add(field.Name, "must be an integer", "type")
		return nil, false
	}
	return v, checkBounds(field, float64(v), add)
}

func checkNumber(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	var v float64
	switch n := raw.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float64:
		v = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			add(field.Name, "must be a number", "type")
			return nil, false
		}
		v = parsed
	default:
		add(field.Name, "must be a number", "type")
		return nil, false
	}
	return v, checkBounds(field, v, add)
}

func checkBounds(field *Field, v float64, add func(path, message, code string)) bool {
	if field.Min != nil && v < *field.Min {
		add(field.Name, fmt.Sprintf("must be >= %v", *field.Min), "min")
		return false
	}
	if field.Max != nil && v > *field.Max {
		add(field.Name, fmt.Sprintf("must be <= %v", *field.Max), "max")
		return false
	}
	return true
}

func checkFile(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	switch data := raw.(type) {
	case []byte:
		if len(data) == 0 {
			add(field.Name, "must not be empty", "min_length")
			return nil, false
		}
		return data, true
	case string:
		if data == "" {
			add(field.Name, "must not be empty", "min_length")
			return nil, false
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			add(field.Name, "must be base64-encoded", "base64")
			return nil, false
		}
		return decoded, true
	default:
		add(field.Name, "must be base64-encoded bytes", "type")
		return nil, false
	}
}

func checkMessages(field *Field, raw any, add func(path, message, code string)) (any, bool) {
	list, ok := raw.([]any)
	if !ok {
		add(field.Name, "must be a list of messages", "type")
		return nil, false
	}
	if len(list) == 0 {
		add(field.Name, "must not be empty", "min_length")
		return nil, false
	}
	messages := make([]map[string]any, 0, len(list))
	valid := true
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			add(fmt.Sprintf("%s[%d]", field.Name, i), "must be an object with role and content", "type")
			valid = false
			continue
		}
		role, ok := entry["role"].(string)
		if !ok || role == "" {
			add(fmt.Sprintf("%s[%d].role", field.Name, i), "must be a non-empty string", "required")
			valid = false
		}
		content, ok := entry["content"].(string)
		if !ok {
			add(fmt.Sprintf("%s[%d].content", field.Name, i), "must be a string", "required")
			valid = false
		}
		for key := range entry {
			if key != "role" && key != "content" {
				add(fmt.Sprintf("%s[%d].%s", field.Name, i, key), "unknown field", "unknown_field")
				valid = false
			}
		}
		if valid {
			messages = append(messages, map[string]any{"role": role, "content": content})
		}
	}
	if !valid {
		return nil, false
	}
	return messages, true
}

// RenderPath substitutes path parameters into the spec's path template and
// removes them from the body arguments.
func RenderPath(spec *Spec, normalized map[string]any) (string, map[string]any) {
	path := spec.Path
	if len(spec.PathParams) == 0 {
		return path, normalized
	}
	body := make(map[string]any, len(normalized))
	for k, v := range normalized {
		body[k] = v
	}
	for _, param := range spec.PathParams {
		if v, ok := body[param].(string); ok {
			path = strings.ReplaceAll(path, "{"+param+"}", v)
			delete(body, param)
		}
	}
	return path, body
}

// BuildPayload converts normalized arguments into the wire payload for the
// operation's encoding. File fields become multipart file parts with the
// filename inferred from the field name.
func BuildPayload(spec *Spec, body map[string]any) upstream.Payload {
	switch spec.Encoding {
	case EncodingJSON:
		return upstream.Payload{Kind: upstream.BodyJSON, JSON: body}
	case EncodingMultipart:
		payload := upstream.Payload{Kind: upstream.BodyMultipart, Fields: map[string]string{}}
		fileFields := make(map[string]bool)
		for i := range spec.Fields {
			if spec.Fields[i].Type == TypeFile {
				fileFields[spec.Fields[i].Name] = true
			}
		}
		for name, value := range body {
			if fileFields[name] {
				data, _ := value.([]byte)
				payload.Files = append(payload.Files, upstream.FilePart{
					Field:    name,
					Filename: name,
					Data:     data,
				})
				continue
			}
			payload.Fields[name] = formatField(value)
		}
		return payload
	default:
		return upstream.Payload{Kind: upstream.BodyNone}
	}
}

func formatField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
