package schema

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/qolaba/qolaba-mcp/internal/json"
	"github.com/qolaba/qolaba-mcp/internal/upstream"
)

func mustSpec(t *testing.T, name string) *Spec {
	t.Helper()
	spec := Lookup(name)
	if spec == nil {
		t.Fatalf("operation %s missing from catalog", name)
	}
	return spec
}

func issueCode(issues []Issue, path string) string {
	for _, issue := range issues {
		if issue.Path == path {
			return issue.Code
		}
	}
	return ""
}

func TestTextToImageMinimal(t *testing.T) {
	spec := mustSpec(t, "text_to_image")
	normalized, issues := Validate(spec, map[string]any{"prompt": "a red cube"})
	if len(issues) != 0 {
		t.Fatalf("expected valid, got %v", issues)
	}
	if normalized["prompt"] != "a red cube" {
		t.Errorf("prompt not preserved: %v", normalized["prompt"])
	}
}

func TestWidthHeightBoundaries(t *testing.T) {
	spec := mustSpec(t, "text_to_image")
	tests := []struct {
		value float64
		valid bool
	}{
		{63, false},
		{64, true},
		{4096, true},
		{4097, false},
	}
	for _, tt := range tests {
		_, issues := Validate(spec, map[string]any{"prompt": "x", "width": tt.value, "height": tt.value})
		if tt.valid && len(issues) != 0 {
			t.Errorf("width %v: expected valid, got %v", tt.value, issues)
		}
		if !tt.valid && len(issues) == 0 {
			t.Errorf("width %v: expected rejection", tt.value)
		}
	}
}

func TestTemperatureBoundaries(t *testing.T) {
	spec := mustSpec(t, "chat")
	messages := []any{map[string]any{"role": "user", "content": "hi"}}
	tests := []struct {
		value float64
		valid bool
	}{
		{0, true},
		{2, true},
		{-0.001, false},
		{2.001, false},
	}
	for _, tt := range tests {
		_, issues := Validate(spec, map[string]any{"messages": messages, "temperature": tt.value})
		if tt.valid && len(issues) != 0 {
			t.Errorf("temperature %v: expected valid, got %v", tt.value, issues)
		}
		if !tt.valid && len(issues) == 0 {
			t.Errorf("temperature %v: expected rejection", tt.value)
		}
	}
}

func TestOverlapMustBeLessThanChunkSize(t *testing.T) {
	spec := mustSpec(t, "store_vector_db")
	file := base64.StdEncoding.EncodeToString([]byte("doc"))

	_, issues := Validate(spec, map[string]any{
		"file": file, "collection_name": "docs",
		"chunk_size": float64(100), "overlap": float64(100),
	})
	if issueCode(issues, "overlap") != "max" {
		t.Errorf("expected overlap rejection, got %v", issues)
	}

	_, issues = Validate(spec, map[string]any{
		"file": file, "collection_name": "docs",
		"chunk_size": float64(100), "overlap": float64(99),
	})
	if len(issues) != 0 {
		t.Errorf("expected overlap 99 accepted, got %v", issues)
	}
}

func TestEmptyMessagesRejected(t *testing.T) {
	spec := mustSpec(t, "chat")
	_, issues := Validate(spec, map[string]any{"messages": []any{}})
	if issueCode(issues, "messages") != "min_length" {
		t.Errorf("expected min_length on messages, got %v", issues)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	spec := mustSpec(t, "text_to_image")
	_, issues := Validate(spec, map[string]any{"prompt": "x", "resolution": "high"})
	if issueCode(issues, "resolution") != "unknown_field" {
		t.Errorf("expected unknown_field, got %v", issues)
	}
}

func TestStrictTypes(t *testing.T) {
	spec := mustSpec(t, "text_to_image")

	// string → int is never coerced
	_, issues := Validate(spec, map[string]any{"prompt": "x", "steps": "5"})
	if issueCode(issues, "steps") != "type" {
		t.Errorf("expected type issue for string steps, got %v", issues)
	}

	// fractional → int is rejected
	_, issues = Validate(spec, map[string]any{"prompt": "x", "steps": 5.5})
	if issueCode(issues, "steps") != "type" {
		t.Errorf("expected type issue for fractional steps, got %v", issues)
	}

	// whole float from JSON decode is an int
	normalized, issues := Validate(spec, map[string]any{"prompt": "x", "steps": float64(5)})
	if len(issues) != 0 {
		t.Fatalf("expected valid, got %v", issues)
	}
	if normalized["steps"] != int64(5) {
		t.Errorf("expected int64(5), got %T %v", normalized["steps"], normalized["steps"])
	}
}

func TestPromptLengthBounds(t *testing.T) {
	spec := mustSpec(t, "text_to_image")
	_, issues := Validate(spec, map[string]any{"prompt": ""})
	if issueCode(issues, "prompt") != "min_length" {
		t.Errorf("expected min_length for empty prompt, got %v", issues)
	}
	long := make([]byte, 4001)
	for i := range long {
		long[i] = 'a'
	}
	_, issues = Validate(spec, map[string]any{"prompt": string(long)})
	if issueCode(issues, "prompt") != "max_length" {
		t.Errorf("expected max_length, got %v", issues)
	}
}

func TestFileDecoding(t *testing.T) {
	spec := mustSpec(t, "image_to_image")
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	normalized, issues := Validate(spec, map[string]any{
		"image":  base64.StdEncoding.EncodeToString(payload),
		"prompt": "x",
	})
	if len(issues) != 0 {
		t.Fatalf("expected valid, got %v", issues)
	}
	if !bytes.Equal(normalized["image"].([]byte), payload) {
		t.Errorf("decoded bytes mismatch: %v", normalized["image"])
	}

	_, issues = Validate(spec, map[string]any{"image": "not-base64!!!", "prompt": "x"})
	if issueCode(issues, "image") != "base64" {
		t.Errorf("expected base64 issue, got %v", issues)
	}
}

func TestTaskIDMustBeUUID(t *testing.T) {
	spec := mustSpec(t, "task_status")
	_, issues := Validate(spec, map[string]any{"task_id": "not-a-uuid"})
	if issueCode(issues, "task_id") != "uuid" {
		t.Errorf("expected uuid issue, got %v", issues)
	}
	_, issues = Validate(spec, map[string]any{"task_id": "11111111-1111-1111-1111-111111111111"})
	if len(issues) != 0 {
		t.Errorf("expected valid uuid, got %v", issues)
	}
}

func TestValidationRoundTrip(t *testing.T) {
	spec := mustSpec(t, "chat")
	args := map[string]any{
		"messages":    []any{map[string]any{"role": "user", "content": "hello"}},
		"model":       "qolaba-chat",
		"temperature": 0.7,
		"max_tokens":  float64(256),
	}
	normalized, issues := Validate(spec, args)
	if len(issues) != 0 {
		t.Fatalf("expected valid, got %v", issues)
	}

	// Re-encode through JSON and validate again: the result must be
	// equivalent to the first pass.
	raw, err := json.Marshal(normalized)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again, issues := Validate(spec, decoded)
	if len(issues) != 0 {
		t.Fatalf("expected round-trip valid, got %v", issues)
	}
	rawAgain, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	var first, second map[string]any
	if err := json.Unmarshal(raw, &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(rawAgain, &second); err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Errorf("round trip changed shape: %v vs %v", first, second)
	}
}

func TestRenderPathSubstitutesParams(t *testing.T) {
	spec := mustSpec(t, "task_status")
	normalized, issues := Validate(spec, map[string]any{"task_id": "11111111-1111-1111-1111-111111111111"})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	path, body := RenderPath(spec, normalized)
	if path != "task-status/11111111-1111-1111-1111-111111111111" {
		t.Errorf("unexpected path %q", path)
	}
	if _, present := body["task_id"]; present {
		t.Error("task_id must not remain in the body")
	}
}

func TestBuildPayloadMultipart(t *testing.T) {
	spec := mustSpec(t, "image_to_image")
	payload := BuildPayload(spec, map[string]any{
		"image":    []byte{0xDE, 0xAD},
		"prompt":   "x",
		"strength": 0.5,
		"steps":    int64(10),
	})
	if payload.Kind != upstream.BodyMultipart {
		t.Fatalf("expected multipart, got %d", payload.Kind)
	}
	if len(payload.Files) != 1 || payload.Files[0].Field != "image" {
		t.Fatalf("expected one image file part, got %+v", payload.Files)
	}
	if payload.Fields["prompt"] != "x" || payload.Fields["strength"] != "0.5" || payload.Fields["steps"] != "10" {
		t.Errorf("unexpected text fields: %v", payload.Fields)
	}
}

func TestJSONSchemaShape(t *testing.T) {
	spec := mustSpec(t, "text_to_image")
	doc := JSONSchema(spec)
	if doc["type"] != "object" {
		t.Errorf("expected object schema, got %v", doc["type"])
	}
	if doc["additionalProperties"] != false {
		t.Error("expected additionalProperties false")
	}
	required, _ := doc["required"].([]string)
	if len(required) != 1 || required[0] != "prompt" {
		t.Errorf("expected prompt required, got %v", required)
	}
	properties := doc["properties"].(map[string]any)
	width := properties["width"].(map[string]any)
	if width["minimum"] != float64(64) || width["maximum"] != float64(4096) {
		t.Errorf("width bounds not exposed: %v", width)
	}
}

func TestCatalogCoversAllOperations(t *testing.T) {
	for _, name := range Operations {
		spec := Lookup(name)
		if spec == nil {
			t.Errorf("operation %s not in catalog", name)
			continue
		}
		if spec.Method == "" || spec.Path == "" {
			t.Errorf("operation %s missing dispatch data", name)
		}
	}
	if Lookup("does_not_exist") != nil {
		t.Error("expected nil for unknown operation")
	}
}
