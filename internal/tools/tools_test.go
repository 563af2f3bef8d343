package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/qolaba/qolaba-mcp/internal/json"
	"github.com/qolaba/qolaba-mcp/internal/schema"
)

func TestEnvelopeResultSerializesEnvelope(t *testing.T) {
	result := envelopeResult(map[string]any{
		"ok":       false,
		"kind":     "validation",
		"trace_id": "t-1",
		"issues":   []any{map[string]any{"path": "prompt", "message": "field is required", "code": "required"}},
	})
	if result.IsError {
		t.Error("envelopes are returned as content, never as transport errors")
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected one content element, got %d", len(result.Content))
	}
}

func TestDrainCancelsShutdownContext(t *testing.T) {
	r := &Registry{}
	r.shutdown, r.cancel = context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Drain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain with no in-flight work must return immediately")
	}
	select {
	case <-r.shutdown.Done():
	default:
		t.Error("expected the shutdown context cancelled after drain")
	}
}

func TestToolSchemasAreValidJSON(t *testing.T) {
	for _, name := range schema.Operations {
		spec := schema.Lookup(name)
		raw, err := json.Marshal(schema.JSONSchema(spec))
		if err != nil {
			t.Errorf("%s: schema not serializable: %v", name, err)
			continue
		}
		if !json.Valid(raw) {
			t.Errorf("%s: schema is invalid JSON", name)
		}
		if !strings.Contains(string(raw), `"type":"object"`) {
			t.Errorf("%s: schema missing object type: %s", name, raw)
		}
	}
}
