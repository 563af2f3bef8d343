// Package tools registers the bridge's operations with the MCP transport.
// Each tool is a thin adapter: decode arguments, forward to the
// orchestrator, return the envelope unchanged.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qolaba/qolaba-mcp/internal/bridge"
	"github.com/qolaba/qolaba-mcp/internal/config"
	"github.com/qolaba/qolaba-mcp/internal/json"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
	"github.com/qolaba/qolaba-mcp/internal/schema"
)

// DrainWindow bounds how long shutdown waits for in-flight tool calls.
const DrainWindow = 30 * time.Second

// Registry tracks in-flight invocations so shutdown can drain them, and
// owns the context that cancels them once the drain window elapses.
type Registry struct {
	inflight sync.WaitGroup
	shutdown context.Context
	cancel   context.CancelFunc
}

// Register adds one tool per catalog operation plus server_health.
func Register(s *server.MCPServer, orc *bridge.Orchestrator, settings *config.Settings) *Registry {
	r := &Registry{}
	r.shutdown, r.cancel = context.WithCancel(context.Background())

	for _, name := range schema.Operations {
		spec := schema.Lookup(name)
		if spec == nil {
			continue
		}
		raw, err := json.Marshal(schema.JSONSchema(spec))
		if err != nil {
			log.Errorf("tools: failed to build schema for %s: %v", name, err)
			continue
		}
		tool := mcp.NewToolWithRawSchema(spec.Name, spec.Description, raw)
		s.AddTool(tool, r.handler(orc, spec.Name))
	}

	registerHealth(s, settings)
	return r
}

func (r *Registry) handler(orc *bridge.Orchestrator, operation string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r.inflight.Add(1)
		defer r.inflight.Done()

		// The invocation dies with the caller or with shutdown,
		// whichever comes first.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(r.shutdown, cancel)
		defer stop()

		envelope := orc.Execute(ctx, operation, req.GetArguments(), "")
		return envelopeResult(envelope), nil
	}
}

// envelopeResult serializes an envelope as the tool result. Failures keep
// the envelope intact; the transport-level error flag is never used, so
// callers always receive the uniform shape.
func envelopeResult(envelope map[string]any) *mcp.CallToolResult {
	raw, err := json.Marshal(envelope)
	if err != nil {
		// The envelope is built from JSON-safe values; this indicates a
		// programming error upstream of serialization.
		log.Errorf("tools: envelope not serializable: %v", err)
		return mcp.NewToolResultText(`{"ok":false,"kind":"internal","message":"envelope serialization failed"}`)
	}
	return mcp.NewToolResultText(string(raw))
}

// Drain waits for in-flight invocations up to the drain window, then
// cancels whatever is still running and waits for it to unwind before
// the caller tears down shared resources.
func (r *Registry) Drain() {
	defer r.cancel()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DrainWindow):
		log.Warn("tools: drain window elapsed, cancelling in-flight invocations")
		r.cancel()
		<-done
	}
}
