package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qolaba/qolaba-mcp/internal/buildinfo"
	"github.com/qolaba/qolaba-mcp/internal/config"
	"github.com/qolaba/qolaba-mcp/internal/json"
)

var startTime = time.Now()

// registerHealth adds the synthetic server_health tool. It reports process
// state without contacting upstream.
func registerHealth(s *server.MCPServer, settings *config.Settings) {
	raw, _ := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	})
	tool := mcp.NewToolWithRawSchema("server_health", "Report bridge health, auth mode, and uptime without calling the upstream API.", raw)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return envelopeResult(map[string]any{
			"ok":        true,
			"status":    "healthy",
			"auth_mode": string(settings.AuthMode()),
			"env":       string(settings.Env),
			"uptime_s":  int64(time.Since(startTime).Seconds()),
			"version":   buildinfo.Version,
		}), nil
	})
}
