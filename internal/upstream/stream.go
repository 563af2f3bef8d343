package upstream

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// contentPaths are tried in order against each stream event to find the
// incremental text.
var contentPaths = []string{
	"choices.0.delta.content",
	"delta.content",
	"content",
	"text",
}

// aggregateEventStream reads a server-sent event stream to the end and folds
// it into one JSON-shaped map. Tokens are never forwarded to the caller; the
// bridge returns only the aggregated reply.
func aggregateEventStream(r io.Reader) (map[string]any, error) {
	var content strings.Builder
	var model, finishReason string
	chunks := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		chunks++

		for _, path := range contentPaths {
			if piece := gjson.Get(data, path); piece.Exists() {
				content.WriteString(piece.String())
				break
			}
		}
		if model == "" {
			model = gjson.Get(data, "model").String()
		}
		if reason := gjson.Get(data, "choices.0.finish_reason").String(); reason != "" {
			finishReason = reason
		} else if reason := gjson.Get(data, "finish_reason").String(); reason != "" {
			finishReason = reason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := map[string]any{
		"content": content.String(),
		"chunks":  chunks,
	}
	if model != "" {
		out["model"] = model
	}
	if finishReason != "" {
		out["finish_reason"] = finishReason
	}
	return out, nil
}
