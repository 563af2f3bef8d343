// Package bridge orchestrates tool invocations: validate, call upstream
// under the retry policy, and normalize every outcome into a single
// envelope shape carrying a trace id.
package bridge

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/qolaba/qolaba-mcp/internal/schema"
	"github.com/qolaba/qolaba-mcp/internal/upstream"
)

// Envelope kinds reported on failures.
const (
	KindValidation = "validation"
	KindUpstream   = "upstream"
	KindTransport  = "transport"
	KindInternal   = "internal"
)

func successEnvelope(operation, traceID string, data map[string]any, status int, latencyMS int64) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"ok":         true,
		"operation":  operation,
		"trace_id":   traceID,
		"data":       data,
		"status":     status,
		"latency_ms": latencyMS,
	}
}

func validationEnvelope(traceID string, issues []schema.Issue) map[string]any {
	list := make([]any, 0, len(issues))
	for _, issue := range issues {
		list = append(list, map[string]any{
			"path":    issue.Path,
			"message": issue.Message,
			"code":    issue.Code,
		})
	}
	return map[string]any{
		"ok":       false,
		"kind":     KindValidation,
		"trace_id": traceID,
		"issues":   list,
	}
}

func transportEnvelope(traceID, message, cause string, attempts int) map[string]any {
	return map[string]any{
		"ok":       false,
		"kind":     KindTransport,
		"trace_id": traceID,
		"message":  message,
		"cause":    cause,
		"attempts": attempts,
	}
}

func internalEnvelope(traceID, message string) map[string]any {
	return map[string]any{
		"ok":       false,
		"kind":     KindInternal,
		"trace_id": traceID,
		"message":  message,
	}
}

func upstreamEnvelope(traceID string, status int, code, message string, details any, retryAfterMS *int64) map[string]any {
	env := map[string]any{
		"ok":       false,
		"kind":     KindUpstream,
		"trace_id": traceID,
		"status":   status,
		"message":  message,
	}
	if code != "" {
		env["code"] = code
	}
	if details != nil {
		env["details"] = details
	}
	if retryAfterMS != nil {
		env["retry_after_ms"] = *retryAfterMS
	}
	return env
}

// upstreamFailureEnvelope extracts code, message, and details from an error
// response body on a best-effort basis.
func upstreamFailureEnvelope(traceID string, result *upstream.RawResult) map[string]any {
	code, message, details := extractErrorFields(result)
	var retryAfterMS *int64
	if result.RetryAfter != nil {
		ms := result.RetryAfter.Milliseconds()
		retryAfterMS = &ms
	}
	return upstreamEnvelope(traceID, result.Status, code, message, details, retryAfterMS)
}

var (
	errorCodePaths    = []string{"code", "error.code", "error_code"}
	errorMessagePaths = []string{"message", "error.message", "error", "detail"}
	errorDetailPaths  = []string{"details", "error.details"}
)

func extractErrorFields(result *upstream.RawResult) (code, message string, details any) {
	body := result.Body
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", defaultErrorMessage(result.Status), nil
	}
	for _, path := range errorCodePaths {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			code = v.String()
			break
		}
	}
	for _, path := range errorMessagePaths {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			message = v.String()
			break
		}
	}
	if message == "" {
		message = defaultErrorMessage(result.Status)
	}
	for _, path := range errorDetailPaths {
		if v := gjson.GetBytes(body, path); v.Exists() {
			details = v.Value()
			break
		}
	}
	return code, message, details
}

func defaultErrorMessage(status int) string {
	return "upstream returned HTTP " + strconv.Itoa(status)
}
