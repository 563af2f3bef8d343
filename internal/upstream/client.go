package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/qolaba/qolaba-mcp/internal/auth"
	"github.com/qolaba/qolaba-mcp/internal/buildinfo"
	"github.com/qolaba/qolaba-mcp/internal/config"
	"github.com/qolaba/qolaba-mcp/internal/json"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
	"github.com/qolaba/qolaba-mcp/internal/metrics"
)

// BodyKind selects the request encoding.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyMultipart
)

// FilePart is one binary part of a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Data     []byte
}

// Payload is the encoded request body produced by schema validation.
type Payload struct {
	Kind   BodyKind
	JSON   map[string]any
	Fields map[string]string
	Files  []FilePart
}

// Request describes one upstream call.
type Request struct {
	Method    string
	Path      string
	Operation string
	TraceID   string
	Payload   Payload

	// Stream marks operations whose response is an event stream to be
	// aggregated into a single JSON document.
	Stream bool
}

// Client is the single long-lived upstream HTTP client. The Authorization
// header is fetched from the auth provider immediately before each send.
type Client struct {
	http      *http.Client
	baseURL   string
	auth      auth.Provider
	limiter   *Limiter
	timeout   time.Duration
	userAgent string
}

func NewClient(settings *config.Settings, provider auth.Provider, limiter *Limiter, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(settings)
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(settings.BaseURL, "/"),
		auth:      provider,
		limiter:   limiter,
		timeout:   settings.RequestTimeout,
		userAgent: "QolabaMCPBridge/" + buildinfo.Version,
	}
}

// Send performs a single attempt. Retries are the orchestrator's concern;
// Send only classifies. The returned error is non-nil only for failures
// that left no complete HTTP response to classify: auth, rate-limit, encode
// and network failures, and errors reading the response body.
func (c *Client) Send(ctx context.Context, req Request) (*RawResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Acquire(attemptCtx); err != nil {
		return nil, err
	}

	headerName, headerValue, err := c.auth.HeaderFor(attemptCtx, time.Now())
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req.Payload)
	if err != nil {
		return nil, &TransportError{Reason: "encode request body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, c.baseURL+"/"+strings.TrimLeft(req.Path, "/"), body)
	if err != nil {
		return nil, &TransportError{Reason: "build request", Err: err}
	}
	httpReq.Header.Set(headerName, headerValue)
	httpReq.Header.Set("X-Request-Id", req.TraceID)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	if log.GetLevel() <= log.DebugLevel {
		fields := log.Fields{
			"trace_id":      req.TraceID,
			"method":        req.Method,
			"path":          req.Path,
			"authorization": log.MaskHeaderValue(headerName, headerValue),
		}
		if req.Payload.Kind == BodyJSON {
			if raw, err := json.Marshal(req.Payload.JSON); err == nil {
				fields["payload"] = string(log.ScrubPayload(raw))
			}
		}
		log.WithFields(fields).Debug("upstream request")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		metrics.RecordUpstream(req.Operation, 0, latency.Seconds())
		reason := "request failed"
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil {
			reason = "request timed out"
		}
		return nil, &TransportError{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	metrics.RecordUpstream(req.Operation, resp.StatusCode, latency.Seconds())
	logRateLimitHeaders(req.TraceID, resp.Header)

	result := &RawResult{
		Status:      resp.StatusCode,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Latency:     latency,
		Outcome:     Classify(resp.StatusCode),
	}
	if result.Outcome == OutcomeRateLimited || result.Outcome == OutcomeTransient {
		result.RetryAfter = ParseRetryAfter(resp.Header, time.Now())
	}

	if req.Stream && result.Outcome == OutcomeSuccess && isEventStream(result.ContentType) {
		aggregated, err := aggregateEventStream(resp.Body)
		if err != nil {
			return nil, &TransportError{Reason: "read event stream", Err: err}
		}
		result.JSON = aggregated
		return result, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Reason: "read response body", Err: err}
	}
	result.Body = raw

	if isJSONContent(result.ContentType) && len(raw) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			result.JSON = parsed
		}
	}

	return result, nil
}

// Close releases idle connections on shutdown.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func encodeBody(p Payload) (io.Reader, string, error) {
	switch p.Kind {
	case BodyNone:
		return nil, "", nil
	case BodyJSON:
		raw, err := json.Marshal(p.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(raw), "application/json", nil
	case BodyMultipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, file := range p.Files {
			part, err := w.CreateFormFile(file.Field, file.Filename)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(file.Data); err != nil {
				return nil, "", err
			}
		}
		for field, value := range p.Fields {
			if err := w.WriteField(field, value); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	default:
		return nil, "", fmt.Errorf("unknown body kind %d", p.Kind)
	}
}

func isJSONContent(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func isEventStream(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/event-stream")
}

func logRateLimitHeaders(traceID string, headers http.Header) {
	remaining := headers.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	log.WithFields(log.Fields{
		"trace_id":  traceID,
		"limit":     headers.Get("X-RateLimit-Limit"),
		"remaining": remaining,
		"reset":     headers.Get("X-RateLimit-Reset"),
	}).Debug("upstream rate limit state")
}
