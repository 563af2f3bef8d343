package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/qolaba/qolaba-mcp/internal/auth"
	"github.com/qolaba/qolaba-mcp/internal/config"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
	"github.com/qolaba/qolaba-mcp/internal/metrics"
	"github.com/qolaba/qolaba-mcp/internal/schema"
	"github.com/qolaba/qolaba-mcp/internal/upstream"
)

// requestContext tracks one invocation's retry bookkeeping. It lives on the
// stack of Execute, never in shared state, so tracing and cancellation stay
// local.
type requestContext struct {
	traceID       string
	operation     string
	attempt       int
	authRetryUsed bool
	start         time.Time
}

// Orchestrator runs the validate → call → normalize pipeline for every
// operation. It never returns an error: all failures become envelopes.
type Orchestrator struct {
	client   *upstream.Client
	provider auth.Provider
	policy   upstream.Policy
	timeout  time.Duration
}

func New(settings *config.Settings, provider auth.Provider, client *upstream.Client) *Orchestrator {
	return &Orchestrator{
		client:   client,
		provider: provider,
		policy:   upstream.PolicyFromSettings(settings.Retry),
		timeout:  settings.RequestTimeout,
	}
}

// Execute runs one operation and returns its envelope. traceID may be empty,
// in which case a new one is generated.
func (o *Orchestrator) Execute(ctx context.Context, operation string, args map[string]any, traceID string) (envelope map[string]any) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	rc := &requestContext{traceID: traceID, operation: operation, start: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"trace_id":  rc.traceID,
				"operation": operation,
				"panic":     r,
			}).Error("operation panicked")
			envelope = internalEnvelope(rc.traceID, "internal error")
		}
		o.logOutcome(rc, envelope)
	}()

	spec := schema.Lookup(operation)
	if spec == nil {
		return internalEnvelope(rc.traceID, "unknown operation: "+operation)
	}

	normalized, issues := schema.Validate(spec, args)
	if len(issues) > 0 {
		return validationEnvelope(rc.traceID, issues)
	}

	path, body := schema.RenderPath(spec, normalized)
	req := upstream.Request{
		Method:    spec.Method,
		Path:      path,
		Operation: operation,
		TraceID:   rc.traceID,
		Payload:   schema.BuildPayload(spec, body),
		Stream:    spec.Stream,
	}

	// Soft upper bound across all attempts.
	deadline := o.timeout * time.Duration(o.policy.MaxAttempts)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	return o.send(ctx, rc, req)
}

func (o *Orchestrator) send(ctx context.Context, rc *requestContext, req upstream.Request) map[string]any {
	var lastTransport *upstream.TransportError

	for rc.attempt < o.policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return o.cancelledEnvelope(rc, err, lastTransport)
		}
		rc.attempt++

		result, err := o.client.Send(ctx, req)
		if err != nil {
			env, retry := o.handleSendError(ctx, rc, err, &lastTransport)
			if retry {
				continue
			}
			return env
		}

		switch result.Outcome {
		case upstream.OutcomeSuccess:
			return successEnvelope(rc.operation, rc.traceID, resultData(result), result.Status, result.Latency.Milliseconds())

		case upstream.OutcomeAuthStale:
			// One re-auth per invocation: invalidate and go again
			// immediately. The attempt counts but takes no delay.
			if !rc.authRetryUsed && rc.attempt < o.policy.MaxAttempts {
				rc.authRetryUsed = true
				o.provider.Invalidate()
				log.WithFields(log.Fields{
					"trace_id":  rc.traceID,
					"operation": rc.operation,
				}).Info("upstream rejected credentials, refreshing")
				continue
			}
			return upstreamFailureEnvelope(rc.traceID, result)

		case upstream.OutcomeRateLimited, upstream.OutcomeTransient:
			if rc.attempt < o.policy.MaxAttempts {
				if err := o.wait(ctx, rc, result.RetryAfter); err != nil {
					return o.cancelledEnvelope(rc, err, lastTransport)
				}
				continue
			}
			return upstreamFailureEnvelope(rc.traceID, result)

		default:
			return upstreamFailureEnvelope(rc.traceID, result)
		}
	}

	if lastTransport != nil {
		return transportEnvelope(rc.traceID, lastTransport.Reason, causeOf(lastTransport), rc.attempt)
	}
	return internalEnvelope(rc.traceID, "attempt budget exhausted")
}

// handleSendError maps a send failure to either a retry or a terminal
// envelope.
func (o *Orchestrator) handleSendError(ctx context.Context, rc *requestContext, err error, lastTransport **upstream.TransportError) (map[string]any, bool) {
	var refreshErr *auth.RefreshError
	if errors.As(err, &refreshErr) {
		return upstreamEnvelope(rc.traceID, refreshErr.Status, "auth_refresh_failed", refreshErr.Message, nil, nil), false
	}
	if errors.Is(err, auth.ErrUnconfigured) {
		return internalEnvelope(rc.traceID, "no authentication configured"), false
	}

	var transportErr *upstream.TransportError
	if errors.As(err, &transportErr) {
		*lastTransport = transportErr
		if rc.attempt < o.policy.MaxAttempts && ctx.Err() == nil {
			if waitErr := o.wait(ctx, rc, nil); waitErr == nil {
				return nil, true
			}
		}
		return transportEnvelope(rc.traceID, transportErr.Reason, causeOf(transportErr), rc.attempt), false
	}

	return internalEnvelope(rc.traceID, "internal error"), false
}

func (o *Orchestrator) wait(ctx context.Context, rc *requestContext, retryAfter *time.Duration) error {
	delay := o.policy.Delay(rc.attempt, retryAfter)
	if delay <= 0 {
		return ctx.Err()
	}
	log.WithFields(log.Fields{
		"trace_id":  rc.traceID,
		"operation": rc.operation,
		"attempt":   rc.attempt,
		"delay_ms":  delay.Milliseconds(),
	}).Debug("waiting before retry")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) cancelledEnvelope(rc *requestContext, err error, lastTransport *upstream.TransportError) map[string]any {
	cause := "cancelled"
	if lastTransport != nil {
		cause = causeOf(lastTransport)
	} else if err != nil {
		cause = err.Error()
	}
	return transportEnvelope(rc.traceID, "invocation cancelled", cause, rc.attempt)
}

// resultData maps an upstream body to the envelope's data field: JSON
// bodies pass through as maps, binary bodies are base64-encoded alongside
// their content type.
func resultData(result *upstream.RawResult) map[string]any {
	if result.JSON != nil {
		return result.JSON
	}
	if len(result.Body) == 0 {
		return map[string]any{}
	}
	return map[string]any{
		"data":         base64.StdEncoding.EncodeToString(result.Body),
		"content_type": result.ContentType,
	}
}

func causeOf(err *upstream.TransportError) string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Reason
}

func (o *Orchestrator) logOutcome(rc *requestContext, envelope map[string]any) {
	if envelope == nil {
		return
	}
	outcome := "success"
	if ok, _ := envelope["ok"].(bool); !ok {
		outcome, _ = envelope["kind"].(string)
	}
	metrics.RecordOperation(rc.operation, outcome)
	log.WithFields(log.Fields{
		"trace_id":   rc.traceID,
		"operation":  rc.operation,
		"attempts":   rc.attempt,
		"latency_ms": time.Since(rc.start).Milliseconds(),
		"outcome":    outcome,
	}).Info("operation completed")
}
