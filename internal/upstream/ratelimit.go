package upstream

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/qolaba/qolaba-mcp/internal/config"
	"github.com/qolaba/qolaba-mcp/internal/metrics"
)

// Limiter is the shared client-side token bucket: capacity equals the
// configured requests-per-window, refilled linearly over the window. A zero
// MaxRequests disables local limiting.
type Limiter struct {
	bucket *rate.Limiter
}

func NewLimiter(cfg config.RateLimitSettings) *Limiter {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return &Limiter{}
	}
	perSecond := float64(cfg.MaxRequests) / cfg.Window.Seconds()
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), cfg.MaxRequests)}
}

// Acquire takes one token, waiting until the context's deadline at most.
// Exhausting the wait is reported as a transport error so the attempt is
// accounted like any other send failure.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.bucket == nil {
		return nil
	}
	if err := l.bucket.Wait(ctx); err != nil {
		metrics.RateLimitWaits.Inc()
		return &TransportError{Reason: ReasonRateLimitLocal, Err: err}
	}
	return nil
}
