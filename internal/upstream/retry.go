package upstream

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/qolaba/qolaba-mcp/internal/config"
)

// Policy computes retry delays. Attempts are 1-based; the first retry waits
// BaseDelay, doubling each attempt up to MaxDelay, scaled by a uniform
// jitter factor in [1-Jitter, 1+Jitter]. Server-directed delays win but are
// clamped to MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

func PolicyFromSettings(rs config.RetrySettings) Policy {
	return Policy{
		MaxAttempts: rs.MaxAttempts,
		BaseDelay:   rs.BaseDelay,
		MaxDelay:    rs.MaxDelay,
		Jitter:      rs.Jitter,
	}
}

// Delay returns the wait before the next attempt. attempt is the number of
// the attempt that just failed. retryAfter, when non-nil, is the
// server-directed delay.
func (p Policy) Delay(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		d := *retryAfter
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
		if d < 0 {
			d = 0
		}
		return d
	}
	return p.backoff(attempt)
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Compare against MaxDelay shifted down so the doubling can never
	// overflow; large attempt numbers clamp to MaxDelay.
	shift := uint(attempt - 1)
	delay := p.MaxDelay
	if p.BaseDelay <= p.MaxDelay>>shift {
		delay = p.BaseDelay << shift
	}
	if p.Jitter > 0 && delay > 0 {
		factor := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		delay = time.Duration(float64(delay) * factor)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// ParseRetryAfter reads a Retry-After header value, which is either a
// delta in seconds or an RFC 7231 HTTP-date. A nil return means the value
// was absent or unparseable and exponential backoff should apply.
func ParseRetryAfter(headers http.Header, now time.Time) *time.Duration {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs < 0 {
			secs = 0
		}
		d := time.Duration(secs * float64(time.Second))
		return &d
	}
	if at, err := http.ParseTime(raw); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
