// Package auth produces Authorization headers for upstream requests. Two
// modes exist: a stateless API-key provider and an OAuth client-credentials
// provider with a cached token and single-flight refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/qolaba/qolaba-mcp/internal/config"
)

// HeaderName is the header every provider populates.
const HeaderName = "Authorization"

// ErrUnconfigured is returned when no authentication mode is configured.
var ErrUnconfigured = errors.New("auth: no authentication configured")

// RefreshError reports a failed token refresh. Status is the token endpoint's
// HTTP status, or 0 when the endpoint was unreachable.
type RefreshError struct {
	Status  int
	Message string
}

func (e *RefreshError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("auth: token refresh failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth: token refresh failed: %s", e.Message)
}

// Provider yields a usable Authorization header, refreshing credentials when
// necessary. Implementations are safe for concurrent use.
type Provider interface {
	// HeaderFor returns the header name and value for a request issued at now.
	HeaderFor(ctx context.Context, now time.Time) (string, string, error)

	// Invalidate marks any cached credential unusable, forcing the next
	// HeaderFor to refresh. A no-op for stateless providers.
	Invalidate()

	// Close releases cached credentials on shutdown.
	Close()
}

// NewProvider selects the provider implementation for the configured mode.
// The http client is used for token-endpoint calls so proxy and TLS settings
// apply to them too. Mode none yields a provider that fails on use: the
// server still starts in development, but every upstream call reports the
// missing configuration.
func NewProvider(settings *config.Settings, client *http.Client) Provider {
	switch settings.AuthMode() {
	case config.AuthModeAPIKey:
		return &apiKeyProvider{key: settings.APIKey}
	case config.AuthModeOAuth:
		return newOAuthProvider(settings, client)
	default:
		return noneProvider{}
	}
}

// noneProvider is the unconfigured mode.
type noneProvider struct{}

func (noneProvider) HeaderFor(context.Context, time.Time) (string, string, error) {
	return "", "", ErrUnconfigured
}

func (noneProvider) Invalidate() {}

func (noneProvider) Close() {}

// apiKeyProvider is the stateless API-key mode.
type apiKeyProvider struct {
	key string
}

func (p *apiKeyProvider) HeaderFor(context.Context, time.Time) (string, string, error) {
	return HeaderName, "Bearer " + p.key, nil
}

func (p *apiKeyProvider) Invalidate() {}

func (p *apiKeyProvider) Close() {}
