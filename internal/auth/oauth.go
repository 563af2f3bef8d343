package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/qolaba/qolaba-mcp/internal/config"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
	"github.com/qolaba/qolaba-mcp/internal/metrics"
)

// RefreshMargin is the window before expiry within which a cached token is
// treated as stale.
const RefreshMargin = 5 * time.Minute

// fallbackExpiresIn applies when the token endpoint omits expires_in.
const fallbackExpiresIn = time.Hour

// accessToken is the cached OAuth credential. Owned by oauthProvider; every
// access takes the mutex. New tokens are stored only inside the single-flight
// refresh; Invalidate and Close clear the cache.
type accessToken struct {
	value  string
	expiry time.Time
}

func (t *accessToken) usable(now time.Time) bool {
	return t != nil && t.value != "" && now.Add(RefreshMargin).Before(t.expiry)
}

type oauthProvider struct {
	conf   *clientcredentials.Config
	client *http.Client

	mu      sync.RWMutex
	token   *accessToken
	refresh singleflight.Group
}

func newOAuthProvider(settings *config.Settings, client *http.Client) *oauthProvider {
	return &oauthProvider{
		conf: &clientcredentials.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			TokenURL:     settings.TokenURL,
			Scopes:       splitScope(settings.Scope),
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: client,
	}
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return []string{scope}
}

func (p *oauthProvider) HeaderFor(ctx context.Context, now time.Time) (string, string, error) {
	p.mu.RLock()
	cached := p.token
	p.mu.RUnlock()

	if cached.usable(now) {
		return HeaderName, "Bearer " + cached.value, nil
	}

	// Collapse concurrent refreshes: one caller hits the token endpoint,
	// the rest wait for its outcome.
	result, err, _ := p.refresh.Do("token", func() (any, error) {
		p.mu.RLock()
		if p.token.usable(now) {
			token := p.token.value
			p.mu.RUnlock()
			return token, nil
		}
		p.mu.RUnlock()

		return p.fetchToken(ctx)
	})
	if err != nil {
		return "", "", err
	}
	return HeaderName, "Bearer " + result.(string), nil
}

func (p *oauthProvider) fetchToken(ctx context.Context) (string, error) {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}

	tok, err := p.conf.Token(ctx)
	if err != nil {
		metrics.RecordTokenRefresh(false)
		return "", refreshError(err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(fallbackExpiresIn)
	}

	p.mu.Lock()
	p.token = &accessToken{value: tok.AccessToken, expiry: expiry}
	p.mu.Unlock()

	metrics.RecordTokenRefresh(true)
	log.WithFields(log.Fields{
		"expires_at": expiry.UTC().Format(time.RFC3339),
		"token_type": tok.TokenType,
	}).Info("oauth token refreshed")

	return tok.AccessToken, nil
}

func refreshError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		msg := retrieve.ErrorDescription
		if msg == "" {
			msg = retrieve.ErrorCode
		}
		if msg == "" {
			msg = "token endpoint rejected the request"
		}
		return &RefreshError{Status: status, Message: msg}
	}
	return &RefreshError{Status: 0, Message: err.Error()}
}

func (p *oauthProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}

func (p *oauthProvider) Close() {
	p.Invalidate()
}
