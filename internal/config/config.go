// Package config provides configuration management for the Qolaba MCP bridge.
// Settings are sourced from QOLABA_-prefixed environment variables, validated
// eagerly, and never mutated after construction.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the execution profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// AuthMode selects how outbound requests are authenticated.
type AuthMode string

const (
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeOAuth  AuthMode = "oauth"
	AuthModeNone   AuthMode = "none"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultMaxAttempts       = 3
	DefaultRetryBaseDelay    = 1 * time.Second
	DefaultRetryMaxDelay     = 60 * time.Second
	DefaultRetryJitter       = 0.25
	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 60 * time.Second
)

// RetrySettings tunes the upstream retry policy.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// RateLimitSettings tunes the client-side token bucket.
type RateLimitSettings struct {
	MaxRequests int
	Window      time.Duration
}

// Settings is the immutable configuration value consumed by the bridge.
// Construct it with Load; never mutate it afterwards.
type Settings struct {
	Env     Environment
	BaseURL string

	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string

	RequestTimeout time.Duration
	VerifySSL      bool
	HTTPProxy      string
	HTTPSProxy     string

	Retry     RetrySettings
	RateLimit RateLimitSettings

	LogLevel    string
	LogToFile   bool
	MetricsAddr string
}

// Issue describes one configuration validation failure.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}

// AuthMode derives the authentication mode from the configured credentials.
// OAuth wins when both are present so validation can flag the conflict while
// still returning a deterministic answer.
func (s *Settings) AuthMode() AuthMode {
	if s.ClientID != "" && s.ClientSecret != "" && s.TokenURL != "" {
		return AuthModeOAuth
	}
	if s.APIKey != "" {
		return AuthModeAPIKey
	}
	return AuthModeNone
}

// IsProductionLike reports whether the environment requires full credentials.
func (s *Settings) IsProductionLike() bool {
	return s.Env == EnvStaging || s.Env == EnvProduction
}

// Redacted returns a loggable view with secret fields replaced by a fixed
// placeholder. Presence is preserved so operators can see what is configured.
func (s *Settings) Redacted() map[string]any {
	const placeholder = "********"
	out := map[string]any{
		"env":             string(s.Env),
		"base_url":        s.BaseURL,
		"auth_mode":       string(s.AuthMode()),
		"token_url":       s.TokenURL,
		"scope":           s.Scope,
		"request_timeout": s.RequestTimeout.String(),
		"verify_ssl":      s.VerifySSL,
		"http_proxy":      s.HTTPProxy,
		"https_proxy":     s.HTTPSProxy,
		"max_attempts":    s.Retry.MaxAttempts,
	}
	if s.APIKey != "" {
		out["api_key"] = placeholder
	}
	if s.ClientSecret != "" {
		out["client_secret"] = placeholder
	}
	if s.ClientID != "" {
		out["client_id"] = s.ClientID
	}
	return out
}

const envPrefix = "QOLABA_"

func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// Load builds Settings from the environment and validates them. It returns
// the settings together with every validation issue found; callers decide
// whether issues are fatal for their environment.
func Load() (*Settings, []Issue) {
	s := &Settings{
		Env:            EnvDevelopment,
		RequestTimeout: DefaultRequestTimeout,
		VerifySSL:      true,
		Retry: RetrySettings{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			MaxDelay:    DefaultRetryMaxDelay,
			Jitter:      DefaultRetryJitter,
		},
		RateLimit: RateLimitSettings{
			MaxRequests: DefaultRateLimitRequests,
			Window:      DefaultRateLimitWindow,
		},
		LogLevel: "info",
	}

	var issues []Issue
	fail := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if raw, ok := lookup("ENV"); ok {
		switch Environment(raw) {
		case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
			s.Env = Environment(raw)
		default:
			fail("QOLABA_ENV", "unknown environment %q", raw)
		}
	}

	if raw, ok := lookup("API_BASE_URL"); ok {
		s.BaseURL = strings.TrimRight(raw, "/")
	}
	if raw, ok := lookup("API_KEY"); ok {
		s.APIKey = raw
	}
	if raw, ok := lookup("CLIENT_ID"); ok {
		s.ClientID = raw
	}
	if raw, ok := lookup("CLIENT_SECRET"); ok {
		s.ClientSecret = raw
	}
	if raw, ok := lookup("TOKEN_URL"); ok {
		s.TokenURL = raw
	}
	if raw, ok := lookup("SCOPE"); ok {
		s.Scope = raw
	}
	if raw, ok := lookup("TIMEOUT"); ok {
		if secs, err := strconv.ParseFloat(raw, 64); err != nil || secs <= 0 {
			fail("QOLABA_TIMEOUT", "must be a positive number of seconds, got %q", raw)
		} else {
			s.RequestTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	if raw, ok := lookup("VERIFY_SSL"); ok {
		if v, err := strconv.ParseBool(raw); err != nil {
			fail("QOLABA_VERIFY_SSL", "must be a boolean, got %q", raw)
		} else {
			s.VerifySSL = v
		}
	}
	if raw, ok := lookup("HTTP_PROXY"); ok {
		s.HTTPProxy = raw
	}
	if raw, ok := lookup("HTTPS_PROXY"); ok {
		s.HTTPSProxy = raw
	}

	if raw, ok := lookup("MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 {
			fail("QOLABA_MAX_ATTEMPTS", "must be an integer >= 1, got %q", raw)
		} else {
			s.Retry.MaxAttempts = n
		}
	}
	if raw, ok := lookup("RETRY_BASE_DELAY"); ok {
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			fail("QOLABA_RETRY_BASE_DELAY", "must be a non-negative duration, got %q", raw)
		} else {
			s.Retry.BaseDelay = d
		}
	}
	if raw, ok := lookup("RETRY_MAX_DELAY"); ok {
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			fail("QOLABA_RETRY_MAX_DELAY", "must be a non-negative duration, got %q", raw)
		} else {
			s.Retry.MaxDelay = d
		}
	}
	if raw, ok := lookup("RETRY_JITTER"); ok {
		if f, err := strconv.ParseFloat(raw, 64); err != nil || f < 0 || f > 1 {
			fail("QOLABA_RETRY_JITTER", "must be a fraction in [0,1], got %q", raw)
		} else {
			s.Retry.Jitter = f
		}
	}
	if raw, ok := lookup("RATE_LIMIT_REQUESTS"); ok {
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			fail("QOLABA_RATE_LIMIT_REQUESTS", "must be a non-negative integer, got %q", raw)
		} else {
			s.RateLimit.MaxRequests = n
		}
	}
	if raw, ok := lookup("RATE_LIMIT_WINDOW"); ok {
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			fail("QOLABA_RATE_LIMIT_WINDOW", "must be a non-negative duration, got %q", raw)
		} else {
			s.RateLimit.Window = d
		}
	}

	if raw, ok := lookup("LOG_LEVEL"); ok {
		s.LogLevel = raw
	}
	if raw, ok := lookup("LOG_TO_FILE"); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			s.LogToFile = v
		}
	}
	if raw, ok := lookup("METRICS_ADDR"); ok {
		s.MetricsAddr = raw
	}

	issues = append(issues, s.Validate()...)
	return s, issues
}

// Validate checks cross-field invariants. It is exported so tests can build
// Settings literals and validate them without touching the environment.
func (s *Settings) Validate() []Issue {
	var issues []Issue
	fail := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s.BaseURL == "" {
		if s.IsProductionLike() {
			fail("QOLABA_API_BASE_URL", "required in %s", s.Env)
		}
	} else if err := checkHTTPURL(s.BaseURL); err != nil {
		fail("QOLABA_API_BASE_URL", "%v", err)
	}

	hasAPIKey := s.APIKey != ""
	oauthFields := 0
	for _, v := range []string{s.ClientID, s.ClientSecret, s.TokenURL} {
		if v != "" {
			oauthFields++
		}
	}
	hasOAuth := oauthFields == 3

	if oauthFields > 0 && !hasOAuth {
		fail("QOLABA_CLIENT_ID", "OAuth requires client id, client secret, and token url together")
	}
	if s.TokenURL != "" {
		if err := checkHTTPURL(s.TokenURL); err != nil {
			fail("QOLABA_TOKEN_URL", "%v", err)
		}
	}
	if s.IsProductionLike() {
		if hasAPIKey && hasOAuth {
			fail("QOLABA_API_KEY", "both API key and OAuth credentials configured; provide exactly one")
		}
		if !hasAPIKey && !hasOAuth {
			fail("QOLABA_API_KEY", "no authentication configured; set QOLABA_API_KEY or the OAuth variables")
		}
	}

	for field, raw := range map[string]string{
		"QOLABA_HTTP_PROXY":  s.HTTPProxy,
		"QOLABA_HTTPS_PROXY": s.HTTPSProxy,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			fail(field, "invalid proxy url: %v", err)
		}
	}

	if s.RequestTimeout <= 0 {
		fail("QOLABA_TIMEOUT", "must be positive")
	}
	if s.Retry.MaxAttempts < 1 {
		fail("QOLABA_MAX_ATTEMPTS", "must be >= 1")
	}
	if s.Retry.MaxDelay < s.Retry.BaseDelay {
		fail("QOLABA_RETRY_MAX_DELAY", "must be >= base delay")
	}

	return issues
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url missing host")
	}
	return nil
}
