package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "API_BASE_URL", "API_KEY", "CLIENT_ID", "CLIENT_SECRET",
		"TOKEN_URL", "SCOPE", "TIMEOUT", "VERIFY_SSL", "HTTP_PROXY",
		"HTTPS_PROXY", "MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_MAX_DELAY",
		"RETRY_JITTER", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
		"LOG_LEVEL", "LOG_TO_FILE", "METRICS_ADDR",
	} {
		t.Setenv(envPrefix+key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	s, issues := Load()
	if len(issues) != 0 {
		t.Fatalf("expected no issues in development, got %v", issues)
	}
	if s.Env != EnvDevelopment {
		t.Errorf("expected development env, got %s", s.Env)
	}
	if s.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("expected default timeout, got %v", s.RequestTimeout)
	}
	if !s.VerifySSL {
		t.Error("expected TLS verification enabled by default")
	}
	if s.Retry.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, s.Retry.MaxAttempts)
	}
	if s.AuthMode() != AuthModeNone {
		t.Errorf("expected auth mode none, got %s", s.AuthMode())
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("QOLABA_ENV", "staging")
	t.Setenv("QOLABA_API_BASE_URL", "https://api.qolaba.ai/")
	t.Setenv("QOLABA_API_KEY", "sk-test")
	t.Setenv("QOLABA_TIMEOUT", "12.5")
	t.Setenv("QOLABA_MAX_ATTEMPTS", "5")
	t.Setenv("QOLABA_RETRY_BASE_DELAY", "500ms")

	s, issues := Load()
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	if s.BaseURL != "https://api.qolaba.ai" {
		t.Errorf("expected trailing slash trimmed, got %q", s.BaseURL)
	}
	if s.RequestTimeout != 12500*time.Millisecond {
		t.Errorf("expected 12.5s timeout, got %v", s.RequestTimeout)
	}
	if s.Retry.MaxAttempts != 5 || s.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry settings not applied: %+v", s.Retry)
	}
	if s.AuthMode() != AuthModeAPIKey {
		t.Errorf("expected api_key mode, got %s", s.AuthMode())
	}
}

func TestAuthModeDerivation(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		want AuthMode
	}{
		{"none", Settings{}, AuthModeNone},
		{"api key", Settings{APIKey: "k"}, AuthModeAPIKey},
		{"oauth", Settings{ClientID: "id", ClientSecret: "sec", TokenURL: "https://auth/token"}, AuthModeOAuth},
		{"oauth wins over key", Settings{APIKey: "k", ClientID: "id", ClientSecret: "sec", TokenURL: "https://auth/token"}, AuthModeOAuth},
		{"partial oauth is not oauth", Settings{ClientID: "id"}, AuthModeNone},
	}
	for _, tt := range tests {
		if got := tt.s.AuthMode(); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestValidateProductionRequiresExactlyOneAuth(t *testing.T) {
	base := Settings{
		Env:            EnvProduction,
		BaseURL:        "https://api.qolaba.ai",
		RequestTimeout: DefaultRequestTimeout,
		Retry:          RetrySettings{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute},
	}

	none := base
	if issues := none.Validate(); len(issues) == 0 {
		t.Error("expected issue for missing auth in production")
	}

	both := base
	both.APIKey = "k"
	both.ClientID, both.ClientSecret, both.TokenURL = "id", "sec", "https://auth/token"
	if issues := both.Validate(); len(issues) == 0 {
		t.Error("expected issue for both auth methods in production")
	}

	keyOnly := base
	keyOnly.APIKey = "k"
	if issues := keyOnly.Validate(); len(issues) != 0 {
		t.Errorf("expected api-key-only to validate, got %v", issues)
	}

	oauthOnly := base
	oauthOnly.ClientID, oauthOnly.ClientSecret, oauthOnly.TokenURL = "id", "sec", "https://auth/token"
	if issues := oauthOnly.Validate(); len(issues) != 0 {
		t.Errorf("expected oauth-only to validate, got %v", issues)
	}
}

func TestValidateRejectsBadURLs(t *testing.T) {
	s := Settings{
		Env:            EnvDevelopment,
		BaseURL:        "ftp://api.qolaba.ai",
		RequestTimeout: DefaultRequestTimeout,
		Retry:          RetrySettings{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute},
	}
	issues := s.Validate()
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %v", issues)
	}
	if !strings.Contains(issues[0].Message, "http") {
		t.Errorf("expected scheme complaint, got %q", issues[0].Message)
	}
}

func TestValidateNumericBounds(t *testing.T) {
	s := Settings{
		Env:            EnvDevelopment,
		RequestTimeout: 0,
		Retry:          RetrySettings{MaxAttempts: 0, BaseDelay: 2 * time.Second, MaxDelay: time.Second},
	}
	issues := s.Validate()
	if len(issues) != 3 {
		t.Errorf("expected 3 issues (timeout, attempts, max delay), got %v", issues)
	}
}

func TestLoadReportsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("QOLABA_TIMEOUT", "-1")
	t.Setenv("QOLABA_MAX_ATTEMPTS", "zero")
	t.Setenv("QOLABA_RETRY_JITTER", "1.5")

	_, issues := Load()
	if len(issues) != 3 {
		t.Errorf("expected 3 issues, got %v", issues)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	s := Settings{
		Env:          EnvStaging,
		BaseURL:      "https://api.qolaba.ai",
		APIKey:       "sk-very-secret",
		ClientSecret: "cs-very-secret",
		ClientID:     "client-1",
	}
	redacted := s.Redacted()
	for _, key := range []string{"api_key", "client_secret"} {
		v, ok := redacted[key].(string)
		if !ok {
			t.Fatalf("expected %s present", key)
		}
		if strings.Contains(v, "secret") || v != "********" {
			t.Errorf("%s not redacted: %q", key, v)
		}
	}
	if redacted["client_id"] != "client-1" {
		t.Errorf("client id is not a secret, got %v", redacted["client_id"])
	}
}
