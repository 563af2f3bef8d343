// Package upstream implements the outbound HTTP layer of the bridge: a
// single pooled client, response classification, the retry/backoff policy,
// and the client-side rate limiter.
package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"github.com/qolaba/qolaba-mcp/internal/config"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
)

var transportConfig = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	KeepAlive             time.Duration
	MaxConnectTimeout     time.Duration
}{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   20,
	MaxConnsPerHost:       40,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	KeepAlive:             30 * time.Second,
	MaxConnectTimeout:     5 * time.Second,
}

func configureHTTP2(transport *http.Transport) {
	h2Transport, err := http2.ConfigureTransports(transport)
	if err != nil {
		return
	}
	h2Transport.ReadIdleTimeout = 30 * time.Second
	h2Transport.PingTimeout = 15 * time.Second
	h2Transport.StrictMaxConcurrentStreams = true
}

// connectTimeout is min(5s, request timeout); the dial must never outlive
// the request budget.
func connectTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout > 0 && requestTimeout < transportConfig.MaxConnectTimeout {
		return requestTimeout
	}
	return transportConfig.MaxConnectTimeout
}

func baseTransport(settings *config.Settings) *http.Transport {
	t := &http.Transport{
		MaxIdleConns:          transportConfig.MaxIdleConns,
		MaxIdleConnsPerHost:   transportConfig.MaxIdleConnsPerHost,
		MaxConnsPerHost:       transportConfig.MaxConnsPerHost,
		IdleConnTimeout:       transportConfig.IdleConnTimeout,
		TLSHandshakeTimeout:   transportConfig.TLSHandshakeTimeout,
		ExpectContinueTimeout: transportConfig.ExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !settings.VerifySSL,
		},
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout(settings.RequestTimeout),
		KeepAlive: transportConfig.KeepAlive,
	}
	t.DialContext = dialer.DialContext
	configureHTTP2(t)
	return t
}

// NewHTTPClient builds the shared outbound client honoring the configured
// proxy and TLS settings. Per-request deadlines come from the caller's
// context, not from http.Client.Timeout, so streaming reads stay cancellable.
func NewHTTPClient(settings *config.Settings) *http.Client {
	t := baseTransport(settings)
	applyProxy(settings, t)
	return &http.Client{Transport: t}
}

func applyProxy(settings *config.Settings, t *http.Transport) {
	proxyFor := func(raw string) *url.URL {
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			log.Errorf("upstream: invalid proxy url ignored: %v", err)
			return nil
		}
		return u
	}

	httpProxy := proxyFor(settings.HTTPProxy)
	httpsProxy := proxyFor(settings.HTTPSProxy)
	if httpProxy == nil && httpsProxy == nil {
		return
	}

	// A socks5 proxy replaces the dialer entirely; http/https proxies are
	// selected per request scheme.
	for _, u := range []*url.URL{httpsProxy, httpProxy} {
		if u == nil || u.Scheme != "socks5" {
			continue
		}
		var proxyAuth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			proxyAuth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, proxyAuth, proxy.Direct)
		if err != nil {
			log.Errorf("upstream: create SOCKS5 dialer failed: %v", err)
			return
		}
		t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return
	}

	t.Proxy = func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" {
			if httpsProxy != nil {
				return httpsProxy, nil
			}
			return httpProxy, nil
		}
		if httpProxy != nil {
			return httpProxy, nil
		}
		return httpsProxy, nil
	}
}
