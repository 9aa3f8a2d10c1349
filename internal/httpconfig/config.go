// Package httpconfig is the declarative builder for the HTTP client used by
// redirect expansion and the HttpRequest string source. It treats the
// client it builds as a black box beyond the configuration surface: the
// spec explicitly excludes network policy decisions (SSRF protection,
// TLS trust) from the core's scope.
package httpconfig

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
)

// ProxyMode selects which schemes a ProxyConfig applies to.
type ProxyMode int

const (
	ProxyModeAll ProxyMode = iota
	ProxyModeHTTPS
	ProxyModeHTTP
)

// ProxyAuth is either basic-auth credentials or a custom pre-built header.
type ProxyAuth struct {
	BasicUser string
	BasicPass string
	Custom    string
	HasBasic  bool
	HasCustom bool
}

// ProxyConfig describes one configured proxy.
type ProxyConfig struct {
	URL  string
	Mode ProxyMode
	Auth ProxyAuth
}

// RedirectPolicy is the configured redirect limit. It is decoded and carried
// through HttpClientConfigDiff, but NewClient does not read it and no
// request follows redirects whatever its value; redirect expansion is done
// hop by hop with Action::ExpandRedirect + Action::Repeat.
type RedirectPolicy struct {
	Unlimited bool
	Limit     int // meaningful when !Unlimited; 0 means "do not follow"
}

// LimitedRedirects builds a RedirectPolicy that follows at most n hops.
func LimitedRedirects(n int) RedirectPolicy { return RedirectPolicy{Limit: n} }

// NoRedirects is the zero-hop policy the spec recommends pairing with
// Action::Repeat.
func NoRedirects() RedirectPolicy { return RedirectPolicy{Limit: 0} }

// DefaultRedirectPolicy follows up to 10 hops, the spec's stated default.
func DefaultRedirectPolicy() RedirectPolicy { return RedirectPolicy{Limit: 10} }

// HttpClientConfig is the full declarative client configuration.
type HttpClientConfig struct {
	DefaultHeaders map[string][]string
	Redirect       RedirectPolicy
	HTTPSOnly      bool
	Referer        string
	Proxies        []ProxyConfig
	NoProxy        []string
	ExtraRootCerts [][]byte // PEM blocks
	Timeout        time.Duration
}

// HttpClientConfigDiff overlays per-field overrides plus additive fields
// (headers, proxies, certs) onto a base HttpClientConfig.
type HttpClientConfigDiff struct {
	DefaultHeaders    map[string][]string // additive: merged over base
	Redirect          *RedirectPolicy
	HTTPSOnly         *bool
	Referer           *string
	AddProxies        []ProxyConfig
	NoProxy           []string
	AddExtraRootCerts [][]byte
	Timeout           *time.Duration
}

// Apply overlays the diff onto a copy of base and returns the result. base
// is never mutated, matching the Params CoW discipline the rest of the
// engine follows for shared configuration.
func (d HttpClientConfigDiff) Apply(base HttpClientConfig) HttpClientConfig {
	result := base
	result.DefaultHeaders = mergeHeaders(base.DefaultHeaders, d.DefaultHeaders)
	if d.Redirect != nil {
		result.Redirect = *d.Redirect
	}
	if d.HTTPSOnly != nil {
		result.HTTPSOnly = *d.HTTPSOnly
	}
	if d.Referer != nil {
		result.Referer = *d.Referer
	}
	if len(d.AddProxies) > 0 {
		result.Proxies = append(append([]ProxyConfig(nil), base.Proxies...), d.AddProxies...)
	}
	if len(d.NoProxy) > 0 {
		result.NoProxy = append(append([]string(nil), base.NoProxy...), d.NoProxy...)
	}
	if len(d.AddExtraRootCerts) > 0 {
		result.ExtraRootCerts = append(append([][]byte(nil), base.ExtraRootCerts...), d.AddExtraRootCerts...)
	}
	if d.Timeout != nil {
		result.Timeout = *d.Timeout
	}
	return result
}

func mergeHeaders(base, add map[string][]string) map[string][]string {
	if len(base) == 0 && len(add) == 0 {
		return nil
	}
	merged := make(map[string][]string, len(base)+len(add))
	for k, v := range base {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range add {
		merged[k] = append(merged[k], v...)
	}
	return merged
}

// NewClient builds a *fasthttp.Client from the configuration. cfg.Redirect
// is not read: requests are sent with fasthttp.Client.Do, which follows no
// redirects, and hop-by-hop expansion is left to Action::Repeat.
func NewClient(cfg HttpClientConfig) *fasthttp.Client {
	client := &fasthttp.Client{
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if proxy, ok := firstUsableProxy(cfg.Proxies); ok {
		client.Dial = fasthttpproxy.FasthttpHTTPDialerTimeout(proxy, cfg.Timeout)
	}
	if len(cfg.ExtraRootCerts) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		for _, pem := range cfg.ExtraRootCerts {
			pool.AppendCertsFromPEM(pem)
		}
		client.TLSConfig = &tls.Config{RootCAs: pool}
	}
	return client
}

// firstUsableProxy renders the first configured proxy as the host[:port]
// (with optional basic-auth userinfo) form fasthttpproxy dials through.
func firstUsableProxy(proxies []ProxyConfig) (string, bool) {
	for _, p := range proxies {
		parsed, err := url.Parse(p.URL)
		if err != nil || parsed.Host == "" {
			continue
		}
		addr := parsed.Host
		if p.Auth.HasBasic {
			addr = url.UserPassword(p.Auth.BasicUser, p.Auth.BasicPass).String() + "@" + addr
		}
		return addr, true
	}
	return "", false
}
