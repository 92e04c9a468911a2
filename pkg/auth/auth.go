// Package auth applies credentials to outgoing repository and module
// downloads. Credentials are configured per host.
package auth

import (
	"net/http"
	"strings"
)

// Authenticator applies one authentication method to an HTTP request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicAuthType.
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// Hosts maps host patterns to the authenticator used for them. A pattern is
// either a host name, a host:port pair or a "*.domain" wildcard.
type Hosts map[string]Authenticator

// Lookup returns the authenticator for host (which may carry a port), or nil.
// An exact host:port entry wins over a host entry, which wins over the
// longest matching wildcard.
func (h Hosts) Lookup(host string) Authenticator {
	if len(h) == 0 || host == "" {
		return nil
	}
	host = strings.ToLower(host)
	if a, ok := h[host]; ok {
		return a
	}
	name := host
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.HasSuffix(host, "]") {
		name = host[:i]
		if a, ok := h[name]; ok {
			return a
		}
	}
	var best Authenticator
	bestLen := 0
	for pattern, a := range h {
		suffix, ok := strings.CutPrefix(strings.ToLower(pattern), "*")
		if !ok || !strings.HasPrefix(suffix, ".") {
			continue
		}
		if strings.HasSuffix(name, suffix) && len(suffix) > bestLen {
			best, bestLen = a, len(suffix)
		}
	}
	return best
}

// Apply authenticates req with the entry matching its URL host. Requests for
// unknown hosts are left untouched.
func (h Hosts) Apply(req *http.Request) error {
	if req.URL == nil {
		return nil
	}
	if a := h.Lookup(req.URL.Host); a != nil {
		return a.Apply(req)
	}
	return nil
}
