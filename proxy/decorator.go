package proxy

import (
	"net/http"
)

// Decorator modifies a HTTP request in some way before it is proxied.
// The original, unmodified request is provided in the `in` parameter.
type Decorator interface {
	Decorate(in, out *http.Request)
}

// DefaultDecorators returns the decorators applied to every upstream request.
func DefaultDecorators() []Decorator {
	return []Decorator{
		NewBannedHeaderDecorator(),
		NewUserAgentDecorator(),
		NewHostDecorator(),
	}
}

type bannedHeaderDecorator struct {
	headers []string
}

// NewBannedHeaderDecorator creates a decorator that removes headers identifying the client or any proxies
// between it and us. Upstreams should only ever see the mirror.
func NewBannedHeaderDecorator() Decorator {
	return &bannedHeaderDecorator{
		headers: []string{
			"X-Real-IP",
			"True-Client-IP",
			"Forwarded",
			"Cf-Connecting-Ip",
			"X-Forwarded-Host",
			"X-Forwarded-Proto",
			"Tailscale-User-Login",
			"Tailscale-User-Name",
			"Tailscale-User-Profile-Pic",
		},
	}
}

func (b *bannedHeaderDecorator) Decorate(_, out *http.Request) {
	for i := range b.headers {
		out.Header.Del(b.headers[i])
	}

	// A nil value stops httputil.ReverseProxy from adding its own.
	out.Header["X-Forwarded-For"] = nil
}

type userAgentDecorator struct{}

// NewUserAgentDecorator creates a decorator that forces a blank user-agent if one wasn't previously set. This
// prevents the Go default user agent being added.
func NewUserAgentDecorator() Decorator {
	return &userAgentDecorator{}
}

func (u *userAgentDecorator) Decorate(_, out *http.Request) {
	if _, ok := out.Header["User-Agent"]; !ok {
		// explicitly disable User-Agent so it's not set to default value
		out.Header.Set("User-Agent", "")
	}
}

type hostDecorator struct{}

// NewHostDecorator creates a decorator that addresses the request to the upstream host, rather than the
// host the client used to reach the mirror.
func NewHostDecorator() Decorator {
	return &hostDecorator{}
}

func (h *hostDecorator) Decorate(_, out *http.Request) {
	out.Host = out.URL.Host
}
