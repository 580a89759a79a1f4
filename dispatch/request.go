package dispatch

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/csmith/mirrorgate/config"
)

// Custom is per-route data attached by whichever rule matched a request.
type Custom struct {
	// Upstream overrides the origin the handler forwards to.
	Upstream string
	// ThirdParty suppresses library/ namespace completion.
	ThirdParty bool
	// PathPrefix is used in place of the matched prefix when building
	// absolute URLs that point back at the mirror.
	PathPrefix string
}

// Request carries an inbound request through the dispatcher, along with the
// context accumulated by each stage.
type Request struct {
	*http.Request

	// ID uniquely identifies the request in logs and the X-Request-Id header.
	ID string
	// Path is the request path with all matched prefixes removed.
	Path string
	// Prefix is the concatenation of every prefix removed from Path.
	Prefix string
	// Custom is the data attached by the most recent matching rule.
	Custom Custom
	// Label is the subdomain label of the domain rule that matched, if any.
	Label string
	// Settings is the process-wide configuration snapshot.
	Settings *config.Settings
	// Logger is scoped to this request.
	Logger *slog.Logger

	stripped string
	domains  []string
	resolved bool
}

// NewRequest wraps an inbound request ready for dispatching.
func NewRequest(r *http.Request, settings *config.Settings, id string) *Request {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	return &Request{
		Request:  r,
		ID:       id,
		Path:     path,
		Settings: settings,
		Logger:   slog.With("request", id),
	}
}

// Scheme returns the scheme the client used to reach the mirror.
func (r *Request) Scheme() string {
	if r.TLS != nil {
		return "https"
	}

	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	if proto = strings.ToLower(strings.TrimSpace(proto)); proto == "http" || proto == "https" {
		return proto
	}
	return "http"
}

// Origin returns the mirror's own origin as seen by the client.
func (r *Request) Origin() string {
	return r.Scheme() + "://" + r.Host
}

// Hostname returns the lower-cased request host without any port.
func (r *Request) Hostname() string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// BaseHost returns the request host with the matched subdomain label
// removed, keeping any port. It returns the full host if no domain rule
// matched.
func (r *Request) BaseHost() string {
	if r.Label == "" {
		return r.Host
	}
	if len(r.Host) > len(r.Label) && strings.EqualFold(r.Host[:len(r.Label)+1], r.Label+".") {
		return r.Host[len(r.Label)+1:]
	}
	return r.Host
}

// EscapedPath returns Path in its escaped form, as the client sent it.
func (r *Request) EscapedPath() string {
	escaped := r.URL.EscapedPath()
	if !strings.HasPrefix(escaped, r.stripped) {
		return (&url.URL{Path: r.Path}).EscapedPath()
	}
	if escaped = escaped[len(r.stripped):]; escaped == "" {
		return "/"
	}
	return escaped
}

// PublicPrefix is the prefix absolute URLs back to the mirror should use.
func (r *Request) PublicPrefix() string {
	if r.Custom.PathPrefix != "" {
		return r.Custom.PathPrefix
	}
	return r.Prefix
}

// Domains resolves the configured base domains. The underlying value is only
// resolved once per request.
func (r *Request) Domains() []string {
	if !r.resolved {
		r.domains = r.Settings.ResolveDomains()
		r.resolved = true
	}
	return r.domains
}

func (r *Request) attach(custom Custom) {
	if custom != (Custom{}) {
		r.Custom = custom
	}
}
