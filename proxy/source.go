package proxy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/csmith/mirrorgate/match"
)

// SourceMirror forwards requests to source hosting upstreams, rewriting
// links in their responses so clients stay on the mirror.
type SourceMirror struct {
	mapping   *match.Mapping
	forwarder *Forwarder
	options   handlerOptions
}

// NewSourceMirror creates a mirror for the upstreams in mapping. Each
// mapping prefix must also be the name the upstream is mounted under.
func NewSourceMirror(mapping *match.Mapping, forwarder *Forwarder, opts ...HandlerOption) *SourceMirror {
	return &SourceMirror{
		mapping:   mapping,
		forwarder: forwarder,
		options:   newHandlerOptions(opts),
	}
}

// Mapping returns the prefixes and upstreams served by the mirror.
func (s *SourceMirror) Mapping() *match.Mapping {
	return s.mapping
}

// Handle forwards a request that has already been routed to a source
// upstream, which is taken from the request's custom data.
func (s *SourceMirror) Handle(w http.ResponseWriter, r *dispatch.Request) {
	upstream := r.Custom.Upstream
	if upstream == "" {
		r.Logger.Warn("Source request routed without an upstream", "prefix", r.Prefix)
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.forward(w, r, upstream, r.EscapedPath(), r.PublicPrefix())
}

// Recover is a dispatch.Fallback for sub-resources of mirrored pages. If the
// request was referred by a page on this mirror under a known prefix, the
// request is sent, unmodified, to that prefix's upstream.
func (s *SourceMirror) Recover(w http.ResponseWriter, r *dispatch.Request) bool {
	referer := r.Referer()
	if referer == "" || !recoverable(r) {
		return false
	}

	u, err := url.Parse(referer)
	if err != nil || !strings.EqualFold(u.Host, r.Host) {
		return false
	}

	res, ok := s.mapping.Lookup(u.Path)
	if !ok {
		return false
	}

	r.Logger.Debug("Recovered request using referer", "prefix", res.Prefix, "upstream", res.Upstream)
	s.forward(w, r, res.Upstream, r.EscapedPath(), res.Prefix)
	return true
}

// recoverable reports whether a request may be treated as a sub-resource of
// its referer. The index and explicit /http(s)://... targets never are.
func recoverable(r *dispatch.Request) bool {
	path := strings.TrimPrefix(r.EscapedPath(), "/")
	if path == "" {
		return false
	}
	_, explicit := CompleteTarget(path, "")
	return !explicit
}

func (s *SourceMirror) forward(w http.ResponseWriter, r *dispatch.Request, upstream, path, prefix string) {
	target, err := url.Parse(upstream + path)
	if err != nil {
		r.Logger.Debug("Unable to build upstream URL", "upstream", upstream, "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	target.RawQuery = r.URL.RawQuery

	rewriter := s.rewriter(r, upstream, prefix)
	s.forwarder.Forward(w, r, Call{
		Target:   target,
		Redirect: s.options.redirectOr(config.RedirectFollow),
		Location: func(r *dispatch.Request, target *url.URL) string {
			if res, ok := rewriter.Location(target.String()); ok {
				return res
			}
			return ForwardLocation(r, target)
		},
		Content: &ContentPolicy{
			AllowHTML: s.options.htmlAllowed(r),
			Denial:    htmlDenial(r),
			Rewriter:  rewriter,
		},
	})
}

func (s *SourceMirror) rewriter(r *dispatch.Request, active, prefix string) *Rewriter {
	var replacements []Replacement
	seen := make(map[string]bool)
	for _, e := range s.mapping.Entries() {
		if seen[e.Upstream] {
			continue
		}
		seen[e.Upstream] = true
		replacements = append(replacements, Replacement{
			Origin: e.Upstream,
			Mirror: s.locate(r, e.Upstream, active, prefix),
		})
	}
	if !seen[active] {
		replacements = append(replacements, Replacement{Origin: active, Mirror: r.Origin() + prefix})
	}
	return NewRewriter(replacements, prefix)
}

// locate returns the mirror URL that serves the given upstream. Requests
// routed by subdomain are pointed at the sibling subdomain for other
// upstreams rather than a path prefix.
func (s *SourceMirror) locate(r *dispatch.Request, upstream, active, prefix string) string {
	if upstream == active {
		return r.Origin() + prefix
	}

	canonical, _ := s.mapping.CanonicalPrefix(upstream)
	if r.Label != "" {
		return r.Scheme() + "://" + strings.TrimPrefix(canonical, "/") + "." + r.BaseHost()
	}
	return r.Origin() + canonical
}
