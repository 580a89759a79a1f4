package proxy

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
)

var (
	// Proxies in front of the mirror may have merged the double slash.
	schemePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.-]*):/+(.)`)
	hostPattern   = regexp.MustCompile(`^[A-Za-z0-9.-]+(:[0-9]+)?([/?]|$)`)
)

// CompleteTarget turns the text following the mirror's origin into an
// absolute http(s) URL.
//
// Text with a scheme is used as-is, provided the scheme is http or https.
// Otherwise, if scheme is non-empty and the text looks like a host (with an
// optional user@ in front), scheme is prepended. Anything else is refused.
func CompleteTarget(raw, scheme string) (*url.URL, bool) {
	if m := schemePattern.FindStringSubmatchIndex(raw); m != nil {
		s := strings.ToLower(raw[m[2]:m[3]])
		if s != "http" && s != "https" {
			return nil, false
		}
		return parseTarget(s + "://" + raw[m[4]:])
	}

	if scheme == "" {
		return nil, false
	}

	host := raw
	if at := strings.IndexByte(host, '@'); at >= 0 && !strings.ContainsRune(host[:at], '/') {
		host = host[at+1:]
	}
	if !hostPattern.MatchString(host) {
		return nil, false
	}

	return parseTarget(scheme + "://" + raw)
}

func parseTarget(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

// CatchAll forwards requests whose path is itself a URL, e.g.
// /https://example.com/file.tar.gz.
type CatchAll struct {
	forwarder *Forwarder
	options   handlerOptions
}

// NewCatchAll creates a new CatchAll that forwards using the given forwarder.
func NewCatchAll(forwarder *Forwarder, opts ...HandlerOption) *CatchAll {
	return &CatchAll{
		forwarder: forwarder,
		options:   newHandlerOptions(opts),
	}
}

// Fallback is a dispatch.Fallback that forwards the request if its path is
// a plausible target.
func (c *CatchAll) Fallback(w http.ResponseWriter, r *dispatch.Request) bool {
	raw := strings.TrimPrefix(r.EscapedPath(), "/")
	if r.URL.RawQuery != "" {
		raw += "?" + r.URL.RawQuery
	}

	scheme := c.options.scheme
	if scheme == "" && r.Settings != nil && r.Settings.AutoCompleteProtocol {
		scheme = r.Scheme()
	}

	target, ok := CompleteTarget(raw, scheme)
	if !ok {
		return false
	}

	if strings.EqualFold(target.Host, r.Host) {
		r.Logger.Debug("Declining to forward request back to ourselves", "target", target.Host)
		return false
	}

	redirect := config.RedirectManual
	if r.Settings != nil {
		redirect = r.Settings.Redirect
	}

	c.forwarder.Forward(w, r, Call{
		Target:   target,
		Redirect: c.options.redirectOr(redirect),
		Location: ForwardLocation,
		Content: &ContentPolicy{
			AllowHTML: c.options.htmlAllowed(r),
			Denial:    htmlDenial(r),
		},
	})
	return true
}
