package registry

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/csmith/mirrorgate/metrics"
	"github.com/csmith/mirrorgate/proxy"
	"github.com/csmith/mirrorgate/token"
)

const (
	// DefaultUpstream is used when a request has no upstream attached.
	DefaultUpstream = "https://registry-1.docker.io"

	// defaultRealmBase resolves relative realms, which only the default
	// registry has been seen to send.
	defaultRealmBase = "https://auth.docker.io"

	tokenParam = "mirror_token"
)

// Relay mirrors a container registry, rewriting its authentication
// challenges so clients fetch tokens through the mirror. The upstream realm
// and service travel with the client in a signed mirror token, so no state is
// kept between the challenge and the token request.
type Relay struct {
	issuer    *token.Issuer
	forwarder *proxy.Forwarder
	recorder  *metrics.Recorder
}

// NewRelay creates a relay that signs tokens with the given issuer and
// reaches upstreams with the given forwarder. The recorder may be nil.
func NewRelay(issuer *token.Issuer, forwarder *proxy.Forwarder, recorder *metrics.Recorder) *Relay {
	return &Relay{
		issuer:    issuer,
		forwarder: forwarder,
		recorder:  recorder,
	}
}

// Handle serves a request that has been routed to a registry mirror.
func (rl *Relay) Handle(w http.ResponseWriter, r *dispatch.Request) {
	switch {
	case r.Path == "/v2/" || r.Path == "/v2":
		rl.ping(w, r)
	case r.Path == "/token" || r.Path == "/v2/auth" || r.URL.Query().Has(tokenParam):
		rl.exchange(w, r)
	default:
		rl.forward(w, r)
	}
}

func upstream(r *dispatch.Request) string {
	if r.Custom.Upstream != "" {
		return strings.TrimSuffix(r.Custom.Upstream, "/")
	}
	return DefaultUpstream
}

// ping forwards the API version check, replacing any challenge with one
// pointing back at the mirror.
func (rl *Relay) ping(w http.ResponseWriter, r *dispatch.Request) {
	target, err := url.Parse(upstream(r) + "/v2/")
	if err != nil {
		r.Logger.Error("Invalid registry upstream", "upstream", upstream(r), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	target.RawQuery = r.URL.RawQuery

	rl.forwarder.Forward(w, r, proxy.Call{
		Target:   target,
		Redirect: config.RedirectFollow,
		ModifyResponse: func(resp *http.Response) error {
			return rl.rewriteChallenge(r, resp)
		},
	})
}

func (rl *Relay) rewriteChallenge(r *dispatch.Request, resp *http.Response) error {
	header := resp.Header.Get("WWW-Authenticate")
	if resp.StatusCode != http.StatusUnauthorized || header == "" {
		return nil
	}

	challenge, err := ParseChallenge(header)
	if err != nil {
		r.Logger.Debug("Passing through unusable challenge", "error", err)
		return nil
	}

	realm, err := url.Parse(challenge.Realm())
	if err != nil {
		r.Logger.Debug("Passing through challenge with unparseable realm", "realm", challenge.Realm(), "error", err)
		return nil
	}

	mirrorToken, err := rl.issuer.Issue(challenge.Realm(), challenge.Service())
	if err != nil {
		return err
	}
	rl.track(metrics.TokenIssued)

	mirrorRealm, err := url.Parse(r.Origin() + r.PublicPrefix() + realm.EscapedPath())
	if err != nil {
		return err
	}
	mirrorRealm.RawQuery = url.Values{tokenParam: {mirrorToken}}.Encode()

	resp.Header.Set("WWW-Authenticate", FormatChallenge(challenge.Scheme, mirrorRealm.String(), r.Settings.ServiceName))
	r.Logger.Debug("Rewrote registry challenge", "realm", realm.Host, "service", challenge.Service())
	return nil
}

// exchange relays a token request to the realm named in the mirror token.
func (rl *Relay) exchange(w http.ResponseWriter, r *dispatch.Request) {
	query := r.URL.Query()

	if query.Get("service") != r.Settings.ServiceName {
		rl.track(metrics.TokenWrongService)
		http.Error(w, "invalid service", http.StatusUnauthorized)
		return
	}

	mirrorToken, err := rl.issuer.Open(query.Get(tokenParam))
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			rl.track(metrics.TokenExpired)
		} else {
			rl.track(metrics.TokenInvalid)
		}
		r.Logger.Debug("Rejected mirror token", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	rl.track(metrics.TokenAccepted)

	query.Del(tokenParam)
	if !r.Custom.ThirdParty {
		scopes := query["scope"]
		for i := range scopes {
			scopes[i] = CompleteScope(scopes[i])
		}
	}

	base, _ := url.Parse(defaultRealmBase)
	target, err := base.Parse(mirrorToken.Realm)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		r.Logger.Warn("Mirror token has an unusable realm", "realm", mirrorToken.Realm, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	merged := target.Query()
	for k, v := range query {
		merged[k] = v
	}
	merged.Set("service", mirrorToken.Service)
	target.RawQuery = merged.Encode()

	rl.forwarder.Forward(w, r, proxy.Call{
		Target:   target,
		Redirect: config.RedirectFollow,
	})
}

// forward passes blob, manifest and any other registry requests upstream.
func (rl *Relay) forward(w http.ResponseWriter, r *dispatch.Request) {
	path := r.EscapedPath()
	if !r.Custom.ThirdParty {
		path = CompleteRepositoryPath(path)
	}

	target, err := url.Parse(upstream(r) + path)
	if err != nil {
		r.Logger.Debug("Unable to build registry URL", "path", path, "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	target.RawQuery = r.URL.RawQuery

	rl.forwarder.Forward(w, r, proxy.Call{
		Target:   target,
		Redirect: config.RedirectFollow,
	})
}

func (rl *Relay) track(result metrics.TokenResult) {
	if rl.recorder != nil {
		rl.recorder.TrackToken(result)
	}
}
