package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/csmith/mirrorgate/match"
	"go.uber.org/multierr"
)

// HTMLDenial determines what happens to HTML responses when HTML is not allowed.
type HTMLDenial int

const (
	HTMLDenialForbid    HTMLDenial = iota // Replace the response with a 403
	HTMLDenialDowngrade                   // Relabel the response as text/plain
)

// ParseHTMLDenial parses the textual form of an HTMLDenial.
func ParseHTMLDenial(s string) (HTMLDenial, error) {
	switch strings.ToLower(s) {
	case "forbid":
		return HTMLDenialForbid, nil
	case "downgrade":
		return HTMLDenialDowngrade, nil
	default:
		return 0, fmt.Errorf("unknown html denial mode: %s", s)
	}
}

// Redirect determines how upstream redirects are handled.
type Redirect int

const (
	RedirectManual Redirect = iota // Pass redirects to the client, pointing them back at the mirror
	RedirectFollow                 // Follow redirects on the client's behalf
)

// ParseRedirect parses the textual form of a Redirect.
func ParseRedirect(s string) (Redirect, error) {
	switch strings.ToLower(s) {
	case "manual":
		return RedirectManual, nil
	case "follow":
		return RedirectFollow, nil
	default:
		return 0, fmt.Errorf("unknown redirect policy: %s", s)
	}
}

// HostPolicy determines which Host headers are accepted.
type HostPolicy int

const (
	HostPolicyOpen   HostPolicy = iota // Accept requests for any host
	HostPolicyStrict                   // Accept only configured domains and their mirror subdomains
)

// ParseHostPolicy parses the textual form of a HostPolicy.
func ParseHostPolicy(s string) (HostPolicy, error) {
	switch strings.ToLower(s) {
	case "open":
		return HostPolicyOpen, nil
	case "strict":
		return HostPolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown host policy: %s", s)
	}
}

// Settings is the configuration snapshot shared by every request. It is built
// once at startup and never modified afterwards.
type Settings struct {
	// ServiceName is the registry service this gateway announces in
	// authentication challenges, and expects back at token exchange.
	ServiceName string
	// SignSecret keys the mirror token HMAC. It must never be logged.
	SignSecret string
	// LegacyKey pads/truncates SignSecret to 32 bytes before use.
	LegacyKey bool
	// TokenTTL bounds the lifetime of mirror tokens; zero disables expiry.
	TokenTTL time.Duration
	// Version is reported by the index endpoint.
	Version string

	// Domains are the base domains used for subdomain routing.
	Domains Value[[]string]
	// HostPolicy decides whether unknown hosts are refused.
	HostPolicy HostPolicy

	// AllowHTML permits text/html responses to be served as HTML.
	AllowHTML Value[bool]
	// HTMLDenial is applied to HTML responses when AllowHTML is false.
	HTMLDenial HTMLDenial
	// Redirect is the policy for the catch-all forwarder.
	Redirect Redirect
	// AutoCompleteProtocol lets the catch-all forwarder accept targets
	// without a scheme.
	AutoCompleteProtocol bool
	// UpstreamTimeout bounds connecting to and awaiting headers from upstreams.
	UpstreamTimeout time.Duration
}

// Validate checks the settings for consistency, returning every problem found.
func (s *Settings) Validate() error {
	var err error

	if strings.TrimSpace(s.ServiceName) == "" {
		err = multierr.Append(err, fmt.Errorf("service name must not be empty"))
	}

	if s.SignSecret == "" {
		err = multierr.Append(err, fmt.Errorf("sign secret must not be empty"))
	}

	if s.TokenTTL < 0 {
		err = multierr.Append(err, fmt.Errorf("token ttl must not be negative"))
	}

	if s.UpstreamTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("upstream timeout must not be negative"))
	}

	var domains []string
	if s.Domains != nil {
		domains = s.Domains.Resolve()
	}
	for i := range domains {
		if !match.IsDomainPattern(domains[i]) {
			err = multierr.Append(err, fmt.Errorf("invalid domain: %s", domains[i]))
		}
	}

	if s.HostPolicy == HostPolicyStrict && len(domains) == 0 {
		err = multierr.Append(err, fmt.Errorf("strict host policy requires at least one domain"))
	}

	return err
}

// ResolveDomains returns the configured domains, if any.
func (s *Settings) ResolveDomains() []string {
	if s == nil || s.Domains == nil {
		return nil
	}
	return s.Domains.Resolve()
}

// ResolveAllowHTML reports whether HTML may currently be served.
func (s *Settings) ResolveAllowHTML() bool {
	if s == nil || s.AllowHTML == nil {
		return false
	}
	return s.AllowHTML.Resolve()
}

// SplitList splits a space or comma separated list, dropping empty entries.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
}
