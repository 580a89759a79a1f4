package dispatch

import (
	"net/http"
	"strings"

	"github.com/csmith/mirrorgate/match"
)

// DomainRule routes requests addressed to {Label}.{domain} for any configured
// base domain.
type DomainRule struct {
	Label  string
	Target Target
	Custom Custom
}

// AgentRule routes requests whose User-Agent contains a matching product.
type AgentRule struct {
	Test match.UserAgentTest
	// Prefix, if set, replaces the accumulated prefix.
	Prefix string
	Target Target
	Custom Custom
}

// PathRule routes requests whose path starts with any of Paths. The matched
// path is removed from the request path.
type PathRule struct {
	Paths  []string
	Target Target
	Custom Custom
}

// Fallback is given any request no rule matched. It returns false if it
// declined to handle the request.
type Fallback func(w http.ResponseWriter, r *Request) bool

// Dispatcher evaluates its rules in a fixed order: domain rules, then agent
// rules, then path rules, then fallbacks. The first matching rule wins.
type Dispatcher struct {
	Domains   []DomainRule
	Agents    []AgentRule
	Paths     []PathRule
	Fallbacks []Fallback
	// NotFound handles requests nothing else would. Defaults to a plain 404.
	NotFound HandlerFunc
}

// Dispatch routes a single request.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *Request) {
	if rule, ok := d.matchDomain(r); ok {
		r.Logger.Debug("Matched domain rule", "label", rule.Label)
		r.Label = rule.Label
		r.attach(rule.Custom)
		rule.Target.serve(w, r)
		return
	}

	if rule, ok := d.matchAgent(r); ok {
		r.Logger.Debug("Matched user agent rule", "prefix", rule.Prefix)
		if rule.Prefix != "" {
			r.Prefix = rule.Prefix
		}
		r.attach(rule.Custom)
		rule.Target.serve(w, r)
		return
	}

	if rule, prefix, ok := d.matchPath(r); ok {
		r.Logger.Debug("Matched path rule", "prefix", prefix)
		r.Path = strings.TrimPrefix(r.Path, prefix)
		if r.Path == "" {
			r.Path = "/"
		}
		r.Prefix += prefix
		r.stripped += prefix
		r.attach(rule.Custom)
		rule.Target.serve(w, r)
		return
	}

	for i := range d.Fallbacks {
		if d.Fallbacks[i](w, r) {
			return
		}
	}

	if d.NotFound != nil {
		d.NotFound(w, r)
	} else {
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

// Labels returns the subdomain labels of every domain rule.
func (d *Dispatcher) Labels() []string {
	res := make([]string, len(d.Domains))
	for i := range d.Domains {
		res[i] = d.Domains[i].Label
	}
	return res
}

func (d *Dispatcher) matchDomain(r *Request) (DomainRule, bool) {
	if len(d.Domains) == 0 {
		return DomainRule{}, false
	}

	domains := r.Domains()
	if len(domains) == 0 {
		return DomainRule{}, false
	}

	host := r.Hostname()
	for i := range d.Domains {
		for j := range domains {
			if match.MatchWildcardDomain(host, d.Domains[i].Label+"."+domains[j]) {
				return d.Domains[i], true
			}
		}
	}
	return DomainRule{}, false
}

func (d *Dispatcher) matchAgent(r *Request) (AgentRule, bool) {
	if len(d.Agents) == 0 {
		return AgentRule{}, false
	}

	agents := match.ParseUserAgent(r.UserAgent(), true)
	for i := range d.Agents {
		if d.Agents[i].Test.Any(agents) {
			return d.Agents[i], true
		}
	}
	return AgentRule{}, false
}

func (d *Dispatcher) matchPath(r *Request) (PathRule, string, bool) {
	for i := range d.Paths {
		for _, p := range d.Paths[i].Paths {
			if match.PathStartsWith(r.Path, p) {
				return d.Paths[i], p, true
			}
		}
	}
	return PathRule{}, "", false
}
