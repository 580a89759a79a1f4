package main

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/csmith/mirrorgate/match"
	"github.com/csmith/mirrorgate/metrics"
	"github.com/csmith/mirrorgate/proxy"
	"github.com/csmith/mirrorgate/registry"
	"github.com/csmith/mirrorgate/token"
)

// router serves requests using the most recently installed server.
type router struct {
	current atomic.Pointer[dispatch.Server]
}

func (r *router) install(s *dispatch.Server) {
	r.current.Store(s)
}

func (r *router) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	r.current.Load().ServeHTTP(writer, request)
}

// buildServer wires the handlers for every mirror in the table into a root
// dispatcher. Rules are evaluated as subdomains, then user agents, then path
// prefixes, then the fallbacks for sub-resources and forwarded URLs.
func buildServer(settings *config.Settings, table *config.Table, recorder *metrics.Recorder) *dispatch.Server {
	forwarder := func(family string) *proxy.Forwarder {
		return proxy.NewForwarder(
			family,
			settings.UpstreamTimeout,
			proxy.WithErrorHandler(handleError),
			proxy.WithRecorder(recorder),
		)
	}

	var codecOptions []token.Option
	if settings.LegacyKey {
		codecOptions = append(codecOptions, token.WithLegacyKeyPadding())
	}
	issuer := token.NewIssuer(token.NewCodec(settings.SignSecret, codecOptions...), settings.TokenTTL)

	relay := registry.NewRelay(issuer, forwarder("registry"), recorder)
	sourceForwarder := forwarder("source")
	urlForwarder := forwarder("url")

	mapping := sourceMapping(table)
	sources := proxy.NewSourceMirror(mapping, sourceForwarder)
	catchAll := proxy.NewCatchAll(urlForwarder)

	git := &dispatch.Dispatcher{
		Paths: sourcePaths(mapping, proxy.NewSourceMirror(mapping, sourceForwarder, proxy.ForceHTML())),
		Fallbacks: []dispatch.Fallback{
			proxy.NewCatchAll(
				urlForwarder,
				proxy.ForceScheme("https"),
				proxy.ForceRedirect(config.RedirectManual),
				proxy.ForceHTML(),
			).Fallback,
		},
	}

	root := &dispatch.Dispatcher{
		Fallbacks: []dispatch.Fallback{sources.Recover, catchAll.Fallback},
		NotFound:  newIndex(settings, table).Handle,
	}

	for _, m := range table.Mirrors {
		target := dispatch.Func(sources.Handle)
		if m.Kind == config.MirrorRegistry {
			target = dispatch.Func(relay.Handle)
		}
		root.Domains = append(root.Domains, dispatch.DomainRule{
			Label:  m.Name,
			Target: target,
			Custom: mirrorCustom(m),
		})
	}

	for _, a := range table.Agents {
		rule := dispatch.AgentRule{
			Test:   match.MatchProduct(strings.ToLower(a.Product)),
			Target: dispatch.To(git),
		}
		if a.Kind == config.MirrorRegistry {
			m, _ := table.Mirror(a.Mirror)
			rule.Target = dispatch.Func(relay.Handle)
			rule.Custom = mirrorCustom(m)
		}
		root.Agents = append(root.Agents, rule)
	}

	for _, m := range table.Registries() {
		root.Paths = append(root.Paths, dispatch.PathRule{
			Paths:  []string{m.Prefix()},
			Target: dispatch.Func(relay.Handle),
			Custom: mirrorCustom(m),
		})
	}
	root.Paths = append(root.Paths, sourcePaths(mapping, sources)...)

	return dispatch.NewServer(settings, root)
}

func mirrorCustom(m config.Mirror) dispatch.Custom {
	return dispatch.Custom{
		Upstream:   m.Upstream,
		ThirdParty: m.ThirdParty,
	}
}

func sourceMapping(table *config.Table) *match.Mapping {
	var entries []match.Entry
	for _, m := range table.Sources() {
		entries = append(entries, match.Entry{Prefix: m.Prefix(), Upstream: m.Upstream})
	}
	return match.NewMapping(entries...)
}

// sourcePaths mounts each source prefix, longest first.
func sourcePaths(mapping *match.Mapping, mirror *proxy.SourceMirror) []dispatch.PathRule {
	var res []dispatch.PathRule
	for _, prefix := range mapping.Prefixes() {
		upstream, _ := mapping.Upstream(prefix)
		res = append(res, dispatch.PathRule{
			Paths:  []string{prefix},
			Target: dispatch.Func(mirror.Handle),
			Custom: dispatch.Custom{Upstream: upstream},
		})
	}
	return res
}
