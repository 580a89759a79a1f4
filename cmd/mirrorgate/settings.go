package main

import (
	"flag"
	"time"

	"github.com/csmith/mirrorgate/config"
	"go.uber.org/multierr"
)

var (
	serviceName          = flag.String("service-name", "mirrorgate", "Registry service name announced in authentication challenges")
	signSecret           = flag.String("sign-secret", "", "Secret used to sign mirror tokens")
	signLegacyKey        = flag.Bool("sign-legacy-key", false, "Zero-pad or truncate the signing secret to 32 bytes, to accept tokens from older deployments")
	tokenTTL             = flag.Duration("token-ttl", 0, "How long issued mirror tokens are accepted for. Tokens never expire if zero")
	versionString        = flag.String("version-string", "dev", "Version reported by the index page")
	domains              = flag.String("domains", "", "Space separated list of base domains to route mirror subdomains under")
	hostPolicy           = flag.String("host-policy", "open", "Which hosts to accept requests for: open (any) or strict (configured domains only)")
	allowHTML            = flag.Bool("allow-html", false, "Serve HTML responses from upstreams")
	htmlDenial           = flag.String("html-denial", "forbid", "What to do with HTML responses when HTML isn't allowed: forbid or downgrade")
	redirect             = flag.String("redirect", "manual", "How the URL forwarder handles upstream redirects: manual or follow")
	autoCompleteProtocol = flag.Bool("auto-complete-protocol", true, "Allow forwarded URLs without a scheme")
	upstreamTimeout      = flag.Duration("upstream-timeout", 30*time.Second, "Time allowed to connect to an upstream and receive its response headers")
)

// buildSettings assembles the settings snapshot from flags, returning every
// problem found.
func buildSettings() (*config.Settings, error) {
	var err error

	policy, policyErr := config.ParseHostPolicy(*hostPolicy)
	err = multierr.Append(err, policyErr)

	denial, denialErr := config.ParseHTMLDenial(*htmlDenial)
	err = multierr.Append(err, denialErr)

	redirectPolicy, redirectErr := config.ParseRedirect(*redirect)
	err = multierr.Append(err, redirectErr)

	settings := &config.Settings{
		ServiceName:          *serviceName,
		SignSecret:           *signSecret,
		LegacyKey:            *signLegacyKey,
		TokenTTL:             *tokenTTL,
		Version:              *versionString,
		Domains:              config.Fixed(config.SplitList(*domains)),
		HostPolicy:           policy,
		AllowHTML:            config.Fixed(*allowHTML),
		HTMLDenial:           denial,
		Redirect:             redirectPolicy,
		AutoCompleteProtocol: *autoCompleteProtocol,
		UpstreamTimeout:      *upstreamTimeout,
	}

	if err = multierr.Append(err, settings.Validate()); err != nil {
		return nil, err
	}
	return settings, nil
}
