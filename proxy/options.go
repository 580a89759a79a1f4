package proxy

import (
	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
)

type handlerOptions struct {
	allowHTML bool
	redirect  *config.Redirect
	scheme    string
}

// HandlerOption overrides a configured setting for a single handler.
type HandlerOption func(*handlerOptions)

// ForceHTML serves HTML regardless of the configured policy.
func ForceHTML() HandlerOption {
	return func(o *handlerOptions) {
		o.allowHTML = true
	}
}

// ForceRedirect uses the given redirect policy instead of the configured one.
func ForceRedirect(redirect config.Redirect) HandlerOption {
	return func(o *handlerOptions) {
		o.redirect = &redirect
	}
}

// ForceScheme always completes scheme-less targets with the given scheme,
// even if protocol completion is disabled.
func ForceScheme(scheme string) HandlerOption {
	return func(o *handlerOptions) {
		o.scheme = scheme
	}
}

func newHandlerOptions(opts []HandlerOption) handlerOptions {
	var res handlerOptions
	for i := range opts {
		opts[i](&res)
	}
	return res
}

func (o handlerOptions) htmlAllowed(r *dispatch.Request) bool {
	return o.allowHTML || r.Settings.ResolveAllowHTML()
}

func (o handlerOptions) redirectOr(fallback config.Redirect) config.Redirect {
	if o.redirect != nil {
		return *o.redirect
	}
	return fallback
}

func htmlDenial(r *dispatch.Request) config.HTMLDenial {
	if r.Settings == nil {
		return config.HTMLDenialForbid
	}
	return r.Settings.HTMLDenial
}
