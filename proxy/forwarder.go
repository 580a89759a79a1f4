package proxy

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/csmith/mirrorgate/metrics"
)

// MaxRedirects is the number of redirects followed before the last response
// is returned to the client as-is.
const MaxRedirects = 5

// Call describes a single request to forward upstream.
type Call struct {
	// Target is the full upstream URL, including any query.
	Target *url.URL
	// Redirect decides whether upstream redirects are followed or handed
	// back to the client.
	Redirect config.Redirect
	// Location maps the absolute target of a redirect to the URL the client
	// should be sent to. Only used for manual redirects; defaults to
	// ForwardLocation.
	Location func(r *dispatch.Request, target *url.URL) string
	// Content, if set, applies content type handling to the response.
	Content *ContentPolicy
	// ModifyResponse runs after any redirect and content handling.
	ModifyResponse func(*http.Response) error
}

// Forwarder relays requests to upstreams using a httputil.ReverseProxy.
type Forwarder struct {
	family       string
	decorators   []Decorator
	recorder     *metrics.Recorder
	errorHandler func(http.ResponseWriter, *http.Request, error)
	bufferPool   httputil.BufferPool
	follow       http.RoundTripper
	manual       http.RoundTripper
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithRecorder records responses and upstream failures against the
// forwarder's family.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(f *Forwarder) {
		f.recorder = recorder
	}
}

// WithErrorHandler sets the handler used when an upstream can't be reached.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) Option {
	return func(f *Forwarder) {
		f.errorHandler = fn
	}
}

// WithDecorators replaces the default request decorators.
func WithDecorators(decorators ...Decorator) Option {
	return func(f *Forwarder) {
		f.decorators = decorators
	}
}

// NewForwarder creates a forwarder for the named family of upstreams. The
// timeout bounds connecting to upstreams and waiting for their response
// headers; zero disables it.
func NewForwarder(family string, timeout time.Duration, opts ...Option) *Forwarder {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	f := &Forwarder{
		family:       family,
		decorators:   DefaultDecorators(),
		errorHandler: defaultErrorHandler,
		bufferPool:   newBufferPool(),
		follow: &clientTransport{client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > MaxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}},
		manual: &clientTransport{client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}},
	}

	for i := range opts {
		opts[i](f)
	}
	return f
}

// Forward sends the request to call.Target and streams the response back.
func (f *Forwarder) Forward(w http.ResponseWriter, r *dispatch.Request, call Call) {
	target := *call.Target

	transport := f.follow
	if call.Redirect == config.RedirectManual {
		transport = f.manual
	}

	errorHandler := f.errorHandler
	modifyResponse := func(resp *http.Response) error {
		if call.Redirect == config.RedirectManual {
			rewriteLocation(r, resp, call.Location)
		}
		if call.Content != nil {
			if err := call.Content.Apply(resp); err != nil {
				return err
			}
		}
		if call.ModifyResponse != nil {
			return call.ModifyResponse(resp)
		}
		return nil
	}

	if f.recorder != nil {
		errorHandler = f.recorder.TrackBadGateway(f.family, errorHandler)
		modifyResponse = f.recorder.TrackResponse(f.family, modifyResponse)
	}

	r.Logger.Debug("Forwarding request", "family", f.family, "upstream", target.Host, "path", target.Path)

	rp := &httputil.ReverseProxy{
		Director: func(out *http.Request) {
			out.URL = &target
			out.RequestURI = ""
			for i := range f.decorators {
				f.decorators[i].Decorate(r.Request, out)
			}
		},
		Transport:      transport,
		ModifyResponse: modifyResponse,
		ErrorHandler:   errorHandler,
		BufferPool:     f.bufferPool,
		ErrorLog:       slog.NewLogLogger(r.Logger.Handler(), slog.LevelWarn),
	}
	rp.ServeHTTP(w, r.Request)
}

// ForwardLocation sends redirected clients back through the mirror's
// catch-all route: {mirror origin}/{absolute target}.
func ForwardLocation(r *dispatch.Request, target *url.URL) string {
	return r.Origin() + "/" + target.String()
}

func rewriteLocation(r *dispatch.Request, resp *http.Response, locate func(*dispatch.Request, *url.URL) string) {
	location := resp.Header.Get("Location")
	if location == "" {
		return
	}

	base := resp.Request.URL
	target, err := base.Parse(location)
	if err != nil {
		r.Logger.Debug("Ignoring unparseable redirect", "location", location, "error", err)
		return
	}

	if locate == nil {
		locate = ForwardLocation
	}
	resp.Header.Set("Location", locate(r, target))
}

func defaultErrorHandler(writer http.ResponseWriter, request *http.Request, err error) {
	slog.Warn("Failed to connect to upstream", "host", request.Host, "error", err)
	writer.WriteHeader(http.StatusBadGateway)
}

// clientTransport lets the ReverseProxy use a http.Client, which knows how
// to follow redirects.
type clientTransport struct {
	client *http.Client
}

func (c *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, 32*1024)
			},
		},
	}
}

type bufferPool struct {
	pool sync.Pool
}

func (b *bufferPool) Get() []byte {
	return b.pool.Get().([]byte)
}

func (b *bufferPool) Put(bytes []byte) {
	b.pool.Put(bytes)
}
