package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TokenResult describes the outcome of issuing or checking a mirror token.
type TokenResult string

const (
	TokenIssued       TokenResult = "issued"
	TokenAccepted     TokenResult = "accepted"
	TokenInvalid      TokenResult = "invalid"
	TokenExpired      TokenResult = "expired"
	TokenWrongService TokenResult = "wrong_service"
)

// Recorder provides methods to track metrics for requests
type Recorder struct {
	registry        *prometheus.Registry
	responseCounter *prometheus.CounterVec
	upstreamCounter *prometheus.CounterVec
	tokenCounter    *prometheus.CounterVec
}

// NewRecorder creates a new Recorder with its own prometheus registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		responseCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_response_total",
			Help: "The total number of upstream responses relayed to clients",
		}, []string{"family", "status"}),

		upstreamCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_upstream_errors_total",
			Help: "The total number of requests that could not reach an upstream",
		}, []string{"family"}),

		tokenCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_token_total",
			Help: "The total number of mirror tokens issued or presented",
		}, []string{"result"}),
	}
	r.registerMetrics()
	return r
}

// registerMetrics registers the various metrics we will record with the prometheus registry
func (r *Recorder) registerMetrics() {
	if err := r.registry.Register(r.responseCounter); err != nil {
		slog.Error("Failed to register response counter", "error", err)
	}

	if err := r.registry.Register(r.upstreamCounter); err != nil {
		slog.Error("Failed to register upstream error counter", "error", err)
	}

	if err := r.registry.Register(r.tokenCounter); err != nil {
		slog.Error("Failed to register token counter", "error", err)
	}

	// Prometheus-supplied general process metrics
	if err := r.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		slog.Error("Failed to register process collector", "error", err)
	}

	if err := r.registry.Register(collectors.NewGoCollector()); err != nil {
		slog.Error("Failed to register go collector", "error", err)
	}
}

// Handler returns a HTTP handler that will provide prometheus metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		r.registry,
		promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}),
	)
}

// TrackBadGateway wraps the ErrorHandler field of httputil.ReverseProxy,
// recording an upstream failure and a response with an implied 502 status.
func (r *Recorder) TrackBadGateway(family string, fn func(http.ResponseWriter, *http.Request, error)) func(http.ResponseWriter, *http.Request, error) {
	return func(writer http.ResponseWriter, req *http.Request, err error) {
		r.upstreamCounter.With(prometheus.Labels{"family": family}).Inc()
		r.responseCounter.With(prometheus.Labels{
			"family": family,
			"status": "502",
		}).Inc()

		fn(writer, req, err)
	}
}

// TrackResponse wraps the ModifyResponse field of httputil.ReverseProxy,
// recording the response and the HTTP status code sent to the client. If fn
// fails nothing is recorded here, as the ErrorHandler will answer instead.
func (r *Recorder) TrackResponse(family string, fn func(*http.Response) error) func(*http.Response) error {
	return func(resp *http.Response) error {
		if err := fn(resp); err != nil {
			return err
		}

		r.responseCounter.With(prometheus.Labels{
			"family": family,
			"status": fmt.Sprintf("%d", resp.StatusCode),
		}).Inc()
		return nil
	}
}

// TrackToken records the outcome of a mirror token operation.
func (r *Recorder) TrackToken(result TokenResult) {
	r.tokenCounter.With(prometheus.Labels{"result": string(result)}).Inc()
}
