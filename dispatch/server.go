package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/match"
	"github.com/google/uuid"
)

// Server adapts a root Dispatcher to a http.Handler, enforcing the host
// policy and turning panics into 500 responses.
type Server struct {
	settings *config.Settings
	root     *Dispatcher
}

// NewServer creates a server that dispatches every request using root.
func NewServer(settings *config.Settings, root *Dispatcher) *Server {
	return &Server{
		settings: settings,
		root:     root,
	}
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	id := uuid.NewString()
	writer.Header().Set("X-Request-Id", id)

	req := NewRequest(request, s.settings, id)
	req.Logger.Debug("Handling request", "method", request.Method, "host", request.Host, "path", request.URL.Path)

	tw := &trackingWriter{ResponseWriter: writer}
	writer = tw

	defer func() {
		if err := recover(); err != nil {
			if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(err)
			}
			req.Logger.Error("Panic while handling request", "error", err)
			if tw.started {
				// The client already has a status and possibly part of a body.
				return
			}
			writeInternalError(writer)
		}
	}()

	if !s.permitted(req) {
		req.Logger.Debug("Refusing request for unknown host", "host", req.Host)
		http.Error(writer, "NOT PERMITTED", http.StatusForbidden)
		return
	}

	s.root.Dispatch(writer, req)
}

// permitted checks the request host against the host policy. Under the
// strict policy the host must be a configured domain, or a subdomain of one
// named by a root domain rule.
func (s *Server) permitted(r *Request) bool {
	if s.settings.HostPolicy != config.HostPolicyStrict {
		return true
	}

	host := r.Hostname()
	labels := s.root.Labels()
	for _, domain := range r.Domains() {
		if match.MatchWildcardDomain(host, domain) {
			return true
		}
		for i := range labels {
			if match.MatchWildcardDomain(host, labels[i]+"."+domain) {
				return true
			}
		}
	}
	return false
}

type internalError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeInternalError(writer http.ResponseWriter) {
	body, err := json.Marshal(internalError{
		Code:    http.StatusInternalServerError,
		Message: http.StatusText(http.StatusInternalServerError),
	})
	if err != nil {
		slog.Error("Failed to marshal error response", "error", err)
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusInternalServerError)
	_, _ = writer.Write(body)
}

// trackingWriter notes whether a response has been started.
type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (t *trackingWriter) WriteHeader(statusCode int) {
	if statusCode >= http.StatusOK {
		t.started = true
	}
	t.ResponseWriter.WriteHeader(statusCode)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

// Unwrap allows http.ResponseController to reach the underlying writer.
func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
