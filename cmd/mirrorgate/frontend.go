package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	shutdownTimeout = time.Second * 5
)

type frontend interface {
	Serve(handler http.Handler, errChan chan<- error) error
	Stop(ctx context.Context)
}

var frontends = make(map[string]frontend)

// server wraps a http.Server, reporting unexpected failures to errChan.
type server struct {
	srv     *http.Server
	errChan chan<- error
}

func newServer(handler http.Handler, errChan chan<- error) *server {
	return &server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 30 * time.Second,
		},
		errChan: errChan,
	}
}

func (s *server) start(listener net.Listener) {
	if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errChan <- err
	}
}

func (s *server) stop(ctx context.Context) {
	if s == nil {
		return
	}

	timeoutContext, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	_ = s.srv.Shutdown(timeoutContext)
}
