//go:build !notcp

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

var (
	httpPort = flag.Int("http-port", 8080, "Port to listen on for HTTP requests for the TCP frontend")
)

type tcpFrontend struct {
	server *server
}

func init() {
	frontends["tcp"] = &tcpFrontend{}
}

func (t *tcpFrontend) Serve(handler http.Handler, errChan chan<- error) error {
	slog.Info("Starting TCP server", "port", *httpPort)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *httpPort))
	if err != nil {
		return err
	}

	t.server = newServer(handler, errChan)
	go t.server.start(listener)
	return nil
}

func (t *tcpFrontend) Stop(ctx context.Context) {
	t.server.stop(ctx)
}
