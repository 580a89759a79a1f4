//go:build !notailscale

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"
)

var (
	tailscaleHostname = flag.String("tailscale-hostname", "mirrorgate", "Hostname to use for the tailscale frontend")
	tailscaleKey      = flag.String("tailscale-key", "", "Auth key to use when connecting to tailscale")
)

type tailscaleFrontend struct {
	node   *tsnet.Server
	server *server
}

func init() {
	frontends["tailscale"] = &tailscaleFrontend{}
}

func (t *tailscaleFrontend) Serve(handler http.Handler, errChan chan<- error) error {
	if *tailscaleKey == "" {
		return fmt.Errorf("tailscale authentication key not specified")
	}
	slog.Info("Starting tailscale server", "hostname", *tailscaleHostname, "port", 80)

	t.node = &tsnet.Server{
		Hostname: *tailscaleHostname,
		AuthKey:  *tailscaleKey,
		Logf:     func(format string, args ...any) {},
	}

	if err := t.node.Start(); err != nil {
		return err
	}

	listener, err := t.node.Listen("tcp", ":80")
	if err != nil {
		_ = t.node.Close()
		return err
	}

	t.server = newServer(handler, errChan)
	go t.server.start(listener)
	return nil
}

func (t *tailscaleFrontend) Stop(ctx context.Context) {
	t.server.stop(ctx)
	if t.node != nil {
		_ = t.node.Close()
	}
}
