package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/csmith/envflag/v2"
	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/metrics"
)

var (
	selectedFrontend = flag.String("frontend", "tcp", "Frontend to listen on")
	metricsPort      = flag.Int("metrics-port", 0, "Port to expose metrics endpoint on. Disabled by default.")
	validate         = flag.Bool("validate", false, "Validate settings and mirror table and exit")
	_                = flag.String("env-file", defaultEnvFile, "File of environment variables to load before reading settings")
)

func main() {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	if err := run(os.Args[1:], signalChan); err != nil {
		slog.Error("Mirrorgate encountered a fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string, signalChan <-chan os.Signal) error {
	if err := loadEnvFile(args); err != nil {
		return err
	}
	envflag.Parse(envflag.WithArguments(args))
	initLogging()

	settings, err := buildSettings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	source := newTableSource(*mirrorsPath)
	if *validate {
		return validateConfig(source)
	}

	f, err := createFrontend(*selectedFrontend)
	if err != nil {
		return fmt.Errorf("invalid frontend specified: %v", err)
	}

	errChan := make(chan error)
	recorder := metrics.NewRecorder()
	handler := &router{}

	if err := source.Start(func(table *config.Table) error {
		handler.install(buildServer(settings, table, recorder))
		slog.Info("Installed mirror table", "mirrors", len(table.Mirrors), "agents", len(table.Agents))
		return nil
	}, errChan); err != nil {
		return err
	}

	if err := f.Serve(handler, errChan); err != nil {
		source.Stop()
		return fmt.Errorf("failed to start frontend: %v", err)
	}

	metricsChan := make(chan struct{}, 1)
	if *metricsPort > 0 {
		serveMetrics(recorder, metricsChan, errChan)
	}

	for {
		select {
		case sig := <-signalChan:
			switch sig {
			case syscall.SIGHUP:
				slog.Info("Received signal, reloading mirror table...", "signal", sig)
				source.Reload()
			case syscall.SIGINT, syscall.SIGTERM:
				slog.Info("Received signal, stopping frontend...", "signal", sig)
				metricsChan <- struct{}{}
				source.Stop()
				f.Stop(context.Background())
				slog.Info("Frontend stopped. Goodbye!")
				return nil
			}
		case err := <-errChan:
			source.Stop()
			f.Stop(context.Background())
			return err
		}
	}
}

func createFrontend(name string) (frontend, error) {
	if f, ok := frontends[strings.ToLower(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown frontend: %s", name)
}

func serveMetrics(recorder *metrics.Recorder, shutdownChan <-chan struct{}, errChan chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	s := newServer(mux, errChan)

	go func() {
		slog.Info("Starting metrics server", "port", *metricsPort)
		if listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *metricsPort)); err != nil {
			errChan <- fmt.Errorf("failed to listen on port %d: %w", *metricsPort, err)
		} else {
			s.start(listener)
		}
	}()

	go func() {
		<-shutdownChan
		s.stop(context.Background())
	}()
}

func validateConfig(source *tableSource) error {
	table, err := source.Load()
	if err != nil {
		return err
	}

	slog.Info("Configuration is valid", "mirrors", len(table.Mirrors), "agents", len(table.Agents))
	return nil
}
