package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/csmith/mirrorgate/config"
	"golang.org/x/sys/unix"
)

var (
	mirrorsPath = flag.String("mirrors", "", "Path to the mirror table. The built-in mirrors are used if empty")
)

type tableInstaller func(*config.Table) error

// tableSource reads the mirror table, and re-reads it whenever Reload is
// called. A table that fails to load during a reload is logged and the
// previous one stays installed.
type tableSource struct {
	path       string
	updateChan chan struct{}
	stopChan   chan struct{}
}

func newTableSource(path string) *tableSource {
	return &tableSource{
		path:       path,
		updateChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}, 1),
	}
}

// Start loads and installs the table, then waits for reloads in the
// background.
func (t *tableSource) Start(install tableInstaller, errChan chan<- error) error {
	table, err := t.Load()
	if err != nil {
		return err
	}

	if err := install(table); err != nil {
		return fmt.Errorf("failed to install mirror table: %w", err)
	}

	go t.run(install, errChan)
	return nil
}

func (t *tableSource) Stop() {
	select {
	case t.stopChan <- struct{}{}:
	default:
	}
}

func (t *tableSource) Reload() {
	select {
	case t.updateChan <- struct{}{}:
		slog.Info("Scheduled mirror table reload")
	default:
		slog.Info("A mirror table reload was already scheduled; ignoring...")
	}
}

// Load reads the table without installing it.
func (t *tableSource) Load() (*config.Table, error) {
	if t.path == "" {
		slog.Debug("Using built-in mirror table")
		return config.Defaults(), nil
	}

	slog.Debug("Reading mirror table", "path", t.path)
	if err := unix.Access(t.path, unix.R_OK); err != nil {
		return nil, fmt.Errorf("unable to read mirror table %s: %w", t.path, err)
	}

	file, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror table: %w", err)
	}
	defer file.Close()

	table, err := config.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mirror table: %w", err)
	}
	return table, nil
}

func (t *tableSource) run(install tableInstaller, errChan chan<- error) {
	for {
		select {
		case <-t.stopChan:
			return
		case <-t.updateChan:
			table, err := t.Load()
			if err != nil {
				slog.Error("Failed to reload mirror table, keeping the current one", "error", err)
				continue
			}

			if err := install(table); err != nil {
				errChan <- fmt.Errorf("failed to install mirror table: %w", err)
				return
			}
		}
	}
}
