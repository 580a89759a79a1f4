package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// loadEnvFile loads variables from an env file into the environment before
// flags are parsed, so they can be picked up by envflag. Variables already
// present in the environment take precedence. A missing file is only an
// error if it was asked for explicitly.
func loadEnvFile(args []string) error {
	path, explicit := envFilePath(args)
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load environment file %s: %w", path, err)
	}

	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// envFilePath finds the env file named by the -env-file argument or the
// ENV_FILE variable, falling back to the default.
func envFilePath(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if !strings.HasPrefix(args[i], "-") || name != "env-file" {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}

	if path := os.Getenv("ENV_FILE"); path != "" {
		return path, true
	}
	return defaultEnvFile, false
}
