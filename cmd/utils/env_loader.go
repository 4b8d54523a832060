package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envFileFlag   = "--env-file"
	envFileEnvVar = "ENV_FILE"
)

// LoadEnvFile seeds the process environment before cobra and viper parse
// anything. An explicitly named file (--env-file flag, then the ENV_FILE
// variable) must exist; the fallback .env in the working directory is
// optional.
func LoadEnvFile() error {
	if path := explicitEnvFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env file: %w", err)
	}
	return nil
}

// explicitEnvFilePath resolves the explicitly requested env file, if any. The
// --env-file flag wins over the ENV_FILE variable, and relative paths are
// anchored to the working directory.
func explicitEnvFilePath() string {
	path := envFileFromArgs(os.Args)
	if path == "" {
		path = os.Getenv(envFileEnvVar)
	}

	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// envFileFromArgs scans the raw argument list by hand because the env file
// must be loaded before flag parsing starts.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, envFileFlag+"="):
			return strings.TrimPrefix(arg, envFileFlag+"=")
		case arg == envFileFlag && i+1 < len(args):
			return args[i+1]
		}
	}
	return ""
}
