package utils

import (
	"os"
	"strings"
	"testing"
)

// ClearTestEnvironment blanks every environment variable for the duration of
// the test, so config parsing starts from a clean slate regardless of the
// host shell.
func ClearTestEnvironment(t *testing.T) {
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		t.Setenv(key, "")
	}
}
