// Package envconfig reads the environment variables recognized by the
// onnxbackend command.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/onnxbackend/internal/logutil"
)

// Var returns an environment variable with surrounding quotes and spaces
// removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel returns the log level from ONNXBACKEND_DEBUG. A true boolean
// selects debug; an integer n selects slog.Level(-4n), so 2 enables trace.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ONNXBACKEND_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				level = slog.LevelDebug
			}
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return max(level, logutil.LevelTrace)
}

// TestData returns ONNXBACKEND_TESTDATA, the default directory searched by
// the conformance runner.
func TestData() string {
	return Var("ONNXBACKEND_TESTDATA")
}
