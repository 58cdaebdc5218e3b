package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/onnxbackend/internal/logutil"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     logutil.LevelTrace,
		"9":     logutil.LevelTrace,
		"'1'":   slog.LevelDebug,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("ONNXBACKEND_DEBUG", value)
			assert.Equal(t, want, LogLevel())
		})
	}
}

func TestVarTrims(t *testing.T) {
	t.Setenv("ONNXBACKEND_TESTDATA", `  "/data/onnx"  `)
	assert.Equal(t, "/data/onnx", TestData())
}
