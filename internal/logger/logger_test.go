package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithLevel(t *testing.T) {
	if got := NewWithLevel("debug").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := NewWithLevel(" WARN ").GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", got)
	}
	// Unknown levels fall back to info.
	if got := NewWithLevel("loud").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info fallback", got)
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	log.Info().Msg("import started")

	if !strings.Contains(buf.String(), "import started") {
		t.Errorf("output missing message: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("scoped")
	if !strings.Contains(buf.String(), "scoped") {
		t.Errorf("context logger not used: %s", buf.String())
	}

	// Without a logger in the context a usable default comes back.
	if FromContext(context.Background()).GetLevel() == zerolog.Disabled {
		t.Error("default logger should be enabled")
	}
}
