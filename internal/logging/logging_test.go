package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DT5202FIX_LOG_LEVEL", "error")
	t.Setenv("DT5202FIX_LOG_NOCOLOR", "true")
	opts, err := FromEnv(DefaultOptions(ProfileRuntime))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if opts.Level != zerolog.ErrorLevel {
		t.Fatalf("expected error level, got %v", opts.Level)
	}
	if !opts.NoColor {
		t.Fatalf("expected NoColor override")
	}
}

func TestNewWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, DefaultOptions(ProfileTest))
	log.Warn().Int("line", 12).Msg("data frame incomplete")
	out := buf.String()
	if !strings.Contains(out, "data frame incomplete") || !strings.Contains(out, "line=12") {
		t.Fatalf("unexpected log output: %q", out)
	}
}
