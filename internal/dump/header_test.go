package dump

import (
	"strings"
	"testing"
)

func TestHeaderSkipperEvents(t *testing.T) {
	lines := []string{"preamble\n", HeaderDelimiter + "\n", "// meta\n", HeaderDelimiter + "\r\n", "Board 1\n"}
	want := []HeaderEvent{HeaderPreamble, HeaderOpen, HeaderMeta, HeaderClose, HeaderBody}
	var h HeaderSkipper
	for i, line := range lines {
		if got := h.Observe(line); got != want[i] {
			t.Fatalf("line %d: expected event %d, got %d", i, want[i], got)
		}
	}
	if !h.Found() || !h.Closed() {
		t.Fatalf("expected closed header")
	}
}

func TestCountLines(t *testing.T) {
	lines, size, err := CountLines(strings.NewReader("a\nbb\nccc"))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if lines != 3 || size != 8 {
		t.Fatalf("expected 3 lines / 8 bytes, got %d / %d", lines, size)
	}
}
