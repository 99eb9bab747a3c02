package rewrite

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/dt5202fix/internal/dump"
)

const (
	meta   = "// File_Format_Version 3.3\n"
	frame0 = "Board 1\nTrgID=100\nTS=5000.0 us\nCH\nch0 50\n" + dump.FrameDivider + "\n"
	frame1 = "Board 1\nTrgID=101\nCH\nch0 60\n" + dump.FrameDivider + "\n"
)

func header() string {
	return dump.HeaderDelimiter + "\n" + meta + dump.HeaderDelimiter + "\n"
}

func fixedHeader() string {
	return dump.HeaderDelimiter + "\n" + dump.ProvenanceLine + "\n" + meta + dump.HeaderDelimiter + "\n"
}

func run(t *testing.T, input string, valid []bool) (string, Stats) {
	t.Helper()
	var out strings.Builder
	st, err := Rewrite(context.Background(), strings.NewReader(input), &out, valid, Options{})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	return out.String(), st
}

func TestRewriteDropsInvalidFrame(t *testing.T) {
	got, st := run(t, header()+frame0+frame1, []bool{true, false})
	want := fixedHeader() + frame0
	if got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
	if st.FramesKept != 1 || st.FramesDropped != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.LinesWritten != strings.Count(want, "\n") {
		t.Fatalf("lines written %d, want %d", st.LinesWritten, strings.Count(want, "\n"))
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	first, _ := run(t, header()+frame0+frame0, []bool{true, true})
	second, _ := run(t, first, []bool{true, true})
	if first != second {
		t.Fatalf("second pass changed output:\n%s\nvs\n%s", first, second)
	}
	if n := strings.Count(second, dump.ProvenanceLine); n != 1 {
		t.Fatalf("provenance comment repeated %d times", n)
	}
}

func TestRewriteDropsOrphanLines(t *testing.T) {
	got, st := run(t, header()+frame0+"\n\n", []bool{true})
	if got != fixedHeader()+frame0 {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if st.Orphans != 2 {
		t.Fatalf("expected 2 orphan lines, got %d", st.Orphans)
	}
}

func TestRewriteTruncatedTail(t *testing.T) {
	got, st := run(t, header()+frame0+"Board 1\nTrgID=102\n", []bool{true, false})
	if got != fixedHeader()+frame0 {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if st.FramesDropped != 1 {
		t.Fatalf("truncated frame should count as dropped: %+v", st)
	}
}

func TestRewriteKeepsCRLF(t *testing.T) {
	input := strings.ReplaceAll(header()+frame0, "\n", "\r\n")
	got, _ := run(t, input, []bool{true})
	want := strings.ReplaceAll(fixedHeader()+frame0, "\n", "\r\n")
	if got != want {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRewriteOpenHeaderEchoesEverything(t *testing.T) {
	input := dump.HeaderDelimiter + "\n" + meta + frame0
	got, _ := run(t, input, nil)
	want := dump.HeaderDelimiter + "\n" + dump.ProvenanceLine + "\n" + meta + frame0
	if got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestWriteFileLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "fixed.txt")
	boom := errors.New("boom")
	err := WriteFile(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("output should not exist, stat err=%v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp file left behind: %v", entries)
	}

	if err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "done\n")
		return err
	}); err != nil {
		t.Fatalf("write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "done\n" {
		t.Fatalf("unexpected content %q, %v", data, err)
	}
}
