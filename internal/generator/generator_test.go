package generator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/verte-zerg/dt5202fix/internal/dump"
)

func TestWriteCleanDumpParses(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Frames = 50
	opts.Channels = 8
	truth, err := NewSeeded(1).Write(&buf, opts)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(truth.Broken)+len(truth.Abnormal)+len(truth.Jumps) != 0 {
		t.Fatalf("clean dump reported faults: %+v", truth)
	}
	res, err := dump.Parse(context.Background(), &buf, dump.Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !res.HeaderClosed || res.Table.Len() != 50 {
		t.Fatalf("expected 50 frames with closed header, got %d", res.Table.Len())
	}
	for i := 0; i < res.Table.Len(); i++ {
		f := res.Table.Frame(i)
		if !f.Intact || f.Channels != 8 || f.Abnormal != 0 {
			t.Fatalf("frame %d not clean: %+v", i, f)
		}
	}
	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestWriteInjectedFaultsMatchParser(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Frames = 200
	opts.Channels = 4
	opts.Faults = Faults{MissingField: 0.05, AbnormalChannel: 0.05, TrgIDJump: 0.01, Truncate: true}
	truth, err := NewSeeded(42).Write(&buf, opts)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := dump.Parse(context.Background(), strings.NewReader(buf.String()), dump.Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Table.Len() != opts.Frames {
		t.Fatalf("expected %d frames, got %d", opts.Frames, res.Table.Len())
	}

	var broken, abnormal []int
	for i := 0; i < res.Table.Len(); i++ {
		if !res.Table.Intact[i] {
			broken = append(broken, i)
		}
		if res.Table.AbnormalCounts[i] > 0 {
			abnormal = append(abnormal, i)
		}
	}
	if diff := cmp.Diff(truth.Broken, broken); diff != "" {
		t.Fatalf("broken frames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(truth.Abnormal, abnormal); diff != "" {
		t.Fatalf("abnormal frames mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRejectsNegativeSizes(t *testing.T) {
	if _, err := NewSeeded(1).Write(&bytes.Buffer{}, Options{Frames: -1}); err == nil {
		t.Fatalf("expected error")
	}
}
