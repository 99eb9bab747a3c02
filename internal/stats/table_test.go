package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Quantity", "Method", "Outliers"}
	rows := [][]string{
		{"TrgID", "diff", "12"},
		{"TS", "iqr", "3"},
	}
	want := []string{
		"Quantity Method Outliers",
		"TrgID    diff         12",
		"TS       iqr           3",
	}
	if diff := cmp.Diff(want, formatTable(headers, rows, 2)); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatTableRaggedRows(t *testing.T) {
	got := formatTable(nil, [][]string{{"a"}, {"bb", "c"}}, 7)
	want := []string{"a   ", "bb c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if formatTable(nil, nil) != nil {
		t.Fatalf("empty table should render nothing")
	}
}

func TestDisplayWidthCountsWideRunes(t *testing.T) {
	if got := displayWidth("TS"); got != 2 {
		t.Fatalf("expected width 2, got %d", got)
	}
	if got := displayWidth("検出"); got != 4 {
		t.Fatalf("expected width 4 for wide runes, got %d", got)
	}
}
