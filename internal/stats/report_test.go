package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/store"
)

func TestBuildHistoryReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	ids := []string{"run-a", "run-b", "run-c"}
	for i, id := range ids {
		start := time.Unix(0, 0).Add(time.Duration(i) * time.Minute)
		run := model.RunSummary{
			RunID:       id,
			StartedAt:   start,
			EndedAt:     start.Add(30 * time.Second),
			InputPath:   "run.txt",
			Frames:      10,
			ValidFrames: 9 - i,
		}
		rejects := []model.RejectedFrame{{Frame: i, Reasons: 1}}
		if err := st.InsertRun(ctx, run, rejects); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	report, err := BuildHistoryReport(ctx, st, model.HistoryConfig{Last: 2})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(report.Runs))
	}
	if report.Runs[0].RunID != ids[1] || report.Runs[1].RunID != ids[2] {
		t.Fatalf("unexpected run ids: %+v", report.Runs)
	}
	if report.Latest == nil || report.Latest.RunID != "run-c" {
		t.Fatalf("expected latest run-c, got %+v", report.Latest)
	}
	if len(report.Rejects) != 1 || report.Rejects[0].Frame != 2 {
		t.Fatalf("unexpected rejects: %+v", report.Rejects)
	}

	empty, err := BuildHistoryReport(ctx, st, model.HistoryConfig{Input: "other.txt"})
	if err != nil {
		t.Fatalf("build empty report: %v", err)
	}
	if empty.Latest != nil || len(empty.Runs) != 0 {
		t.Fatalf("expected empty report, got %+v", empty)
	}
}
