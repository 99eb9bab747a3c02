package stats

import (
	"context"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/store"
)

// HistoryReport contains precomputed data for history rendering.
type HistoryReport struct {
	Runs    []model.RunSummary
	Latest  *model.RunSummary
	Rejects []model.RejectedFrame
}

// BuildHistoryReport loads runs and the rejects of the most recent one.
func BuildHistoryReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (HistoryReport, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return HistoryReport{}, err
	}
	if len(runs) == 0 {
		return HistoryReport{}, nil
	}
	latest := runs[len(runs)-1]
	rejects, err := st.ListRejects(ctx, latest.RunID)
	if err != nil {
		return HistoryReport{}, err
	}
	return HistoryReport{
		Runs:    runs,
		Latest:  &latest,
		Rejects: rejects,
	}, nil
}
