package store

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dt5202fix/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func sampleRun(id, input string, ended time.Time) model.RunSummary {
	return model.RunSummary{
		RunID:            id,
		StartedAt:        ended.Add(-2 * time.Second),
		EndedAt:          ended,
		InputPath:        input,
		OutputPath:       input + ".fixed",
		InputBytes:       4096,
		InputLines:       120,
		HeaderClosed:     true,
		Frames:           10,
		IntactFrames:     9,
		ValidFrames:      8,
		AbnormalFrames:   1,
		ChannelReadings:  640,
		TrgIDIQROutliers: 1,
		LinesWritten:     100,
		DurationMs:       2000,
	}
}

func TestInsertAndListRuns(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		input := "a.txt"
		if i == 1 {
			input = "b.txt"
		}
		require.NoError(t, st.InsertRun(ctx, sampleRun(id, input, base.Add(time.Duration(i)*time.Hour)), nil))
	}

	runs, err := st.ListRuns(ctx, model.HistoryConfig{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, ids[0], runs[0].RunID)
	require.True(t, runs[0].HeaderClosed)
	require.Equal(t, base, runs[0].EndedAt.UTC())
	require.Equal(t, 8, runs[0].ValidFrames)

	runs, err = st.ListRuns(ctx, model.HistoryConfig{Input: "a.txt", Last: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, ids[2], runs[0].RunID)

	since := base.Add(90 * time.Minute)
	runs, err = st.ListRuns(ctx, model.HistoryConfig{Since: &since})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRejectsRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	id := uuid.NewString()
	rejects := []model.RejectedFrame{
		{Frame: 7, Board: 1, TrgID: 90000000, Timestamp: 12.5, Channels: 64, Intact: true, Reasons: 20, Cause: 4},
		{Frame: 2, Board: 1, TrgID: 3, Channels: 10, Abnormal: 2, Intact: false, Reasons: 3},
	}
	require.NoError(t, st.InsertRun(ctx, sampleRun(id, "a.txt", time.Now()), rejects))

	got, err := st.ListRejects(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2, got[0].Frame)
	require.False(t, got[0].Intact)
	require.Equal(t, uint8(3), got[0].Reasons)
	require.Equal(t, int64(90000000), got[1].TrgID)
	require.Equal(t, uint8(20), got[1].Reasons)
	require.Equal(t, uint8(4), got[1].Cause)
	require.Equal(t, id, got[1].RunID)

	full, err := st.FindRun(ctx, id[:8])
	require.NoError(t, err)
	require.Equal(t, id, full)
	_, err = st.FindRun(ctx, "zzzz")
	require.Error(t, err)
}

func TestInsertRunRequiresID(t *testing.T) {
	st := openTemp(t)
	require.Error(t, st.InsertRun(context.Background(), model.RunSummary{}, nil))
}

func TestInsertRunDuplicateRollsBack(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, st.InsertRun(ctx, sampleRun(id, "a.txt", time.Now()), nil))
	require.Error(t, st.InsertRun(ctx, sampleRun(id, "a.txt", time.Now()), []model.RejectedFrame{{Frame: 1}}))

	rejects, err := st.ListRejects(ctx, id)
	require.NoError(t, err)
	require.Empty(t, rejects)
}

func TestRejectsKeepNaNTimestamp(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	id := uuid.NewString()
	rejects := []model.RejectedFrame{
		{Frame: 0, TrgID: 1, Timestamp: math.NaN(), Channels: 2, Intact: true, Reasons: 8},
		{Frame: 1, TrgID: 2, Timestamp: 4.25, Channels: 2, Intact: true, Reasons: 8},
	}
	require.NoError(t, st.InsertRun(ctx, sampleRun(id, "nan.txt", time.Now()), rejects))

	runs, err := st.ListRuns(ctx, model.HistoryConfig{Input: "nan.txt"})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got, err := st.ListRejects(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, math.IsNaN(got[0].Timestamp))
	require.Equal(t, 4.25, got[1].Timestamp)
}

func TestOpenRelaxesLegacyTimestampColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE rejected_frames (
		run_id TEXT NOT NULL,
		frame INTEGER NOT NULL,
		board INTEGER NOT NULL,
		trg_id INTEGER NOT NULL,
		ts REAL NOT NULL,
		channels INTEGER NOT NULL,
		abnormal INTEGER NOT NULL,
		intact INTEGER NOT NULL,
		reasons INTEGER NOT NULL,
		PRIMARY KEY (run_id, frame)
	);`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO rejected_frames VALUES ('old', 3, 0, 9, 1.5, 4, 0, 1, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	ctx := context.Background()

	old, err := st.ListRejects(ctx, "old")
	require.NoError(t, err)
	require.Len(t, old, 1)
	require.Equal(t, 1.5, old[0].Timestamp)
	require.Zero(t, old[0].Cause)

	id := uuid.NewString()
	require.NoError(t, st.InsertRun(ctx, sampleRun(id, "a.txt", time.Now()),
		[]model.RejectedFrame{{Frame: 0, Timestamp: math.NaN(), Reasons: 8}}))
}
