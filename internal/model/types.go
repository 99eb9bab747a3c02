// Package model defines shared data structures.
package model

import "time"

// Config defines settings for a fix run.
type Config struct {
	InputPath  string
	OutputPath string

	// ExcludeIQR and ExcludeDiff select which outlier methods reject frames.
	ExcludeIQR  bool
	ExcludeDiff bool

	IQRMultiplier      float64
	TrgIDDiffThreshold float64
	TSDiffThreshold    float64
	ChannelMax         int
	RecordHistory      bool
	PlotDir            string
}

// WriteEnabled reports whether the run rewrites the input.
func (c Config) WriteEnabled() bool {
	return c.OutputPath != ""
}

// ChannelReading is one channel value tagged with its owning frame.
type ChannelReading struct {
	Frame int
	Value int
}

// FrameTable holds per-frame data in parallel slices indexed by frame.
type FrameTable struct {
	Boards         []int
	TrgIDs         []int64
	Timestamps     []float64
	ChannelCounts  []int
	AbnormalCounts []int
	Intact         []bool

	HasBoard     []bool
	HasTrgID     []bool
	HasTimestamp []bool
	HasChannels  []bool

	Readings []ChannelReading
}

// Len returns the number of closed frames.
func (t *FrameTable) Len() int {
	return len(t.Intact)
}

// Frame is a read-only view of one row of a FrameTable.
type Frame struct {
	Index        int
	Board        int
	TrgID        int64
	Timestamp    float64
	Channels     int
	Abnormal     int
	Intact       bool
	HasBoard     bool
	HasTrgID     bool
	HasTimestamp bool
	HasChannels  bool
}

// Frame returns the row at index i.
func (t *FrameTable) Frame(i int) Frame {
	return Frame{
		Index:        i,
		Board:        t.Boards[i],
		TrgID:        t.TrgIDs[i],
		Timestamp:    t.Timestamps[i],
		Channels:     t.ChannelCounts[i],
		Abnormal:     t.AbnormalCounts[i],
		Intact:       t.Intact[i],
		HasBoard:     t.HasBoard[i],
		HasTrgID:     t.HasTrgID[i],
		HasTimestamp: t.HasTimestamp[i],
		HasChannels:  t.HasChannels[i],
	}
}

// RunSummary captures a completed fix run.
type RunSummary struct {
	RunID        string
	StartedAt    time.Time
	EndedAt      time.Time
	InputPath    string
	OutputPath   string
	InputBytes   int64
	InputLines   int
	HeaderFound  bool
	HeaderClosed bool

	Frames            int
	IntactFrames      int
	ValidFrames       int
	ZeroChannelFrames int
	AbnormalFrames    int
	ChannelReadings   int

	TrgIDDiffOutliers int
	TrgIDIQROutliers  int
	TSDiffOutliers    int
	TSIQROutliers     int

	LinesWritten int
	DurationMs   int64
}

// RejectedFrame records why a frame was left out of the output.
type RejectedFrame struct {
	RunID     string
	Frame     int
	Board     int
	TrgID     int64
	Timestamp float64
	Channels  int
	Abnormal  int
	Intact    bool
	// Reasons holds every flag raised for the frame, Cause only those the run's policy
	// excluded it on.
	Reasons   uint8
	Cause     uint8
}

// HistoryConfig defines filters for listing past runs.
type HistoryConfig struct {
	Input string
	Since *time.Time
	Last  int
}
