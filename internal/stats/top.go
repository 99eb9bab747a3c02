package stats

import (
	"sort"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

// ReasonCount is how many rejected frames carry a reason.
type ReasonCount struct {
	Reason validity.Reason
	Count  int
}

var singleReasons = []validity.Reason{
	validity.ReasonIncomplete,
	validity.ReasonAbnormalChannel,
	validity.ReasonTrgIDIQR,
	validity.ReasonTSIQR,
	validity.ReasonTrgIDDiff,
	validity.ReasonTSDiff,
}

// TopReasons returns the n most frequent reasons that rejects were excluded on. Frames
// stored without a cause fall back to all of their reasons.
func TopReasons(rejects []model.RejectedFrame, n int) []ReasonCount {
	if n <= 0 || len(rejects) == 0 {
		return nil
	}
	items := make([]ReasonCount, 0, len(singleReasons))
	for _, r := range singleReasons {
		count := 0
		for _, rf := range rejects {
			if excludedOn(rf)&r != 0 {
				count++
			}
		}
		if count > 0 {
			items = append(items, ReasonCount{Reason: r, Count: count})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}

func excludedOn(rf model.RejectedFrame) validity.Reason {
	if rf.Cause != 0 {
		return validity.Reason(rf.Cause)
	}
	return validity.Reason(rf.Reasons)
}
