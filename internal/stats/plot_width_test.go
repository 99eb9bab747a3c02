package stats

import "testing"

func TestPlotWidthFor(t *testing.T) {
	axis := displayWidth(axisLabelTop) + displayWidth(axisSeparator)
	cases := []struct{ total, want int }{
		{80, 80 - axis},
		{16, minPlotWidth},
		{0, minPlotWidth},
		{-5, minPlotWidth},
	}
	for _, tc := range cases {
		if got := PlotWidthFor(tc.total); got != tc.want {
			t.Fatalf("PlotWidthFor(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}
