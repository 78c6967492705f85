package stereo

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// PairName names a pair after its two images, falling back to their indices.
func (r *Result) PairName(key PairKey) string {
	if key.I < len(r.ImageNames) && key.J < len(r.ImageNames) {
		return r.ImageNames[key.I] + "_" + r.ImageNames[key.J]
	}
	return fmt.Sprintf("%d_%d", key.I, key.J)
}

// String prints out a table with one row per image pair, estimated or skipped.
func (r *Result) String() string {
	keys := append(r.Pairs.Keys(), lo.Keys(r.Skipped)...)
	slices.SortFunc(keys, func(a, b PairKey) int {
		return cmp.Or(cmp.Compare(a.I, b.I), cmp.Compare(a.J, b.J))
	})

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Pair", "Matches", "Inliers", "Points", "Median depth", "Max epipolar error", "Status"})
	for _, key := range keys {
		sp, ok := r.Pairs[key]
		if !ok {
			t.AppendRow(table.Row{r.PairName(key), "", "", "", "", "", "skipped: " + r.Skipped[key].Error()})
			continue
		}
		median := ""
		if summary, ok := r.Depths[key]; ok {
			median = fmt.Sprintf("%.3f", summary.Median)
		}
		t.AppendRow(table.Row{
			r.PairName(key),
			len(sp.Matches),
			len(sp.Inliers),
			len(r.Points[key]),
			median,
			fmt.Sprintf("%.3g", sp.MaxEpipolarError),
			"estimated",
		})
	}
	return t.Render()
}

// FprintDepthHistogram draws the depth distribution of a pair's points as text, one bar per bin.
func (r *Result) FprintDepthHistogram(w io.Writer, key PairKey, bins, width int) error {
	points, ok := r.Points[key]
	if !ok || len(points) == 0 {
		return errors.Errorf("no points for pair %s", r.PairName(key))
	}
	if bins < 1 {
		return errors.Errorf("need at least one bin, got %d", bins)
	}
	hist := histogram.Hist(bins, lo.Map(points, func(p TriangulatedPoint, _ int) float64 {
		return p.DepthA
	}))
	return histogram.Fprint(w, hist, histogram.Linear(width))
}
