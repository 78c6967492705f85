package stereo

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// DepthSummary describes the distribution of triangulated depths.
type DepthSummary struct {
	Count    int
	Negative int
	Min      float64
	Max      float64
	Mean     float64
	Median   float64
	P10      float64
	P90      float64
}

// SummarizeDepths computes the summary statistics of a set of depths.
func SummarizeDepths(depths []float64) (DepthSummary, error) {
	if len(depths) == 0 {
		return DepthSummary{}, errors.New("no depths to summarize")
	}
	data := stats.Float64Data(depths)
	summary := DepthSummary{
		Count: len(depths),
		Negative: lo.CountBy(depths, func(d float64) bool {
			return d < 0
		}),
	}
	var err error
	if summary.Min, err = stats.Min(data); err != nil {
		return DepthSummary{}, err
	}
	if summary.Max, err = stats.Max(data); err != nil {
		return DepthSummary{}, err
	}
	if summary.Mean, err = stats.Mean(data); err != nil {
		return DepthSummary{}, err
	}
	if summary.Median, err = stats.Median(data); err != nil {
		return DepthSummary{}, err
	}
	if len(depths) < 10 {
		summary.P10, summary.P90 = summary.Min, summary.Max
		return summary, nil
	}
	if summary.P10, err = stats.Percentile(data, 10); err != nil {
		return DepthSummary{}, err
	}
	if summary.P90, err = stats.Percentile(data, 90); err != nil {
		return DepthSummary{}, err
	}
	return summary, nil
}
