package stereo

import (
	"testing"

	"go.viam.com/test"
)

func TestSummarizeDepths(t *testing.T) {
	summary, err := SummarizeDepths([]float64{10, -1, 3, 2, 9, 4, 8, 5, 7, 6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Count, test.ShouldEqual, 10)
	test.That(t, summary.Negative, test.ShouldEqual, 1)
	test.That(t, summary.Min, test.ShouldEqual, -1)
	test.That(t, summary.Max, test.ShouldEqual, 10)
	test.That(t, summary.Mean, test.ShouldAlmostEqual, 5.3)
	test.That(t, summary.Median, test.ShouldAlmostEqual, 5.5)
	test.That(t, summary.P10, test.ShouldEqual, -1)
	test.That(t, summary.P90, test.ShouldEqual, 9)

	summary, err = SummarizeDepths([]float64{2, 1, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Median, test.ShouldEqual, 2)
	test.That(t, summary.P10, test.ShouldEqual, 1)
	test.That(t, summary.P90, test.ShouldEqual, 4)

	_, err = SummarizeDepths(nil)
	test.That(t, err, test.ShouldNotBeNil)
}
