package stereo

import (
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/stereodepth/stereo/logging"
)

const depthHistogramBins = 20

// PlotObserver saves, for every triangulated pair, a histogram of the depths and a top down view
// of the points into a directory. Plotting failures are logged.
type PlotObserver struct {
	NoopObserver
	outputDir string
	logger    logging.Logger
}

// NewPlotObserver returns an observer writing its plots into outputDir, which must exist.
func NewPlotObserver(outputDir string, logger logging.Logger) *PlotObserver {
	if logger == nil {
		logger = logging.NewBlankLogger("plots")
	}
	return &PlotObserver{outputDir: outputDir, logger: logger}
}

// OnFundamental logs the epipolar residual of the pair.
func (po *PlotObserver) OnFundamental(pair *StereoPair) {
	po.logger.Debugw("fundamental matrix found",
		"pair", pairName(pair),
		"inliers", len(pair.Inliers),
		"max_epipolar_error", pair.MaxEpipolarError)
}

// OnTriangulated plots the points of the pair.
func (po *PlotObserver) OnTriangulated(pair *StereoPair, points []TriangulatedPoint) {
	if len(points) == 0 {
		return
	}
	if err := po.plotDepths(pair, points); err != nil {
		po.logger.Warnw("cannot plot depths", "pair", pairName(pair), "error", err)
	}
	if err := po.plotTopView(pair, points); err != nil {
		po.logger.Warnw("cannot plot points", "pair", pairName(pair), "error", err)
	}
}

// DepthPlotPath is the file holding the depth histogram of a pair.
func (po *PlotObserver) DepthPlotPath(pair *StereoPair) string {
	return filepath.Join(po.outputDir, pairName(pair)+"_depths.png")
}

// TopViewPlotPath is the file holding the top down view of a pair's points.
func (po *PlotObserver) TopViewPlotPath(pair *StereoPair) string {
	return filepath.Join(po.outputDir, pairName(pair)+"_top.png")
}

func (po *PlotObserver) plotDepths(pair *StereoPair, points []TriangulatedPoint) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - depth along camera A rays", pairName(pair))
	p.X.Label.Text = "Depth (baselines)"
	p.Y.Label.Text = "Points"

	hist, err := plotter.NewHist(plotter.Values(lo.Map(points, func(tp TriangulatedPoint, _ int) float64 {
		return tp.DepthA
	})), depthHistogramBins)
	if err != nil {
		return err
	}
	p.Add(hist)
	return p.Save(6*vg.Inch, 4*vg.Inch, po.DepthPlotPath(pair))
}

func (po *PlotObserver) plotTopView(pair *StereoPair, points []TriangulatedPoint) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - points seen from above", pairName(pair))
	p.X.Label.Text = "X (baselines)"
	p.Y.Label.Text = "Z (baselines)"

	xz := make(plotter.XYs, len(points))
	for i, tp := range points {
		xz[i] = plotter.XY{X: tp.Point.X, Y: tp.Point.Z}
	}
	scatter, err := plotter.NewScatter(xz)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter, plotter.NewGrid())
	return p.Save(6*vg.Inch, 6*vg.Inch, po.TopViewPlotPath(pair))
}

func pairName(pair *StereoPair) string {
	return pair.ImageA.Name + "_" + pair.ImageB.Name
}
