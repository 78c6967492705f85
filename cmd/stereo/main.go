// Package main runs the stereo pipeline over a scene file and writes one point cloud per image pair.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/logging"
	"github.com/stereodepth/stereo/pointcloud"
	"github.com/stereodepth/stereo/rimage/transform"
	"github.com/stereodepth/stereo/vision/stereo"
)

const (
	flagConfig     = "config"
	flagDebug      = "debug"
	flagScene      = "scene"
	flagOutput     = "output"
	flagFormat     = "format"
	flagProjection = "projection"
	flagPlots      = "plots"
	flagHistogram  = "histogram"
	flagWidth      = "width"
	flagHeight     = "height"
)

const (
	histogramBins  = 10
	histogramWidth = 40
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	var logger logging.Logger
	return &cli.App{
		Name:      "stereo",
		Usage:     "estimate two-view geometry and sparse depth",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("stereo")
			} else {
				logger = logging.NewLogger("stereo")
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "estimate every overlapping image pair of a scene and write its points",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagScene,
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "load images and matches from scene `FILE`",
					},
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:    flagOutput,
						Aliases: []string{"o"},
						Value:   ".",
						Usage:   "output `DIR` for the point clouds",
					},
					&cli.StringFlag{
						Name:  flagFormat,
						Value: "xyzn",
						Usage: "point cloud format: xyzn, pcd or las",
					},
					&cli.StringFlag{
						Name:  flagPlots,
						Usage: "save depth plots of every pair into `DIR`",
					},
					&cli.BoolFlag{
						Name:  flagHistogram,
						Usage: "print a depth histogram of every estimated pair",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "decompose",
				Usage: "split a 3x4 projection matrix into calibration, rotation and camera center",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{
						Name:     flagProjection,
						Aliases:  []string{"p"},
						Required: true,
						Usage:    "the 12 values of the projection matrix, row by row",
					},
					&cli.IntFlag{
						Name:  flagWidth,
						Usage: "image width in pixels; with --height, also print the pinhole intrinsics",
					},
					&cli.IntFlag{
						Name:  flagHeight,
						Usage: "image height in pixels",
					},
				},
				Action: decomposeAction,
			},
		},
	}
}

func runAction(c *cli.Context, logger logging.Logger) error {
	cfg := stereo.NewDefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = stereo.LoadConfig(path); err != nil {
			return err
		}
	}
	format := c.String(flagFormat)
	switch format {
	case "xyzn", "pcd", "las":
	default:
		return errors.Errorf("unknown point cloud format %q", format)
	}
	images, matcher, err := stereo.LoadScene(c.String(flagScene))
	if err != nil {
		return err
	}
	outDir := c.String(flagOutput)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}

	var observer stereo.Observer
	if plotDir := c.String(flagPlots); plotDir != "" {
		if err := os.MkdirAll(plotDir, 0o750); err != nil {
			return err
		}
		observer = stereo.NewPlotObserver(plotDir, logger.Sublogger("plots"))
	}

	res, err := stereo.Run(c.Context, images, matcher, cfg, observer, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res.String())
	for _, key := range res.Pairs.Keys() {
		cloud, err := res.PointCloud(key)
		if err != nil {
			return err
		}
		fn := filepath.Join(outDir, fmt.Sprintf("%s.%s", res.PairName(key), format))
		if err := pointcloud.WriteToFile(cloud, fn); err != nil {
			return errors.Wrapf(err, "cannot write points of pair %s", res.PairName(key))
		}
		fmt.Fprintf(c.App.Writer, "wrote %d points to %s\n", cloud.Size(), fn)
		if c.Bool(flagHistogram) && cloud.Size() > 0 {
			fmt.Fprintf(c.App.Writer, "%s depths:\n", res.PairName(key))
			if err := res.FprintDepthHistogram(c.App.Writer, key, histogramBins, histogramWidth); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(c.App.Writer, "%d pairs estimated, %d skipped\n", len(res.Pairs), len(res.Skipped))
	return nil
}

func decomposeAction(c *cli.Context) error {
	values := c.Float64Slice(flagProjection)
	if len(values) != 12 {
		return errors.Errorf("projection matrix needs 12 values, got %d", len(values))
	}
	dec, err := transform.DecomposeProjectionMatrix(mat.NewDense(3, 4, values))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "K =\n%v\n", mat.Formatted(dec.K, mat.Squeeze()))
	fmt.Fprintf(c.App.Writer, "R =\n%v\n", mat.Formatted(dec.Rotation, mat.Squeeze()))
	fmt.Fprintf(c.App.Writer, "C = (%f, %f, %f)\n", dec.Center.X, dec.Center.Y, dec.Center.Z)
	if !c.IsSet(flagWidth) && !c.IsSet(flagHeight) {
		return nil
	}
	intrinsics, err := transform.NewIntrinsicsFromCameraMatrix(dec.K, c.Int(flagWidth), c.Int(flagHeight))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "fx = %.3f, fy = %.3f, ppx = %.3f, ppy = %.3f\n",
		intrinsics.Fx, intrinsics.Fy, intrinsics.Ppx, intrinsics.Ppy)
	return nil
}
