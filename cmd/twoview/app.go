package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/config"
	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/transform"
)

const (
	// Flags.
	flagConfig    = "config"
	flagSection   = "config-section"
	flagSeed      = "seed"
	flagDebug     = "debug"
	flagHistogram = "histogram"
)

// correspondences is the input file layout.
type correspondences struct {
	Points0 [][2]float64 `json:"points0"`
	Points1 [][2]float64 `json:"points1"`
}

// runner carries the state shared by the subcommands. pts0 and pts1 are undistorted when the
// config names a distortion model; raw0 and raw1 keep the observed pixels.
type runner struct {
	out        io.Writer
	cfg        *config.Config
	logger     logging.Logger
	distortion transform.Distorter
	raw0, raw1 []r2.Point
	pts0, pts1 []r2.Point
	histogram  string
}

// poseResult is the outcome of the pose command.
type poseResult struct {
	pose      *transform.CamPose
	inliers   []int
	points    []r3.Vector
	residuals []float64
}

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "twoview",
		Usage:     "estimate homographies, fundamental matrices and relative poses from point matches",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagSection,
				Usage: "read the config from the `KEY` object of a larger JSON document",
			},
			&cli.Uint64Flag{
				Name:  flagSeed,
				Usage: "seed of the RANSAC sampler, overrides the config",
			},
			&cli.StringFlag{
				Name:  flagHistogram,
				Usage: "write a histogram of the inlier residuals to `FILE` (png, svg or pdf)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Action: func(c *cli.Context) error {
					out, err := json.MarshalIndent(config.Schema(), "", "  ")
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, string(out))
					return err
				},
			},
			{
				Name:      "homography",
				Usage:     "fit a homography with RANSAC and refine it",
				ArgsUsage: "<points.json>",
				Action:    withRunner(runHomography),
			},
			{
				Name:      "fundamental",
				Usage:     "fit a fundamental matrix with RANSAC and refine it",
				ArgsUsage: "<points.json>",
				Action:    withRunner(runFundamental),
			},
			{
				Name:      "pose",
				Usage:     "recover the relative pose of a calibrated pair and triangulate the inliers",
				ArgsUsage: "<points.json>",
				Action:    withRunner(runPose),
			},
		},
	}
}

func withRunner(action func(c *cli.Context, r *runner) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := newRunner(c)
		if err != nil {
			return err
		}
		defer utils.UncheckedErrorFunc(r.logger.Sync)
		logging.ReplaceGlobal(r.logger)
		r.logger = r.logger.Sublogger(c.Command.Name)
		return action(c, r)
	}
}

func newRunner(c *cli.Context) (*runner, error) {
	cfg := &config.Config{}
	if path := c.String(flagConfig); path != "" {
		var err error
		if key := c.String(flagSection); key != "" {
			cfg, err = config.ReadSection(path, key)
		} else {
			cfg, err = config.Read(path)
		}
		if err != nil {
			return nil, err
		}
	} else {
		defaults := cfg.WithDefaults()
		cfg = &defaults
	}
	logger := logging.NewBlankLogger("twoview")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(cfg.Level(c.Bool(flagDebug)))

	if c.IsSet(flagSeed) {
		cfg.Homography.Seed = c.Uint64(flagSeed)
		cfg.Fundamental.Seed = c.Uint64(flagSeed)
	}

	if c.NArg() != 1 {
		return nil, errors.New("expected exactly one correspondence file")
	}
	r := &runner{
		out:       c.App.Writer,
		cfg:       cfg,
		logger:    logger,
		histogram: c.String(flagHistogram),
	}
	if err := r.loadCorrespondences(c.Args().First()); err != nil {
		return nil, err
	}
	return r, nil
}

// loadCorrespondences reads the matches and undistorts them with the configured model.
func (r *runner) loadCorrespondences(path string) error {
	var err error
	if r.raw0, r.raw1, err = readCorrespondences(path); err != nil {
		return err
	}
	if r.cfg.Distortion != nil {
		if r.distortion, err = r.cfg.Distortion.Distorter(); err != nil {
			return err
		}
		r.logger.Debugw("undistorting correspondences",
			"model", r.distortion.ModelType(), "parameters", r.distortion.Parameters())
	}
	r.pts0 = transform.UndistortPoints(r.distortion, r.raw0)
	r.pts1 = transform.UndistortPoints(r.distortion, r.raw1)
	return nil
}

func readCorrespondences(path string) ([]r2.Point, []r2.Point, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error reading correspondences")
	}
	var in correspondences
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, nil, errors.Wrap(err, "error parsing correspondences")
	}
	if len(in.Points0) != len(in.Points1) {
		return nil, nil, errors.Errorf("points0 has %d entries but points1 has %d", len(in.Points0), len(in.Points1))
	}
	toPoint := func(p [2]float64, _ int) r2.Point { return r2.Point{X: p[0], Y: p[1]} }
	return lo.Map(in.Points0, toPoint), lo.Map(in.Points1, toPoint), nil
}

func runHomography(_ *cli.Context, r *runner) error {
	h, inliers := transform.EstimateHomographyWithNonLinearRefinement(
		r.pts0, r.pts1, r.cfg.Homography, r.cfg.Optimizer.Settings(), r.logger)
	if linalg.IsZero(h) {
		return errors.New("homography estimation failed")
	}
	r.logger.Infow("homography estimated", "inliers", len(inliers), "correspondences", len(r.pts0))
	errs := lo.Map(inliers, func(i, _ int) float64 {
		return r.pts1[i].Sub(linalg.Transfer(h, r.pts0[i])).Norm()
	})
	return r.print("H", h, len(inliers), errs)
}

func runFundamental(_ *cli.Context, r *runner) error {
	f, inliers := transform.EstimateFundamentalWithNonLinearRefinement(
		r.pts0, r.pts1, r.cfg.Fundamental, r.cfg.Optimizer.Settings(), r.logger)
	if linalg.IsZero(f) {
		return errors.New("fundamental matrix estimation failed")
	}
	r.logger.Infow("fundamental matrix estimated", "inliers", len(inliers), "correspondences", len(r.pts0))
	errs := lo.Map(inliers, func(i, _ int) float64 {
		return transform.SymmetricEpipolarDistance(f, r.pts0[i], r.pts1[i])
	})
	return r.print("F", f, len(inliers), errs)
}

func runPose(c *cli.Context, r *runner) error {
	res, err := r.estimatePose(c.Context)
	if err != nil {
		return err
	}
	pose, inliers := res.pose, res.inliers

	rv := pose.RotationVector()
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"Quantity", "Value"})
	t.AppendRow(table.Row{"Rotation vector", fmt.Sprintf("X:%.6f, Y:%.6f, Z:%.6f", rv.X, rv.Y, rv.Z)})
	t.AppendRow(table.Row{"Translation", fmt.Sprintf("X:%.6f, Y:%.6f, Z:%.6f", pose.Translation.X, pose.Translation.Y, pose.Translation.Z)})
	t.AppendRow(table.Row{"Inliers", fmt.Sprintf("%d / %d", len(inliers), len(r.pts0))})
	t.AppendRow(table.Row{"In front", pose.InFront})
	t.Render()
	return r.printStats(res.residuals)
}

// estimatePose recovers the relative pose from the undistorted matches, triangulates the inliers
// and scores them against the observed pixels of the second view through the distortion model.
func (r *runner) estimatePose(ctx context.Context) (*poseResult, error) {
	if r.cfg.Intrinsics == nil {
		return nil, transform.NewNoIntrinsicsError("the pose command needs intrinsics in the config")
	}
	k := r.cfg.Intrinsics.GetCameraMatrix()
	pose, inliers, err := transform.EstimateNewPose(r.pts0, r.pts1, k, r.cfg.Fundamental, r.logger)
	if err != nil {
		return nil, err
	}

	p0 := transform.NewCameraMatrix(k, linalg.Eye(3), r3.Vector{})
	p1 := transform.NewCameraMatrix(k, pose.Rotation, pose.Translation)
	pick := func(pts []r2.Point) []r2.Point {
		return lo.Map(inliers, func(i, _ int) r2.Point { return pts[i] })
	}
	points, err := transform.TriangulatePoints(ctx, p0, p1, pick(r.pts0), pick(r.pts1), r.cfg.Triangulation.MaxIterations)
	if err != nil {
		return nil, err
	}
	residuals, err := transform.ReprojectionResiduals(p1, points, pick(r.raw1), r.distortion)
	if err != nil {
		return nil, err
	}
	return &poseResult{pose: pose, inliers: inliers, points: points, residuals: residuals}, nil
}

// print renders a 3x3 matrix, the inlier count and the residual statistics.
func (r *runner) print(name string, m mat.Matrix, inliers int, residuals []float64) error {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(name)
	for i := 0; i < 3; i++ {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.9g", m.At(i, 0)),
			fmt.Sprintf("%.9g", m.At(i, 1)),
			fmt.Sprintf("%.9g", m.At(i, 2)),
		})
	}
	t.AppendFooter(table.Row{"inliers", fmt.Sprintf("%d / %d", inliers, len(r.pts0)), ""})
	t.Render()
	return r.printStats(residuals)
}

func (r *runner) printStats(residuals []float64) error {
	summary, err := transform.ReprojectionStats(residuals)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"Residuals", "Mean", "Median", "Max", "RMS", "StdDev"})
	t.AppendRow(table.Row{
		summary.Count,
		fmt.Sprintf("%.4g", summary.Mean),
		fmt.Sprintf("%.4g", summary.Median),
		fmt.Sprintf("%.4g", summary.Max),
		fmt.Sprintf("%.4g", summary.RMS),
		fmt.Sprintf("%.4g", summary.StdDev),
	})
	t.Render()
	if r.histogram == "" {
		return nil
	}
	if err := writeHistogram(r.histogram, "inlier residuals", residuals); err != nil {
		return err
	}
	r.logger.Infow("residual histogram written", "path", r.histogram)
	return nil
}
