package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/multiview/neldermead"
	"go.viam.com/multiview/transform"
)

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader(strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader(strings.NewReader(`{"homography": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader(strings.NewReader(`{"unknown": {}}`))
	test.That(t, err, test.ShouldNotBeNil)

	conf, err := FromReader(strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, &Config{
		Homography:    transform.RansacParams{MaxIterations: 1000, Threshold: transform.DefaultHomographyThreshold},
		Fundamental:   transform.RansacParams{MaxIterations: 1000, Threshold: transform.DefaultFundamentalThreshold},
		Optimizer:     OptimizerConfig{Tolerance: 1e-8, MaxIterations: 1000, Delta: 0.05, DeltaZero: 0.00025, Check: "default"},
		Triangulation: TriangulationConfig{MaxIterations: 100},
	})

	_, err = FromReader(strings.NewReader(`{"optimizer": {"check": "median"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "optimizer")

	_, err = FromReader(strings.NewReader(`{"intrinsics": {"width_px": 640}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "intrinsics")

	_, err = FromReader(strings.NewReader(`{"distortion": {"parameters": [1, 2, 3]}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"type" is required`)

	conf, err = FromReader(strings.NewReader(`{
		"fundamental": {"threshold": 0.5, "seed": 9},
		"optimizer": {"check": "mean", "max_iterations": 50},
		"distortion": {"type": "division", "parameters": [320, 240, -1e-7]}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Fundamental, test.ShouldResemble, transform.RansacParams{MaxIterations: 1000, Threshold: 0.5, Seed: 9})
	settings := conf.Optimizer.Settings()
	test.That(t, settings.Check, test.ShouldEqual, neldermead.MeanCheck)
	test.That(t, settings.MaxIterations, test.ShouldEqual, 50)
	d, err := conf.Distortion.Distorter()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{320, 240, -1e-7})
}

func TestRead(t *testing.T) {
	t.Setenv("MULTIVIEW_TEST_SEED", "77")
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"homography": {"seed": ${MULTIVIEW_TEST_SEED}, "max_iterations": 200},
		"intrinsics": {"width_px": 640, "height_px": 480, "fx": 800, "fy": 780, "ppx": 320, "ppy": 240}
	}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Homography.Seed, test.ShouldEqual, uint64(77))
	test.That(t, conf.Homography.MaxIterations, test.ShouldEqual, 200)
	test.That(t, conf.Homography.Threshold, test.ShouldEqual, transform.DefaultHomographyThreshold)
	test.That(t, conf.Intrinsics.Fy, test.ShouldEqual, 780.0)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read config file")
}

func TestFromAttributes(t *testing.T) {
	conf, err := FromAttributes(map[string]interface{}{
		"homography":    map[string]interface{}{"threshold": "2.5", "seed": 3},
		"triangulation": map[string]interface{}{"max_iterations": 20.0},
		"intrinsics": map[string]interface{}{
			"width_px": 640, "height_px": 480, "fx": 800.0, "fy": 800.0, "ppx": 320.0, "ppy": 240.0,
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Homography, test.ShouldResemble, transform.RansacParams{MaxIterations: 1000, Threshold: 2.5, Seed: 3})
	test.That(t, conf.Triangulation.MaxIterations, test.ShouldEqual, 20)
	test.That(t, conf.Intrinsics.Width, test.ShouldEqual, 640)

	_, err = FromAttributes(map[string]interface{}{"homograpy": map[string]interface{}{}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "homograpy")

	_, err = FromAttributes(map[string]interface{}{"optimizer": map[string]interface{}{"tolerance": -1}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tolerance cannot be negative")
}

func TestReadSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	data := `{
		"viewer": {"theme": "dark"},
		"twoview": {
			"fundamental": {"threshold": 0.02, "seed": 5},
			"distortion": {"type": "division", "parameters": [320, 240, -2e-7]}
		}
	}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	conf, err := ReadSection(path, "twoview")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Fundamental, test.ShouldResemble, transform.RansacParams{MaxIterations: 1000, Threshold: 0.02, Seed: 5})
	test.That(t, conf.Distortion.Type, test.ShouldEqual, transform.DivisionDistortionType)
	test.That(t, conf.Optimizer.Check, test.ShouldEqual, "default")

	_, err = ReadSection(path, "viewer")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "theme")

	_, err = ReadSection(path, "missing")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `no "missing" object`)
}
