package config

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"

	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/transform"
)

func TestCheckValid(t *testing.T) {
	var nilConf *Config
	test.That(t, nilConf.CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&Config{}).CheckValid(), test.ShouldBeNil)

	for name, conf := range map[string]Config{
		"homography":    {Homography: transform.RansacParams{MaxIterations: -1}},
		"fundamental":   {Fundamental: transform.RansacParams{Threshold: -0.1}},
		"optimizer":     {Optimizer: OptimizerConfig{Delta: -1}},
		"triangulation": {Triangulation: TriangulationConfig{MaxIterations: -5}},
		"distortion":    {Distortion: &DistortionConfig{Type: "fisheye"}},
	} {
		t.Run(name, func(t *testing.T) {
			err := conf.CheckValid()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, name)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	conf := Config{
		Homography: transform.RansacParams{Threshold: 1},
		Optimizer:  OptimizerConfig{MaxIterations: 10, Check: "mean"},
	}
	filled := conf.WithDefaults()
	test.That(t, filled.Homography.Threshold, test.ShouldEqual, 1.0)
	test.That(t, filled.Homography.MaxIterations, test.ShouldEqual, 1000)
	test.That(t, filled.Fundamental.Threshold, test.ShouldEqual, transform.DefaultFundamentalThreshold)
	test.That(t, filled.Optimizer.MaxIterations, test.ShouldEqual, 10)
	test.That(t, filled.Optimizer.Check, test.ShouldEqual, "mean")
	test.That(t, filled.Optimizer.DeltaZero, test.ShouldEqual, 0.00025)
	test.That(t, filled.Triangulation.MaxIterations, test.ShouldEqual, transform.DefaultHartleySturmIterations)
	// the receiver is untouched
	test.That(t, conf.Homography.MaxIterations, test.ShouldEqual, 0)
}

func TestLevel(t *testing.T) {
	conf := Config{}
	test.That(t, conf.Level(false), test.ShouldEqual, logging.INFO)
	test.That(t, conf.Level(true), test.ShouldEqual, logging.DEBUG)
	conf.LogLevel = "warn"
	test.That(t, conf.CheckValid(), test.ShouldBeNil)
	test.That(t, conf.Level(false), test.ShouldEqual, logging.WARN)
	test.That(t, conf.Level(true), test.ShouldEqual, logging.DEBUG)
	conf.LogLevel = "loud"
	test.That(t, conf.CheckValid().Error(), test.ShouldContainSubstring, "log_level")
}

func TestSchema(t *testing.T) {
	schema := Schema()
	test.That(t, schema, test.ShouldNotBeNil)
	out, err := json.Marshal(schema)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldContainSubstring, "log_level")
}
