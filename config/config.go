// Package config defines the structures to configure the estimators and the optimizer.
package config

import (
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/neldermead"
	"go.viam.com/multiview/ransac"
	"go.viam.com/multiview/transform"
)

// Config describes a two view estimation run.
type Config struct {
	Homography    transform.RansacParams             `json:"homography"`
	Fundamental   transform.RansacParams             `json:"fundamental"`
	Optimizer     OptimizerConfig                    `json:"optimizer"`
	Triangulation TriangulationConfig                `json:"triangulation"`
	Intrinsics    *transform.PinholeCameraIntrinsics `json:"intrinsics,omitempty"`
	Distortion    *DistortionConfig                  `json:"distortion,omitempty"`
	LogLevel      string                             `json:"log_level,omitempty"`
}

// OptimizerConfig configures the Nelder-Mead refinements.
type OptimizerConfig struct {
	Tolerance     float64 `json:"tolerance"`
	MaxIterations int     `json:"max_iterations"`
	Delta         float64 `json:"delta"`
	DeltaZero     float64 `json:"delta_zero"`
	Check         string  `json:"check"`
}

// TriangulationConfig configures the iterative triangulation.
type TriangulationConfig struct {
	MaxIterations int `json:"max_iterations"`
}

// DistortionConfig names a distortion model and its parameters.
type DistortionConfig struct {
	Type       transform.DistortionType `json:"type"`
	Parameters []float64                `json:"parameters"`
}

// Schema describes the config file format.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}

// CheckValid ensures all parts of the config are valid.
func (c *Config) CheckValid() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validateRansac("homography", c.Homography); err != nil {
		return err
	}
	if err := validateRansac("fundamental", c.Fundamental); err != nil {
		return err
	}
	if err := c.Optimizer.Validate("optimizer"); err != nil {
		return err
	}
	if err := c.Triangulation.Validate("triangulation"); err != nil {
		return err
	}
	if c.Intrinsics != nil {
		if err := c.Intrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError("intrinsics", err)
		}
	}
	if c.Distortion != nil {
		if err := c.Distortion.Validate("distortion"); err != nil {
			return err
		}
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError("log_level", err)
		}
	}
	return nil
}

// Level returns the configured log level. A debug flag given on the command line takes
// precedence over the file.
func (c *Config) Level(debugFlag bool) logging.Level {
	if debugFlag {
		return logging.DEBUG
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

func validateRansac(path string, p transform.RansacParams) error {
	if p.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative"))
	}
	if p.Threshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("threshold cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (oc *OptimizerConfig) Validate(path string) error {
	if oc.Tolerance < 0 {
		return utils.NewConfigValidationError(path, errors.New("tolerance cannot be negative"))
	}
	if oc.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative"))
	}
	if oc.Delta < 0 || oc.DeltaZero < 0 {
		return utils.NewConfigValidationError(path, errors.New("delta and delta_zero cannot be negative"))
	}
	if _, err := neldermead.TerminationCheckFromString(oc.Check); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Settings returns the optimizer settings. Validate must have succeeded.
func (oc *OptimizerConfig) Settings() neldermead.Settings[float64] {
	check, err := neldermead.TerminationCheckFromString(oc.Check)
	if err != nil {
		check = neldermead.DefaultCheck
	}
	return neldermead.Settings[float64]{
		Tolerance:     oc.Tolerance,
		MaxIterations: oc.MaxIterations,
		Delta:         oc.Delta,
		DeltaZero:     oc.DeltaZero,
		Check:         check,
	}
}

// Validate ensures all parts of the config are valid.
func (tc *TriangulationConfig) Validate(path string) error {
	if tc.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (dc *DistortionConfig) Validate(path string) error {
	if dc.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	d, err := dc.Distorter()
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if err := d.CheckValid(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Distorter builds the configured distortion model.
func (dc *DistortionConfig) Distorter() (transform.Distorter, error) {
	return transform.NewDistorter(dc.Type, dc.Parameters)
}

// WithDefaults returns a copy of the config with every unset value replaced by its default.
func (c Config) WithDefaults() Config {
	c.Homography = ransacDefaults(c.Homography, transform.DefaultHomographyThreshold)
	c.Fundamental = ransacDefaults(c.Fundamental, transform.DefaultFundamentalThreshold)

	defaults := neldermead.DefaultSettings[float64]()
	if c.Optimizer.Tolerance == 0 {
		c.Optimizer.Tolerance = defaults.Tolerance
	}
	if c.Optimizer.MaxIterations == 0 {
		c.Optimizer.MaxIterations = defaults.MaxIterations
	}
	if c.Optimizer.Delta == 0 {
		c.Optimizer.Delta = defaults.Delta
	}
	if c.Optimizer.DeltaZero == 0 {
		c.Optimizer.DeltaZero = defaults.DeltaZero
	}
	if c.Optimizer.Check == "" {
		c.Optimizer.Check = defaults.Check.String()
	}
	if c.Triangulation.MaxIterations == 0 {
		c.Triangulation.MaxIterations = transform.DefaultHartleySturmIterations
	}
	return c
}

func ransacDefaults(p transform.RansacParams, threshold float64) transform.RansacParams {
	if p.MaxIterations == 0 {
		p.MaxIterations = ransac.DefaultMaxIterations
	}
	if p.Threshold == 0 {
		p.Threshold = threshold
	}
	return p
}
