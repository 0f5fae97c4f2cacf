package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Read reads a config from the given file, expanding ${VAR} references from the environment.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	return FromReader(bytes.NewReader(buf))
}

// ReadSection reads the config stored as the key object of a larger JSON document, for instance a
// project file that also carries settings for other tools.
func ReadSection(filePath, key string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	section, ok := doc[key].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("config file %q has no %q object", filePath, key)
	}
	return FromAttributes(section)
}

// FromReader decodes a JSON config, validates it and fills in the defaults.
func FromReader(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	return finish(cfg)
}

// FromAttributes decodes a loosely typed attribute map, for instance one taken from a larger
// JSON document, into a config.
func FromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode attributes")
	}
	if len(md.Unused) != 0 {
		return nil, errors.Errorf("unknown config attributes %v", md.Unused)
	}
	return finish(cfg)
}

func finish(cfg Config) (*Config, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	withDefaults := cfg.WithDefaults()
	return &withDefaults, nil
}
