package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/envelope"
	"github.com/mastercactapus/zprobe/probe"
)

// Config is the config file layout.
type Config struct {
	Probe probe.Config `yaml:"probe"`
	Bed   BedConfig    `yaml:"bed"`

	// ServoScale converts servo degrees to spindle S values on Grbl.
	ServoScale float64 `yaml:"servo_scale"`
}

// BedConfig describes where the nozzle can go. Outline takes precedence
// over Radius, with neither set any finite position is allowed.
type BedConfig struct {
	Outline []coord.Point `yaml:"outline"`

	Center coord.Point `yaml:"center"`
	Radius float64     `yaml:"radius"`
}

func defaultConfig() *Config {
	return &Config{
		Probe:      probe.DefaultConfig(),
		ServoScale: 1,
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config '%s' not found, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err = dec.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse '%s': %w", path, err)
	}

	err = cfg.Probe.Validate()
	if err != nil {
		return nil, fmt.Errorf("probe config: %w", err)
	}
	if cfg.ServoScale <= 0 {
		return nil, errors.New("servo_scale must be positive")
	}
	return cfg, nil
}

// Reach returns the nozzle envelope.
func (b BedConfig) Reach() (probe.Reacher, error) {
	switch {
	case len(b.Outline) > 0:
		o, err := envelope.NewOutline(b.Outline)
		if err != nil {
			return nil, fmt.Errorf("bed outline: %w", err)
		}
		return o, nil
	case b.Radius > 0:
		return envelope.Round{Center: b.Center, Radius: b.Radius}, nil
	}
	return envelope.Unbounded{}, nil
}
