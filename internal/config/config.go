// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"nodepower/internal/cpus"
	"nodepower/internal/msr"
	"nodepower/internal/platform"
	"nodepower/internal/topology"
)

// DefaultFileName is looked up beside the binary when --config is not given.
const DefaultFileName = "nodepower.yaml"

// Config holds the settings read from the configuration file. Fields left
// out of the file keep their default.
type Config struct {
	DeviceRoot        string   `yaml:"device_root"`
	PreferMsrSafe     bool     `yaml:"prefer_msr_safe"`
	SysfsRoot         string   `yaml:"sysfs_root"`
	ProcRoot          string   `yaml:"proc_root"`
	TimeWindowSeconds float64  `yaml:"time_window_seconds"`
	Models            []string `yaml:"models"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		DeviceRoot:        msr.DefaultDeviceRoot,
		PreferMsrSafe:     true,
		SysfsRoot:         topology.DefaultSysfsRoot,
		ProcRoot:          cpus.DefaultProcRoot,
		TimeWindowSeconds: platform.DefaultTimeWindow,
	}
}

// Load reads the file at path over the defaults. A missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	yamlFile, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.UnmarshalStrict(yamlFile, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges and model names.
func (c Config) Validate() error {
	if c.DeviceRoot == "" {
		return fmt.Errorf("device_root must not be empty")
	}
	if c.SysfsRoot == "" {
		return fmt.Errorf("sysfs_root must not be empty")
	}
	if c.ProcRoot == "" {
		return fmt.Errorf("proc_root must not be empty")
	}
	if c.TimeWindowSeconds <= 0 {
		return fmt.Errorf("time_window_seconds must be greater than 0, got %v", c.TimeWindowSeconds)
	}
	if _, err := platform.FilterModels(platform.Models(), c.Models); err != nil {
		return err
	}
	return nil
}

// SelectorOptions converts the configuration into platform selection
// options for the running system.
func (c Config) SelectorOptions() (platform.SelectorOptions, error) {
	models, err := platform.FilterModels(platform.Models(), c.Models)
	if err != nil {
		return platform.SelectorOptions{}, err
	}
	sysfsRoot := c.SysfsRoot
	return platform.SelectorOptions{
		Models: models,
		Probe:  cpus.NewProbe(c.ProcRoot),
		Topology: func(coresPerTile int) (topology.Topology, error) {
			return topology.Discover(sysfsRoot, coresPerTile)
		},
		Devices: msr.Options{
			DeviceRoot: c.DeviceRoot,
			PreferSafe: c.PreferMsrSafe,
		},
		TimeWindow: c.TimeWindowSeconds,
	}, nil
}
