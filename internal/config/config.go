// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config holds the settings of an epoching run. A Config is built
// once, validated, and passed by value from then on.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OpenPSG/epocher/internal/channels"
	"github.com/OpenPSG/epocher/internal/epochs"
	"gopkg.in/yaml.v3"
)

// Config describes one run.
type Config struct {
	// InputDir holds one S* directory per subject.
	InputDir string `yaml:"input_dir"`
	// OutputDir receives the epoch files. Defaults to "epochs" next to InputDir.
	OutputDir string `yaml:"output_dir"`
	// Pattern selects recording files inside a subject directory.
	Pattern string `yaml:"pattern"`
	// Workers is the number of recordings processed at once.
	Workers int `yaml:"workers"`
	// KeepEmpty writes an epoch file even when no epoch survived.
	KeepEmpty bool `yaml:"keep_empty"`
	// Ledger is an optional SQLite database recording every run.
	Ledger string `yaml:"ledger"`
	// Channels overrides the canonical channel list.
	Channels []string `yaml:"channels"`
	// Epochs configures the window, baseline and duplicate handling.
	Epochs epochs.Params `yaml:"epochs"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Pattern:  "*.edf",
		Workers:  1,
		Channels: append([]string(nil), channels.Canonical...),
		Epochs:   epochs.DefaultParams(),
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error opening config: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads YAML over the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	b, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Resolve fills in values derived from others.
func (c Config) Resolve() Config {
	if c.OutputDir == "" && c.InputDir != "" {
		c.OutputDir = filepath.Join(filepath.Dir(filepath.Clean(c.InputDir)), "epochs")
	}
	if c.Pattern == "" {
		c.Pattern = "*.edf"
	}
	if len(c.Channels) == 0 {
		c.Channels = append([]string(nil), channels.Canonical...)
	}
	c.Channels = append([]string(nil), c.Channels...)
	return c
}

// Validate reports the first problem with the configuration.
func (c Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("input directory is required")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if filepath.Clean(c.InputDir) == filepath.Clean(c.OutputDir) {
		return errors.New("output directory must differ from input directory")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", c.Pattern, err)
	}
	if err := c.Epochs.Validate(); err != nil {
		return fmt.Errorf("invalid epochs settings: %w", err)
	}
	return nil
}
