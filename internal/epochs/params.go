// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package epochs

import (
	"fmt"
	"strconv"
	"strings"
)

// BaselineMode selects where the baseline interval starts.
type BaselineMode string

const (
	// BaselineWindow averages from the start of the epoch window.
	BaselineWindow BaselineMode = "window"
	// BaselineRecording averages from the first sample of the recording.
	BaselineRecording BaselineMode = "recording"
	// BaselineNone disables baseline correction.
	BaselineNone BaselineMode = "none"
)

// Baseline is the interval whose per-channel mean is subtracted from each
// epoch. End is in seconds relative to the event.
type Baseline struct {
	Mode BaselineMode `yaml:"mode"`
	End  float64      `yaml:"end"`
}

func (b Baseline) String() string {
	return string(b.Mode) + ":" + strconv.FormatFloat(b.End, 'g', -1, 64)
}

// ParseBaseline parses the String form, e.g. "window:0".
func ParseBaseline(s string) (Baseline, error) {
	mode, end, ok := strings.Cut(s, ":")
	if !ok {
		return Baseline{}, fmt.Errorf("malformed baseline %q", s)
	}
	v, err := strconv.ParseFloat(end, 64)
	if err != nil {
		return Baseline{}, fmt.Errorf("error parsing baseline end: %w", err)
	}
	b := Baseline{Mode: BaselineMode(mode), End: v}
	return b, b.validateMode()
}

func (b Baseline) validateMode() error {
	switch b.Mode {
	case BaselineWindow, BaselineRecording, BaselineNone:
		return nil
	}
	return fmt.Errorf("unknown baseline mode %q", b.Mode)
}

// DuplicatePolicy decides what happens to an event whose epoch slot is
// already taken by an earlier event.
type DuplicatePolicy string

const (
	// PolicyDrop keeps only the first event at each sample index.
	PolicyDrop DuplicatePolicy = "drop"
	// PolicyDropSameCode keeps the first event per (sample index, code), so
	// events with different codes at the same instant all become epochs.
	PolicyDropSameCode DuplicatePolicy = "drop-same-code"
	// PolicyError fails the recording on the first duplicate.
	PolicyError DuplicatePolicy = "error"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	p := DuplicatePolicy(s)
	switch p {
	case PolicyDrop, PolicyDropSameCode, PolicyError:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Params configures epoch extraction. TMin and TMax are seconds relative to
// the event and both ends are included in the window.
type Params struct {
	TMin     float64         `yaml:"tmin"`
	TMax     float64         `yaml:"tmax"`
	Baseline Baseline        `yaml:"baseline"`
	Policy   DuplicatePolicy `yaml:"policy"`
}

// DefaultParams returns the -2s..+2s window with a baseline running from the
// start of the recording to the event.
func DefaultParams() Params {
	return Params{
		TMin:     -2.0,
		TMax:     2.0,
		Baseline: Baseline{Mode: BaselineRecording, End: 0},
		Policy:   PolicyDrop,
	}
}

// Validate checks the window, baseline and policy for consistency.
func (p Params) Validate() error {
	if p.TMin >= p.TMax {
		return fmt.Errorf("tmin (%g) must be before tmax (%g)", p.TMin, p.TMax)
	}
	if err := p.Baseline.validateMode(); err != nil {
		return err
	}
	if p.Baseline.Mode != BaselineNone && (p.Baseline.End < p.TMin || p.Baseline.End > p.TMax) {
		return fmt.Errorf("baseline end (%g) must lie within [%g, %g]", p.Baseline.End, p.TMin, p.TMax)
	}
	if _, err := ParsePolicy(string(p.Policy)); err != nil {
		return err
	}
	return nil
}

// Window returns the sample offsets of the first and last sample of an epoch
// relative to its event.
func (p Params) Window(samplingRate float64) (first, last int) {
	return roundInt(p.TMin * samplingRate), roundInt(p.TMax * samplingRate)
}
