// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package channels picks the scalp EEG channels out of a recording.
package channels

import (
	"errors"
	"fmt"
)

// ErrNoValidChannels means none of the recording's channels is wanted.
var ErrNoValidChannels = errors.New("no valid EEG channels")

// Canonical lists the 64 scalp electrode labels of the 10-10 montage, padded
// with dots to four characters as they appear in the recordings.
var Canonical = []string{
	"Fc5.", "Fc3.", "Fc1.", "Fcz.", "Fc2.", "Fc4.", "Fc6.",
	"C5..", "C3..", "C1..", "Cz..", "C2..", "C4..", "C6..",
	"Cp5.", "Cp3.", "Cp1.", "Cpz.", "Cp2.", "Cp4.", "Cp6.",
	"Fp1.", "Fpz.", "Fp2.",
	"Af7.", "Af3.", "Afz.", "Af4.", "Af8.",
	"F7..", "F5..", "F3..", "F1..", "Fz..", "F2..", "F4..", "F6..", "F8..",
	"Ft7.", "Ft8.",
	"T7..", "T8..", "T9..", "T10.",
	"Tp7.", "Tp8.",
	"P7..", "P5..", "P3..", "P1..", "Pz..", "P2..", "P4..", "P6..", "P8..",
	"Po7.", "Po3.", "Poz.", "Po4.", "Po8.",
	"O1..", "Oz..", "O2..",
	"Iz..",
}

// Select returns the indices of names that exactly match an entry of
// include, in the order the names appear.
func Select(names, include []string) ([]int, error) {
	wanted := make(map[string]struct{}, len(include))
	for _, name := range include {
		wanted[name] = struct{}{}
	}

	var picks []int
	for i, name := range names {
		if _, ok := wanted[name]; ok {
			picks = append(picks, i)
		}
	}

	if len(picks) == 0 {
		return nil, fmt.Errorf("%w: none of %d channels matched", ErrNoValidChannels, len(names))
	}
	return picks, nil
}
