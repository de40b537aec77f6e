// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package store

import (
	"io"

	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/gocarina/gocsv"
)

// ManifestRow describes one event of a recording: either a stored epoch
// (Index >= 0) or a dropped event (Index -1, DroppedReason set).
type ManifestRow struct {
	Index         int     `csv:"index"`
	Sample        int     `csv:"sample"`
	OnsetSeconds  float64 `csv:"onset_seconds"`
	Code          int     `csv:"code"`
	Label         string  `csv:"label"`
	Ordinal       int     `csv:"ordinal"`
	DroppedReason string  `csv:"dropped_reason"`
}

// WriteManifest writes the kept epochs, then the dropped events, as CSV.
func WriteManifest(w io.Writer, set *epochs.Set) error {
	rows := make([]*ManifestRow, 0, len(set.Epochs)+len(set.Dropped))
	for i, ep := range set.Epochs {
		rows = append(rows, &ManifestRow{
			Index:        i,
			Sample:       ep.Event.Sample,
			OnsetSeconds: float64(ep.Event.Sample) / set.SamplingRate,
			Code:         int(ep.Event.Code),
			Label:        ep.Event.Code.String(),
			Ordinal:      ep.Ordinal,
		})
	}
	for _, d := range set.Dropped {
		rows = append(rows, &ManifestRow{
			Index:         -1,
			Sample:        d.Event.Sample,
			OnsetSeconds:  float64(d.Event.Sample) / set.SamplingRate,
			Code:          int(d.Event.Code),
			Label:         d.Event.Code.String(),
			DroppedReason: string(d.Reason),
		})
	}

	return gocsv.Marshal(&rows, w)
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(r io.Reader) ([]*ManifestRow, error) {
	var rows []*ManifestRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
