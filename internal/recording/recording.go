// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package recording holds the in-memory form of a continuously sampled,
// annotated multichannel biosignal recording.
package recording

import "time"

// Annotation is an (onset, label) marker embedded in a recording.
type Annotation struct {
	Onset    float64 // Seconds since the start of the recording
	Duration float64 // Seconds, zero if unspecified
	Label    string
}

// Span is a half-open range of sample indices.
type Span struct {
	Start int
	End   int
}

// Overlaps reports whether the inclusive sample range [from, to] touches s.
func (s Span) Overlaps(from, to int) bool {
	return from < s.End && to >= s.Start
}

// Recording is a multichannel time series sampled at a single rate.
type Recording struct {
	PatientID    string
	RecordingID  string
	StartTime    time.Time
	SamplingRate float64      // Hz
	Channels     []string     // Channel labels
	Units        []string     // Physical dimension of each channel
	Data         [][]float64  // Channel-major physical samples
	Annotations  []Annotation // In file order

	// Gaps are zero filled stretches between the data records of a
	// discontinuous recording, in ascending order.
	Gaps []Span
}

// Samples returns the number of samples in each channel.
func (r *Recording) Samples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Duration returns the length of the recording in seconds.
func (r *Recording) Duration() float64 {
	if r.SamplingRate == 0 {
		return 0
	}
	return float64(r.Samples()) / r.SamplingRate
}
