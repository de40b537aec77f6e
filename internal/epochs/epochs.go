// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package epochs cuts fixed-length, baseline-corrected windows out of a
// recording around each event.
package epochs

import (
	"errors"
	"fmt"
	"math"

	"github.com/OpenPSG/epocher/internal/events"
	"github.com/OpenPSG/epocher/internal/recording"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDuplicateEvent is returned under PolicyError when two events share a slot.
var ErrDuplicateEvent = errors.New("duplicate event")

// DropReason says why an event did not become an epoch.
type DropReason string

const (
	DropDuplicate   DropReason = "duplicate"
	DropOutOfBounds DropReason = "out-of-bounds"
	DropGap         DropReason = "acquisition-gap"
)

// Drop records an event that did not become an epoch.
type Drop struct {
	Event  events.Event
	Reason DropReason
}

// Epoch is one event-locked window.
type Epoch struct {
	Event   events.Event
	Ordinal int        // Occurrence of Event.Code among the kept epochs, from 0
	Start   int        // Recording sample index of the first column of Data
	Data    *mat.Dense // Channels x samples
}

// Set is every epoch cut from one recording.
type Set struct {
	SamplingRate float64
	Channels     []string
	TMin         float64
	TMax         float64
	Baseline     Baseline
	Epochs       []Epoch
	Dropped      []Drop
}

// Len returns the number of epochs.
func (s *Set) Len() int {
	return len(s.Epochs)
}

// Samples returns the number of samples in each epoch.
func (s *Set) Samples() int {
	first, last := Params{TMin: s.TMin, TMax: s.TMax}.Window(s.SamplingRate)
	return last - first + 1
}

// Counts returns the number of epochs per event code.
func (s *Set) Counts() map[events.Code]int {
	counts := make(map[events.Code]int)
	for _, e := range s.Epochs {
		counts[e.Event.Code]++
	}
	return counts
}

// Extractor cuts epochs out of a recording. picks selects the channels, by
// index into rec.Channels, in output order.
type Extractor interface {
	Extract(rec *recording.Recording, picks []int, seq events.Sequence, p Params) (*Set, error)
}

// Builder is the in-memory Extractor.
type Builder struct{}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

type slot struct {
	sample int
	code   events.Code
}

// Extract implements Extractor. Events are visited in sequence order: one
// whose slot is taken is handled per p.Policy, one whose window would leave
// the recording or touch one of rec.Gaps is dropped. Gap samples never
// contribute to a baseline.
func (b *Builder) Extract(rec *recording.Recording, picks []int, seq events.Sequence, p Params) (*Set, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rec.SamplingRate <= 0 {
		return nil, fmt.Errorf("invalid sampling rate %v", rec.SamplingRate)
	}

	set := &Set{
		SamplingRate: rec.SamplingRate,
		TMin:         p.TMin,
		TMax:         p.TMax,
		Baseline:     p.Baseline,
	}
	if len(picks) == 0 {
		return nil, fmt.Errorf("no channels picked")
	}
	for _, ch := range picks {
		if ch < 0 || ch >= len(rec.Data) || ch >= len(rec.Channels) {
			return nil, fmt.Errorf("channel index %d out of range", ch)
		}
		set.Channels = append(set.Channels, rec.Channels[ch])
	}

	first, last := p.Window(rec.SamplingRate)
	baselineEnd := roundInt(p.Baseline.End * rec.SamplingRate)
	width := last - first + 1
	total := rec.Samples()

	taken := make(map[slot]struct{}, len(seq))
	ordinals := make(map[events.Code]int)

	for _, ev := range seq {
		key := slot{sample: ev.Sample}
		if p.Policy == PolicyDropSameCode {
			key.code = ev.Code
		}
		if _, dup := taken[key]; dup {
			if p.Policy == PolicyError {
				return nil, fmt.Errorf("%w: %s at sample %d", ErrDuplicateEvent, ev.Code, ev.Sample)
			}
			set.Dropped = append(set.Dropped, Drop{Event: ev, Reason: DropDuplicate})
			continue
		}
		taken[key] = struct{}{}

		start := ev.Sample + first
		if start < 0 || ev.Sample+last >= total {
			set.Dropped = append(set.Dropped, Drop{Event: ev, Reason: DropOutOfBounds})
			continue
		}
		if overlapsGap(rec.Gaps, start, ev.Sample+last) {
			set.Dropped = append(set.Dropped, Drop{Event: ev, Reason: DropGap})
			continue
		}

		data := mat.NewDense(len(picks), width, nil)
		for row, ch := range picks {
			window := make([]float64, width)
			copy(window, rec.Data[ch][start:start+width])

			if p.Baseline.Mode != BaselineNone {
				from := start
				if p.Baseline.Mode == BaselineRecording {
					from = 0
				}
				to := ev.Sample + baselineEnd
				floats.AddConst(-baselineMean(rec.Data[ch], from, to, rec.Gaps), window)
			}

			data.SetRow(row, window)
		}

		set.Epochs = append(set.Epochs, Epoch{
			Event:   ev,
			Ordinal: ordinals[ev.Code],
			Start:   start,
			Data:    data,
		})
		ordinals[ev.Code]++
	}

	return set, nil
}

func overlapsGap(gaps []recording.Span, from, to int) bool {
	for _, g := range gaps {
		if g.Overlaps(from, to) {
			return true
		}
	}
	return false
}

// baselineMean averages row[from:to+1], skipping samples inside gaps.
func baselineMean(row []float64, from, to int, gaps []recording.Span) float64 {
	if !overlapsGap(gaps, from, to) {
		return stat.Mean(row[from:to+1], nil)
	}

	sum, n := 0.0, 0
	next := from
	for _, g := range gaps {
		if g.End <= next || g.Start > to {
			continue
		}
		if g.Start > next {
			sum += floats.Sum(row[next:g.Start])
			n += g.Start - next
		}
		next = g.End
	}
	if next <= to {
		sum += floats.Sum(row[next : to+1])
		n += to + 1 - next
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
