// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package events

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/OpenPSG/epocher/internal/recording"
)

// Event marks a code at a sample index. Reserved is always zero.
type Event struct {
	Sample   int
	Reserved int
	Code     Code
}

// Sequence is a list of events ordered by sample index.
type Sequence []Event

// Sorted reports whether the sequence is in ascending sample order.
func (s Sequence) Sorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Sample < s[j].Sample })
}

// Format writes one tab separated line per event.
func (s Sequence) Format(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "sample\treserved\tcode\tlabel"); err != nil {
		return err
	}
	for _, e := range s {
		if _, err := fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", e.Sample, e.Reserved, int(e.Code), e.Code); err != nil {
			return err
		}
	}
	return nil
}

// Normalize converts annotations into a sequence: onsets become sample
// indices (floor of onset times sampling rate), labels become codes, and
// annotations landing on an already used sample index are discarded, the
// first one seen wins. The result is sorted by sample index.
func Normalize(annotations []recording.Annotation, samplingRate float64) (Sequence, error) {
	if len(annotations) < 2 {
		return nil, fmt.Errorf("%w: %d annotation(s)", ErrInsufficientEvents, len(annotations))
	}

	seen := make(map[int]struct{}, len(annotations))
	seq := make(Sequence, 0, len(annotations))
	for _, a := range annotations {
		code, ok := Lookup(a.Label)
		if !ok {
			return nil, &UnknownLabelError{Label: a.Label, Onset: a.Onset}
		}

		sample := int(math.Floor(a.Onset * samplingRate))
		if _, dup := seen[sample]; dup {
			continue
		}
		seen[sample] = struct{}{}
		seq = append(seq, Event{Sample: sample, Code: code})
	}

	sort.SliceStable(seq, func(i, j int) bool { return seq[i].Sample < seq[j].Sample })
	return seq, nil
}

// transitions lists the (current, next) code pairs that synthesize a
// transition event.
var transitions = map[[2]Code]Code{
	{T0, T1}: T0T1,
	{T1, T0}: T1T0,
	{T0, T2}: T0T2,
	{T2, T0}: T2T0,
}

// DetectTransitions scans adjacent events and returns one transition event,
// placed at the second event's sample, for every recognized pair. Any other
// pair, T1/T2 swaps and repeats included, yields nothing.
func DetectTransitions(seq Sequence) []Event {
	var out []Event
	for i := 0; i+1 < len(seq); i++ {
		cur, next := seq[i], seq[i+1]
		if code, ok := transitions[[2]Code{cur.Code, next.Code}]; ok {
			out = append(out, Event{Sample: next.Sample, Code: code})
		}
	}
	return out
}

// Merge adds the transition events to the sequence and restores sample
// order. Events sharing a sample index are kept, originals first.
func Merge(seq Sequence, transitions []Event) (Sequence, error) {
	merged := seq
	if len(transitions) > 0 {
		merged = make(Sequence, 0, len(seq)+len(transitions))
		merged = append(merged, seq...)
		merged = append(merged, transitions...)
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Sample < merged[j].Sample })
	}

	if len(merged) == 0 {
		return nil, ErrNoValidEvents
	}
	return merged, nil
}

// Build runs Normalize, DetectTransitions and Merge.
func Build(annotations []recording.Annotation, samplingRate float64) (Sequence, error) {
	seq, err := Normalize(annotations, samplingRate)
	if err != nil {
		return nil, err
	}
	return Merge(seq, DetectTransitions(seq))
}
