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
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/epocher/edf"
	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/events"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// epochPrefix starts the annotation that identifies the event of each
// stored epoch: "epoch:<code>:<label>:<ordinal>:<sample>".
const epochPrefix = "epoch"

// Meta carries the provenance copied into an epoch file header.
type Meta struct {
	PatientID string
	StartTime time.Time
}

// WriteEpochs stores an epoch set as a discontinuous EDF+ file with one data
// record per epoch. Extraction parameters are kept in the recording
// identification field.
func WriteEpochs(w io.WriteSeeker, set *epochs.Set, meta Meta) error {
	samples := set.Samples()
	if samples <= 0 || set.SamplingRate <= 0 {
		return fmt.Errorf("invalid epoch window: %d samples at %v Hz", samples, set.SamplingRate)
	}

	records := make([]*edf.Record, len(set.Epochs))
	talBytes := 0
	for i, ep := range set.Epochs {
		rec := &edf.Record{
			Onset:   float64(ep.Start) / set.SamplingRate,
			Signals: make([][]float64, len(set.Channels)+1),
			Annotations: []edf.TAL{{
				Onset:       float64(ep.Event.Sample) / set.SamplingRate,
				Annotations: []string{formatEpochAnnotation(ep)},
			}},
		}
		for ch := range set.Channels {
			rec.Signals[ch] = mat.Row(nil, ch, ep.Data)
		}

		b, err := edf.EncodeTALs(append([]edf.TAL{{Onset: rec.Onset}}, rec.Annotations...))
		if err != nil {
			return err
		}
		talBytes = max(talBytes, len(b))
		records[i] = rec
	}
	if talBytes == 0 {
		talBytes = len("+0\x14\x14\x00")
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          meta.PatientID,
		RecordingID:        formatRecordingID(set),
		StartTime:          meta.StartTime,
		Reserved:           edf.ReservedDiscontinuous,
		DataRecordDuration: time.Duration(math.Round(float64(samples) / set.SamplingRate * float64(time.Second))),
	}
	for ch, label := range set.Channels {
		pmin, pmax := channelRange(set, ch)
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             label,
			PhysicalDimension: "uV",
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  samples,
		})
	}
	hdr.Signals = append(hdr.Signals, edf.Signal{
		Label:            edf.AnnotationsLabel,
		PhysicalMin:      -1,
		PhysicalMax:      1,
		DigitalMin:       math.MinInt16,
		DigitalMax:       math.MaxInt16,
		SamplesPerRecord: (talBytes + 1) / 2,
	})

	ew, err := edf.Create(w, hdr, edf.WithMaxRecordBytes(0))
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := ew.WriteRecord(rec); err != nil {
			return fmt.Errorf("error writing epoch %d: %w", i, err)
		}
	}
	return ew.Close()
}

// ReadEpochs decodes a file written by WriteEpochs. Sample values come back
// within one quantization step of the stored ones.
func ReadEpochs(r io.ReadSeeker) (*epochs.Set, Meta, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, Meta{}, err
	}
	hdr := er.Header()

	set, err := parseRecordingID(hdr.RecordingID)
	if err != nil {
		return nil, Meta{}, err
	}
	meta := Meta{PatientID: hdr.PatientID, StartTime: hdr.StartTime}

	var dataSignals []int
	for i, signal := range hdr.Signals {
		if !signal.IsAnnotations() {
			dataSignals = append(dataSignals, i)
			set.Channels = append(set.Channels, signal.Label)
		}
	}

	first, _ := epochs.Params{TMin: set.TMin, TMax: set.TMax}.Window(set.SamplingRate)
	samples := set.Samples()

	for n := 0; ; n++ {
		rec, err := er.ReadRecord(n)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, Meta{}, err
		}

		ep, err := findEpochAnnotation(rec.Annotations)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("record %d: %w", n, err)
		}
		ep.Start = ep.Event.Sample + first
		ep.Data = mat.NewDense(len(dataSignals), samples, nil)
		for row, signal := range dataSignals {
			if len(rec.Signals[signal]) != samples {
				return nil, Meta{}, fmt.Errorf("record %d: channel %q has %d samples, expected %d",
					n, hdr.Signals[signal].Label, len(rec.Signals[signal]), samples)
			}
			ep.Data.SetRow(row, rec.Signals[signal])
		}

		set.Epochs = append(set.Epochs, ep)
	}

	return set, meta, nil
}

func formatEpochAnnotation(ep epochs.Epoch) string {
	return fmt.Sprintf("%s:%d:%s:%d:%d", epochPrefix, int(ep.Event.Code), ep.Event.Code, ep.Ordinal, ep.Event.Sample)
}

func findEpochAnnotation(tals []edf.TAL) (epochs.Epoch, error) {
	for _, tal := range tals {
		for _, a := range tal.Annotations {
			parts := strings.Split(a, ":")
			if len(parts) != 5 || parts[0] != epochPrefix {
				continue
			}

			var nums [3]int
			for i, s := range []string{parts[1], parts[3], parts[4]} {
				v, err := strconv.Atoi(s)
				if err != nil {
					return epochs.Epoch{}, fmt.Errorf("malformed epoch annotation %q: %w", a, err)
				}
				nums[i] = v
			}

			code := events.Code(nums[0])
			if !code.Valid() || code.String() != parts[2] {
				return epochs.Epoch{}, fmt.Errorf("epoch annotation %q does not match the event mapping", a)
			}
			return epochs.Epoch{
				Event:   events.Event{Sample: nums[2], Code: code},
				Ordinal: nums[1],
			}, nil
		}
	}
	return epochs.Epoch{}, fmt.Errorf("no epoch annotation")
}

// formatRecordingID renders e.g.
// "Startdate X X X epocher sfreq=160 tmin=-2 tmax=2 baseline=recording:0".
// Values are written exactly; parameters too long for the 80 byte field
// make the header write fail rather than load back altered.
func formatRecordingID(set *epochs.Set) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return fmt.Sprintf("Startdate X X X epocher sfreq=%s tmin=%s tmax=%s baseline=%s",
		f(set.SamplingRate), f(set.TMin), f(set.TMax), set.Baseline)
}

func parseRecordingID(id string) (*epochs.Set, error) {
	fields := strings.Fields(id)
	params := make(map[string]string)
	tagged := false
	for _, field := range fields {
		if field == "epocher" {
			tagged = true
		}
		if k, v, ok := strings.Cut(field, "="); ok {
			params[k] = v
		}
	}
	if !tagged {
		return nil, fmt.Errorf("not an epoch file: recording id %q", id)
	}

	set := &epochs.Set{}
	for key, dst := range map[string]*float64{"sfreq": &set.SamplingRate, "tmin": &set.TMin, "tmax": &set.TMax} {
		v, err := strconv.ParseFloat(params[key], 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", key, err)
		}
		*dst = v
	}

	baseline, err := epochs.ParseBaseline(params["baseline"])
	if err != nil {
		return nil, err
	}
	set.Baseline = baseline

	return set, nil
}

// channelRange returns header limits enclosing every stored value of a
// channel after rounding to two decimals.
func channelRange(set *epochs.Set, ch int) (float64, float64) {
	if len(set.Epochs) == 0 {
		return -1, 1
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, ep := range set.Epochs {
		row := mat.Row(nil, ch, ep.Data)
		lo = math.Min(lo, floats.Min(row))
		hi = math.Max(hi, floats.Max(row))
	}

	lo = math.Floor(lo*100) / 100
	hi = math.Ceil(hi*100) / 100
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}
