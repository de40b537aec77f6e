// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/OpenPSG/epocher/edf"
	"gonum.org/v1/gonum/floats"
)

// Read decodes an EDF/EDF+ file into a Recording. Every data signal must
// share one sampling rate; annotation signals are collected into
// Recording.Annotations. The records of an EDF+D file are placed at their
// onsets, with the time between them zero filled and listed in
// Recording.Gaps.
func Read(r io.ReadSeeker) (*Recording, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, err
	}
	hdr := er.Header()

	if hdr.DataRecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration: %v", hdr.DataRecordDuration)
	}

	rec := &Recording{
		PatientID:   hdr.PatientID,
		RecordingID: hdr.RecordingID,
		StartTime:   hdr.StartTime,
	}

	var dataSignals []int
	samplesPerRecord := -1
	for i, signal := range hdr.Signals {
		if signal.IsAnnotations() {
			continue
		}
		if samplesPerRecord >= 0 && signal.SamplesPerRecord != samplesPerRecord {
			return nil, fmt.Errorf("signal %q has %d samples per record, expected %d: mixed sampling rates are not supported",
				signal.Label, signal.SamplesPerRecord, samplesPerRecord)
		}
		samplesPerRecord = signal.SamplesPerRecord
		dataSignals = append(dataSignals, i)
		rec.Channels = append(rec.Channels, signal.Label)
		rec.Units = append(rec.Units, signal.PhysicalDimension)
	}
	if len(dataSignals) == 0 {
		return nil, fmt.Errorf("recording has no data signals")
	}

	rec.SamplingRate = float64(samplesPerRecord) / hdr.DataRecordDuration.Seconds()
	rec.Data = make([][]float64, len(dataSignals))
	if hdr.DataRecords > 0 {
		for i := range rec.Data {
			rec.Data[i] = make([]float64, 0, hdr.DataRecords*samplesPerRecord)
		}
	}

	for n := 0; ; n++ {
		record, err := er.ReadRecord(n)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}

		if hdr.Reserved == edf.ReservedDiscontinuous {
			have := len(rec.Data[0])
			at := int(math.Round(record.Onset * rec.SamplingRate))
			if at < have {
				return nil, fmt.Errorf("data record %d at %gs overlaps the previous record", n, record.Onset)
			}
			if at > have {
				for i := range rec.Data {
					rec.Data[i] = append(rec.Data[i], make([]float64, at-have)...)
				}
				rec.Gaps = append(rec.Gaps, Span{Start: have, End: at})
			}
		}

		for i, signal := range dataSignals {
			rec.Data[i] = append(rec.Data[i], record.Signals[signal]...)
		}
		for _, tal := range record.Annotations {
			for _, label := range tal.Annotations {
				rec.Annotations = append(rec.Annotations, Annotation{
					Onset:    tal.Onset,
					Duration: tal.Duration,
					Label:    label,
				})
			}
		}
	}

	return rec, nil
}

// Write encodes rec as a continuous EDF+ file with one-second data records.
// The sampling rate must be a whole number of Hz. The final record is zero
// padded. Recordings with gaps cannot be written.
func Write(w io.WriteSeeker, rec *Recording) error {
	if len(rec.Gaps) > 0 {
		return fmt.Errorf("recording has %d acquisition gaps, only continuous recordings can be written", len(rec.Gaps))
	}
	samplesPerRecord := int(math.Round(rec.SamplingRate))
	if samplesPerRecord <= 0 || float64(samplesPerRecord) != rec.SamplingRate {
		return fmt.Errorf("sampling rate %v Hz is not a positive whole number", rec.SamplingRate)
	}
	if len(rec.Channels) != len(rec.Data) {
		return fmt.Errorf("%d channel labels for %d channels", len(rec.Channels), len(rec.Data))
	}

	records := (rec.Samples() + samplesPerRecord - 1) / samplesPerRecord

	// Each annotation lives in the record covering its onset.
	annotations := make([][]edf.TAL, records)
	for _, a := range rec.Annotations {
		n := int(math.Floor(a.Onset))
		if n < 0 {
			n = 0
		}
		if n >= records {
			n = records - 1
		}
		if n < 0 {
			return fmt.Errorf("annotation %q at %vs falls outside an empty recording", a.Label, a.Onset)
		}
		annotations[n] = append(annotations[n], edf.TAL{Onset: a.Onset, Duration: a.Duration, Annotations: []string{a.Label}})
	}

	talBytes := 0
	for n, tals := range annotations {
		b, err := edf.EncodeTALs(append([]edf.TAL{{Onset: float64(n)}}, tals...))
		if err != nil {
			return err
		}
		talBytes = max(talBytes, len(b))
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          rec.PatientID,
		RecordingID:        rec.RecordingID,
		StartTime:          rec.StartTime,
		Reserved:           edf.ReservedContinuous,
		DataRecordDuration: time.Second,
	}
	for i, label := range rec.Channels {
		pmin, pmax := physicalRange(rec.Data[i])
		unit := "uV"
		if i < len(rec.Units) && rec.Units[i] != "" {
			unit = rec.Units[i]
		}
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             label,
			PhysicalDimension: unit,
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  samplesPerRecord,
		})
	}
	hdr.Signals = append(hdr.Signals, annotationSignal(talBytes))

	ew, err := edf.Create(w, hdr, edf.WithMaxRecordBytes(0))
	if err != nil {
		return err
	}

	for n := 0; n < records; n++ {
		signals := make([][]float64, len(hdr.Signals))
		for i := range rec.Data {
			block := make([]float64, samplesPerRecord)
			lo := n * samplesPerRecord
			hi := min(lo+samplesPerRecord, len(rec.Data[i]))
			copy(block, rec.Data[i][lo:hi])
			signals[i] = block
		}

		if err := ew.WriteRecord(&edf.Record{
			Onset:       float64(n),
			Signals:     signals,
			Annotations: annotations[n],
		}); err != nil {
			return fmt.Errorf("error writing data record %d: %w", n, err)
		}
	}

	return ew.Close()
}

func annotationSignal(talBytes int) edf.Signal {
	return edf.Signal{
		Label:            edf.AnnotationsLabel,
		PhysicalMin:      -1,
		PhysicalMax:      1,
		DigitalMin:       math.MinInt16,
		DigitalMax:       math.MaxInt16,
		SamplesPerRecord: (talBytes + 1) / 2,
	}
}

// physicalRange returns header limits that enclose every value once rounded
// to the two decimals an EDF header can hold.
func physicalRange(values []float64) (float64, float64) {
	if len(values) == 0 {
		return -1, 1
	}
	pmin := math.Floor(floats.Min(values)*100) / 100
	pmax := math.Ceil(floats.Max(values)*100) / 100
	if pmin == pmax {
		pmin, pmax = pmin-1, pmax+1
	}
	return pmin, pmax
}
