// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Writer writes EDF files.
type Writer struct {
	w              io.WriteSeeker
	hdr            *Header
	dataRecords    int // Number of data records written so far.
	maxRecordBytes int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMaxRecordBytes overrides the data record size limit. Zero disables the
// check, which is needed for long multichannel records such as epochs.
func WithMaxRecordBytes(n int) WriterOption {
	return func(ew *Writer) {
		ew.maxRecordBytes = n
	}
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header, opts ...WriterOption) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)

	// Calibrate with exactly what will be stored in the header, so that a
	// reader recovers the same physical values.
	hdr.Signals = append([]Signal(nil), hdr.Signals...)
	for i := range hdr.Signals {
		signal := &hdr.Signals[i]
		signal.PhysicalMin = parseFloat(formatPhysicalValue(signal.PhysicalMin))
		signal.PhysicalMax = parseFloat(formatPhysicalValue(signal.PhysicalMax))
	}

	ew := &Writer{w: w, hdr: &hdr, maxRecordBytes: MaxRecordBytes}
	for _, opt := range opts {
		opt(ew)
	}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	// Finalize the header with the actual number of data records
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	_, err := ew.w.Seek(0, io.SeekEnd)
	return err
}

// WriteRecord writes a single data record to the EDF file. rec.Signals must
// be indexed like the header signals; entries for annotation signals are
// ignored and replaced by a timekeeping TAL at rec.Onset followed by
// rec.Annotations.
func (ew *Writer) WriteRecord(rec *Record) error {
	if len(rec.Signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(rec.Signals))
	}

	recordBytes := ew.hdr.RecordBytes()
	if ew.maxRecordBytes > 0 && recordBytes > ew.maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", recordBytes, ew.maxRecordBytes)
	}

	writer := bufio.NewWriter(ew.w)

	// Write each signal's data
	timekept := false
	for i, signal := range ew.hdr.Signals {
		if signal.IsAnnotations() {
			tals := rec.Annotations
			if !timekept {
				tals = append([]TAL{{Onset: rec.Onset}}, tals...)
				timekept = true
			} else {
				tals = nil
			}

			b, err := EncodeTALs(tals)
			if err != nil {
				return err
			}
			if len(b) > signal.SamplesPerRecord*2 {
				return fmt.Errorf("annotations need %d bytes, signal %q holds %d", len(b), signal.Label, signal.SamplesPerRecord*2)
			}
			padded := make([]byte, signal.SamplesPerRecord*2)
			copy(padded, b)
			if _, err := writer.Write(padded); err != nil {
				return err
			}
			continue
		}

		samples := rec.Signals[i]
		if len(samples) != signal.SamplesPerRecord {
			return fmt.Errorf("signal %q: expected %d samples, got %d", signal.Label, signal.SamplesPerRecord, len(samples))
		}
		for _, sample := range samples {
			digitalValue := convertPhysicalToDigital(sample, signal.PhysicalMin, signal.PhysicalMax, signal.DigitalMin, signal.DigitalMax)
			if err := binary.Write(writer, binary.LittleEndian, digitalValue); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// writeHeader writes the EDF header at the start of the underlying writer.
func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	duration, err := formatDuration(ew.hdr.DataRecordDuration.Seconds())
	if err != nil {
		return err
	}

	ew.hdr.HeaderBytes = 256 + (ew.hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)

	fixed := []struct {
		name  string
		value string
		width int
	}{
		{"version", string(ew.hdr.Version), 8},
		{"patient identification", ew.hdr.PatientID, 80},
		{"recording identification", ew.hdr.RecordingID, 80},
		{"start date", ew.hdr.StartTime.Format("02.01.06"), 8},
		{"start time", ew.hdr.StartTime.Format("15.04.05"), 8},
		{"header bytes", strconv.Itoa(ew.hdr.HeaderBytes), 8},
		{"reserved", ew.hdr.Reserved, 44},
		{"data records", strconv.Itoa(ew.hdr.DataRecords), 8},
		{"data record duration", duration, 8},
		{"signal count", strconv.Itoa(ew.hdr.SignalCount), 4},
	}
	for _, f := range fixed {
		v, err := pad(f.name, f.value, f.width)
		if err != nil {
			return err
		}
		if _, err := writer.WriteString(v); err != nil {
			return err
		}
	}

	// Signal headers are written field by field.
	fields := []struct {
		name  string
		width int
		get   func(s Signal) string
	}{
		{"label", 16, func(s Signal) string { return s.Label }},
		{"transducer type", 80, func(s Signal) string { return s.TransducerType }},
		{"physical dimension", 8, func(s Signal) string { return s.PhysicalDimension }},
		{"physical minimum", 8, func(s Signal) string { return formatPhysicalValue(s.PhysicalMin) }},
		{"physical maximum", 8, func(s Signal) string { return formatPhysicalValue(s.PhysicalMax) }},
		{"digital minimum", 8, func(s Signal) string { return strconv.Itoa(s.DigitalMin) }},
		{"digital maximum", 8, func(s Signal) string { return strconv.Itoa(s.DigitalMax) }},
		{"prefiltering", 80, func(s Signal) string { return s.Prefiltering }},
		{"samples per record", 8, func(s Signal) string { return strconv.Itoa(s.SamplesPerRecord) }},
		{"reserved", 32, func(s Signal) string { return s.Reserved }},
	}
	for _, field := range fields {
		for i, signal := range ew.hdr.Signals {
			v, err := pad(fmt.Sprintf("signal %d %s", i, field.name), field.get(signal), field.width)
			if err != nil {
				return err
			}
			if _, err := writer.WriteString(v); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using the calibration factors.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	digital = math.Max(float64(dmin), math.Min(float64(dmax), digital))
	return int16(digital)
}

// formatPhysicalValue renders val with at most two decimals, dropping
// precision until it fits the 8 character field. Values that do not fit
// even without decimals are rejected by pad.
func formatPhysicalValue(val float64) string {
	s := strconv.FormatFloat(val, 'f', 2, 64)
	for prec := 1; len(s) > 8 && prec >= 0; prec-- {
		s = strconv.FormatFloat(val, 'f', prec, 64)
	}
	return s
}

// formatDuration renders a record duration in at most 8 characters.
func formatDuration(seconds float64) (string, error) {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	for prec := 6; len(s) > 8 && prec >= 0; prec-- {
		s = strconv.FormatFloat(seconds, 'f', prec, 64)
	}
	if len(s) > 8 {
		return "", fmt.Errorf("data record duration %v does not fit the header", seconds)
	}
	return s, nil
}

// pad left-aligns s in a header field of the given width. A value that
// does not fit is an error; truncating it would corrupt the header.
func pad(name, s string, width int) (string, error) {
	if len(s) > width {
		return "", fmt.Errorf("%s %q is %d bytes, the field holds %d", name, s, len(s), width)
	}
	return fmt.Sprintf("%-*s", width, s), nil
}
