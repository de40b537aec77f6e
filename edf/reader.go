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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
	buf []byte
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	// Parse fields based on EDF/EDF+ specifications
	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startTime, err := parseStartTime(strings.TrimSpace(string(b[168:176])), strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, err
	}
	hdr.StartTime = startTime

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}

	hdr.Reserved = strings.TrimSpace(string(b[192:236]))

	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.DataRecordDuration, err = time.ParseDuration(fmt.Sprintf("%ss", strings.TrimSpace(string(b[244:252]))))
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}

	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount <= 0 {
		return nil, fmt.Errorf("invalid signal count: %d", hdr.SignalCount)
	}

	// Signal headers are stored field by field, each field repeated for every
	// signal before the next field starts.
	hdr.Signals = make([]Signal, hdr.SignalCount)
	fields := []struct {
		width int
		set   func(s *Signal, v string)
	}{
		{16, func(s *Signal, v string) { s.Label = v }},
		{80, func(s *Signal, v string) { s.TransducerType = v }},
		{8, func(s *Signal, v string) { s.PhysicalDimension = v }},
		{8, func(s *Signal, v string) { s.PhysicalMin = parseFloat(v) }},
		{8, func(s *Signal, v string) { s.PhysicalMax = parseFloat(v) }},
		{8, func(s *Signal, v string) { s.DigitalMin = parseInt(v) }},
		{8, func(s *Signal, v string) { s.DigitalMax = parseInt(v) }},
		{80, func(s *Signal, v string) { s.Prefiltering = v }},
		{8, func(s *Signal, v string) { s.SamplesPerRecord = parseInt(v) }},
		{32, func(s *Signal, v string) { s.Reserved = v }},
	}

	for _, field := range fields {
		b := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			field.set(&hdr.Signals[i], strings.TrimSpace(string(b)))
		}
	}

	return &Reader{
		r:   r,
		hdr: hdr,
		buf: make([]byte, hdr.RecordBytes()),
	}, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() *Header {
	return er.hdr
}

// ReadRecord decodes the n-th data record. It returns io.EOF once n is past
// the last record in the file.
func (er *Reader) ReadRecord(n int) (*Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("record index out of range")
	}
	if er.hdr.DataRecords >= 0 && n >= er.hdr.DataRecords {
		return nil, io.EOF
	}

	pos := int64(er.hdr.HeaderBytes) + int64(n)*int64(len(er.buf))
	if _, err := er.r.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to position: %w", err)
	}

	if _, err := io.ReadFull(er.r, er.buf); err != nil {
		// A file of unknown length simply ends after its last record.
		if errors.Is(err, io.EOF) || (er.hdr.DataRecords < 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("error reading data record: %w", err)
	}

	rec := &Record{
		Onset:   float64(n) * er.hdr.DataRecordDuration.Seconds(),
		Signals: make([][]float64, len(er.hdr.Signals)),
	}

	offset := 0
	timekept := false
	for i, signal := range er.hdr.Signals {
		raw := er.buf[offset : offset+signal.SamplesPerRecord*2]
		offset += len(raw)

		if signal.IsAnnotations() {
			tals, err := DecodeTALs(raw)
			if err != nil {
				return nil, fmt.Errorf("error decoding annotations in record %d: %w", n, err)
			}

			// The first TAL of the first annotation signal keeps the record's time.
			if !timekept && len(tals) > 0 && er.hdr.IsEDFPlus() {
				rec.Onset = tals[0].Onset
				timekept = true
			}
			for _, t := range tals {
				if len(t.Annotations) > 0 {
					rec.Annotations = append(rec.Annotations, t)
				}
			}
			continue
		}

		values := make([]float64, signal.SamplesPerRecord)
		for j := range values {
			digital := int16(binary.LittleEndian.Uint16(raw[j*2:]))
			values[j] = convertDigitalToPhysical(digital, signal.DigitalMin, signal.DigitalMax, signal.PhysicalMin, signal.PhysicalMax)
		}
		rec.Signals[i] = values
	}

	return rec, nil
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseStartTime(dateStr, timeStr string) (time.Time, error) {
	startDate, err := time.Parse("02.01.06", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start time: %w", err)
	}
	return time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC), nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
