// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import "time"

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

const (
	// AnnotationsLabel is the signal label reserved by EDF+ for the
	// annotation (TAL) channel.
	AnnotationsLabel = "EDF Annotations"

	// ReservedContinuous marks an uninterrupted EDF+ recording.
	ReservedContinuous = "EDF+C"
	// ReservedDiscontinuous marks an EDF+ recording whose data records are
	// not contiguous in time (e.g. one record per epoch).
	ReservedDiscontinuous = "EDF+D"

	// MaxRecordBytes is the data record size recommended by the EDF standard.
	MaxRecordBytes = 61440
)

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	Reserved           string        // "EDF+C", "EDF+D" or empty for plain EDF
	DataRecordDuration time.Duration // Duration of a single data record in seconds
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// IsEDFPlus reports whether the header declares an EDF+ file.
func (h *Header) IsEDFPlus() bool {
	return h.Reserved == ReservedContinuous || h.Reserved == ReservedDiscontinuous
}

// RecordBytes returns the size in bytes of a single data record.
func (h *Header) RecordBytes() int {
	n := 0
	for _, sig := range h.Signals {
		n += sig.SamplesPerRecord * 2
	}
	return n
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// IsAnnotations reports whether the signal is the EDF+ annotation channel.
func (s Signal) IsAnnotations() bool {
	return s.Label == AnnotationsLabel
}

// Record is a single decoded data record.
type Record struct {
	// Onset of the record in seconds since the start of the recording. For
	// EDF+ files this comes from the record's timekeeping TAL, for plain EDF
	// it is derived from the record index.
	Onset float64
	// Signals holds the physical values of each signal, indexed like
	// Header.Signals. Annotation signals are left nil.
	Signals [][]float64
	// Annotations holds every non-empty TAL found in the record.
	Annotations []TAL
}
