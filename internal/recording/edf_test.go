// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/epocher/edf"
	"github.com/OpenPSG/epocher/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "S001R03.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	// 2.5 seconds at 4 Hz, so the last record is padded.
	rec := &recording.Recording{
		PatientID:    "X X X X",
		RecordingID:  "Startdate 12-AUG-2009 X X X",
		StartTime:    time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC),
		SamplingRate: 4,
		Channels:     []string{"Fc5.", "Cz.."},
		Data: [][]float64{
			{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			{-5, -4, -3, -2, -1, 0, 1, 2, 3, 4},
		},
		Annotations: []recording.Annotation{
			{Onset: 0, Duration: 0.5, Label: "T0"},
			{Onset: 0.5, Duration: 1, Label: "T1"},
			{Onset: 1.5, Duration: 1, Label: "T0"},
		},
	}

	require.NoError(t, recording.Write(f, rec))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got, err := recording.Read(f)
	require.NoError(t, err)

	assert.Equal(t, rec.PatientID, got.PatientID)
	assert.Equal(t, rec.StartTime, got.StartTime)
	assert.Equal(t, 4.0, got.SamplingRate)
	assert.Equal(t, rec.Channels, got.Channels)
	assert.Equal(t, []string{"uV", "uV"}, got.Units)
	assert.Equal(t, rec.Annotations, got.Annotations)

	require.Equal(t, 12, got.Samples())
	assert.Equal(t, 3.0, got.Duration())
	for ch := range rec.Data {
		for i, v := range rec.Data[ch] {
			assert.InDelta(t, v, got.Data[ch][i], 0.01)
		}
	}
}

func TestReadRejectsMixedRates(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "mixed.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
		Signals: []edf.Signal{
			{Label: "A", PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -100, DigitalMax: 100, SamplesPerRecord: 4},
			{Label: "B", PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -100, DigitalMax: 100, SamplesPerRecord: 2},
		},
	})
	require.NoError(t, err)
	require.NoError(t, ew.WriteRecord(&edf.Record{Signals: [][]float64{make([]float64, 4), make([]float64, 2)}}))
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	_, err = recording.Read(f)
	require.ErrorContains(t, err, "mixed sampling rates")
}

func TestWriteRejectsFractionalRate(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "fractional.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	err = recording.Write(f, &recording.Recording{
		SamplingRate: 160.5,
		Channels:     []string{"Cz.."},
		Data:         [][]float64{{1, 2, 3}},
	})
	require.Error(t, err)
}

func writeDiscontinuous(t *testing.T, onsets []float64) *os.File {
	t.Helper()

	f, err := os.OpenFile(filepath.Join(t.TempDir(), "discontinuous.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC),
		Reserved:           edf.ReservedDiscontinuous,
		DataRecordDuration: time.Second,
		Signals: []edf.Signal{
			{Label: "Cz..", PhysicalDimension: "uV", PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -100, DigitalMax: 100, SamplesPerRecord: 4},
			{Label: edf.AnnotationsLabel, PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: 15},
		},
	})
	require.NoError(t, err)

	for n, onset := range onsets {
		base := float64(n+1) / 10
		require.NoError(t, ew.WriteRecord(&edf.Record{
			Onset:       onset,
			Signals:     [][]float64{{base, base + 0.01, base + 0.02, base + 0.03}, nil},
			Annotations: []edf.TAL{{Onset: onset, Annotations: []string{"T" + string(rune('0'+n))}}},
		}))
	}
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	return f
}

func TestReadDiscontinuous(t *testing.T) {
	f := writeDiscontinuous(t, []float64{0, 10})

	rec, err := recording.Read(f)
	require.NoError(t, err)

	assert.Equal(t, 4.0, rec.SamplingRate)
	require.Equal(t, 44, rec.Samples())
	assert.Equal(t, []recording.Span{{Start: 4, End: 40}}, rec.Gaps)

	for i, want := range []float64{0.1, 0.11, 0.12, 0.13} {
		assert.InDelta(t, want, rec.Data[0][i], 0.01)
	}
	for i := 4; i < 40; i++ {
		require.Zero(t, rec.Data[0][i])
	}
	for i, want := range []float64{0.2, 0.21, 0.22, 0.23} {
		assert.InDelta(t, want, rec.Data[0][40+i], 0.01)
	}

	// Annotations keep their onsets and so line up with the placed samples.
	require.Len(t, rec.Annotations, 2)
	assert.Equal(t, "T1", rec.Annotations[1].Label)
	assert.InDelta(t, 10.0, rec.Annotations[1].Onset, 1e-9)
	assert.Equal(t, 40, int(rec.Annotations[1].Onset*rec.SamplingRate))

	// A gapped recording cannot be rewritten as a continuous one.
	out, err := os.Create(filepath.Join(t.TempDir(), "continuous.edf"))
	require.NoError(t, err)
	defer out.Close()
	require.ErrorContains(t, recording.Write(out, rec), "acquisition gaps")
}

func TestReadDiscontinuousWithoutGaps(t *testing.T) {
	f := writeDiscontinuous(t, []float64{0, 1})

	rec, err := recording.Read(f)
	require.NoError(t, err)
	assert.Equal(t, 8, rec.Samples())
	assert.Empty(t, rec.Gaps)
}

func TestReadRejectsOverlappingRecords(t *testing.T) {
	f := writeDiscontinuous(t, []float64{0, 0.5})

	_, err := recording.Read(f)
	require.ErrorContains(t, err, "overlaps the previous record")
}
