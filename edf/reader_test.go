// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/epocher/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderAnnotations(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "annotated.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	start := time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC)
	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X X",
		RecordingID:        "Startdate 12-AUG-2009 X X X",
		StartTime:          start,
		Reserved:           edf.ReservedContinuous,
		DataRecordDuration: time.Second,
		Signals: []edf.Signal{
			{Label: "Fc5.", PhysicalDimension: "uV", PhysicalMin: -8092, PhysicalMax: 8092, DigitalMin: -8092, DigitalMax: 8092, SamplesPerRecord: 4},
			{Label: edf.AnnotationsLabel, PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: 30},
		},
	}

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)

	require.NoError(t, ew.WriteRecord(&edf.Record{
		Onset:       0,
		Signals:     [][]float64{{1, 2, 3, 4}, nil},
		Annotations: []edf.TAL{{Onset: 0, Duration: 4.2, Annotations: []string{"T0"}}},
	}))
	require.NoError(t, ew.WriteRecord(&edf.Record{
		Onset:       1,
		Signals:     [][]float64{{5, 6, 7, 8}, nil},
		Annotations: []edf.TAL{{Onset: 1.5, Annotations: []string{"T1"}}},
	}))
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)

	got := er.Header()
	assert.True(t, got.IsEDFPlus())
	assert.Equal(t, start, got.StartTime)
	assert.Equal(t, "Startdate 12-AUG-2009 X X X", got.RecordingID)
	assert.Equal(t, 2, got.DataRecords)
	assert.Equal(t, time.Second, got.DataRecordDuration)
	require.Len(t, got.Signals, 2)
	assert.Equal(t, "Fc5.", got.Signals[0].Label)
	assert.True(t, got.Signals[1].IsAnnotations())

	rec, err := er.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.Onset)
	assert.Nil(t, rec.Signals[1])
	require.Len(t, rec.Annotations, 1)
	assert.Equal(t, edf.TAL{Onset: 0, Duration: 4.2, Annotations: []string{"T0"}}, rec.Annotations[0])
	for i, v := range rec.Signals[0] {
		assert.InDelta(t, float64(i+1), v, 0.01)
	}

	rec, err = er.ReadRecord(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Onset)
	require.Len(t, rec.Annotations, 1)
	assert.Equal(t, []string{"T1"}, rec.Annotations[0].Annotations)
	assert.Equal(t, 1.5, rec.Annotations[0].Onset)

	_, err = er.ReadRecord(2)
	assert.Equal(t, io.EOF, err)
}

func TestReaderRejectsShortHeader(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "short-*.edf")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	_, err = f.WriteString("0       truncated")
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	_, err = edf.Open(f)
	require.ErrorContains(t, err, "error reading header")
}

func TestTALRoundTrip(t *testing.T) {
	tals := []edf.TAL{
		{Onset: 12.5},
		{Onset: 12.5, Duration: 4.1, Annotations: []string{"T2"}},
		{Onset: -0.25, Annotations: []string{"a", "b"}},
	}

	b, err := edf.EncodeTALs(tals)
	require.NoError(t, err)
	assert.Equal(t, "+12.5\x14\x14\x00+12.5\x154.1\x14T2\x14\x00-0.25\x14a\x14b\x14\x00", string(b))

	// Zero padding, as found at the end of an annotation signal.
	b = append(b, make([]byte, 10)...)

	got, err := edf.DecodeTALs(b)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 12.5, got[0].Onset)
	assert.Empty(t, got[0].Annotations)
	assert.Equal(t, tals[1], got[1])
	assert.Equal(t, tals[2], got[2])
}

func TestTALRejectsReservedBytes(t *testing.T) {
	_, err := edf.TAL{Annotations: []string{"bad\x14label"}}.MarshalBinary()
	require.Error(t, err)

	_, err = edf.DecodeTALs([]byte("nonsense\x14x\x14\x00"))
	require.Error(t, err)
}
