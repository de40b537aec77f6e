// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package store_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/events"
	"github.com/OpenPSG/epocher/internal/recording"
	"github.com/OpenPSG/epocher/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestSubjectsAndRecordings(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "S002", "S002R04.edf"))
	touch(t, filepath.Join(root, "S002", "S002R03.edf"))
	touch(t, filepath.Join(root, "S002", "notes.txt"))
	touch(t, filepath.Join(root, "S001", "S001R03.edf"))
	touch(t, filepath.Join(root, "README.edf"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "S002", "S002R05.edf"), 0o755))

	st := store.New(root, filepath.Join(root, "epochs"), "")

	subjects, err := st.Subjects()
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "S001", subjects[0].Name)
	assert.Equal(t, "S002", subjects[1].Name)
	assert.Equal(t, filepath.Join(root, "S002"), subjects[1].Dir)

	files, err := st.Recordings(subjects[1])
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "S002", "S002R03.edf"),
		filepath.Join(root, "S002", "S002R04.edf"),
	}, files)

	assert.Equal(t,
		filepath.Join(root, "epochs", "S002", "S002R03_epochs.edf"),
		st.OutputPath(subjects[1], files[0]))
}

func TestSubjectsMissingInput(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "missing"), "", "")
	_, err := st.Subjects()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "S001", "S001R03.edf")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, recording.Write(f, &recording.Recording{
		StartTime:    time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC),
		SamplingRate: 2,
		Channels:     []string{"Cz.."},
		Data:         [][]float64{{1, 2, 3, 4}},
		Annotations:  []recording.Annotation{{Onset: 0, Label: "T0"}, {Onset: 1, Label: "T1"}},
	}))
	require.NoError(t, f.Close())

	rec, err := store.New(root, "", "").Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.SamplingRate)
	assert.Len(t, rec.Annotations, 2)

	touch(t, filepath.Join(root, "S001", "empty.edf"))
	_, err = store.New(root, "", "").Load(filepath.Join(root, "S001", "empty.edf"))
	require.ErrorContains(t, err, "empty.edf")
}

func sampleSet(t *testing.T) *epochs.Set {
	t.Helper()

	rec := &recording.Recording{SamplingRate: 160, Channels: []string{"Fc5.", "Cz..", "Iz.."}}
	for c := range rec.Channels {
		row := make([]float64, 2000)
		for i := range row {
			row[i] = 80*math.Sin(float64(i)/float64(10+c)) + float64(c*5)
		}
		rec.Data = append(rec.Data, row)
	}

	seq, err := events.Build([]recording.Annotation{
		{Onset: 0, Label: "T0"},
		{Onset: 4.2, Label: "T1"},
		{Onset: 8.3, Label: "T0"},
		{Onset: 12.4, Label: "T2"},
	}, rec.SamplingRate)
	require.NoError(t, err)

	set, err := epochs.NewBuilder().Extract(rec, []int{0, 1, 2}, seq, epochs.DefaultParams())
	require.NoError(t, err)
	return set
}

func TestSaveLoadEpochs(t *testing.T) {
	root := t.TempDir()
	st := store.New(filepath.Join(root, "processed"), filepath.Join(root, "epochs"), "")
	sub := store.Subject{Name: "S001", Dir: filepath.Join(root, "processed", "S001")}

	set := sampleSet(t)
	require.Equal(t, 2, set.Len())

	meta := store.Meta{PatientID: "X X X X", StartTime: time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC)}
	path, err := st.Save(sub, filepath.Join(sub.Dir, "S001R03.edf"), set, meta)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "epochs", "S001", "S001R03_epochs.edf"), path)

	got, gotMeta, err := store.LoadEpochs(path)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
	assert.Equal(t, set.Channels, got.Channels)
	assert.Equal(t, set.SamplingRate, got.SamplingRate)
	assert.Equal(t, set.TMin, got.TMin)
	assert.Equal(t, set.TMax, got.TMax)
	assert.Equal(t, set.Baseline, got.Baseline)
	assert.Equal(t, set.Samples(), got.Samples())
	require.Equal(t, set.Len(), got.Len())

	for i, want := range set.Epochs {
		have := got.Epochs[i]
		assert.Equal(t, want.Event, have.Event)
		assert.Equal(t, want.Ordinal, have.Ordinal)
		assert.Equal(t, want.Start, have.Start)

		rows, cols := want.Data.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				// 16-bit quantization over a ~200 uV range.
				require.InDelta(t, want.Data.At(r, c), have.Data.At(r, c), 0.01)
			}
		}
	}

	// No temporary files are left next to the outputs.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	f, err := os.Open(store.ManifestPath(path))
	require.NoError(t, err)
	defer f.Close()

	rows, err := store.ReadManifest(f)
	require.NoError(t, err)
	require.Len(t, rows, set.Len()+len(set.Dropped))
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, set.Epochs[0].Event.Sample, rows[0].Sample)
	assert.Equal(t, set.Epochs[0].Event.Code.String(), rows[0].Label)
	assert.Equal(t, -1, rows[len(rows)-1].Index)
	assert.NotEmpty(t, rows[len(rows)-1].DroppedReason)
}

func TestSaveEmptySet(t *testing.T) {
	root := t.TempDir()
	st := store.New(root, filepath.Join(root, "epochs"), "")
	sub := store.Subject{Name: "S009", Dir: filepath.Join(root, "S009")}

	set := &epochs.Set{SamplingRate: 160, Channels: []string{"Cz.."}, TMin: -2, TMax: 2, Baseline: epochs.DefaultParams().Baseline}
	path, err := st.Save(sub, "S009R01.edf", set, store.Meta{StartTime: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	got, _, err := store.LoadEpochs(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"Cz.."}, got.Channels)
}

func TestLoadEpochsRejectsRecordings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "S001R03.edf")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, recording.Write(f, &recording.Recording{
		StartTime:    time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC),
		SamplingRate: 2,
		Channels:     []string{"Cz.."},
		Data:         [][]float64{{1, 2}},
	}))
	require.NoError(t, f.Close())

	_, _, err = store.LoadEpochs(path)
	require.ErrorContains(t, err, "not an epoch file")
}

func TestSaveLoadEpochsParameters(t *testing.T) {
	root := t.TempDir()
	st := store.New(root, filepath.Join(root, "epochs"), "")
	sub := store.Subject{Name: "S001", Dir: filepath.Join(root, "S001")}
	meta := store.Meta{StartTime: time.Date(2009, 8, 12, 16, 15, 0, 0, time.UTC)}

	t.Run("round trip", func(t *testing.T) {
		set := &epochs.Set{
			SamplingRate: 160,
			Channels:     []string{"Cz.."},
			TMin:         -0.125,
			TMax:         1.5,
			Baseline:     epochs.Baseline{Mode: epochs.BaselineWindow, End: -0.0625},
		}
		path, err := st.Save(sub, "S001R03.edf", set, meta)
		require.NoError(t, err)

		got, _, err := store.LoadEpochs(path)
		require.NoError(t, err)
		assert.Equal(t, set.TMin, got.TMin)
		assert.Equal(t, set.TMax, got.TMax)
		assert.Equal(t, set.Baseline, got.Baseline)
	})

	t.Run("too long for the header", func(t *testing.T) {
		set := &epochs.Set{
			SamplingRate: 160,
			Channels:     []string{"Cz.."},
			TMin:         -0.123456789,
			TMax:         1.987654321,
			Baseline:     epochs.Baseline{Mode: epochs.BaselineWindow, End: -0.0123456789},
		}
		_, err := st.Save(sub, "S001R04.edf", set, meta)
		require.ErrorContains(t, err, "recording identification")

		assert.NoFileExists(t, filepath.Join(root, "epochs", "S001", "S001R04_epochs.edf"))
		assert.NoFileExists(t, filepath.Join(root, "epochs", "S001", "S001R04_epochs.csv"))
	})
}
