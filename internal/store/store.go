// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package store lays out recordings and epoch files on disk: one directory
// per subject under the input root, mirrored under the output root.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/recording"
)

// SubjectPrefix starts the name of every subject directory.
const SubjectPrefix = "S"

// Subject is one subject directory.
type Subject struct {
	Name string
	Dir  string
}

// Store reads recordings from InputDir and writes epochs under OutputDir.
type Store struct {
	InputDir  string
	OutputDir string
	Pattern   string // Glob matched against recording file names
}

// New returns a Store. An empty pattern matches "*.edf".
func New(inputDir, outputDir, pattern string) *Store {
	if pattern == "" {
		pattern = "*.edf"
	}
	return &Store{InputDir: inputDir, OutputDir: outputDir, Pattern: pattern}
}

// Subjects lists the subject directories in name order.
func (s *Store) Subjects() ([]Subject, error) {
	entries, err := os.ReadDir(s.InputDir)
	if err != nil {
		return nil, fmt.Errorf("error reading input directory: %w", err)
	}

	var subjects []Subject
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), SubjectPrefix) {
			subjects = append(subjects, Subject{Name: e.Name(), Dir: filepath.Join(s.InputDir, e.Name())})
		}
	}

	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// Recordings lists the recording files of a subject in name order.
func (s *Store) Recordings(sub Subject) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(sub.Dir, s.Pattern))
	if err != nil {
		return nil, fmt.Errorf("error listing recordings: %w", err)
	}

	var out []string
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil && fi.Mode().IsRegular() {
			out = append(out, f)
		}
	}

	sort.Strings(out)
	return out, nil
}

// Load reads a recording file.
func (s *Store) Load(path string) (*recording.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec, err := recording.Read(f)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// OutputPath returns where the epochs of a recording are written.
func (s *Store) OutputPath(sub Subject, recordingPath string) string {
	stem := strings.TrimSuffix(filepath.Base(recordingPath), filepath.Ext(recordingPath))
	return filepath.Join(s.OutputDir, sub.Name, stem+"_epochs.edf")
}

// Save writes the epoch file and its CSV manifest, returning the epoch
// file path. Files are written under temporary names and renamed once
// complete, so a failed save leaves nothing behind.
func (s *Store) Save(sub Subject, recordingPath string, set *epochs.Set, meta Meta) (string, error) {
	path := s.OutputPath(sub, recordingPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}

	manifest := ManifestPath(path)
	if err := writeAtomic(path, func(f *os.File) error { return WriteEpochs(f, set, meta) }); err != nil {
		return "", err
	}
	if err := writeAtomic(manifest, func(f *os.File) error { return WriteManifest(f, set) }); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return path, nil
}

// ManifestPath returns the CSV manifest path next to an epoch file.
func ManifestPath(epochPath string) string {
	return strings.TrimSuffix(epochPath, filepath.Ext(epochPath)) + ".csv"
}

// LoadEpochs reads an epoch file written by Save.
func LoadEpochs(path string) (*epochs.Set, Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, err
	}
	defer f.Close()

	return ReadEpochs(f)
}

func writeAtomic(path string, write func(f *os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filepath.Base(path), err)
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("error writing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
