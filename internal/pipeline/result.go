// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pipeline

import (
	"errors"

	"github.com/OpenPSG/epocher/internal/channels"
	"github.com/OpenPSG/epocher/internal/events"
)

// ErrMissingInputDirectory aborts a run that finds no subject directories.
var ErrMissingInputDirectory = errors.New("no subject directories found")

// errNoEpochs skips a recording whose events all fell outside the data.
var errNoEpochs = errors.New("no epochs")

// Status is the outcome of one recording.
type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of processing one recording.
type Result struct {
	Subject string
	File    string // Recording path
	Status  Status
	Reason  string // Why the recording was skipped or failed
	Err     error
	Epochs  int
	Dropped int
	Output  string // Epoch file path, set when Status is StatusOK
}

// Classify maps a processing error to the status it warrants. Recordings
// without usable events or channels are skipped; anything else is a failure.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, events.ErrInsufficientEvents),
		errors.Is(err, events.ErrNoValidEvents),
		errors.Is(err, channels.ErrNoValidChannels),
		errors.Is(err, errNoEpochs):
		return StatusSkipped
	}
	return StatusFailed
}

// Summary totals the results of a run.
type Summary struct {
	Results []Result
	OK      int
	Skipped int
	Failed  int
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusOK:
		s.OK++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}
