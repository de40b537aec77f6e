// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package events

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLabel is matched by every *UnknownLabelError.
	ErrUnknownLabel = errors.New("unknown event label")
	// ErrInsufficientEvents means the recording has fewer than two annotations.
	ErrInsufficientEvents = errors.New("not enough events")
	// ErrNoValidEvents means no events remained after merging.
	ErrNoValidEvents = errors.New("no valid events")
)

// UnknownLabelError reports an annotation whose label is not in the mapping.
type UnknownLabelError struct {
	Label string
	Onset float64
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown event label %q at %gs", e.Label, e.Onset)
}

// Is makes errors.Is(err, ErrUnknownLabel) hold.
func (e *UnknownLabelError) Is(target error) bool {
	return target == ErrUnknownLabel
}
