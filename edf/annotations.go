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
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	talDuration  = 0x15
	talSeparator = 0x14
	talEnd       = 0x00
)

// TAL is an EDF+ Time-stamped Annotations List entry.
type TAL struct {
	Onset       float64  // Seconds relative to the start of the recording
	Duration    float64  // Seconds, zero if not specified
	Annotations []string // Annotation texts, empty for a timekeeping TAL
}

// MarshalBinary encodes the TAL as "+onset[\x15duration]\x14text\x14...\x00".
func (t TAL) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(formatOnset(t.Onset))
	if t.Duration > 0 {
		buf.WriteByte(talDuration)
		buf.WriteString(strconv.FormatFloat(t.Duration, 'f', -1, 64))
	}
	buf.WriteByte(talSeparator)

	if len(t.Annotations) == 0 {
		// Timekeeping TALs carry a single empty annotation.
		buf.WriteByte(talSeparator)
	}
	for _, a := range t.Annotations {
		if strings.ContainsAny(a, "\x00\x14\x15") {
			return nil, fmt.Errorf("annotation %q contains a reserved TAL byte", a)
		}
		buf.WriteString(a)
		buf.WriteByte(talSeparator)
	}
	buf.WriteByte(talEnd)

	return buf.Bytes(), nil
}

// EncodeTALs concatenates the encoded TALs.
func EncodeTALs(tals []TAL) ([]byte, error) {
	var out []byte
	for _, t := range tals {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeTALs parses the raw bytes of an annotation signal. Trailing zero
// padding is ignored.
func DecodeTALs(b []byte) ([]TAL, error) {
	var tals []TAL
	for _, raw := range bytes.Split(b, []byte{talEnd}) {
		if len(raw) == 0 {
			continue
		}

		parts := bytes.Split(raw, []byte{talSeparator})
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed TAL %q", raw)
		}

		var t TAL
		timing := parts[0]
		if i := bytes.IndexByte(timing, talDuration); i >= 0 {
			d, err := strconv.ParseFloat(string(timing[i+1:]), 64)
			if err != nil {
				return nil, fmt.Errorf("error parsing TAL duration: %w", err)
			}
			t.Duration = d
			timing = timing[:i]
		}

		onset, err := strconv.ParseFloat(string(timing), 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing TAL onset: %w", err)
		}
		t.Onset = onset

		for _, a := range parts[1:] {
			if len(a) > 0 {
				t.Annotations = append(t.Annotations, string(a))
			}
		}

		tals = append(tals, t)
	}

	return tals, nil
}

func formatOnset(onset float64) string {
	s := strconv.FormatFloat(onset, 'f', -1, 64)
	if onset >= 0 {
		return "+" + s
	}
	return s
}
