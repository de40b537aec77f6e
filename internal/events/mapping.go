// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package events turns raw recording annotations into the time-ordered
// event sequence that epochs are anchored on.
package events

import "strconv"

// Code is the integer identifier of an event label.
type Code int

const (
	T0   Code = 1 // Rest
	T1   Code = 2
	T2   Code = 3
	T0T1 Code = 4 // Rest to T1
	T1T0 Code = 5
	T0T2 Code = 6
	T2T0 Code = 7
)

var labels = map[Code]string{
	T0:   "T0",
	T1:   "T1",
	T2:   "T2",
	T0T1: "T0_T1",
	T1T0: "T1_T0",
	T0T2: "T0_T2",
	T2T0: "T2_T0",
}

var codes = func() map[string]Code {
	m := make(map[string]Code, len(labels))
	for c, l := range labels {
		m[l] = c
	}
	return m
}()

// Lookup maps a label to its code.
func Lookup(label string) (Code, bool) {
	c, ok := codes[label]
	return c, ok
}

// Codes returns every known code in ascending order.
func Codes() []Code {
	return []Code{T0, T1, T2, T0T1, T1T0, T0T2, T2T0}
}

// String returns the label of the code.
func (c Code) String() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is part of the mapping.
func (c Code) Valid() bool {
	_, ok := labels[c]
	return ok
}
