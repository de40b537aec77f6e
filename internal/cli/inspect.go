// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/events"
	"github.com/OpenPSG/epocher/internal/store"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <epochs.edf>",
		Short: "Describe an epoch file",
		Long: `Print the window, baseline, channels and per-event counts of an epoch file
written by "epocher run".

Example:
  epocher inspect ./epochs/S001/S001R03_epochs.edf`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, meta, err := store.LoadEpochs(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read epoch file", err)
			}

			if rootOpts.Verbose && meta.PatientID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "patient:   %s\n", meta.PatientID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "start:     %s\n", meta.StartTime.Format("2006-01-02 15:04:05"))
			return describeSet(cmd.OutOrStdout(), set)
		},
	}
}

func describeSet(w io.Writer, set *epochs.Set) error {
	fmt.Fprintf(w, "sfreq:     %g Hz\n", set.SamplingRate)
	fmt.Fprintf(w, "window:    [%g, %g] s, %d samples\n", set.TMin, set.TMax, set.Samples())
	fmt.Fprintf(w, "baseline:  %s\n", set.Baseline)
	fmt.Fprintf(w, "channels:  %d (%s)\n", len(set.Channels), strings.Join(set.Channels, ", "))
	fmt.Fprintf(w, "epochs:    %d\n", set.Len())

	counts := set.Counts()
	for _, code := range events.Codes() {
		if n := counts[code]; n > 0 {
			fmt.Fprintf(w, "  %-6s %d\n", code, n)
		}
	}
	return nil
}
