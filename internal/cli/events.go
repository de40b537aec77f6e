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
	"github.com/OpenPSG/epocher/internal/events"
	"github.com/OpenPSG/epocher/internal/store"
	"github.com/spf13/cobra"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <recording.edf>",
		Short: "Print the event sequence of a recording",
		Long: `Print the events, transitions included, that "epocher run" would epoch,
one per line as sample, reserved, code and label.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := store.New("", "", "").Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read recording", err)
			}

			seq, err := events.Build(rec.Annotations, rec.SamplingRate)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build events", err)
			}

			if rootOpts.Verbose {
				rootOpts.logger(cmd.ErrOrStderr()).Debug("built events",
					"annotations", len(rec.Annotations), "events", len(seq), "sfreq", rec.SamplingRate)
			}
			return seq.Format(cmd.OutOrStdout())
		},
	}
}
