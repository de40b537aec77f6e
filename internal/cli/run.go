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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/OpenPSG/epocher/internal/config"
	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/ledger"
	"github.com/OpenPSG/epocher/internal/pipeline"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config    string
	Input     string
	Output    string
	Pattern   string
	Workers   int
	Ledger    string
	KeepEmpty bool
	Channels  []string
	TMin      float64
	TMax      float64
	Baseline  string
	Policy    string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Epoch every recording of every subject",
		Long: `Epoch every recording found under the input directory.

Flags override the values read from --config. Recordings that have too few
events or no wanted channels are skipped; recordings that fail are reported
and the run carries on.

Example:
  epocher run --input ./processed --output ./epochs
  epocher run --config epocher.yaml --workers 8 --ledger runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "directory holding one S* directory per subject")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "directory receiving the epoch files (default: epochs next to input)")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", defaults.Pattern, "glob selecting recordings inside a subject directory")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "j", defaults.Workers, "recordings processed at once")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "SQLite database recording the run")
	cmd.Flags().BoolVar(&opts.KeepEmpty, "keep-empty", false, "write an epoch file even when every event was dropped")
	cmd.Flags().StringSliceVar(&opts.Channels, "channels", nil, "channel labels to keep (default: the 64 scalp electrodes)")
	cmd.Flags().Float64Var(&opts.TMin, "tmin", defaults.Epochs.TMin, "window start in seconds relative to the event")
	cmd.Flags().Float64Var(&opts.TMax, "tmax", defaults.Epochs.TMax, "window end in seconds relative to the event")
	cmd.Flags().StringVar(&opts.Baseline, "baseline", defaults.Epochs.Baseline.String(), "baseline as mode:end, mode is window, recording or none")
	cmd.Flags().StringVar(&opts.Policy, "policy", string(defaults.Epochs.Policy), "duplicate event policy (drop|drop-same-code|error)")

	return cmd
}

// buildConfig reads --config, then applies the flags that were set.
func buildConfig(cmd *cobra.Command, opts *RunOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputDir = opts.Input
	}
	if flags.Changed("output") {
		cfg.OutputDir = opts.Output
	}
	if flags.Changed("pattern") {
		cfg.Pattern = opts.Pattern
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("ledger") {
		cfg.Ledger = opts.Ledger
	}
	if flags.Changed("keep-empty") {
		cfg.KeepEmpty = opts.KeepEmpty
	}
	if flags.Changed("channels") {
		cfg.Channels = opts.Channels
	}
	if flags.Changed("tmin") {
		cfg.Epochs.TMin = opts.TMin
	}
	if flags.Changed("tmax") {
		cfg.Epochs.TMax = opts.TMax
	}
	if flags.Changed("baseline") {
		b, err := epochs.ParseBaseline(opts.Baseline)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Epochs.Baseline = b
	}
	if flags.Changed("policy") {
		p, err := epochs.ParsePolicy(opts.Policy)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Epochs.Policy = p
	}

	return cfg, nil
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	var ldg *ledger.Ledger
	var runID string
	ledgerCtx := context.Background()

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Ledger != "" {
		if ldg, err = ledger.Open(cfg.Ledger); err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := ldg.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()

		pipelineOpts = append(pipelineOpts, pipeline.WithObserver(func(r pipeline.Result) {
			err := ldg.RecordFile(ledgerCtx, ledger.File{
				RunID:   runID,
				Subject: r.Subject,
				File:    filepath.Base(r.File),
				Status:  r.Status.String(),
				Reason:  r.Reason,
				Epochs:  r.Epochs,
				Dropped: r.Dropped,
				Output:  r.Output,
			})
			if err != nil {
				logger.Error("error recording file", "file", r.File, "error", err)
			}
		}))
	}

	p, err := pipeline.New(cfg, pipelineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	cfg = p.Config()

	if ldg != nil {
		if runID, err = ldg.BeginRun(ledgerCtx, cfg.InputDir, cfg.OutputDir); err != nil {
			return WrapExitError(ExitCommandError, "failed to start ledger run", err)
		}
		logger.Info("recording run", "ledger", cfg.Ledger, "run", runID)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, finishing current recordings", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting run",
		"input", cfg.InputDir, "output", cfg.OutputDir, "workers", cfg.Workers,
		"tmin", cfg.Epochs.TMin, "tmax", cfg.Epochs.TMax,
		"baseline", cfg.Epochs.Baseline.String(), "policy", cfg.Epochs.Policy)

	summary, err := p.Run(ctx)

	// Every run begun in the ledger is finished, even one that found nothing.
	if ldg != nil {
		var counts pipeline.Summary
		if summary != nil {
			counts = *summary
		}
		if finishErr := ldg.FinishRun(ledgerCtx, runID, counts.OK, counts.Skipped, counts.Failed); finishErr != nil {
			logger.Error("error finishing ledger run", "error", finishErr)
		}
	}

	if errors.Is(err, pipeline.ErrMissingInputDirectory) {
		return WrapExitError(ExitCommandError, "nothing to process", err)
	}

	if summary != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%d recordings: %d ok, %d skipped, %d failed\n",
			len(summary.Results), summary.OK, summary.Skipped, summary.Failed)
	}

	if err != nil {
		return WrapExitError(ExitFailure, "run interrupted", err)
	}
	return nil
}
