// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package pipeline epochs every recording of every subject. Each recording is
// handled on its own; a recording that cannot be epoched is reported and
// the run moves on.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/OpenPSG/epocher/internal/channels"
	"github.com/OpenPSG/epocher/internal/config"
	"github.com/OpenPSG/epocher/internal/epochs"
	"github.com/OpenPSG/epocher/internal/events"
	"github.com/OpenPSG/epocher/internal/store"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithExtractor replaces the epoch extractor.
func WithExtractor(x epochs.Extractor) Option {
	return func(p *Pipeline) {
		p.extractor = x
	}
}

// WithObserver registers a function called with every result once the run
// has finished, in subject and file order.
func WithObserver(fn func(Result)) Option {
	return func(p *Pipeline) {
		p.observe = fn
	}
}

// Pipeline runs the epoching of a directory tree.
type Pipeline struct {
	cfg       config.Config
	store     *store.Store
	extractor epochs.Extractor
	logger    *slog.Logger
	observe   func(Result)
}

// New validates cfg and returns a Pipeline bound to it.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	cfg = cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     store.New(cfg.InputDir, cfg.OutputDir, cfg.Pattern),
		extractor: epochs.NewBuilder(),
		logger:    slog.Default(),
		observe:   func(Result) {},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

type job struct {
	subject store.Subject
	file    string
}

// Run processes every recording. It fails only when no subject directory
// can be found; per-recording problems end up in the Summary. Cancelling
// ctx stops new recordings from starting and Run returns ctx.Err() along
// with the results gathered so far.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	subjects, err := p.store.Subjects()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingInputDirectory, err)
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrMissingInputDirectory, p.cfg.InputDir)
	}

	names := make([]string, len(subjects))
	for i, s := range subjects {
		names[i] = s.Name
	}
	p.logger.Info("found subject directories", "count", len(subjects), "subjects", names)

	var jobs []job
	for _, sub := range subjects {
		files, err := p.store.Recordings(sub)
		if err != nil {
			p.logger.Error("failed to list recordings", "subject", sub.Name, "error", err)
			continue
		}
		if len(files) == 0 {
			p.logger.Warn("no recording files found", "subject", sub.Name, "dir", sub.Dir)
			continue
		}

		p.logger.Info("queued subject", "subject", sub.Name, "files", len(files))
		for _, f := range files {
			jobs = append(jobs, job{subject: sub, file: f})
		}
	}

	results := make([]Result, len(jobs))
	started := make([]bool, len(jobs))

	semaphore := make(chan struct{}, p.cfg.Workers)
	var pool sync.WaitGroup

dispatch:
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		started[i] = true
		pool.Add(1)
		go func(i int, j job) {
			defer pool.Done()
			defer func() { <-semaphore }()

			results[i] = p.ProcessFile(j.subject, j.file)
		}(i, j)
	}
	pool.Wait()

	summary := &Summary{}
	for i, r := range results {
		if started[i] {
			summary.add(r)
			p.observe(r)
		}
	}

	if err := ctx.Err(); err != nil {
		p.logger.Warn("run interrupted", "processed", len(summary.Results), "remaining", len(jobs)-len(summary.Results))
		return summary, err
	}

	p.logger.Info("all subjects processed", "ok", summary.OK, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// ProcessFile epochs one recording and saves the result. It never panics;
// every outcome is reported through the returned Result.
func (p *Pipeline) ProcessFile(sub store.Subject, path string) (res Result) {
	res = Result{Subject: sub.Name, File: path}
	logger := p.logger.With("subject", sub.Name, "file", filepath.Base(path))

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("panic: %v", r)
			res.Reason = res.Err.Error()
			logger.Error("failed to process recording", "error", res.Err)
		}
	}()

	logger.Info("processing recording")

	set, out, err := p.process(sub, path, logger)
	res.Status = Classify(err)
	switch res.Status {
	case StatusOK:
		res.Output = out
		res.Epochs = set.Len()
		res.Dropped = len(set.Dropped)
		logger.Info("saved epochs", "path", out, "epochs", res.Epochs, "dropped", res.Dropped)
	case StatusSkipped:
		res.Reason = err.Error()
		logger.Warn("skipping recording", "reason", res.Reason)
	default:
		res.Err = err
		res.Reason = err.Error()
		logger.Error("failed to process recording", "error", err)
	}

	return res
}

func (p *Pipeline) process(sub store.Subject, path string, logger *slog.Logger) (*epochs.Set, string, error) {
	rec, err := p.store.Load(path)
	if err != nil {
		return nil, "", err
	}

	labels := make([]string, len(rec.Annotations))
	for i, a := range rec.Annotations {
		labels[i] = a.Label
	}
	logger.Debug("annotations", "count", len(labels), "labels", labels)

	seq, err := events.Normalize(rec.Annotations, rec.SamplingRate)
	if err != nil {
		return nil, "", err
	}

	transitions := events.DetectTransitions(seq)
	seq, err = events.Merge(seq, transitions)
	if err != nil {
		return nil, "", err
	}
	logger.Debug("events", "events", len(seq), "transitions", len(transitions))

	picks, err := channels.Select(rec.Channels, p.cfg.Channels)
	if err != nil {
		return nil, "", err
	}

	set, err := p.extractor.Extract(rec, picks, seq, p.cfg.Epochs)
	if err != nil {
		return nil, "", fmt.Errorf("error extracting epochs: %w", err)
	}
	if set.Len() == 0 && !p.cfg.KeepEmpty {
		return nil, "", fmt.Errorf("%w: all %d events dropped", errNoEpochs, len(set.Dropped))
	}

	out, err := p.store.Save(sub, path, set, store.Meta{PatientID: rec.PatientID, StartTime: rec.StartTime})
	if err != nil {
		return nil, "", err
	}

	return set, out, nil
}
