// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package ledger keeps a SQLite record of epoching runs and the outcome of
// every recording they touched.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	input_dir   TEXT NOT NULL,
	output_dir  TEXT NOT NULL,
	ok          INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	subject TEXT NOT NULL,
	file    TEXT NOT NULL,
	status  TEXT NOT NULL,
	reason  TEXT NOT NULL DEFAULT '',
	epochs  INTEGER NOT NULL DEFAULT 0,
	dropped INTEGER NOT NULL DEFAULT 0,
	output  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, subject, file)
);
`

// Run is one row of the runs table.
type Run struct {
	ID         string     `db:"id"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	InputDir   string     `db:"input_dir"`
	OutputDir  string     `db:"output_dir"`
	OK         int        `db:"ok"`
	Skipped    int        `db:"skipped"`
	Failed     int        `db:"failed"`
}

// File is the outcome of one recording within a run.
type File struct {
	RunID   string `db:"run_id"`
	Subject string `db:"subject"`
	File    string `db:"file"`
	Status  string `db:"status"`
	Reason  string `db:"reason"`
	Epochs  int    `db:"epochs"`
	Dropped int    `db:"dropped"`
	Output  string `db:"output"`
}

// Ledger wraps the database.
type Ledger struct {
	db *sqlx.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginRun inserts a new run and returns its id.
func (l *Ledger) BeginRun(ctx context.Context, inputDir, outputDir string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, input_dir, output_dir) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC(), inputDir, outputDir)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// RecordFile stores the outcome of one recording.
func (l *Ledger) RecordFile(ctx context.Context, f File) error {
	_, err := l.db.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO files (run_id, subject, file, status, reason, epochs, dropped, output)
		 VALUES (:run_id, :subject, :file, :status, :reason, :epochs, :dropped, :output)`, f)
	if err != nil {
		return fmt.Errorf("failed to record file %s: %w", f.File, err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, ok, skipped, failed int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, ok = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), ok, skipped, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Run returns a run by id.
func (l *Ledger) Run(ctx context.Context, runID string) (*Run, error) {
	var r Run
	if err := l.db.GetContext(ctx, &r, `SELECT * FROM runs WHERE id = ?`, runID); err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs returns every run, most recent first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := l.db.SelectContext(ctx, &runs, `SELECT * FROM runs ORDER BY started_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return runs, nil
}

// Files returns the recorded files of a run ordered by subject and file.
func (l *Ledger) Files(ctx context.Context, runID string) ([]File, error) {
	var files []File
	err := l.db.SelectContext(ctx, &files,
		`SELECT * FROM files WHERE run_id = ? ORDER BY subject, file`, runID)
	if err != nil {
		return nil, err
	}
	return files, nil
}
