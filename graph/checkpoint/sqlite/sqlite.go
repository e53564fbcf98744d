//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-based checkpoint storage implementation
// for graph execution state persistence and recovery.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS graph_checkpoints (" +
		"thread_id TEXT NOT NULL, " +
		"step INTEGER NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"source TEXT NOT NULL, " +
		"next_node TEXT NOT NULL, " +
		"state_json BLOB NOT NULL, " +
		"interrupt_json BLOB, " +
		"ts INTEGER NOT NULL, " +
		"PRIMARY KEY (thread_id, step)" +
		")"

	sqliteSelectMaxStep = "SELECT MAX(step) FROM graph_checkpoints WHERE thread_id = ?"

	sqliteInsertCheckpoint = "INSERT INTO graph_checkpoints (" +
		"thread_id, step, checkpoint_id, source, next_node, state_json, interrupt_json, ts) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	sqliteColumns = "thread_id, step, checkpoint_id, source, next_node, state_json, interrupt_json, ts"

	sqliteSelectLatest = "SELECT " + sqliteColumns + " FROM graph_checkpoints " +
		"WHERE thread_id = ? ORDER BY step DESC LIMIT 1"

	sqliteSelectStep = "SELECT " + sqliteColumns + " FROM graph_checkpoints " +
		"WHERE thread_id = ? AND step = ?"

	sqliteSelectList = "SELECT " + sqliteColumns + " FROM graph_checkpoints " +
		"WHERE thread_id = ? ORDER BY step DESC"

	sqliteDeleteThread = "DELETE FROM graph_checkpoints WHERE thread_id = ?"
)

// Saver is a SQLite-backed implementation of CheckpointSaver.
// It expects an initialized *sql.DB and will create the required schema.
// State and interrupt payloads are stored as JSON; declared state fields
// regain their Go types through the graph's schema when loaded by an
// executor. The DB is owned by the caller and is not closed by Close.
type Saver struct {
	db *sql.DB
	// locks serializes saves per thread within this process.
	locks sync.Map // thread ID -> *sync.Mutex
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates a new saver using the provided DB.
// The DB must use a SQLite driver. The constructor creates tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Saver{db: db}, nil
}

func (s *Saver) lock(threadID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Save appends a checkpoint to its thread inside a transaction.
func (s *Saver) Save(ctx context.Context, ckpt *graph.Checkpoint) error {
	if ckpt == nil {
		return errors.New("checkpoint is nil")
	}
	if ckpt.ThreadID == "" {
		return graph.ErrThreadIDRequired
	}
	stateJSON, err := json.Marshal(ckpt.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	var interruptJSON []byte
	if ckpt.PendingInterrupt != nil {
		if interruptJSON, err = json.Marshal(ckpt.PendingInterrupt); err != nil {
			return fmt.Errorf("marshal pending interrupt: %w", err)
		}
	}

	mu := s.lock(ckpt.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx, sqliteSelectMaxStep, ckpt.ThreadID).Scan(&latest); err != nil {
		return fmt.Errorf("select latest step: %w", err)
	}
	if latest.Valid && int64(ckpt.Step) <= latest.Int64 {
		return fmt.Errorf("%w: thread %s step %d, latest is %d",
			graph.ErrStepConflict, ckpt.ThreadID, ckpt.Step, latest.Int64)
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertCheckpoint,
		ckpt.ThreadID, ckpt.Step, ckpt.ID, string(ckpt.Source), ckpt.NextNode,
		stateJSON, interruptJSON, ckpt.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent checkpoint of a thread.
func (s *Saver) LoadLatest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	ckpt, err := scanCheckpoint(s.db.QueryRowContext(ctx, sqliteSelectLatest, threadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ckpt, err
}

// LoadStep returns the checkpoint of a thread at step.
func (s *Saver) LoadStep(ctx context.Context, threadID string, step int) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	ckpt, err := scanCheckpoint(s.db.QueryRowContext(ctx, sqliteSelectStep, threadID, step))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: thread %s step %d", graph.ErrCheckpointNotFound, threadID, step)
	}
	return ckpt, err
}

// List returns up to limit checkpoints of a thread, newest first.
func (s *Saver) List(ctx context.Context, threadID string, limit int) ([]*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	query, args := sqliteSelectList, []any{threadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()
	var out []*graph.Checkpoint
	for rows.Next() {
		ckpt, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ckpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// DeleteThread removes all checkpoints of a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	mu := s.lock(threadID)
	mu.Lock()
	defer mu.Unlock()
	if _, err := s.db.ExecContext(ctx, sqliteDeleteThread, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*graph.Checkpoint, error) {
	var (
		ckpt          graph.Checkpoint
		source        string
		stateJSON     []byte
		interruptJSON []byte
		ts            int64
	)
	if err := row.Scan(&ckpt.ThreadID, &ckpt.Step, &ckpt.ID, &source, &ckpt.NextNode,
		&stateJSON, &interruptJSON, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	ckpt.Source = graph.CheckpointSource(source)
	ckpt.CreatedAt = time.Unix(0, ts).UTC()
	ckpt.State = graph.State{}
	if err := json.Unmarshal(stateJSON, &ckpt.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if len(interruptJSON) > 0 {
		var pi graph.PendingInterrupt
		if err := json.Unmarshal(interruptJSON, &pi); err != nil {
			return nil, fmt.Errorf("unmarshal pending interrupt: %w", err)
		}
		ckpt.PendingInterrupt = &pi
	}
	return &ckpt, nil
}
