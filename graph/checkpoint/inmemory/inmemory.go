//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage implementation
// for graph execution state persistence and recovery.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Saver provides an in-memory implementation of CheckpointSaver.
// Each thread keeps its own ordered log guarded by its own lock, so threads
// never contend with each other. This is suitable for testing and single
// process use.
type Saver struct {
	mu      sync.RWMutex
	threads map[string]*threadLog
}

type threadLog struct {
	mu          sync.RWMutex
	checkpoints []*graph.Checkpoint // ordered by step
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{threads: make(map[string]*threadLog)}
}

func (s *Saver) thread(threadID string, create bool) *threadLog {
	s.mu.RLock()
	tl, ok := s.threads[threadID]
	s.mu.RUnlock()
	if ok || !create {
		return tl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok = s.threads[threadID]; !ok {
		tl = &threadLog{}
		s.threads[threadID] = tl
	}
	return tl
}

// Save appends a checkpoint to its thread.
func (s *Saver) Save(ctx context.Context, ckpt *graph.Checkpoint) error {
	if ckpt == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if ckpt.ThreadID == "" {
		return graph.ErrThreadIDRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tl := s.thread(ckpt.ThreadID, true)
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if n := len(tl.checkpoints); n > 0 && ckpt.Step <= tl.checkpoints[n-1].Step {
		return fmt.Errorf("%w: thread %s step %d, latest is %d",
			graph.ErrStepConflict, ckpt.ThreadID, ckpt.Step, tl.checkpoints[n-1].Step)
	}
	tl.checkpoints = append(tl.checkpoints, ckpt.Copy())
	return nil
}

// LoadLatest returns the most recent checkpoint of a thread.
func (s *Saver) LoadLatest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	tl := s.thread(threadID, false)
	if tl == nil {
		return nil, nil
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	if len(tl.checkpoints) == 0 {
		return nil, nil
	}
	return tl.checkpoints[len(tl.checkpoints)-1].Copy(), nil
}

// LoadStep returns the checkpoint of a thread at step.
func (s *Saver) LoadStep(ctx context.Context, threadID string, step int) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	tl := s.thread(threadID, false)
	if tl == nil {
		return nil, fmt.Errorf("%w: thread %s step %d", graph.ErrCheckpointNotFound, threadID, step)
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	for _, c := range tl.checkpoints {
		if c.Step == step {
			return c.Copy(), nil
		}
	}
	return nil, fmt.Errorf("%w: thread %s step %d", graph.ErrCheckpointNotFound, threadID, step)
}

// List returns up to limit checkpoints of a thread, newest first.
func (s *Saver) List(ctx context.Context, threadID string, limit int) ([]*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	tl := s.thread(threadID, false)
	if tl == nil {
		return nil, nil
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	n := len(tl.checkpoints)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*graph.Checkpoint, 0, n)
	for i := len(tl.checkpoints) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, tl.checkpoints[i].Copy())
	}
	return out, nil
}

// DeleteThread removes all checkpoints of a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = make(map[string]*threadLog)
	return nil
}
