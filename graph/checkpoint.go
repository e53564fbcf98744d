//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is an immutable snapshot of a thread's state after a step.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint.
	ID string `json:"id"`
	// ThreadID is the thread the checkpoint belongs to.
	ThreadID string `json:"thread_id"`
	// Step is the step index. Steps of a thread strictly increase.
	Step int `json:"step"`
	// Source records why the checkpoint was written.
	Source CheckpointSource `json:"source"`
	// State is the state snapshot.
	State State `json:"state"`
	// NextNode is the node a continued run would execute next, or End.
	NextNode string `json:"next_node"`
	// PendingInterrupt is set when the run is suspended.
	PendingInterrupt *PendingInterrupt `json:"pending_interrupt,omitempty"`
	// CreatedAt is the time the checkpoint was made.
	CreatedAt time.Time `json:"created_at"`
}

// PendingInterrupt correlates a suspended node invocation with the resume
// value that will continue it.
type PendingInterrupt struct {
	// ID identifies the interrupt.
	ID string `json:"id"`
	// NodeID is the node that suspended and will be re-invoked on resume.
	NodeID string `json:"node_id"`
	// Payload is the value the node suspended with.
	Payload any `json:"payload,omitempty"`
	// Resumed holds the answers to earlier Interrupt calls of the same node
	// invocation, in call order.
	Resumed []any `json:"resumed,omitempty"`
	// CreatedAt is the time the node suspended.
	CreatedAt time.Time `json:"created_at"`
}

// NewCheckpoint creates a checkpoint with a fresh ID.
func NewCheckpoint(threadID string, step int, source CheckpointSource, state State, nextNode string) *Checkpoint {
	return &Checkpoint{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Step:      step,
		Source:    source,
		State:     state.Clone(),
		NextNode:  nextNode,
		CreatedAt: time.Now().UTC(),
	}
}

// NewPendingInterrupt creates a pending interrupt for nodeID.
func NewPendingInterrupt(nodeID string, payload any, resumed []any) *PendingInterrupt {
	return &PendingInterrupt{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		Payload:   payload,
		Resumed:   resumed,
		CreatedAt: time.Now().UTC(),
	}
}

// Copy returns a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = c.State.Clone()
	if c.PendingInterrupt != nil {
		pi := *c.PendingInterrupt
		pi.Payload = deepCopy(pi.Payload)
		pi.Resumed = append([]any(nil), pi.Resumed...)
		out.PendingInterrupt = &pi
	}
	return &out
}

// IsInterrupted reports whether the checkpoint holds a pending interrupt.
func (c *Checkpoint) IsInterrupted() bool {
	return c != nil && c.PendingInterrupt != nil
}

// CheckpointSaver stores checkpoints keyed by thread.
//
// Implementations must serialize Save calls for the same thread and keep
// threads independent. Save is append-only: a checkpoint whose Step is not
// greater than the thread's latest step is rejected with ErrStepConflict.
// Returned checkpoints are copies owned by the caller.
type CheckpointSaver interface {
	// Save appends a checkpoint to its thread.
	Save(ctx context.Context, ckpt *Checkpoint) error
	// LoadLatest returns the most recent checkpoint of a thread, or nil if
	// the thread has none.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	// LoadStep returns the checkpoint at step, or ErrCheckpointNotFound.
	LoadStep(ctx context.Context, threadID string, step int) (*Checkpoint, error)
	// List returns up to limit checkpoints, newest first. A limit of zero or
	// less returns all of them.
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	// DeleteThread removes every checkpoint of a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases the saver's resources.
	Close() error
}
