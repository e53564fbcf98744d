//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "time"

// EventType distinguishes the events of a run.
type EventType string

// Event types.
const (
	// EventTypeStep is emitted after a node's update has been merged and
	// checkpointed.
	EventTypeStep EventType = "graph.step"
	// EventTypeInterrupt is emitted when the run suspends. It is the last
	// event of the run.
	EventTypeInterrupt EventType = "graph.interrupt"
	// EventTypeComplete is emitted when the run reaches End. It is the last
	// event of the run.
	EventTypeComplete EventType = "graph.complete"
	// EventTypeError is emitted when the run aborts. It is the last event of
	// the run.
	EventTypeError EventType = "graph.error"
)

// Event is a single item of a run's output stream.
type Event struct {
	Type     EventType
	ThreadID string
	// Step is the step index of the checkpoint the event follows.
	Step int
	// NodeID is the node that produced the event, if any.
	NodeID string
	// State is a snapshot of the state after the step.
	State State
	// Interrupt is set on EventTypeInterrupt.
	Interrupt *PendingInterrupt
	// Err is set on EventTypeError.
	Err       error
	Timestamp time.Time
}

// IsTerminal reports whether the event ends the stream.
func (e *Event) IsTerminal() bool {
	switch e.Type {
	case EventTypeInterrupt, EventTypeComplete, EventTypeError:
		return true
	default:
		return false
	}
}

func newEvent(typ EventType, threadID string, step int, nodeID string, state State) *Event {
	return &Event{
		Type:      typ,
		ThreadID:  threadID,
		Step:      step,
		NodeID:    nodeID,
		State:     state.Clone(),
		Timestamp: time.Now().UTC(),
	}
}
