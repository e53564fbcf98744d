//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

// State map keys used by the message-oriented nodes.
const (
	// StateKeyUserInput is the key of the user input.
	StateKeyUserInput = "user_input"
	// StateKeyLastResponse is the key of the last model response text.
	StateKeyLastResponse = "last_response"
	// StateKeyMessages is the key of the message history.
	// It is appended to by the LLM and tools nodes.
	StateKeyMessages = "messages"
	// StateKeyMetadata is the key of free-form metadata.
	StateKeyMetadata = "metadata"
)

// CheckpointSource enumerates why a checkpoint was written.
type CheckpointSource string

// Checkpoint sources.
const (
	// SourceInput marks the checkpoint written after merging run input.
	SourceInput CheckpointSource = "input"
	// SourceLoop marks a checkpoint written after a node's update was merged.
	SourceLoop CheckpointSource = "loop"
	// SourceInterrupt marks a checkpoint holding a pending interrupt.
	SourceInterrupt CheckpointSource = "interrupt"
)

// Span and metric names.
const (
	spanRunGraph     = "run_graph"
	spanExecuteNode  = "execute_node"
	metricSteps      = "graph.steps"
	metricInterrupts = "graph.interrupts"
	metricRuns       = "graph.runs"

	attrThreadID = "trpc.go.graph.thread_id"
	attrNodeID   = "trpc.go.graph.node_id"
	attrStep     = "trpc.go.graph.step"
	attrOutcome  = "trpc.go.graph.outcome"
	attrError    = "trpc.go.graph.error"
)
