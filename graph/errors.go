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
	"errors"
	"fmt"
)

// Errors.
var (
	ErrConfiguration      = errors.New("graph configuration error")
	ErrRouting            = errors.New("graph routing error")
	ErrExecution          = errors.New("graph execution error")
	ErrInterruptMismatch  = errors.New("interrupt mismatch")
	ErrToolNotFound       = errors.New("tool not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrStepConflict       = errors.New("checkpoint step conflict")
	ErrMaxStepsExceeded   = errors.New("max steps exceeded")
	ErrThreadIDRequired   = errors.New("thread_id is required")
	ErrNoCheckpointSaver  = errors.New("executor has no checkpoint saver")
)

// ConfigurationError reports an invalid graph definition found by Compile.
type ConfigurationError struct {
	// NodeID is the node the problem was found on, if any.
	NodeID string
	// Edge describes the offending edge as "from -> to", if any.
	Edge   string
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Edge != "":
		return fmt.Sprintf("invalid graph: edge %s: %s", e.Edge, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("invalid graph: node %s: %s", e.NodeID, e.Reason)
	default:
		return "invalid graph: " + e.Reason
	}
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// RoutingError reports a router result with no matching path.
type RoutingError struct {
	NodeID string
	Key    string
	// Err is set when the router itself failed.
	Err error
}

// Error implements error.
func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing from node %s failed: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("routing from node %s: key %q has no path", e.NodeID, e.Key)
}

// Is reports whether target is ErrRouting.
func (e *RoutingError) Is(target error) bool {
	return target == ErrRouting
}

// Unwrap returns the router error.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps a failure raised while running a node.
type ExecutionError struct {
	NodeID string
	Step   int
	Err    error
}

// Error implements error.
func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("execution failed at step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("node %s failed at step %d: %v", e.NodeID, e.Step, e.Err)
}

// Is reports whether target is ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// Unwrap returns the underlying failure.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ToolNotFoundError is returned by the tools node for a call naming an
// unregistered tool.
type ToolNotFoundError struct {
	Name string
}

// Error implements error.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %s not found", e.Name)
}

// Is reports whether target is ErrToolNotFound.
func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}
