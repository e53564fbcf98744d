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
	"errors"
	"fmt"
	"sync"
	"time"
)

type resultKind int

const (
	resultContinue resultKind = iota
	resultSuspend
)

// Result is the outcome of a node handler: either a partial state update to
// merge, or a suspension carrying a payload for the caller.
// The zero Result continues with no update.
type Result struct {
	kind    resultKind
	update  State
	payload any
}

// Continue returns a result that merges update into the state and moves on.
func Continue(update State) Result {
	return Result{kind: resultContinue, update: update}
}

// Suspend returns a result that pauses the run. The handler's state update is
// dropped and payload is surfaced to the caller. Resuming the thread invokes
// the same node again.
func Suspend(payload any) Result {
	return Result{kind: resultSuspend, payload: payload}
}

// IsSuspend reports whether the result suspends the run.
func (r Result) IsSuspend() bool {
	return r.kind == resultSuspend
}

// Update returns the partial state of a Continue result.
func (r Result) Update() State {
	return r.update
}

// Payload returns the payload of a Suspend result.
func (r Result) Payload() any {
	return r.payload
}

// InterruptError is returned by Interrupt when the handler must suspend.
// Handlers propagate it as an ordinary error and the executor turns it into
// a suspension.
type InterruptError struct {
	// Value is the value that was passed to Interrupt.
	Value any
	// NodeID is the ID of the node where the interrupt occurred.
	NodeID string
	// Step is the step number when the interrupt occurred.
	Step int
	// Timestamp is when the interrupt occurred.
	Timestamp time.Time
}

// Error returns the error message for the interrupt.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("graph interrupted at node %s (step %d): %v", e.NodeID, e.Step, e.Value)
}

// NewInterruptError creates a new InterruptError with the given value.
func NewInterruptError(value any) *InterruptError {
	return &InterruptError{
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
}

// IsInterruptError checks if an error is, or wraps, an InterruptError.
func IsInterruptError(err error) bool {
	_, ok := GetInterruptError(err)
	return ok
}

// GetInterruptError extracts InterruptError from an error.
func GetInterruptError(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// interruptScope tracks the interrupt calls of one node invocation.
type interruptScope struct {
	mu sync.Mutex
	// values holds the resume values answered so far, one per earlier
	// Interrupt call of the same invocation, in call order.
	values []any
	next   int
	raised bool
}

type interruptScopeKey struct{}

func withInterruptScope(ctx context.Context, scope *interruptScope) context.Context {
	return context.WithValue(ctx, interruptScopeKey{}, scope)
}

func interruptScopeFrom(ctx context.Context) *interruptScope {
	scope, _ := ctx.Value(interruptScopeKey{}).(*interruptScope)
	return scope
}

// answered returns the resume values consumed by Interrupt calls so far.
func (s *interruptScope) answered() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.values[:s.next]...)
}

// Interrupt suspends the current node with payload, or returns the caller's
// resume value when the thread is being resumed.
//
// The n-th call to Interrupt within a node invocation is answered by the n-th
// resume value supplied for that node. When no answer is available it returns
// an *InterruptError which the handler must return unchanged. Calling
// Interrupt again after an unanswered call returns ErrInterruptMismatch.
func Interrupt(ctx context.Context, payload any) (any, error) {
	scope := interruptScopeFrom(ctx)
	if scope == nil {
		return nil, NewInterruptError(payload)
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.raised {
		return nil, fmt.Errorf("%w: interrupt raised twice in one node invocation", ErrInterruptMismatch)
	}
	if scope.next < len(scope.values) {
		v := scope.values[scope.next]
		scope.next++
		return v, nil
	}
	scope.raised = true
	return nil, NewInterruptError(payload)
}

// ResumeValue returns the next resume value that Interrupt would return,
// without consuming it.
func ResumeValue(ctx context.Context) (any, bool) {
	scope := interruptScopeFrom(ctx)
	if scope == nil {
		return nil, false
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.next < len(scope.values) {
		return scope.values[scope.next], true
	}
	return nil, false
}

// IsResuming reports whether the current node invocation was started by
// Executor.Resume.
func IsResuming(ctx context.Context) bool {
	scope := interruptScopeFrom(ctx)
	if scope == nil {
		return false
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	return len(scope.values) > 0
}
