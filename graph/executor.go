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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

const (
	defaultChannelBufferSize = 256
	defaultMaxSteps          = 100
)

// Executor runs a compiled graph for any number of threads.
// An Executor holds no per-run state and may be used concurrently; runs on
// the same thread must not overlap.
type Executor struct {
	graph             *Graph
	saver             CheckpointSaver
	channelBufferSize int
	maxSteps          int

	stepCounter      otelmetric.Int64Counter
	interruptCounter otelmetric.Int64Counter
	runCounter       otelmetric.Int64Counter
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// ChannelBufferSize is the buffer size for event channels (default: 256).
	ChannelBufferSize int
	// MaxSteps is the maximum number of node executions per run (default: 100).
	MaxSteps int
	// CheckpointSaver persists checkpoints. Without one runs are ephemeral.
	CheckpointSaver CheckpointSaver
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.ChannelBufferSize = size
	}
}

// WithMaxSteps sets the maximum number of steps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithCheckpointSaver sets the checkpoint saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.CheckpointSaver = saver
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, &ConfigurationError{Reason: "graph is nil"}
	}
	options := ExecutorOptions{
		ChannelBufferSize: defaultChannelBufferSize,
		MaxSteps:          defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxSteps <= 0 {
		options.MaxSteps = defaultMaxSteps
	}
	if options.ChannelBufferSize < 0 {
		options.ChannelBufferSize = 0
	}
	e := &Executor{
		graph:             graph,
		saver:             options.CheckpointSaver,
		channelBufferSize: options.ChannelBufferSize,
		maxSteps:          options.MaxSteps,
	}
	var err error
	if e.stepCounter, err = metric.Meter.Int64Counter(metricSteps,
		otelmetric.WithDescription("Number of graph steps executed")); err != nil {
		return nil, fmt.Errorf("create step counter: %w", err)
	}
	if e.interruptCounter, err = metric.Meter.Int64Counter(metricInterrupts,
		otelmetric.WithDescription("Number of graph runs suspended")); err != nil {
		return nil, fmt.Errorf("create interrupt counter: %w", err)
	}
	if e.runCounter, err = metric.Meter.Int64Counter(metricRuns,
		otelmetric.WithDescription("Number of graph runs started")); err != nil {
		return nil, fmt.Errorf("create run counter: %w", err)
	}
	return e, nil
}

// Graph returns the graph the executor runs.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// run is the mutable state of one invocation.
type run struct {
	threadID string
	state    State
	current  string
	step     int
	scope    *interruptScope
	out      chan *Event
}

// Run starts a run of the graph on threadID.
//
// The latest checkpoint of the thread is loaded, input is merged into it and
// execution starts at the entry point. A pending interrupt on the thread is
// discarded. The returned channel yields one EventTypeStep per executed node
// and ends with exactly one EventTypeComplete, EventTypeInterrupt or
// EventTypeError before it is closed. Cancel ctx to abandon the run; the last
// committed checkpoint stands.
func (e *Executor) Run(ctx context.Context, threadID string, input State) (<-chan *Event, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	latest, err := e.loadLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state := State{}
	step := 0
	if latest != nil {
		state = latest.State
		step = latest.Step + 1
		if latest.IsInterrupted() {
			log.Warnf("graph: thread %s: discarding pending interrupt %s at node %s",
				threadID, latest.PendingInterrupt.ID, latest.PendingInterrupt.NodeID)
		}
	}
	state = e.graph.schema.ApplyUpdate(state, input)
	r := &run{
		threadID: threadID,
		state:    state,
		current:  e.graph.entryPoint,
		step:     step,
		scope:    &interruptScope{},
		out:      make(chan *Event, e.channelBufferSize),
	}
	go e.execute(ctx, r, true)
	return r.out, nil
}

// Resume continues a suspended thread. The node that suspended is invoked
// again from its start, and its pending Interrupt call returns value.
// It fails with ErrInterruptMismatch when the thread has no pending interrupt.
func (e *Executor) Resume(ctx context.Context, threadID string, value any) (<-chan *Event, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	if e.saver == nil {
		return nil, ErrNoCheckpointSaver
	}
	latest, err := e.loadLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !latest.IsInterrupted() {
		return nil, fmt.Errorf("%w: thread %s has no pending interrupt", ErrInterruptMismatch, threadID)
	}
	pending := latest.PendingInterrupt
	if _, ok := e.graph.Node(pending.NodeID); !ok {
		return nil, fmt.Errorf("%w: interrupted node %s is not in the graph", ErrInterruptMismatch, pending.NodeID)
	}
	values := append(append([]any(nil), pending.Resumed...), value)
	r := &run{
		threadID: threadID,
		state:    latest.State,
		current:  pending.NodeID,
		step:     latest.Step + 1,
		scope:    &interruptScope{values: values},
		out:      make(chan *Event, e.channelBufferSize),
	}
	go e.execute(ctx, r, false)
	return r.out, nil
}

func (e *Executor) execute(ctx context.Context, r *run, fresh bool) {
	defer close(r.out)
	ctx, span := trace.Tracer.Start(ctx, spanRunGraph)
	defer span.End()
	span.SetAttributes(attribute.String(attrThreadID, r.threadID))
	e.runCounter.Add(ctx, 1)

	if fresh {
		ckpt := NewCheckpoint(r.threadID, r.step, SourceInput, r.state, r.current)
		if err := e.save(ctx, ckpt); err != nil {
			e.fail(ctx, span, r, &ExecutionError{Step: r.step, Err: err})
			return
		}
		r.step++
	}

	for executed := 0; ; executed++ {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, span, r, &ExecutionError{NodeID: r.current, Step: r.step, Err: err})
			return
		}
		if executed >= e.maxSteps {
			e.fail(ctx, span, r, &ExecutionError{
				NodeID: r.current,
				Step:   r.step,
				Err:    fmt.Errorf("%w: limit %d", ErrMaxStepsExceeded, e.maxSteps),
			})
			return
		}
		node := e.graph.nodes[r.current]
		result, err := e.runNode(ctx, node, r)
		if err != nil {
			if ie, ok := GetInterruptError(err); ok {
				result = Suspend(ie.Value)
			} else {
				e.fail(ctx, span, r, &ExecutionError{NodeID: node.ID, Step: r.step, Err: err})
				return
			}
		}
		if result.IsSuspend() {
			e.suspend(ctx, span, r, node.ID, result.Payload())
			return
		}

		r.state = e.graph.schema.ApplyUpdate(r.state, result.Update())
		next, err := e.route(ctx, node.ID, r.state)
		if err != nil {
			e.fail(ctx, span, r, err)
			return
		}
		ckpt := NewCheckpoint(r.threadID, r.step, SourceLoop, r.state, next)
		if err := e.save(ctx, ckpt); err != nil {
			e.fail(ctx, span, r, &ExecutionError{NodeID: node.ID, Step: r.step, Err: err})
			return
		}
		e.stepCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String(attrNodeID, node.ID)))
		log.Debugf("graph: thread %s step %d: node %s -> %s", r.threadID, r.step, node.ID, next)
		if !e.emit(ctx, r, newEvent(EventTypeStep, r.threadID, r.step, node.ID, r.state)) {
			return
		}
		if next == End {
			span.SetAttributes(attribute.String(attrOutcome, "complete"))
			e.emit(ctx, r, newEvent(EventTypeComplete, r.threadID, r.step, node.ID, r.state))
			return
		}
		r.step++
		r.current = next
		r.scope = &interruptScope{}
	}
}

// runNode invokes a node handler with a copy of the state.
func (e *Executor) runNode(ctx context.Context, node *Node, r *run) (result Result, err error) {
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("%s %s", spanExecuteNode, node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String(attrNodeID, node.ID),
		attribute.Int(attrStep, r.step),
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("node %s panicked: %v", node.ID, p)
		}
		if err != nil && !IsInterruptError(err) {
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String(attrError, err.Error()))
		}
	}()
	ctx = withInterruptScope(ctx, r.scope)
	return node.Function(ctx, r.state.Clone())
}

// route picks the node that follows nodeID.
func (e *Executor) route(ctx context.Context, nodeID string, state State) (string, error) {
	if edge, ok := e.graph.edges[nodeID]; ok {
		return edge.To, nil
	}
	ce, ok := e.graph.conditionalEdges[nodeID]
	if !ok {
		return End, nil
	}
	key, err := ce.Condition(ctx, state.Clone())
	if err != nil {
		return "", &RoutingError{NodeID: nodeID, Err: err}
	}
	next, ok := ce.PathMap[key]
	if !ok {
		return "", &RoutingError{NodeID: nodeID, Key: key}
	}
	return next, nil
}

func (e *Executor) suspend(ctx context.Context, span oteltrace.Span, r *run, nodeID string, payload any) {
	pending := NewPendingInterrupt(nodeID, payload, r.scope.answered())
	ckpt := NewCheckpoint(r.threadID, r.step, SourceInterrupt, r.state, nodeID)
	ckpt.PendingInterrupt = pending
	if err := e.save(ctx, ckpt); err != nil {
		e.fail(ctx, span, r, &ExecutionError{NodeID: nodeID, Step: r.step, Err: err})
		return
	}
	e.interruptCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String(attrNodeID, nodeID)))
	span.SetAttributes(attribute.String(attrOutcome, "interrupt"))
	log.Debugf("graph: thread %s suspended at node %s (step %d)", r.threadID, nodeID, r.step)
	evt := newEvent(EventTypeInterrupt, r.threadID, r.step, nodeID, r.state)
	evt.Interrupt = pending
	e.emit(ctx, r, evt)
}

func (e *Executor) fail(ctx context.Context, span oteltrace.Span, r *run, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(attrOutcome, "error"))
	if !errors.Is(err, context.Canceled) {
		log.Errorf("graph: thread %s: %v", r.threadID, err)
	}
	evt := newEvent(EventTypeError, r.threadID, r.step, r.current, r.state)
	evt.Err = err
	e.emit(ctx, r, evt)
}

// emit sends evt unless ctx is done. A cancelled run may still deliver its
// final event if the buffer has room.
func (e *Executor) emit(ctx context.Context, r *run, evt *Event) bool {
	select {
	case r.out <- evt:
		return true
	case <-ctx.Done():
		select {
		case r.out <- evt:
		default:
		}
		return false
	}
}

func (e *Executor) save(ctx context.Context, ckpt *Checkpoint) error {
	if e.saver == nil {
		return nil
	}
	if err := e.saver.Save(ctx, ckpt); err != nil {
		return fmt.Errorf("save checkpoint %d: %w", ckpt.Step, err)
	}
	return nil
}

func (e *Executor) loadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	if e.saver == nil {
		return nil, nil
	}
	ckpt, err := e.saver.LoadLatest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint of thread %s: %w", threadID, err)
	}
	return e.coerce(ckpt)
}

func (e *Executor) coerce(ckpt *Checkpoint) (*Checkpoint, error) {
	if ckpt == nil {
		return nil, nil
	}
	state, err := e.graph.schema.Coerce(ckpt.State)
	if err != nil {
		return nil, fmt.Errorf("restore checkpoint %d of thread %s: %w", ckpt.Step, ckpt.ThreadID, err)
	}
	ckpt.State = state
	return ckpt, nil
}

// RunResult is the outcome of Invoke or ResumeInvoke.
type RunResult struct {
	// State is the state after the last step.
	State State
	// Interrupt is set when the run suspended.
	Interrupt *PendingInterrupt
	// Steps lists the nodes executed, in order.
	Steps []string
}

// Interrupted reports whether the run suspended.
func (r *RunResult) Interrupted() bool {
	return r.Interrupt != nil
}

// Invoke runs the graph and waits for it to finish or suspend.
func (e *Executor) Invoke(ctx context.Context, threadID string, input State) (*RunResult, error) {
	events, err := e.Run(ctx, threadID, input)
	if err != nil {
		return nil, err
	}
	return collect(ctx, events)
}

// ResumeInvoke resumes a suspended thread and waits for it to finish or
// suspend again.
func (e *Executor) ResumeInvoke(ctx context.Context, threadID string, value any) (*RunResult, error) {
	events, err := e.Resume(ctx, threadID, value)
	if err != nil {
		return nil, err
	}
	return collect(ctx, events)
}

func collect(ctx context.Context, events <-chan *Event) (*RunResult, error) {
	res := &RunResult{}
	for evt := range events {
		switch evt.Type {
		case EventTypeStep:
			res.State = evt.State
			res.Steps = append(res.Steps, evt.NodeID)
		case EventTypeComplete:
			res.State = evt.State
			return res, nil
		case EventTypeInterrupt:
			res.State = evt.State
			res.Interrupt = evt.Interrupt
			return res, nil
		case EventTypeError:
			return res, evt.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, fmt.Errorf("%w: event stream closed without a final event", ErrExecution)
}

// GetState returns the latest checkpoint of a thread, or nil if it has none.
func (e *Executor) GetState(ctx context.Context, threadID string) (*Checkpoint, error) {
	if e.saver == nil {
		return nil, ErrNoCheckpointSaver
	}
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	return e.loadLatest(ctx, threadID)
}

// History returns up to limit checkpoints of a thread, newest first.
func (e *Executor) History(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	if e.saver == nil {
		return nil, ErrNoCheckpointSaver
	}
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	ckpts, err := e.saver.List(ctx, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints of thread %s: %w", threadID, err)
	}
	for i, c := range ckpts {
		if ckpts[i], err = e.coerce(c); err != nil {
			return nil, err
		}
	}
	return ckpts, nil
}

// Checkpoint returns the checkpoint of a thread at step.
func (e *Executor) Checkpoint(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	if e.saver == nil {
		return nil, ErrNoCheckpointSaver
	}
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	ckpt, err := e.saver.LoadStep(ctx, threadID, step)
	if err != nil {
		return nil, err
	}
	return e.coerce(ckpt)
}
