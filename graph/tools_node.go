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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// ToolResultIDPrefix prefixes the ID of every tool result message.
const ToolResultIDPrefix = "tool_result:"

// ToolResultID returns the message ID of the result of the call at index in
// the assistant message assistantID. The ID is stable so a re-executed tools
// node produces the same messages and the message reducer drops the repeats.
// The index stands in for the call ID when a provider leaves it empty.
func ToolResultID(assistantID, callID string, index int) string {
	if callID == "" {
		callID = strconv.Itoa(index)
	}
	return ToolResultIDPrefix + assistantID + ":" + callID
}

// ToolsOption configures the tools node.
type ToolsOption func(*toolsNodeOptions)

type toolsNodeOptions struct {
	parallelism int
}

// WithParallelTools runs up to n tool calls of one message concurrently.
// Result messages keep the order of the calls.
func WithParallelTools(n int) ToolsOption {
	return func(o *toolsNodeOptions) {
		o.parallelism = n
	}
}

// NewToolsNodeFunc creates a NodeFunc that executes the tool calls of the
// last message in the history. It produces one tool message per call, in
// call order. A message without tool calls produces no update.
//
// A tool may return a *Command to add state keys next to its result, and may
// call Interrupt to suspend the node.
func NewToolsNodeFunc(tools map[string]tool.Tool, opts ...ToolsOption) NodeFunc {
	options := &toolsNodeOptions{parallelism: 1}
	for _, opt := range opts {
		opt(options)
	}
	return func(ctx context.Context, state State) (Result, error) {
		ctx, span := trace.Tracer.Start(ctx, "tools_node_execution")
		defer span.End()

		last, ok := LastMessage(state)
		if !ok {
			span.SetAttributes(attribute.String(attrError, "no messages in state"))
			return Result{}, errors.New("no messages in state")
		}
		if last.Role != model.RoleAssistant {
			span.SetAttributes(attribute.String(attrError, "last message is not an assistant message"))
			return Result{}, errors.New("last message is not an assistant message")
		}
		calls := last.ToolCalls
		if len(calls) == 0 {
			return Continue(nil), nil
		}
		outcomes, err := dispatchToolCalls(ctx, tools, calls, options.parallelism)
		if err != nil {
			return Result{}, err
		}

		update := State{}
		messages := make([]model.Message, 0, len(calls))
		for i, call := range calls {
			out := outcomes[i]
			messages = append(messages,
				model.NewToolMessage(call.ID, call.Function.Name, out.content).WithID(ToolResultID(last.ID, call.ID, i)))
			for k, v := range out.update {
				if k == StateKeyMessages {
					if extra, ok := v.([]model.Message); ok {
						messages = append(messages, extra...)
						continue
					}
				}
				update[k] = v
			}
		}
		update[StateKeyMessages] = messages
		return Continue(update), nil
	}
}

type toolOutcome struct {
	content string
	update  State
	err     error
}

func dispatchToolCalls(
	ctx context.Context,
	tools map[string]tool.Tool,
	calls []model.ToolCall,
	parallelism int,
) ([]toolOutcome, error) {
	outcomes := make([]toolOutcome, len(calls))
	if parallelism <= 1 || len(calls) == 1 {
		for i, call := range calls {
			outcomes[i] = runTool(ctx, tools, call)
			if outcomes[i].err != nil {
				return nil, outcomes[i].err
			}
		}
		return outcomes, nil
	}

	pool, err := ants.NewPool(parallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		idx, c := i, call
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[idx] = runTool(ctx, tools, c)
		}); err != nil {
			wg.Done()
			outcomes[idx] = toolOutcome{err: fmt.Errorf("submit tool %s: %w", c.Function.Name, err)}
		}
	}
	wg.Wait()

	// An interrupt wins over other failures so the node suspends.
	var firstErr error
	for _, out := range outcomes {
		if out.err == nil {
			continue
		}
		if IsInterruptError(out.err) {
			return nil, out.err
		}
		if firstErr == nil {
			firstErr = out.err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return outcomes, nil
}

func runTool(ctx context.Context, tools map[string]tool.Tool, call model.ToolCall) toolOutcome {
	name := call.Function.Name
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(name))
	defer span.End()

	t, ok := tools[name]
	if !ok || t == nil {
		span.SetAttributes(attribute.String(attrError, "tool not found"))
		return toolOutcome{err: &ToolNotFoundError{Name: name}}
	}
	callable, ok := t.(tool.CallableTool)
	if !ok {
		span.SetAttributes(attribute.String(attrError, "tool is not callable"))
		return toolOutcome{err: fmt.Errorf("tool %s is not callable", name)}
	}
	result, err := callable.Call(ctx, call.Function.Arguments)
	if err != nil {
		if IsInterruptError(err) {
			return toolOutcome{err: err}
		}
		span.SetAttributes(attribute.String(attrError, err.Error()))
		return toolOutcome{err: fmt.Errorf("tool %s call failed: %w", name, err)}
	}
	var update State
	if cmd, ok := result.(*Command); ok && cmd != nil {
		update = cmd.Update
		result = cmd.Result
	}
	content, err := toolContent(result)
	if err != nil {
		span.SetAttributes(attribute.String(attrError, err.Error()))
		return toolOutcome{err: fmt.Errorf("failed to marshal result of tool %s: %w", name, err)}
	}
	itelemetry.TraceToolCall(span, name, call.ID, call.Function.Arguments, content)
	return toolOutcome{content: content, update: update}
}

func toolContent(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
