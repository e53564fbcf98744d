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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// LLMOption configures the LLM node.
type LLMOption func(*llmNodeOptions)

type llmNodeOptions struct {
	instruction func(State) string
	tools       map[string]tool.Tool
	generation  model.GenerationConfig
}

// WithInstruction sets a fixed system prompt.
func WithInstruction(instruction string) LLMOption {
	return func(o *llmNodeOptions) {
		if instruction == "" {
			o.instruction = nil
			return
		}
		o.instruction = func(State) string { return instruction }
	}
}

// WithInstructionFunc derives the system prompt from the state on every call.
func WithInstructionFunc(fn func(State) string) LLMOption {
	return func(o *llmNodeOptions) {
		o.instruction = fn
	}
}

// WithTools declares the tools the model may call.
func WithTools(tools map[string]tool.Tool) LLMOption {
	return func(o *llmNodeOptions) {
		o.tools = tools
	}
}

// WithGenerationConfig sets the generation parameters of every request.
func WithGenerationConfig(cfg model.GenerationConfig) LLMOption {
	return func(o *llmNodeOptions) {
		o.generation = cfg
	}
}

// NewLLMNodeFunc creates a NodeFunc that sends the message history to m and
// appends the assistant reply. The reply also becomes last_response.
func NewLLMNodeFunc(m model.Model, opts ...LLMOption) NodeFunc {
	options := &llmNodeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return func(ctx context.Context, state State) (Result, error) {
		if m == nil {
			return Result{}, errors.New("llm node has no model")
		}
		modelName := m.Info().Name
		ctx, span := trace.Tracer.Start(ctx, itelemetry.NewChatSpanName(modelName))
		defer span.End()

		request := &model.Request{
			Messages:         buildMessagesFromState(state, options.instruction),
			GenerationConfig: options.generation,
			Tools:            options.tools,
		}
		responseChan, err := m.GenerateContent(ctx, request)
		if err != nil {
			span.SetAttributes(attribute.String(attrError, err.Error()))
			return Result{}, fmt.Errorf("failed to generate content: %w", err)
		}

		var (
			final     *model.Response
			toolCalls []model.ToolCall
		)
		for response := range responseChan {
			if response == nil {
				continue
			}
			if response.Error != nil {
				span.SetAttributes(attribute.String(attrError, response.Error.Message))
				return Result{}, fmt.Errorf("model API error: %s", response.Error.Message)
			}
			if len(response.Choices) > 0 {
				toolCalls = append(toolCalls, response.Choices[0].Message.ToolCalls...)
				final = response
			}
		}
		if final == nil {
			span.SetAttributes(attribute.String(attrError, "no response received from model"))
			return Result{}, errors.New("no response received from model")
		}

		itelemetry.TraceCallLLM(span, modelName, request, final)

		id := final.ID
		if id == "" {
			id = uuid.New().String()
		}
		content := final.Choices[0].Message.Content
		reply := model.Message{
			ID:        id,
			Role:      model.RoleAssistant,
			Content:   content,
			ToolCalls: toolCalls,
		}
		return Continue(State{
			StateKeyMessages:     []model.Message{reply},
			StateKeyLastResponse: content,
		}), nil
	}
}

// buildMessagesFromState prepends the system prompt to the history.
func buildMessagesFromState(state State, instruction func(State) string) []model.Message {
	history := Messages(state)
	messages := make([]model.Message, 0, len(history)+1)
	if instruction != nil {
		if prompt := instruction(state); prompt != "" &&
			(len(history) == 0 || history[0].Role != model.RoleSystem) {
			messages = append(messages, model.NewSystemMessage(prompt))
		}
	}
	return append(messages, history...)
}
