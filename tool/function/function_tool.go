//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-graph-go/internal/jsonschema"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// FunctionTool implements the CallableTool interface for executing functions with arguments.
// Arguments are decoded from JSON into I before fn is called.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(context.Context, I) (O, error)
}

// Option is a function that configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name        string
	description string
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// NewFunctionTool creates a FunctionTool for fn. Input and output schemas are
// derived from I and O.
func NewFunctionTool[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{}
	for _, opt := range opts {
		opt(options)
	}
	var (
		emptyI I
		emptyO O
	)
	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		fn:           fn,
		inputSchema:  jsonschema.Generate(reflect.TypeOf(emptyI)),
		outputSchema: jsonschema.Generate(reflect.TypeOf(emptyO)),
	}
}

// Call decodes jsonArgs into the tool's input type and calls the function.
// Empty arguments decode to the zero value of I.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("function tool %s: decode arguments: %w", ft.name, err)
		}
	}
	if ft.fn == nil {
		return nil, fmt.Errorf("function tool %s has no function", ft.name)
	}
	out, err := ft.fn(ctx, input)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Declaration returns the tool's declaration information.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}
