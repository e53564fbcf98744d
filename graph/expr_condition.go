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
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// NewExprCondition compiles an expr-lang expression into a router. The
// expression sees the state keys as variables and must evaluate to the
// routing key, for example:
//
//	len(messages) > 3 ? "summarize" : "chat"
//
// Unknown variables evaluate to nil. Compilation happens once, here.
func NewExprCondition(expression string) (ConditionalFunc, error) {
	program, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsKind(reflect.String),
	)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("compile router expression %q: %v", expression, err)}
	}
	return exprCondition(expression, program), nil
}

// MustExprCondition is NewExprCondition that panics on a bad expression.
func MustExprCondition(expression string) ConditionalFunc {
	fn, err := NewExprCondition(expression)
	if err != nil {
		panic(err)
	}
	return fn
}

func exprCondition(expression string, program *vm.Program) ConditionalFunc {
	return func(ctx context.Context, state State) (string, error) {
		out, err := expr.Run(program, map[string]any(state))
		if err != nil {
			return "", fmt.Errorf("evaluate router expression %q: %w", expression, err)
		}
		key, ok := out.(string)
		if !ok {
			return "", fmt.Errorf("router expression %q returned %T, want string", expression, out)
		}
		return key, nil
	}
}
