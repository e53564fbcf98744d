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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprCondition(t *testing.T) {
	cond, err := NewExprCondition(`count > 2 ? "big" : "small"`)
	require.NoError(t, err)

	key, err := cond(context.Background(), State{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, "big", key)

	key, err = cond(context.Background(), State{"count": 1})
	require.NoError(t, err)
	assert.Equal(t, "small", key)
}

func TestExprCondition_StringKeys(t *testing.T) {
	cond := MustExprCondition(`mood == "angry" ? "calm_down" : "chat"`)
	key, err := cond(context.Background(), State{"mood": "angry"})
	require.NoError(t, err)
	assert.Equal(t, "calm_down", key)

	key, err = cond(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, "chat", key)
}

func TestExprCondition_CompileError(t *testing.T) {
	_, err := NewExprCondition(`count >`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Panics(t, func() { MustExprCondition(`(`) })
}

func TestExprCondition_DrivesRouting(t *testing.T) {
	g := NewStateGraph(nil).
		AddNode("check", noop).
		AddNode("big", noop).
		SetEntryPoint("check").
		AddConditionalEdges("check", MustExprCondition(`count > 2 ? "big" : "done"`),
			map[string]string{"big": "big", "done": End}).
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)

	res, err := exec.Invoke(context.Background(), "t", State{"count": 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"check", "big"}, res.Steps)

	res, err = exec.Invoke(context.Background(), "t", State{"count": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, res.Steps)
}
