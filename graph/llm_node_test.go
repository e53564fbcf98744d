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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// scriptedModel replies with a fixed sequence of responses and records the
// last request it saw.
type scriptedModel struct {
	responses []*model.Response
	err       error
	last      *model.Request
}

func (m *scriptedModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan *model.Response, len(m.responses))
	for _, r := range m.responses {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func (m *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func choice(content string, calls ...model.ToolCall) model.Choice {
	return model.Choice{Message: model.Message{Role: model.RoleAssistant, Content: content, ToolCalls: calls}}
}

func TestLLMNode_AppendsReply(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		{ID: "resp-1", Choices: []model.Choice{choice("hello")}, Done: true},
	}}
	fn := NewLLMNodeFunc(m, WithInstruction("be brief"))

	r, err := fn(context.Background(), State{StateKeyMessages: []model.Message{msg("u1", model.RoleUser, "hi")}})
	require.NoError(t, err)
	msgs := r.Update()[StateKeyMessages].([]model.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, "resp-1", msgs[0].ID)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hello", r.Update()[StateKeyLastResponse])

	require.NotNil(t, m.last)
	require.Len(t, m.last.Messages, 2)
	assert.Equal(t, model.RoleSystem, m.last.Messages[0].Role)
	assert.Equal(t, "be brief", m.last.Messages[0].Content)
}

func TestLLMNode_ToolCallsAndGeneratedID(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		{Choices: []model.Choice{choice("", call("c1", "search", `{}`))}},
		{Choices: []model.Choice{choice("", call("c2", "search", `{}`))}, Done: true},
	}}
	tools := tool.NewSet(&declOnlyTool{name: "search"})
	fn := NewLLMNodeFunc(m, WithTools(tools))

	r, err := fn(context.Background(), State{StateKeyMessages: []model.Message{msg("u1", model.RoleUser, "find")}})
	require.NoError(t, err)
	reply := r.Update()[StateKeyMessages].([]model.Message)[0]
	assert.NotEmpty(t, reply.ID)
	require.Len(t, reply.ToolCalls, 2)
	assert.Equal(t, "c1", reply.ToolCalls[0].ID)
	assert.Equal(t, "c2", reply.ToolCalls[1].ID)
	assert.Contains(t, m.last.Tools, "search")
	assert.Len(t, m.last.Messages, 1)
}

func TestLLMNode_InstructionFuncAndExistingSystemPrompt(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{{Choices: []model.Choice{choice("ok")}}}}
	fn := NewLLMNodeFunc(m, WithInstructionFunc(func(s State) string {
		return "mood is " + s["mood"].(string)
	}))

	_, err := fn(context.Background(), State{
		"mood":           "calm",
		StateKeyMessages: []model.Message{msg("u1", model.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "mood is calm", m.last.Messages[0].Content)

	_, err = fn(context.Background(), State{
		"mood":           "calm",
		StateKeyMessages: []model.Message{msg("s1", model.RoleSystem, "custom"), msg("u1", model.RoleUser, "hi")},
	})
	require.NoError(t, err)
	require.Len(t, m.last.Messages, 2)
	assert.Equal(t, "custom", m.last.Messages[0].Content)
}

func TestLLMNode_Errors(t *testing.T) {
	ctx := context.Background()
	state := State{StateKeyMessages: []model.Message{msg("u1", model.RoleUser, "hi")}}

	_, err := NewLLMNodeFunc(&scriptedModel{err: errors.New("offline")})(ctx, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")

	_, err = NewLLMNodeFunc(&scriptedModel{responses: []*model.Response{
		{Error: &model.ResponseError{Message: "rate limited"}},
	}})(ctx, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = NewLLMNodeFunc(&scriptedModel{})(ctx, state)
	require.Error(t, err)

	_, err = NewLLMNodeFunc(nil)(ctx, state)
	require.Error(t, err)
}
