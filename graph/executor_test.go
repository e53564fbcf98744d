//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/tool"
	"trpc.group/trpc-go/trpc-graph-go/tool/function"
)

func newExecutor(t *testing.T, g *graph.Graph, opts ...graph.ExecutorOption) *graph.Executor {
	t.Helper()
	opts = append([]graph.ExecutorOption{graph.WithCheckpointSaver(inmemory.NewSaver())}, opts...)
	exec, err := graph.NewExecutor(g, opts...)
	require.NoError(t, err)
	return exec
}

func drain(t *testing.T, events <-chan *graph.Event) []*graph.Event {
	t.Helper()
	var out []*graph.Event
	for evt := range events {
		out = append(out, evt)
	}
	require.NotEmpty(t, out)
	for i, evt := range out {
		assert.Equal(t, i == len(out)-1, evt.IsTerminal(), "event %d (%s)", i, evt.Type)
	}
	return out
}

func userInput(content string) graph.State {
	return graph.State{graph.StateKeyMessages: []model.Message{
		model.NewUserMessage(content).WithID("user:" + content),
	}}
}

func contents(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fmt.Sprintf("%s:%s", m.Role, m.Content))
	}
	return out
}

func replyNode(reply string) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.Result, error) {
		id := fmt.Sprintf("assistant:%d", len(graph.Messages(state)))
		return graph.Continue(graph.State{
			graph.StateKeyMessages: []model.Message{model.NewAssistantMessage(reply).WithID(id)},
		}), nil
	}
}

func TestExecutor_LinearAppend(t *testing.T) {
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("nodeA", replyNode("hello there")).
		SetEntryPoint("nodeA").
		SetFinishPoint("nodeA").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	events, err := exec.Run(ctx, "thread-a", userInput("hi"))
	require.NoError(t, err)
	got := drain(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, graph.EventTypeStep, got[0].Type)
	assert.Equal(t, "nodeA", got[0].NodeID)
	assert.Equal(t, graph.EventTypeComplete, got[1].Type)
	assert.Equal(t,
		[]string{"user:hi", "assistant:hello there"},
		contents(graph.Messages(got[1].State)))

	history, err := exec.History(ctx, "thread-a", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, graph.SourceLoop, history[0].Source)
	assert.Equal(t, 1, history[0].Step)
	assert.Equal(t, graph.End, history[0].NextNode)
	assert.Equal(t, graph.SourceInput, history[1].Source)
	assert.Equal(t, 0, history[1].Step)
	assert.Equal(t, "nodeA", history[1].NextNode)
	assert.Equal(t, []string{"user:hi"}, contents(graph.Messages(history[1].State)))
}

type echoArgs struct {
	Text string `json:"text"`
}

func TestExecutor_ToolLoop(t *testing.T) {
	echo := function.NewFunctionTool(
		func(_ context.Context, args echoArgs) (string, error) { return "echo " + args.Text, nil },
		function.WithName("echo"),
		function.WithDescription("echoes text"))

	modelNode := func(ctx context.Context, state graph.State) (graph.Result, error) {
		last, _ := graph.LastMessage(state)
		id := fmt.Sprintf("model:%d", len(graph.Messages(state)))
		if last.Role == model.RoleTool {
			return graph.Continue(graph.State{
				graph.StateKeyMessages: []model.Message{model.NewAssistantMessage("done: " + last.Content).WithID(id)},
			}), nil
		}
		reply := model.NewAssistantMessage("").WithID(id)
		reply.ToolCalls = []model.ToolCall{{
			Type: "function",
			ID:   "call-1",
			Function: model.FunctionDefinitionParam{
				Name:      "echo",
				Arguments: []byte(`{"text":"ping"}`),
			},
		}}
		return graph.Continue(graph.State{graph.StateKeyMessages: []model.Message{reply}}), nil
	}

	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("model", modelNode, graph.WithNodeType(graph.NodeTypeLLM)).
		AddToolsNode("tools", tool.NewSet(echo)).
		SetEntryPoint("model").
		AddToolsConditionalEdges("model", "tools", graph.End).
		AddEdge("tools", "model").
		MustCompile()
	exec := newExecutor(t, g)

	res, err := exec.Invoke(context.Background(), "thread-b", userInput("use a tool"))
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "tools", "model"}, res.Steps)

	msgs := graph.Messages(res.State)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, model.RoleTool, msgs[2].Role)
	assert.Equal(t, "echo ping", msgs[2].Content)
	assert.Equal(t, "call-1", msgs[2].ToolID)
	assert.Equal(t, graph.ToolResultID(msgs[1].ID, "call-1", 0), msgs[2].ID)
	assert.Equal(t, model.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "done: echo ping", msgs[3].Content)
	assert.Empty(t, msgs[3].ToolCalls)
}

func confirmNode(ctx context.Context, state graph.State) (graph.Result, error) {
	answer, err := graph.Interrupt(ctx, map[string]any{"query": "confirm?"})
	if err != nil {
		return graph.Result{}, err
	}
	data := answer.(map[string]any)["data"]
	return graph.Continue(graph.State{
		graph.StateKeyMessages: []model.Message{
			model.NewAssistantMessage(fmt.Sprintf("user answered %v", data)).WithID("confirm"),
		},
	}), nil
}

func TestExecutor_InterruptResume(t *testing.T) {
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("confirm", confirmNode).
		SetEntryPoint("confirm").
		SetFinishPoint("confirm").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	events, err := exec.Run(ctx, "thread-c", userInput("go"))
	require.NoError(t, err)
	got := drain(t, events)
	require.Len(t, got, 1)
	require.Equal(t, graph.EventTypeInterrupt, got[0].Type)
	require.NotNil(t, got[0].Interrupt)
	assert.Equal(t, "confirm", got[0].Interrupt.NodeID)
	assert.Equal(t, map[string]any{"query": "confirm?"}, got[0].Interrupt.Payload)
	assert.NotEmpty(t, got[0].Interrupt.ID)

	latest, err := exec.GetState(ctx, "thread-c")
	require.NoError(t, err)
	require.True(t, latest.IsInterrupted())
	assert.Equal(t, graph.SourceInterrupt, latest.Source)
	assert.Equal(t, "confirm", latest.NextNode)
	assert.Equal(t, []string{"user:go"}, contents(graph.Messages(latest.State)))

	res, err := exec.ResumeInvoke(ctx, "thread-c", map[string]any{"data": "yes"})
	require.NoError(t, err)
	assert.False(t, res.Interrupted())
	last, ok := graph.LastMessage(res.State)
	require.True(t, ok)
	assert.Contains(t, last.Content, "yes")

	latest, err = exec.GetState(ctx, "thread-c")
	require.NoError(t, err)
	assert.False(t, latest.IsInterrupted())
	assert.Equal(t, graph.End, latest.NextNode)

	_, err = exec.Resume(ctx, "thread-c", "again")
	assert.ErrorIs(t, err, graph.ErrInterruptMismatch)
}

func TestSuspendResult_WithResumeValue(t *testing.T) {
	approve := func(ctx context.Context, state graph.State) (graph.Result, error) {
		v, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.Suspend("approve?"), nil
		}
		if v != "yes" {
			return graph.Suspend("please answer yes"), nil
		}
		return graph.Continue(graph.State{"approved": true}), nil
	}
	g := graph.NewStateGraph(nil).
		AddNode("approve", approve).
		SetEntryPoint("approve").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	res, err := exec.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, "approve?", res.Interrupt.Payload)

	res, err = exec.ResumeInvoke(ctx, "t", "no")
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, "please answer yes", res.Interrupt.Payload)

	res, err = exec.ResumeInvoke(ctx, "t", "yes")
	require.NoError(t, err)
	assert.False(t, res.Interrupted())
	assert.Equal(t, true, res.State["approved"])
}

func TestSequentialInterrupts(t *testing.T) {
	form := func(ctx context.Context, state graph.State) (graph.Result, error) {
		name, err := graph.Interrupt(ctx, "name?")
		if err != nil {
			return graph.Result{}, err
		}
		age, err := graph.Interrupt(ctx, "age?")
		if err != nil {
			return graph.Result{}, err
		}
		return graph.Continue(graph.State{"name": name, "age": age}), nil
	}
	g := graph.NewStateGraph(nil).AddNode("form", form).SetEntryPoint("form").MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	res, err := exec.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, "name?", res.Interrupt.Payload)

	res, err = exec.ResumeInvoke(ctx, "t", "bob")
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, "age?", res.Interrupt.Payload)
	assert.Equal(t, []any{"bob"}, res.Interrupt.Resumed)

	res, err = exec.ResumeInvoke(ctx, "t", 30)
	require.NoError(t, err)
	assert.False(t, res.Interrupted())
	assert.Equal(t, "bob", res.State["name"])
	assert.Equal(t, 30, res.State["age"])
}

func TestDoubleInterruptIsMismatch(t *testing.T) {
	greedy := func(ctx context.Context, state graph.State) (graph.Result, error) {
		_, _ = graph.Interrupt(ctx, "first")
		_, err := graph.Interrupt(ctx, "second")
		return graph.Result{}, err
	}
	g := graph.NewStateGraph(nil).AddNode("greedy", greedy).SetEntryPoint("greedy").MustCompile()
	exec := newExecutor(t, g)

	_, err := exec.Invoke(context.Background(), "t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrInterruptMismatch)
	assert.ErrorIs(t, err, graph.ErrExecution)
}

func TestResumeWithoutPendingInterrupt(t *testing.T) {
	g := graph.NewStateGraph(nil).AddNode("a", replyNode("x")).SetEntryPoint("a").MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	_, err := exec.Resume(ctx, "never-ran", "value")
	assert.ErrorIs(t, err, graph.ErrInterruptMismatch)

	_, err = exec.Invoke(ctx, "done", nil)
	require.NoError(t, err)
	_, err = exec.Resume(ctx, "done", "value")
	assert.ErrorIs(t, err, graph.ErrInterruptMismatch)
}

func TestRunDiscardsPendingInterrupt(t *testing.T) {
	var greets int
	var mu sync.Mutex
	greet := func(ctx context.Context, state graph.State) (graph.Result, error) {
		mu.Lock()
		greets++
		mu.Unlock()
		return graph.Continue(nil), nil
	}
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("greet", greet).
		AddNode("confirm", confirmNode).
		SetEntryPoint("greet").
		AddEdge("greet", "confirm").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	first, err := exec.Invoke(ctx, "t", userInput("one"))
	require.NoError(t, err)
	require.True(t, first.Interrupted())

	second, err := exec.Invoke(ctx, "t", userInput("two"))
	require.NoError(t, err)
	require.True(t, second.Interrupted())
	assert.Equal(t, []string{"greet"}, second.Steps)
	assert.NotEqual(t, first.Interrupt.ID, second.Interrupt.ID)
	assert.Equal(t, 2, greets)
	assert.Equal(t, []string{"user:one", "user:two"}, contents(graph.Messages(second.State)))
}

func TestThreadsAreIsolated(t *testing.T) {
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("a", replyNode("ok")).
		SetEntryPoint("a").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*graph.RunResult, 2)
	errs := make([]error, 2)
	for i, thread := range []string{"t1", "t2"} {
		wg.Add(1)
		go func(i int, thread string) {
			defer wg.Done()
			results[i], errs[i] = exec.Invoke(ctx, thread, userInput("hi"))
		}(i, thread)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"user:hi", "assistant:ok"}, contents(graph.Messages(results[i].State)))
	}

	// A second run on t1 builds on t1 only.
	res, err := exec.Invoke(ctx, "t1", userInput("again"))
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"user:hi", "assistant:ok", "user:again", "assistant:ok"},
		contents(graph.Messages(res.State)))
	other, err := exec.GetState(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:hi", "assistant:ok"}, contents(graph.Messages(other.State)))
}

func TestRoutingErrorKeepsPriorCheckpoint(t *testing.T) {
	g := graph.NewStateGraph(nil).
		AddNode("a", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"a": 1}), nil
		}).
		SetEntryPoint("a").
		AddConditionalEdges("a", func(ctx context.Context, s graph.State) (string, error) {
			return "nowhere", nil
		}, map[string]string{"done": graph.End}).
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	_, err := exec.Invoke(ctx, "t", graph.State{"in": true})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrRouting)
	var re *graph.RoutingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nowhere", re.Key)

	latest, err := exec.GetState(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 0, latest.Step)
	assert.Equal(t, graph.SourceInput, latest.Source)
	assert.NotContains(t, latest.State, "a")
}

func TestRouterSeesMergedState(t *testing.T) {
	g := graph.NewStateGraph(nil).
		AddNode("a", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"route": "b"}), nil
		}).
		AddNode("b", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"visited_b": true}), nil
		}).
		SetEntryPoint("a").
		AddConditionalEdges("a", func(ctx context.Context, s graph.State) (string, error) {
			return s["route"].(string), nil
		}, map[string]string{"b": "b", "end": graph.End}).
		MustCompile()
	exec := newExecutor(t, g)

	res, err := exec.Invoke(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Steps)
	assert.Equal(t, true, res.State["visited_b"])
}

func TestExecutionErrorThenRestart(t *testing.T) {
	var fail = true
	flaky := func(ctx context.Context, s graph.State) (graph.Result, error) {
		if fail {
			return graph.Result{}, errors.New("boom")
		}
		return graph.Continue(graph.State{"ok": true}), nil
	}
	g := graph.NewStateGraph(nil).
		AddNode("first", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"first": true}), nil
		}).
		AddNode("flaky", flaky).
		SetEntryPoint("first").
		AddEdge("first", "flaky").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	_, err := exec.Invoke(ctx, "t", graph.State{"input": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrExecution)
	var ee *graph.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "flaky", ee.NodeID)
	assert.Contains(t, err.Error(), "boom")

	latest, err := exec.GetState(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, true, latest.State["first"])
	assert.Equal(t, "flaky", latest.NextNode)

	fail = false
	res, err := exec.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.State["ok"])
	assert.Equal(t, 1, res.State["input"])
}

func TestNodePanicBecomesExecutionError(t *testing.T) {
	g := graph.NewStateGraph(nil).
		AddNode("p", func(ctx context.Context, s graph.State) (graph.Result, error) {
			panic("bad")
		}).
		SetEntryPoint("p").
		MustCompile()
	exec := newExecutor(t, g)
	_, err := exec.Invoke(context.Background(), "t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrExecution)
	assert.Contains(t, err.Error(), "panicked")
}

func TestMaxSteps(t *testing.T) {
	var calls int
	g := graph.NewStateGraph(nil).
		AddNode("loop", func(ctx context.Context, s graph.State) (graph.Result, error) {
			calls++
			return graph.Continue(nil), nil
		}).
		SetEntryPoint("loop").
		AddEdge("loop", "loop").
		MustCompile()
	exec := newExecutor(t, g, graph.WithMaxSteps(5))

	res, err := exec.Invoke(context.Background(), "t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrMaxStepsExceeded)
	assert.ErrorIs(t, err, graph.ErrExecution)
	assert.Equal(t, 5, calls)
	assert.Len(t, res.Steps, 5)
}

func TestHandlersGetACopy(t *testing.T) {
	g := graph.NewStateGraph(nil).
		AddNode("sneaky", func(ctx context.Context, s graph.State) (graph.Result, error) {
			s["leak"] = true
			return graph.Continue(graph.State{"kept": true}), nil
		}).
		SetEntryPoint("sneaky").
		MustCompile()
	exec := newExecutor(t, g)
	res, err := exec.Invoke(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.NotContains(t, res.State, "leak")
	assert.Equal(t, true, res.State["kept"])
}

func TestEventsFollowCommittedCheckpoints(t *testing.T) {
	g := graph.NewStateGraph(nil).
		AddNode("a", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"a": 1}), nil
		}).
		AddNode("b", func(ctx context.Context, s graph.State) (graph.Result, error) {
			return graph.Continue(graph.State{"b": 2}), nil
		}).
		SetEntryPoint("a").
		AddEdge("a", "b").
		MustCompile()
	exec := newExecutor(t, g, graph.WithChannelBufferSize(0))
	ctx := context.Background()

	events, err := exec.Run(ctx, "t", nil)
	require.NoError(t, err)
	for evt := range events {
		if evt.Type != graph.EventTypeStep {
			continue
		}
		ckpt, err := exec.Checkpoint(ctx, "t", evt.Step)
		require.NoError(t, err)
		assert.Equal(t, evt.State, ckpt.State)
	}
	_, err = exec.Checkpoint(ctx, "t", 99)
	assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}

func TestEphemeralExecutor(t *testing.T) {
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("a", replyNode("ok")).
		SetEntryPoint("a").
		MustCompile()
	exec, err := graph.NewExecutor(g)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := exec.Invoke(ctx, "t", userInput("hi"))
	require.NoError(t, err)
	assert.Len(t, graph.Messages(res.State), 2)

	// Nothing was stored, so the next run starts fresh.
	res, err = exec.Invoke(ctx, "t", userInput("hi"))
	require.NoError(t, err)
	assert.Len(t, graph.Messages(res.State), 2)

	_, err = exec.Resume(ctx, "t", nil)
	assert.ErrorIs(t, err, graph.ErrNoCheckpointSaver)
	_, err = exec.GetState(ctx, "t")
	assert.ErrorIs(t, err, graph.ErrNoCheckpointSaver)
}

func TestThreadIDRequired(t *testing.T) {
	g := graph.NewStateGraph(nil).AddNode("a", replyNode("x")).SetEntryPoint("a").MustCompile()
	exec := newExecutor(t, g)
	_, err := exec.Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
	_, err = exec.Resume(context.Background(), "", nil)
	assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := graph.NewStateGraph(nil).
		AddNode("a", func(nctx context.Context, s graph.State) (graph.Result, error) {
			cancel()
			<-nctx.Done()
			return graph.Result{}, nctx.Err()
		}).
		SetEntryPoint("a").
		MustCompile()
	exec := newExecutor(t, g)

	_, err := exec.Invoke(ctx, "t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToolInterruptSuspendsToolsNode(t *testing.T) {
	ask := function.NewFunctionTool(
		func(ctx context.Context, args echoArgs) (string, error) {
			answer, err := graph.Interrupt(ctx, map[string]any{"query": args.Text})
			if err != nil {
				return "", err
			}
			return answer.(map[string]any)["data"].(string), nil
		},
		function.WithName("human_assistance"))

	modelNode := func(ctx context.Context, state graph.State) (graph.Result, error) {
		last, _ := graph.LastMessage(state)
		if last.Role == model.RoleTool {
			return graph.Continue(graph.State{graph.StateKeyMessages: []model.Message{
				model.NewAssistantMessage("human said " + last.Content).WithID("final"),
			}}), nil
		}
		reply := model.NewAssistantMessage("").WithID("ask")
		reply.ToolCalls = []model.ToolCall{{Type: "function", ID: "c1",
			Function: model.FunctionDefinitionParam{Name: "human_assistance", Arguments: []byte(`{"text":"help?"}`)}}}
		return graph.Continue(graph.State{graph.StateKeyMessages: []model.Message{reply}}), nil
	}
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("chatbot", modelNode).
		AddToolsNode("tools", tool.NewSet(ask)).
		SetEntryPoint("chatbot").
		AddToolsConditionalEdges("chatbot", "tools", graph.End).
		AddEdge("tools", "chatbot").
		MustCompile()
	exec := newExecutor(t, g)
	ctx := context.Background()

	res, err := exec.Invoke(ctx, "t", userInput("need help"))
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, "tools", res.Interrupt.NodeID)
	assert.Equal(t, map[string]any{"query": "help?"}, res.Interrupt.Payload)

	res, err = exec.ResumeInvoke(ctx, "t", map[string]any{"data": "use the docs"})
	require.NoError(t, err)
	require.False(t, res.Interrupted())
	last, _ := graph.LastMessage(res.State)
	assert.Equal(t, "human said use the docs", last.Content)
	var toolMsgs int
	for _, m := range graph.Messages(res.State) {
		if m.Role == model.RoleTool {
			toolMsgs++
		}
	}
	assert.Equal(t, 1, toolMsgs)
}

func TestNewExecutor_NilGraph(t *testing.T) {
	_, err := graph.NewExecutor(nil)
	assert.ErrorIs(t, err, graph.ErrConfiguration)
}

func TestEventStateIsSnapshot(t *testing.T) {
	g := graph.NewStateGraph(graph.MessagesStateSchema()).
		AddNode("a", replyNode("one")).
		AddNode("b", replyNode("two")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		MustCompile()
	exec := newExecutor(t, g)
	events, err := exec.Run(context.Background(), "t", userInput("hi"))
	require.NoError(t, err)
	got := drain(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, "user:hi|assistant:one", strings.Join(contents(graph.Messages(got[0].State)), "|"))
	assert.Equal(t, "user:hi|assistant:one|assistant:two", strings.Join(contents(graph.Messages(got[1].State)), "|"))
	assert.Equal(t, got[0].Step+1, got[1].Step)
}
