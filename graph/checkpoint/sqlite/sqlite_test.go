//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewSaver_NilDB(t *testing.T) {
	_, err := NewSaver(nil)
	assert.Error(t, err)
}

func TestSaver_SaveAndLoad(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	defer saver.Close()
	ctx := context.Background()

	latest, err := saver.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := graph.NewCheckpoint("t1", 0, graph.SourceInput, graph.State{"counter": 1, "name": "a"}, "node")
	require.NoError(t, saver.Save(ctx, first))
	second := graph.NewCheckpoint("t1", 1, graph.SourceLoop, graph.State{"counter": 2, "name": "a"}, graph.End)
	require.NoError(t, saver.Save(ctx, second))

	latest, err = saver.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 1, latest.Step)
	assert.Equal(t, graph.SourceLoop, latest.Source)
	assert.Equal(t, graph.End, latest.NextNode)
	// Numbers come back as JSON numbers until a schema coerces them.
	assert.Equal(t, float64(2), latest.State["counter"])
	assert.Equal(t, "a", latest.State["name"])
	assert.Equal(t, second.CreatedAt.UnixNano(), latest.CreatedAt.UnixNano())
	assert.False(t, latest.IsInterrupted())

	loaded, err := saver.LoadStep(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)
	assert.Equal(t, graph.SourceInput, loaded.Source)

	_, err = saver.LoadStep(ctx, "t1", 9)
	assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}

func TestSaver_StepsMustIncrease(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, saver.Save(ctx, graph.NewCheckpoint("t", 2, graph.SourceInput, graph.State{}, "a")))
	err = saver.Save(ctx, graph.NewCheckpoint("t", 2, graph.SourceLoop, graph.State{}, "a"))
	assert.ErrorIs(t, err, graph.ErrStepConflict)
	require.NoError(t, saver.Save(ctx, graph.NewCheckpoint("other", 0, graph.SourceInput, graph.State{}, "a")))
}

func TestSaver_PendingInterrupt(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	ckpt := graph.NewCheckpoint("t", 0, graph.SourceInterrupt, graph.State{}, "ask")
	ckpt.PendingInterrupt = graph.NewPendingInterrupt("ask", map[string]any{"query": "ok?"}, []any{"earlier"})
	require.NoError(t, saver.Save(ctx, ckpt))

	loaded, err := saver.LoadLatest(ctx, "t")
	require.NoError(t, err)
	require.True(t, loaded.IsInterrupted())
	assert.Equal(t, ckpt.PendingInterrupt.ID, loaded.PendingInterrupt.ID)
	assert.Equal(t, "ask", loaded.PendingInterrupt.NodeID)
	assert.Equal(t, map[string]any{"query": "ok?"}, loaded.PendingInterrupt.Payload)
	assert.Equal(t, []any{"earlier"}, loaded.PendingInterrupt.Resumed)
}

func TestSaver_ListAndDelete(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	for step := 0; step < 4; step++ {
		require.NoError(t, saver.Save(ctx, graph.NewCheckpoint("t", step, graph.SourceLoop, graph.State{}, "n")))
	}

	all, err := saver.List(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 3, all[0].Step)
	assert.Equal(t, 0, all[3].Step)

	two, err := saver.List(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, 2, two[1].Step)

	require.NoError(t, saver.DeleteThread(ctx, "t"))
	latest, err := saver.LoadLatest(ctx, "t")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaver_ThreadIDRequired(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	assert.ErrorIs(t, saver.Save(ctx, graph.NewCheckpoint("", 0, graph.SourceInput, graph.State{}, "n")), graph.ErrThreadIDRequired)
	_, err = saver.LoadLatest(ctx, "")
	assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
	_, err = saver.LoadStep(ctx, "", 0)
	assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
}

// A suspended thread survives a process restart: a new executor over the
// same database resumes it, with messages restored to their Go type.
func TestSaver_ResumeAcrossExecutors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	build := func() *graph.Executor {
		g := graph.NewStateGraph(graph.MessagesStateSchema()).
			AddNode("confirm", func(ctx context.Context, state graph.State) (graph.Result, error) {
				answer, err := graph.Interrupt(ctx, map[string]any{"query": "confirm?"})
				if err != nil {
					return graph.Result{}, err
				}
				n := len(graph.Messages(state))
				return graph.Continue(graph.State{graph.StateKeyMessages: []model.Message{
					model.NewAssistantMessage(fmt.Sprintf("answer: %v", answer)).WithID(fmt.Sprintf("a%d", n)),
				}}), nil
			}).
			SetEntryPoint("confirm").
			MustCompile()
		saver, err := NewSaver(db)
		require.NoError(t, err)
		exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
		require.NoError(t, err)
		return exec
	}

	res, err := build().Invoke(ctx, "thread", graph.State{graph.StateKeyMessages: []model.Message{
		model.NewUserMessage("hello").WithID("u1"),
	}})
	require.NoError(t, err)
	require.True(t, res.Interrupted())

	restarted := build()
	pending, err := restarted.GetState(ctx, "thread")
	require.NoError(t, err)
	require.True(t, pending.IsInterrupted())
	msgs, ok := pending.State[graph.StateKeyMessages].([]model.Message)
	require.True(t, ok)
	assert.Equal(t, "hello", msgs[0].Content)

	res, err = restarted.ResumeInvoke(ctx, "thread", "yes")
	require.NoError(t, err)
	require.False(t, res.Interrupted())
	got := graph.Messages(res.State)
	require.Len(t, got, 2)
	assert.Equal(t, "answer: yes", got[1].Content)

	history, err := restarted.History(ctx, "thread", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, graph.SourceLoop, history[0].Source)
	assert.Equal(t, graph.SourceInterrupt, history[1].Source)
	assert.Equal(t, graph.SourceInput, history[2].Source)
}

func TestSaver_ConcurrentSameThread(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	defer saver.Close()
	ctx := context.Background()
	const writers = 12

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		maxStep = -1
		saved   int
	)
	for step := 0; step < writers; step++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			err := saver.Save(ctx, graph.NewCheckpoint("t", step, graph.SourceLoop, graph.State{"step": step}, "n"))
			if err != nil {
				assert.ErrorIs(t, err, graph.ErrStepConflict)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			saved++
			if step > maxStep {
				maxStep = step
			}
		}(step)
	}
	wg.Wait()
	require.Positive(t, saved)

	latest, err := saver.LoadLatest(ctx, "t")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, maxStep, latest.Step)

	all, err := saver.List(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, all, saved)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Step, all[i].Step)
	}
}
