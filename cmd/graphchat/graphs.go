//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//


package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

const (
	stateKeyMood = "mood"
	defaultMood  = "neutral"

	nodeCallModel = "call_model"
	nodeChatbot   = "chatbot"
	nodeTools     = "tools"

	systemTimeLayout = "2006-01-02 15:04:05"
	systemPrompt     = `You are a helpful assistant. Your current mood is %s and you let it show in your tone.
Use the tools available to you when a question needs current information or a human decision.
System time: %s`
)

// presetDeps are the collaborators the preset graphs are built from.
type presetDeps struct {
	llm    model.Model
	search searchFunc
	now    func() time.Time
}

// preset is one of the runnable conversation graphs.
type preset struct {
	name        string
	description string
	// checkpointed presets keep the conversation across turns.
	checkpointed bool
	build        func(deps presetDeps) (*graph.Graph, error)
}

var presets = []preset{
	{
		name:        "basic",
		description: "single model call per turn, no memory",
		build:       buildBasicGraph,
	},
	{
		name:        "tools",
		description: "model with internet search, no memory",
		build:       buildToolsGraph,
	},
	{
		name:         "memory",
		description:  "model with internet search and conversation memory",
		checkpointed: true,
		build:        buildMemoryGraph,
	},
	{
		name:         "hitl",
		description:  "adds a human_assistance tool that interrupts the run",
		checkpointed: true,
		build:        buildHumanInTheLoopGraph,
	},
	{
		name:         "state",
		description:  "adds a mood state field changed by the change_mood tool",
		checkpointed: true,
		build:        buildStateGraph,
	},
}

// findPreset looks a preset up by name or by its 1-based position.
func findPreset(choice string) (preset, bool) {
	choice = strings.TrimSpace(choice)
	if n, err := strconv.Atoi(choice); err == nil {
		if n >= 1 && n <= len(presets) {
			return presets[n-1], true
		}
		return preset{}, false
	}
	for _, p := range presets {
		if p.name == choice {
			return p, true
		}
	}
	return preset{}, false
}

// chatSchema is the message schema plus the mood field.
func chatSchema() *graph.StateSchema {
	return graph.MessagesStateSchema().AddField(stateKeyMood, graph.StateField{
		Type:    reflect.TypeOf(""),
		Reducer: graph.DefaultReducer,
		Default: func() any { return defaultMood },
	})
}

// instruction renders the system prompt from the current mood and time.
func instruction(now func() time.Time) func(graph.State) string {
	return func(state graph.State) string {
		mood, _ := state[stateKeyMood].(string)
		if mood == "" {
			mood = defaultMood
		}
		return fmt.Sprintf(systemPrompt, mood, now().Format(systemTimeLayout))
	}
}

func (d presetDeps) clock() func() time.Time {
	if d.now != nil {
		return d.now
	}
	return time.Now
}

func buildBasicGraph(deps presetDeps) (*graph.Graph, error) {
	return graph.NewStateGraph(chatSchema()).
		AddNode(nodeCallModel,
			graph.NewLLMNodeFunc(deps.llm, graph.WithInstructionFunc(instruction(deps.clock()))),
			graph.WithNodeType(graph.NodeTypeLLM)).
		SetEntryPoint(nodeCallModel).
		SetFinishPoint(nodeCallModel).
		Compile()
}

// buildToolLoop wires llm -> tools -> llm, leaving at End when the model
// stops calling tools.
func buildToolLoop(deps presetDeps, llmNode string, tools map[string]tool.Tool) (*graph.Graph, error) {
	return graph.NewStateGraph(chatSchema()).
		AddNode(llmNode,
			graph.NewLLMNodeFunc(deps.llm,
				graph.WithInstructionFunc(instruction(deps.clock())),
				graph.WithTools(tools)),
			graph.WithNodeType(graph.NodeTypeLLM)).
		AddToolsNode(nodeTools, tools).
		SetEntryPoint(llmNode).
		AddToolsConditionalEdges(llmNode, nodeTools, graph.End).
		AddEdge(nodeTools, llmNode).
		Compile()
}

func buildToolsGraph(deps presetDeps) (*graph.Graph, error) {
	return buildToolLoop(deps, nodeCallModel, tool.NewSet(newInternetSearchTool(deps.search)))
}

func buildMemoryGraph(deps presetDeps) (*graph.Graph, error) {
	return buildToolLoop(deps, nodeChatbot, tool.NewSet(newInternetSearchTool(deps.search)))
}

func buildHumanInTheLoopGraph(deps presetDeps) (*graph.Graph, error) {
	return buildToolLoop(deps, nodeCallModel, tool.NewSet(
		newInternetSearchTool(deps.search),
		newHumanAssistanceTool(),
	))
}

func buildStateGraph(deps presetDeps) (*graph.Graph, error) {
	return buildToolLoop(deps, nodeCallModel, tool.NewSet(
		newInternetSearchTool(deps.search),
		newHumanAssistanceTool(),
		newChangeMoodTool(),
	))
}
