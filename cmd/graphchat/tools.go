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
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/model/openai"
	"trpc.group/trpc-go/trpc-graph-go/tool"
	"trpc.group/trpc-go/trpc-graph-go/tool/function"
)

const (
	toolInternetSearch  = "internet_search"
	toolHumanAssistance = "human_assistance"
	toolChangeMood      = "change_mood"

	perplexityBaseURL = "https://api.perplexity.ai"
	perplexityModel   = "sonar"
	searchPrompt      = "You are an helpful assistant, searching the internet for information to answer the user's question."
)

// searchFunc answers a question from the web.
type searchFunc func(ctx context.Context, question string) (string, error)

type searchInput struct {
	Question string `json:"question" description:"The question to search for information about."`
}

type assistanceInput struct {
	Query string `json:"query" description:"The question to ask the human."`
}

type moodInput struct {
	Mood string `json:"mood" description:"The mood to change to."`
}

func newInternetSearchTool(search searchFunc) tool.CallableTool {
	return function.NewFunctionTool(
		func(ctx context.Context, in searchInput) (string, error) {
			if in.Question == "" {
				return "", errors.New("question is required")
			}
			return search(ctx, in.Question)
		},
		function.WithName(toolInternetSearch),
		function.WithDescription("Search the internet for information about the given question."),
	)
}

// newHumanAssistanceTool suspends the run with the query. The resume value is
// expected to be {"data": answer}.
func newHumanAssistanceTool() tool.CallableTool {
	return function.NewFunctionTool(
		func(ctx context.Context, in assistanceInput) (string, error) {
			answer, err := graph.Interrupt(ctx, map[string]any{"query": in.Query})
			if err != nil {
				return "", err
			}
			return resumeData(answer), nil
		},
		function.WithName(toolHumanAssistance),
		function.WithDescription("Request assistance from a human."),
	)
}

func newChangeMoodTool() tool.CallableTool {
	return function.NewFunctionTool(
		func(_ context.Context, in moodInput) (*graph.Command, error) {
			if in.Mood == "" {
				return nil, errors.New("mood is required")
			}
			return &graph.Command{
				Update: graph.State{stateKeyMood: in.Mood},
				Result: fmt.Sprintf("Mood changed to %s", in.Mood),
			}, nil
		},
		function.WithName(toolChangeMood),
		function.WithDescription("Change the mood of the agent."),
	)
}

func resumeData(v any) string {
	if m, ok := v.(map[string]any); ok {
		if data, ok := m["data"]; ok {
			return fmt.Sprint(data)
		}
	}
	return fmt.Sprint(v)
}

// newPerplexitySearch answers questions with Perplexity's sonar model through
// its OpenAI compatible API.
func newPerplexitySearch(apiKey string) searchFunc {
	m := openai.New(perplexityModel,
		openai.WithAPIKey(apiKey),
		openai.WithBaseURL(perplexityBaseURL),
	)
	return func(ctx context.Context, question string) (string, error) {
		if apiKey == "" {
			return "", fmt.Errorf("internet search needs %s", envPerplexityKey)
		}
		temperature := 0.0
		responses, err := m.GenerateContent(ctx, &model.Request{
			Messages: []model.Message{
				model.NewSystemMessage(searchPrompt),
				model.NewUserMessage(question),
			},
			GenerationConfig: model.GenerationConfig{Temperature: &temperature},
		})
		if err != nil {
			return "", err
		}
		var answer string
		for rsp := range responses {
			if rsp.Error != nil {
				return "", fmt.Errorf("search failed: %s", rsp.Error.Message)
			}
			if len(rsp.Choices) > 0 {
				answer = rsp.Choices[0].Message.Content
			}
		}
		return answer, nil
	}
}
