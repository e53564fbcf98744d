//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides graph-based execution functionality: a builder and
// compiler for directed graphs of node handlers, reducer-based state merging,
// checkpointing per thread, and suspend/resume of a run awaiting external
// input.
package graph

import (
	"context"
	"sort"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// NodeType classifies a node for visualization.
type NodeType string

// Node types.
const (
	NodeTypeFunction NodeType = "function"
	NodeTypeLLM      NodeType = "llm"
	NodeTypeTool     NodeType = "tool"
)

// NodeFunc is the handler backing a node. It receives a copy of the state
// and returns either Continue(update) or Suspend(payload).
//
// A handler that suspends is invoked again from its start when the thread
// is resumed. Side effects performed before the suspend point are therefore
// repeated and must be idempotent.
type NodeFunc func(ctx context.Context, state State) (Result, error)

// ConditionalFunc is a router: it returns a key of the conditional edge's
// path map. It is called once per step, after the node's update is merged,
// with a copy of the state. It must not perform I/O.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// Node represents a node in the graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
	Type        NodeType
}

// Edge represents an unconditional edge in the graph.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	PathMap   map[string]string // Maps condition result to target node.
}

// Command is returned by a tool to contribute state keys in addition to its
// result message.
type Command struct {
	// Update is merged into the tools node's update.
	Update State
	// Result becomes the content of the tool result message.
	Result any
}

// Graph is the compiled, immutable runtime form of a StateGraph.
// It is created only by StateGraph.Compile and may be shared by any number
// of executors.
type Graph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	order            []string
	edges            map[string]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edge returns the unconditional edge leaving a node.
func (g *Graph) Edge(nodeID string) (*Edge, bool) {
	edge, exists := g.edges[nodeID]
	return edge, exists
}

// ConditionalEdge returns the conditional edge from a node.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// Schema returns the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// successors lists every node a node may hand over to, sorted.
func (g *Graph) successors(nodeID string) []string {
	if e, ok := g.edges[nodeID]; ok {
		return []string{e.To}
	}
	ce, ok := g.conditionalEdges[nodeID]
	if !ok {
		return []string{End}
	}
	set := make(map[string]struct{}, len(ce.PathMap))
	for _, to := range ce.PathMap {
		set[to] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for to := range set {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// reachesEnd reports whether End is reachable from the entry point.
func (g *Graph) reachesEnd() bool {
	visited := map[string]bool{}
	stack := []string{g.entryPoint}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == End {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, g.successors(id)...)
	}
	return false
}
