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

	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// StateGraph provides a fluent interface for building graphs.
// This is the primary public API for creating executable graphs.
//
// Definition mistakes are recorded as they happen and reported by Compile.
//
// Example usage:
//
//	schema := NewStateSchema().AddField("counter", StateField{...})
//	graph, err := NewStateGraph(schema).
//	  AddNode("increment", incrementFunc).
//	  SetEntryPoint("increment").
//	  SetFinishPoint("increment").
//	  Compile()
//
// The compiled Graph can then be executed with NewExecutor(graph).
type StateGraph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	order            []string
	edges            []*Edge
	conditionalEdges []*ConditionalEdge
	entryPoint       string
	errs             []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		schema: schema,
		nodes:  make(map[string]*Node),
	}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// WithNodeType sets the type of the node.
func WithNodeType(nodeType NodeType) Option {
	return func(node *Node) {
		node.Type = nodeType
	}
}

func (sg *StateGraph) fail(err *ConfigurationError) {
	sg.errs = append(sg.errs, err)
}

// AddNode adds a node with the given ID and function.
// The name and description of the node can be set with the options.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	switch {
	case id == "":
		sg.fail(&ConfigurationError{Reason: "node ID cannot be empty"})
		return sg
	case id == Start || id == End:
		sg.fail(&ConfigurationError{NodeID: id, Reason: "node ID is reserved"})
		return sg
	case function == nil:
		sg.fail(&ConfigurationError{NodeID: id, Reason: "node function is nil"})
		return sg
	}
	if _, exists := sg.nodes[id]; exists {
		sg.fail(&ConfigurationError{NodeID: id, Reason: "duplicate node ID"})
		return sg
	}
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
		Type:     NodeTypeFunction,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.nodes[id] = node
	sg.order = append(sg.order, id)
	return sg
}

// AddLLMNode adds a node that calls m with the state's message history.
func (sg *StateGraph) AddLLMNode(
	id string,
	m model.Model,
	instruction string,
	tools map[string]tool.Tool,
	opts ...Option,
) *StateGraph {
	fn := NewLLMNodeFunc(m, WithInstruction(instruction), WithTools(tools))
	return sg.AddNode(id, fn, append([]Option{WithNodeType(NodeTypeLLM)}, opts...)...)
}

// AddToolsNode adds a node that executes the tool calls of the last message.
func (sg *StateGraph) AddToolsNode(
	id string,
	tools map[string]tool.Tool,
	opts ...Option,
) *StateGraph {
	fn := NewToolsNodeFunc(tools)
	return sg.AddNode(id, fn, append([]Option{WithNodeType(NodeTypeTool)}, opts...)...)
}

// AddEdge adds a normal edge between two nodes.
// AddEdge(Start, id) is equivalent to SetEntryPoint(id).
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	if from == Start {
		return sg.SetEntryPoint(to)
	}
	edge := fmt.Sprintf("%s -> %s", from, to)
	switch {
	case from == "" || to == "":
		sg.fail(&ConfigurationError{Edge: edge, Reason: "edge from and to cannot be empty"})
		return sg
	case from == End:
		sg.fail(&ConfigurationError{Edge: edge, Reason: "edges cannot leave End"})
		return sg
	case to == Start:
		sg.fail(&ConfigurationError{Edge: edge, Reason: "edges cannot enter Start"})
		return sg
	}
	sg.edges = append(sg.edges, &Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The router's
// result is looked up in pathMap to find the next node.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionalFunc,
	pathMap map[string]string,
) *StateGraph {
	switch {
	case from == "" || from == Start || from == End:
		sg.fail(&ConfigurationError{NodeID: from, Reason: "conditional edge must leave a node"})
		return sg
	case condition == nil:
		sg.fail(&ConfigurationError{NodeID: from, Reason: "conditional edge has no router"})
		return sg
	case len(pathMap) == 0:
		sg.fail(&ConfigurationError{NodeID: from, Reason: "conditional edge has an empty path map"})
		return sg
	}
	paths := make(map[string]string, len(pathMap))
	for k, v := range pathMap {
		paths[k] = v
	}
	sg.conditionalEdges = append(sg.conditionalEdges, &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   paths,
	})
	return sg
}

// AddToolsConditionalEdges adds conditional routing from a LLM node to a tools node.
// If the last message has tool calls, route to the tools node.
// Otherwise, route to the fallback node.
func (sg *StateGraph) AddToolsConditionalEdges(
	fromLLMNode string,
	toToolsNode string,
	fallbackNode string,
) *StateGraph {
	condition := func(ctx context.Context, state State) (string, error) {
		if last, ok := LastMessage(state); ok && len(last.ToolCalls) > 0 {
			return toToolsNode, nil
		}
		return fallbackNode, nil
	}
	return sg.AddConditionalEdges(fromLLMNode, condition, map[string]string{
		toToolsNode:  toToolsNode,
		fallbackNode: fallbackNode,
	})
}

// SetEntryPoint sets the entry point of the graph.
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	if sg.entryPoint != "" && sg.entryPoint != nodeID {
		sg.fail(&ConfigurationError{
			NodeID: nodeID,
			Reason: fmt.Sprintf("entry point already set to %s", sg.entryPoint),
		})
		return sg
	}
	sg.entryPoint = nodeID
	return sg
}

// SetFinishPoint adds an edge from the node to End.
// This is equivalent to AddEdge(nodeID, End).
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	return sg.AddEdge(nodeID, End)
}

// Compile validates the definition and returns the immutable Graph.
// All problems are reported as *ConfigurationError.
func (sg *StateGraph) Compile() (*Graph, error) {
	if len(sg.errs) > 0 {
		return nil, sg.errs[0]
	}
	if sg.entryPoint == "" {
		return nil, &ConfigurationError{Reason: "graph must have an entry point"}
	}
	if _, ok := sg.nodes[sg.entryPoint]; !ok {
		return nil, &ConfigurationError{NodeID: sg.entryPoint, Reason: "entry point node does not exist"}
	}
	g := &Graph{
		schema:           sg.schema.clone(),
		nodes:            make(map[string]*Node, len(sg.nodes)),
		order:            append([]string(nil), sg.order...),
		edges:            make(map[string]*Edge, len(sg.edges)),
		conditionalEdges: make(map[string]*ConditionalEdge, len(sg.conditionalEdges)),
		entryPoint:       sg.entryPoint,
	}
	for id, n := range sg.nodes {
		copied := *n
		g.nodes[id] = &copied
	}
	for _, e := range sg.edges {
		name := fmt.Sprintf("%s -> %s", e.From, e.To)
		if _, ok := g.nodes[e.From]; !ok {
			return nil, &ConfigurationError{Edge: name, Reason: fmt.Sprintf("source node %s does not exist", e.From)}
		}
		if !sg.resolves(e.To) {
			return nil, &ConfigurationError{Edge: name, Reason: fmt.Sprintf("target node %s does not exist", e.To)}
		}
		if prev, dup := g.edges[e.From]; dup {
			return nil, &ConfigurationError{
				Edge:   name,
				Reason: fmt.Sprintf("node already has an edge to %s", prev.To),
			}
		}
		copied := *e
		g.edges[e.From] = &copied
	}
	for _, ce := range sg.conditionalEdges {
		if _, ok := g.nodes[ce.From]; !ok {
			return nil, &ConfigurationError{NodeID: ce.From, Reason: "conditional edge source does not exist"}
		}
		if _, dup := g.conditionalEdges[ce.From]; dup {
			return nil, &ConfigurationError{NodeID: ce.From, Reason: "node has more than one conditional edge"}
		}
		if e, ok := g.edges[ce.From]; ok {
			return nil, &ConfigurationError{
				NodeID: ce.From,
				Reason: fmt.Sprintf("node has both an edge to %s and a conditional edge", e.To),
			}
		}
		for key, to := range ce.PathMap {
			if !sg.resolves(to) {
				return nil, &ConfigurationError{
					Edge:   fmt.Sprintf("%s -[%s]-> %s", ce.From, key, to),
					Reason: fmt.Sprintf("target node %s does not exist", to),
				}
			}
		}
		g.conditionalEdges[ce.From] = ce
	}
	if !g.reachesEnd() {
		log.Warnf("graph: End is not reachable from entry point %s", g.entryPoint)
	}
	return g, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}

func (sg *StateGraph) resolves(id string) bool {
	if id == End {
		return true
	}
	_, ok := sg.nodes[id]
	return ok
}
