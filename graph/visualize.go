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
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
)

// Public constants for common string literals to avoid magic strings.
// Use these with visualization helpers and rendering.
const (
	// RankDirLR sets a left-to-right layout in Graphviz.
	RankDirLR = "LR"
	// RankDirTB sets a top-to-bottom layout in Graphviz.
	RankDirTB = "TB"

	// ImageFormatPNG is the PNG output format for Graphviz.
	ImageFormatPNG = "png"
	// ImageFormatSVG is the SVG output format for Graphviz.
	ImageFormatSVG = "svg"
)

const (
	shapeBox  = "box"
	shapeOval = "oval"

	colorLLMFill       = "#e3f2fd"
	colorLLMBorder     = "#2196f3"
	colorToolFill      = "#fff3e0"
	colorToolBorder    = "#ff9800"
	colorDefaultFill   = "#f3e5f5"
	colorDefaultBorder = "#9c27b0"

	colorStartFill   = "#e1f5e1"
	colorStartBorder = "#4caf50"
	colorEndFill     = "#ffe1e1"
	colorEndBorder   = "#f44336"

	colorConditionalEdge = "#999999"
)

// VizOptions configures DOT and Mermaid export.
type VizOptions struct {
	// RankDir sets graph direction: "LR" (left-to-right) or "TB" (top-to-bottom).
	RankDir string
	// IncludeStartEnd toggles visualization of virtual Start/End nodes.
	IncludeStartEnd bool
	// GraphLabel optionally labels the whole graph.
	GraphLabel string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets graph direction. Valid values: "LR", "TB".
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithIncludeStartEnd toggles rendering of Start/End virtual nodes.
func WithIncludeStartEnd(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeStartEnd = include }
}

// WithGraphLabel sets an optional label for the graph.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

func defaultVizOptions() *VizOptions {
	return &VizOptions{
		RankDir:         RankDirTB,
		IncludeStartEnd: true,
	}
}

// vizEdge is an edge as drawn, with its branch label if conditional.
type vizEdge struct {
	from, to, label string
	conditional     bool
}

// vizEdges lists the drawable edges in a stable order.
func (g *Graph) vizEdges(o *VizOptions) []vizEdge {
	var out []vizEdge
	if o.IncludeStartEnd {
		out = append(out, vizEdge{from: Start, to: g.entryPoint})
	}
	for _, id := range g.order {
		if e, ok := g.edges[id]; ok {
			if !o.IncludeStartEnd && e.To == End {
				continue
			}
			out = append(out, vizEdge{from: e.From, to: e.To})
			continue
		}
		ce, ok := g.conditionalEdges[id]
		if !ok {
			continue
		}
		keys := make([]string, 0, len(ce.PathMap))
		for k := range ce.PathMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			to := ce.PathMap[k]
			if !o.IncludeStartEnd && to == End {
				continue
			}
			out = append(out, vizEdge{from: id, to: to, label: k, conditional: true})
		}
	}
	return out
}

// DOT returns a Graphviz DOT representation of the graph.
// Nodes are styled by NodeType, plain edges are solid and conditional edges
// are dashed and labeled by branch key.
func (g *Graph) DOT(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}
	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", escapeLabel(o.RankDir))
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\"];\n")
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "  label=\"%s\";\n  labelloc=t;\n", escapeLabel(o.GraphLabel))
	}
	if o.IncludeStartEnd {
		fmt.Fprintf(&b, "  \"%s\" [label=\"start\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(Start), shapeOval, colorStartFill, colorStartBorder)
		fmt.Fprintf(&b, "  \"%s\" [label=\"finish\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(End), shapeOval, colorEndFill, colorEndBorder)
	}
	for _, n := range g.Nodes() {
		fill, color := styleForNodeType(n.Type)
		fmt.Fprintf(&b, "  \"%s\" [label=\"%s\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(n.ID), escapeLabel(nodeLabel(n)), shapeBox, fill, color)
	}
	for _, e := range g.vizEdges(o) {
		if e.conditional {
			fmt.Fprintf(&b, "  \"%s\" -> \"%s\" [style=dashed, color=\"%s\", label=\"%s\"];\n",
				escapeLabel(e.from), escapeLabel(e.to), colorConditionalEdge, escapeLabel(e.label))
			continue
		}
		fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", escapeLabel(e.from), escapeLabel(e.to))
	}
	if !o.IncludeStartEnd && g.entryPoint != "" {
		// When Start is hidden, emphasize entry with a double border.
		fmt.Fprintf(&b, "  \"%s\" [peripheries=2];\n", escapeLabel(g.entryPoint))
	}
	b.WriteString("}\n")
	return b.String()
}

// WriteDOT writes the DOT representation to the provided writer.
func (g *Graph) WriteDOT(w io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(w, g.DOT(opts...))
	return err
}

// Mermaid returns a Mermaid flowchart of the graph. Conditional edges are
// dotted and labeled by branch key.
func (g *Graph) Mermaid(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s\n", o.RankDir)
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", o.GraphLabel)
	}
	if o.IncludeStartEnd {
		fmt.Fprintf(&b, "    %s((%q))\n", mermaidSafeID(Start), "start")
		fmt.Fprintf(&b, "    %s((%q))\n", mermaidSafeID(End), "finish")
	}
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "    %s[%q]\n", mermaidSafeID(n.ID), nodeLabel(n))
	}
	for _, e := range g.vizEdges(o) {
		if e.conditional {
			fmt.Fprintf(&b, "    %s -.->|%s| %s\n", mermaidSafeID(e.from), e.label, mermaidSafeID(e.to))
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s\n", mermaidSafeID(e.from), mermaidSafeID(e.to))
	}
	b.WriteString("\n")
	b.WriteString("    classDef llm fill:" + colorLLMFill + ",stroke:" + colorLLMBorder + "\n")
	b.WriteString("    classDef tool fill:" + colorToolFill + ",stroke:" + colorToolBorder + "\n")
	for _, n := range g.Nodes() {
		switch n.Type {
		case NodeTypeLLM:
			fmt.Fprintf(&b, "    class %s llm\n", mermaidSafeID(n.ID))
		case NodeTypeTool:
			fmt.Fprintf(&b, "    class %s tool\n", mermaidSafeID(n.ID))
		}
	}
	return b.String()
}

// RenderImage renders the graph to an image by invoking Graphviz's `dot` binary.
// The format should be a valid Graphviz output format (e.g., "png", "svg").
// It returns an error if `dot` is not found or the command fails.
func (g *Graph) RenderImage(ctx context.Context, format, outputPath string, opts ...VizOption) error {
	if format == "" {
		format = ImageFormatPNG
	}
	dotPath, err := exec.LookPath("dot")
	if err != nil {
		return fmt.Errorf("graphviz 'dot' binary not found in PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, dotPath, "-T"+format, "-o", outputPath)
	cmd.Stdin = bytes.NewBufferString(g.DOT(opts...))
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("dot render failed: %w, output: %s", runErr, string(out))
	}
	return nil
}

func nodeLabel(n *Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

func styleForNodeType(nt NodeType) (fill, color string) {
	switch nt {
	case NodeTypeLLM:
		return colorLLMFill, colorLLMBorder
	case NodeTypeTool:
		return colorToolFill, colorToolBorder
	default:
		return colorDefaultFill, colorDefaultBorder
	}
}

// escapeLabel escapes label strings for DOT.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
