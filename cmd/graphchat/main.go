//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//


// Package main runs the preset conversation graphs in an interactive loop.
// Each turn appends the user's message to the thread, prints the last message
// of every step and, when a tool asks a human for help, reads the answer and
// resumes the thread with {"data": answer}.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/sqlite"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/model"
	"trpc.group/trpc-go/trpc-graph-go/model/openai"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

const bannerWidth = 80

var errQuit = errors.New("quit")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "graphchat: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.OTel {
		cleanTrace, err := trace.Start(ctx, trace.WithProtocol(cfg.OTelProtocol))
		if err != nil {
			return fmt.Errorf("start tracing: %w", err)
		}
		defer cleanTrace()
		cleanMetric, err := metric.Start(ctx, metric.WithProtocol(cfg.OTelProtocol))
		if err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
		defer cleanMetric()
	}

	chat := &chatRunner{
		threadID: cfg.ThreadID,
		in:       bufio.NewScanner(in),
		out:      out,
	}
	fmt.Fprintln(out, "Graph Runner")
	fmt.Fprintln(out, strings.Repeat("=", 12))
	p, err := chat.selectPreset(cfg.Graph)
	if err != nil {
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	}

	g, err := p.build(presetDeps{
		llm:    newChatModel(cfg),
		search: newPerplexitySearch(cfg.PerplexityAPIKey),
	})
	if err != nil {
		return fmt.Errorf("build graph %s: %w", p.name, err)
	}
	fmt.Fprintf(out, "Loaded graph %s (model %s)\n", p.name, cfg.ModelName)
	if err := exportDiagrams(ctx, g, cfg.VizDir, p.name); err != nil {
		log.Warnf("export diagrams: %v", err)
	}

	opts := []graph.ExecutorOption{}
	if p.checkpointed {
		saver, err := newSaver(cfg)
		if err != nil {
			return err
		}
		defer saver.Close()
		opts = append(opts, graph.WithCheckpointSaver(saver))
	}
	chat.exec, err = graph.NewExecutor(g, opts...)
	if err != nil {
		return err
	}
	return chat.loop(ctx)
}

func newChatModel(cfg *config) model.Model {
	opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(cfg.ModelName, opts...)
}

// sqliteSaver closes the database it opened along with the saver.
type sqliteSaver struct {
	*sqlite.Saver
	db *sql.DB
}

func (s *sqliteSaver) Close() error {
	return errors.Join(s.Saver.Close(), s.db.Close())
}

func newSaver(cfg *config) (graph.CheckpointSaver, error) {
	if cfg.Storage != storageSQLite {
		return inmemory.NewSaver(), nil
	}
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
	}
	saver, err := sqlite.NewSaver(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteSaver{Saver: saver, db: db}, nil
}

// exportDiagrams writes the graph as DOT and Mermaid into dir. A PNG is
// rendered too when graphviz is installed.
func exportDiagrams(ctx context.Context, g *graph.Graph, dir, name string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, name)
	f, err := os.Create(base + ".dot")
	if err != nil {
		return err
	}
	if err := g.WriteDOT(f, graph.WithGraphLabel(name)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(base+".mmd", []byte(g.Mermaid()), 0o644); err != nil {
		return err
	}
	if err := g.RenderImage(ctx, graph.ImageFormatPNG, base+".png", graph.WithGraphLabel(name)); err != nil {
		log.Debugf("skip png diagram: %v", err)
	}
	return nil
}

// chatRunner drives the read, run, print loop for one thread.
type chatRunner struct {
	exec     *graph.Executor
	threadID string
	in       *bufio.Scanner
	out      io.Writer
}

func (c *chatRunner) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	line := strings.TrimSpace(c.in.Text())
	if isQuit(line) {
		return "", errQuit
	}
	return line, nil
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

func (c *chatRunner) selectPreset(choice string) (preset, error) {
	if choice != "" {
		if p, ok := findPreset(choice); ok {
			return p, nil
		}
		return preset{}, fmt.Errorf("unknown graph %q", choice)
	}
	fmt.Fprintln(c.out, "\nAvailable graphs:")
	for i, p := range presets {
		fmt.Fprintf(c.out, "%d. %s: %s\n", i+1, p.name, p.description)
	}
	line, err := c.readLine("\nEnter graph number or name, or 'q' to quit: ")
	if err != nil {
		return preset{}, err
	}
	p, ok := findPreset(line)
	if !ok {
		return preset{}, fmt.Errorf("no graph %q", line)
	}
	return p, nil
}

func (c *chatRunner) loop(ctx context.Context) error {
	for {
		line, err := c.readLine("\n" + banner("User Input") + "\n\nUser: ")
		if errors.Is(err, errQuit) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		err = c.turn(ctx, line)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// turn runs one user message through the graph, answering interrupts until
// the run completes or fails.
func (c *chatRunner) turn(ctx context.Context, line string) error {
	user := model.NewUserMessage(line).WithID(uuid.NewString())
	events, err := c.exec.Run(ctx, c.threadID, graph.State{
		graph.StateKeyMessages:  []model.Message{user},
		graph.StateKeyUserInput: line,
	})
	if err != nil {
		return err
	}
	for {
		pending := c.stream(events)
		if pending == nil {
			return nil
		}
		fmt.Fprintln(c.out, "Human assistance needed!")
		payload, _ := pending.Payload.(map[string]any)
		if query, ok := payload["query"]; ok {
			fmt.Fprintf(c.out, "Query: %v\n", query)
		}
		answer, err := c.readLine("Human: ")
		if err != nil {
			return err
		}
		events, err = c.exec.Resume(ctx, c.threadID, map[string]any{"data": answer})
		if err != nil {
			return err
		}
	}
}

// stream prints the stream and returns the pending interrupt it ended with,
// if any. Run failures are printed; the thread keeps its last checkpoint.
func (c *chatRunner) stream(events <-chan *graph.Event) *graph.PendingInterrupt {
	var pending *graph.PendingInterrupt
	for evt := range events {
		switch evt.Type {
		case graph.EventTypeStep:
			if last, ok := graph.LastMessage(evt.State); ok {
				printMessage(c.out, last)
			}
		case graph.EventTypeInterrupt:
			pending = evt.Interrupt
		case graph.EventTypeError:
			fmt.Fprintf(c.out, "\nError: %v\n", evt.Err)
		}
	}
	return pending
}

func banner(title string) string {
	title = " " + title + " "
	pad := bannerWidth - len(title)
	if pad < 2 {
		return title
	}
	return strings.Repeat("=", pad/2) + title + strings.Repeat("=", pad-pad/2)
}

func printMessage(w io.Writer, m model.Message) {
	var title string
	switch m.Role {
	case model.RoleUser:
		title = "Human Message"
	case model.RoleAssistant:
		title = "Ai Message"
	case model.RoleTool:
		title = "Tool Message"
	default:
		title = "System Message"
	}
	fmt.Fprintf(w, "%s\n", banner(title))
	if m.ToolName != "" {
		fmt.Fprintf(w, "Name: %s\n", m.ToolName)
	}
	if m.Content != "" {
		fmt.Fprintf(w, "\n%s\n", m.Content)
	}
	if len(m.ToolCalls) > 0 {
		fmt.Fprintln(w, "Tool Calls:")
		for _, call := range m.ToolCalls {
			fmt.Fprintf(w, "  %s (%s)\n    Args: %s\n", call.Function.Name, call.ID, string(call.Function.Arguments))
		}
	}
}
