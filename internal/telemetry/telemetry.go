//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the names and span helpers shared by the trace and
// metric packages and by the graph nodes.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"trpc.group/trpc-go/trpc-graph-go/model"
)

const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-graph-go"
	InstrumentName   = "trpc.graph.go"

	SpanNameChat              = "chat"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// Attribute keys set on LLM and tool spans.
const (
	KeyGenAISystem    = "gen_ai.system"
	KeyGenAIOperation = "gen_ai.operation.name"
	KeyGenAIModel     = "gen_ai.request.model"
	KeyGenAIToolName  = "gen_ai.tool.name"
	KeyLLMRequest     = "trpc.go.graph.llm_request"
	KeyLLMResponse    = "trpc.go.graph.llm_response"
	KeyToolCallID     = "trpc.go.graph.tool_id"
	KeyToolCallArgs   = "trpc.go.graph.tool_call_args"
	KeyToolResponse   = "trpc.go.graph.tool_response"

	systemName          = "trpc.go.graph"
	notJSONSerializable = "<not json serializable>"
)

// NewChatSpanName returns the span name of a model call.
func NewChatSpanName(modelName string) string {
	if modelName == "" {
		return SpanNameChat
	}
	return SpanNameChat + " " + modelName
}

// NewExecuteToolSpanName returns the span name of a tool call.
func NewExecuteToolSpanName(toolName string) string {
	return SpanNamePrefixExecuteTool + " " + toolName
}

// TraceCallLLM records a model request and its final response on span.
func TraceCallLLM(span trace.Span, modelName string, req *model.Request, rsp *model.Response) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, systemName),
		attribute.String(KeyGenAIOperation, "chat"),
		attribute.String(KeyGenAIModel, modelName),
		attribute.String(KeyLLMRequest, jsonString(req)),
		attribute.String(KeyLLMResponse, jsonString(rsp)),
	)
}

// TraceToolCall records a tool call and its result on span.
func TraceToolCall(span trace.Span, toolName, callID string, args []byte, result any) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, systemName),
		attribute.String(KeyGenAIOperation, "tool.execute"),
		attribute.String(KeyGenAIToolName, toolName),
		attribute.String(KeyToolCallID, callID),
		attribute.String(KeyToolCallArgs, string(args)),
		attribute.String(KeyToolResponse, jsonString(result)),
	)
}

func jsonString(v any) string {
	bts, err := json.Marshal(v)
	if err != nil {
		return notJSONSerializable
	}
	return string(bts)
}

// NewGRPCConn creates an insecure gRPC client connection to an OpenTelemetry
// collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(endpoint,
		// Note the use of insecure transport here. TLS is recommended in production.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
