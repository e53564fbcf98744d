//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"time"
)

// Error types carried by Response.Error.
const (
	ErrorTypeAPIError = "api_error"
)

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice.
	Index int `json:"index"`

	// Message is the message content.
	Message Message `json:"message,omitempty"`

	// FinishReason is the reason the choice was finished.
	// "stop", "length", "tool_calls", etc.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// ResponseError represents an error reported by the model service.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`
	// Type is the error type.
	Type string `json:"type"`
}

// Response is a single response from the model.
type Response struct {
	// ID is the unique identifier of the response.
	ID string `json:"id"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices contains the completion choices.
	Choices []Choice `json:"choices"`

	// Usage contains the token usage, if reported.
	Usage *Usage `json:"usage,omitempty"`

	// Error contains an API-level error, if any.
	Error *ResponseError `json:"error,omitempty"`

	// Timestamp is when the response was received.
	Timestamp time.Time `json:"timestamp"`

	// Done reports whether this is the final response of the call.
	Done bool `json:"done"`
}
