//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the message types exchanged with language models and
// the Model interface the graph nodes call.
package model

import "context"

// Model is the interface for all language models.
//
// Function-level errors are returned when the request cannot be sent at all.
// API-level errors are delivered through Response.Error on the channel.
//
//	responseChan, err := model.GenerateContent(ctx, request)
//	if err != nil {
//	    return fmt.Errorf("failed to generate content: %w", err)
//	}
//	for response := range responseChan {
//	    if response.Error != nil {
//	        return fmt.Errorf("API error: %s", response.Error.Message)
//	    }
//	}
type Model interface {
	// GenerateContent generates content from the given request.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
