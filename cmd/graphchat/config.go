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
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"trpc.group/trpc-go/trpc-graph-go/log"
)

const (
	defaultModelName = "gpt-4-turbo"
	defaultThreadID  = "1"
	defaultDBPath    = "graphchat.db"
	defaultEnvFile   = ".env"

	envOpenAIKey     = "OPENAI_API_KEY"
	envOpenAIBaseURL = "OPENAI_BASE_URL"
	envPerplexityKey = "PERPLEXITY_API_KEY"
	envModelName     = "MODEL_NAME"

	storageMemory = "memory"
	storageSQLite = "sqlite"
)

// config holds the runner settings gathered from flags and the environment.
type config struct {
	Graph            string `validate:"omitempty,oneof=basic tools memory hitl state"`
	ModelName        string `validate:"required"`
	BaseURL          string `validate:"omitempty,url"`
	APIKey           string
	PerplexityAPIKey string
	Storage          string `validate:"required,oneof=memory sqlite"`
	DBPath           string `validate:"required_if=Storage sqlite"`
	ThreadID         string `validate:"required"`
	VizDir           string
	LogLevel         string `validate:"required,oneof=debug info warn error fatal"`
	OTel             bool
	OTelProtocol     string `validate:"required,oneof=grpc http"`
}

// parseConfig parses args, loads the env file and validates the result.
// Flags win over environment variables; variables already set in the process
// environment win over the env file.
func parseConfig(args []string) (*config, error) {
	cfg := &config{}
	var envFile string
	flags := flag.NewFlagSet("graphchat", flag.ContinueOnError)
	flags.StringVar(&envFile, "env", defaultEnvFile, "Env file holding API keys")
	flags.StringVar(&cfg.Graph, "graph", "", "Graph to run: basic, tools, memory, hitl or state (prompted when empty)")
	flags.StringVar(&cfg.ModelName, "model", "", "Model name (default $"+envModelName+" or "+defaultModelName+")")
	flags.StringVar(&cfg.BaseURL, "base-url", "", "OpenAI compatible base URL (default $"+envOpenAIBaseURL+")")
	flags.StringVar(&cfg.Storage, "storage", storageMemory, "Checkpoint storage: memory or sqlite")
	flags.StringVar(&cfg.DBPath, "db", defaultDBPath, "SQLite database file for -storage=sqlite")
	flags.StringVar(&cfg.ThreadID, "thread", defaultThreadID, "Conversation thread id")
	flags.StringVar(&cfg.VizDir, "viz-dir", "graphs", "Directory for graph diagrams, empty to skip")
	flags.StringVar(&cfg.LogLevel, "log-level", log.LevelWarn, "Log level: debug, info, warn, error or fatal")
	flags.BoolVar(&cfg.OTel, "otel", false, "Export traces and metrics over OTLP")
	flags.StringVar(&cfg.OTelProtocol, "otel-protocol", "grpc", "OTLP protocol: grpc or http")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg.APIKey = os.Getenv(envOpenAIKey)
	cfg.PerplexityAPIKey = os.Getenv(envPerplexityKey)
	if cfg.ModelName == "" {
		cfg.ModelName = os.Getenv(envModelName)
	}
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModelName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(envOpenAIBaseURL)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadEnvFile loads path into the process environment. A missing file is not
// an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("env file %s not found, using process environment", path)
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
