// Copyright 2025 The Chorus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the Chorus aggregation service.
//
// Chorus sits between clients speaking the Ollama and OpenAI wire protocols
// and a set of remote LLM providers, expanding each prompt into an
// analyze / fan-out / select / synthesize pipeline.
//
// Usage:
//
//	chorus [--config path] [--log-level level]
//
// Configuration resolution: --config flag, then the CHORUS_CONFIG environment
// variable, then ~/.config/chorus/config.toml (created with defaults when
// absent).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chorus/config"
	"chorus/llm"
	"chorus/server"
	"chorus/shared/logger"
	"chorus/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "chorus",
		Short:         "LLM API aggregation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the Chorus version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(server.Version)
		},
	}
}

func run(configPath, logLevel string) error {
	logger.SetLevel(logLevel)
	log := logger.New("chorus")

	loaded, err := config.LoadAuto(configPath)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	log.Info("", "configuration loaded", map[string]interface{}{
		"models":       loaded.Registry.Count(),
		"leaf_workers": loaded.Config.Plan.LeafCount(),
		"depth":        loaded.Config.WorkflowIntegration.NestedWorkerDepth,
	})

	client := llm.NewClient(logger.New("llm"))
	client.Warm(loaded.Registry.Hosts())

	engine := workflow.NewEngine(loaded, client, logger.New("workflow"))
	reflector := workflow.NewReflector(loaded, client, logger.New("reflection"))

	srv := server.New(loaded, engine, reflector, logger.New("server"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
