// Package app provides the vectorag server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/vectorag/cmd/vectorag/app/options"
	"github.com/kart-io/vectorag/pkg/app"
)

const (
	// Name is the name of the application.
	Name = "vectorag"

	// commandDesc is the description of the command.
	commandDesc = `VectorRAG Retrieval Service

A retrieval pipeline service backed by the Milvus vector database.

This server provides:
  - Document ingestion with overlapping chunking and vector embeddings
  - Semantic similarity search over the knowledge base
  - Optional LLM answer synthesis from retrieved context
  - Support for multiple embedding providers (Ollama, OpenAI)`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)

	return application
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := context.Background()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}
