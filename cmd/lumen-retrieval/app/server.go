// Package app provides the retrieval server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumenkb/lumen/cmd/lumen-retrieval/app/options"
	"github.com/lumenkb/lumen/pkg/app"

	// Register the embedding and chat providers.
	_ "github.com/lumenkb/lumen/pkg/embedding/clip"
	_ "github.com/lumenkb/lumen/pkg/embedding/ollama"
	_ "github.com/lumenkb/lumen/pkg/llm/ollama"
)

const (
	// Name is the name of the application.
	Name = "lumen-retrieval"

	commandDesc = `Lumen Retrieval Service

The multimodal retrieval core of the Lumen knowledge base.

This server provides:
  - Fragment ingestion with per-modality vector embeddings
  - Cross-modal semantic search over text, image and audio spaces
  - Numbered citations with document provenance
  - Optional LLM answer generation over retrieved evidence`
)

// NewApp creates the retrieval server application.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run initializes and runs the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
