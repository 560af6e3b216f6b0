package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/mcp"
	"github.com/dshills/gocontext-vecstore/internal/storage"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdin/stdout until the client disconnects or the
process receives SIGINT or SIGTERM. Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *rootFlags) error {
	// JSON logs: stderr of an MCP server is usually collected by the client
	a, err := loadApp(flags, false)
	if err != nil {
		return err
	}
	a.log.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("driver", storage.DriverName).
		Str("data_dir", a.cfg.DataDir).
		Msg("vecstore starting")

	emb, err := embedder.NewFromConfig(a.cfg.EmbedderConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() { _ = emb.Close() }()
	a.log.Info().
		Str("provider", emb.Provider()).
		Str("model", emb.Model()).
		Int("dimension", emb.Dimension()).
		Msg("embedding provider ready")

	store, err := a.openStore(emb)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close vector store")
		}
	}()

	server, err := mcp.NewServer(store, version, a.log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		a.log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		err = <-errChan
	case err = <-errChan:
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	a.log.Info().Msg("server stopped")
	return nil
}
