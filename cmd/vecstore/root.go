package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/gocontext-vecstore/internal/config"
	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/logging"
	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
)

// rootFlags are shared by every subcommand
type rootFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "vecstore",
		Short: "HNSW vector store with an MCP server",
		Long: `vecstore keeps named vector collections on disk, each with an HNSW index
that is updated incrementally or rebuilt depending on how much changed.

Configuration is read from --config (or $VECSTORE_CONFIG), then overridden
by VECSTORE_* environment variables and finally by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv(config.EnvConfig), "Path to YAML config file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Directory holding the collections (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn, error or off (overrides config)")

	root.AddCommand(
		newServeCmd(flags),
		newStatsCmd(flags),
		newRebuildCmd(flags),
		newListCmd(flags),
		newEmbedCmd(flags),
		newVersionCmd(),
	)
	return root
}

// app bundles what a command needs once configuration is resolved
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

// loadApp resolves configuration and builds the stderr logger
func loadApp(flags *rootFlags, console bool) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, level)
	if console {
		logger = logging.NewConsole(os.Stderr, level)
	}
	return &app{cfg: cfg, log: logger}, nil
}

// openStore opens the vector store. emb may be nil for commands that
// never embed text.
func (a *app) openStore(emb embedder.Embedder) (*vectorstore.Store, error) {
	store, err := vectorstore.New(vectorstore.Config{
		DataDir: a.cfg.DataDir,
		HNSW: hnsw.Config{
			M:               a.cfg.HNSW.M,
			EfConstruction:  a.cfg.HNSW.EfConstruction,
			EfSearch:        a.cfg.HNSW.EfSearch,
			InitialCapacity: a.cfg.HNSW.InitialCapacity,
		},
		Embedder:        emb,
		DefaultLimit:    a.cfg.Search.DefaultLimit,
		MaxLimit:        a.cfg.Search.MaxLimit,
		HandleCacheSize: a.cfg.Search.HandleCacheSize,
		Logger:          a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return store, nil
}

// withStore runs fn against a store without an embedder and closes it after
func withStore(ctx context.Context, flags *rootFlags, fn func(context.Context, *vectorstore.Store) error) error {
	a, err := loadApp(flags, true)
	if err != nil {
		return err
	}
	store, err := a.openStore(nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close vector store")
		}
	}()
	return fn(ctx, store)
}
