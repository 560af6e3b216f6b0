package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
)

// embedOutput is the JSON output of the embed command
type embedOutput struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	Hash       string    `json:"hash"`
	DurationMs float64   `json:"duration_ms"`
	Vector     []float32 `json:"vector,omitempty"`
	Preview    []float32 `json:"preview"`
}

const previewLen = 8

func newEmbedCmd(flags *rootFlags) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "embed <text>...",
		Short: "Embed text with the configured provider",
		Long: `Embed joins its arguments into one text and embeds it with the configured
provider. Use it to check provider credentials and dimension before serving.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, true)
			if err != nil {
				return err
			}

			emb, err := embedder.NewFromConfig(a.cfg.EmbedderConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer func() { _ = emb.Close() }()

			text := strings.Join(args, " ")
			start := time.Now()
			res, err := emb.GenerateEmbedding(cmd.Context(), embedder.EmbeddingRequest{Text: text})
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}

			out := embedOutput{
				Provider:   res.Provider,
				Model:      res.Model,
				Dimension:  len(res.Vector),
				Hash:       embedder.ComputeHash(res.Model, text),
				DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
				Preview:    res.Vector[:min(previewLen, len(res.Vector))],
			}
			if full {
				out.Vector = res.Vector
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print the whole vector")
	return cmd
}
