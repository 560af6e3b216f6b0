package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
)

// statsOutput is the JSON output of the stats command
type statsOutput struct {
	Collection     string       `json:"collection"`
	Dimension      int          `json:"dimension"`
	PointCount     int          `json:"point_count"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	PendingChanges int          `json:"pending_changes"`
	Indexed        bool         `json:"indexed"`
	Index          *indexOutput `json:"index,omitempty"`
}

type indexOutput struct {
	StoredCount     int   `json:"stored_count"`
	LiveCount       int   `json:"live_count"`
	TombstonedCount int   `json:"tombstoned_count"`
	Capacity        int   `json:"capacity"`
	MaxLevel        int   `json:"max_level"`
	M               int   `json:"m"`
	EfConstruction  int   `json:"ef_construction"`
	EfSearch        int   `json:"ef_search"`
	FileSizeBytes   int64 `json:"file_size_bytes"`
}

// rebuildOutput is the JSON output of the rebuild command
type rebuildOutput struct {
	Collection  string  `json:"collection"`
	HNSWUpdate  string  `json:"hnsw_update"`
	VectorCount int     `json:"vector_count"`
	LiveCount   int     `json:"live_count"`
	DurationMs  float64 `json:"duration_ms"`
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection>",
		Short: "Print collection and index statistics as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, store *vectorstore.Store) error {
				out, err := collectionStats(ctx, store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newRebuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <collection>",
		Short: "Rebuild the HNSW index of a collection from its stored points",
		Long: `Rebuild discards the current index, including its tombstones, and builds a
new one from every point in the collection. Pending changes are cleared.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, store *vectorstore.Store) error {
				res, err := store.RebuildIndex(ctx, args[0])
				if err != nil {
					return fmt.Errorf("rebuild %s: %w", args[0], err)
				}
				return writeJSON(cmd.OutOrStdout(), rebuildOutput{
					Collection:  args[0],
					HNSWUpdate:  string(res.HNSWUpdate),
					VectorCount: res.VectorCount,
					LiveCount:   res.LiveCount,
					DurationMs:  float64(res.Duration) / float64(time.Millisecond),
				})
			})
		},
	}
}

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, store *vectorstore.Store) error {
				names, err := store.ListCollections(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func collectionStats(ctx context.Context, store *vectorstore.Store, name string) (*statsOutput, error) {
	status, err := store.CollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %w", name, err)
	}

	out := &statsOutput{
		Collection:     status.Name,
		Dimension:      status.Dimension,
		PointCount:     status.PointCount,
		CreatedAt:      status.CreatedAt,
		UpdatedAt:      status.UpdatedAt,
		PendingChanges: status.PendingChanges,
		Indexed:        status.Index != nil,
	}
	if st := status.Index; st != nil {
		out.Index = &indexOutput{
			StoredCount:     st.StoredCount,
			LiveCount:       st.LiveCount,
			TombstonedCount: st.TombstonedCount,
			Capacity:        st.Capacity,
			MaxLevel:        st.MaxLevel,
			M:               st.M,
			EfConstruction:  st.EfConstruction,
			EfSearch:        st.EfSearch,
			FileSizeBytes:   st.FileSize,
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
