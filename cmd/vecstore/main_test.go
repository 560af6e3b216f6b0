package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-vecstore/internal/config"
	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// seedDataDir writes one indexed collection of three points and leaves one
// change pending
func seedDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	store, err := vectorstore.New(vectorstore.Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.CreateCollection(ctx, "repo", 3))
	_, err = store.UpsertPoints(ctx, "repo", []types.Point{
		{ID: "a.go", Vector: []float32{1, 0, 0}},
		{ID: "b.go", Vector: []float32{0, 1, 0}},
		{ID: "c.go", Vector: []float32{0, 0, 1}},
	}, vectorstore.WithWatchMode())
	require.NoError(t, err)
	_, err = store.DeletePoints(ctx, "repo", []string{"c.go"}, vectorstore.WithWatchMode())
	require.NoError(t, err)
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvLogLevel, "off")
	t.Setenv(config.EnvEmbeddingProvider, "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Definition(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "vecstore", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "stats", "rebuild", "list", "embed", "version"})

	for _, flag := range []string{"config", "data-dir", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestStatsCmd(t *testing.T) {
	dir := seedDataDir(t)

	out, err := runCmd(t, "stats", "repo", "--data-dir", dir)
	require.NoError(t, err)

	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "repo", stats.Collection)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, 2, stats.PointCount)
	require.True(t, stats.Indexed)
	require.NotNil(t, stats.Index)
	assert.Equal(t, 2, stats.Index.LiveCount)

	_, err = runCmd(t, "stats", "missing", "--data-dir", dir)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)

	_, err = runCmd(t, "stats", "--data-dir", dir)
	assert.Error(t, err, "collection argument is required")
}

func TestRebuildCmd(t *testing.T) {
	dir := seedDataDir(t)

	out, err := runCmd(t, "rebuild", "repo", "--data-dir", dir)
	require.NoError(t, err)

	var res rebuildOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "full_rebuild", res.HNSWUpdate)
	assert.Equal(t, 2, res.LiveCount)
	assert.Equal(t, 2, res.VectorCount, "a rebuild drops tombstones")
}

func TestListCmd(t *testing.T) {
	dir := seedDataDir(t)

	out, err := runCmd(t, "list", "--data-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "repo\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runCmd(t, "list", "--data-dir", t.TempDir(), "--log-level", "loud")
	assert.Error(t, err)
}

func TestEmbedCmd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvEmbeddingDimension, "16")

	// runCmd clears the provider; the empty provider falls back to local without an API key
	t.Setenv(config.EnvOpenAIAPIKey, "")
	out, err := runCmd(t, "embed", "open", "the", "index", "--data-dir", dir)
	require.NoError(t, err)

	var res embedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "local", res.Provider)
	assert.Equal(t, 16, res.Dimension)
	assert.Len(t, res.Preview, 8)
	assert.Empty(t, res.Vector)
	assert.NotEmpty(t, res.Hash)

	_, err = runCmd(t, "embed")
	assert.Error(t, err)
}
