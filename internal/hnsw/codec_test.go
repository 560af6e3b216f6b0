package hnsw

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

func TestCodecRoundTrip(t *testing.T) {
	rng := newTestRand(20)
	vectors := randVectors(rng, 150, 8)
	g := buildGraph(t, 8, vectors)
	g.remove(vectors[3].ID)
	_, err := g.insert(vectors[4].ID, randVec(rng, 8))
	require.NoError(t, err)

	data, err := encodeGraph(g)
	require.NoError(t, err)

	got, err := decodeGraph(data)
	require.NoError(t, err)

	assert.Equal(t, g.dim, got.dim)
	assert.Equal(t, g.p, got.p)
	assert.Equal(t, g.capacity, got.capacity)
	assert.Equal(t, g.entry, got.entry)
	assert.Equal(t, g.maxLevel, got.maxLevel)
	assert.Equal(t, g.live, got.live)
	assert.True(t, g.tombs.Equals(got.tombs))
	require.Len(t, got.nodes, len(g.nodes))
	for i := range g.nodes {
		assert.Equal(t, *g.nodes[i], *got.nodes[i], "slot %d", i)
	}

	query := randVec(rng, 8)
	want, err := g.search(query, 10, 32)
	require.NoError(t, err)
	have, err := got.search(query, 10, 32)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestCodecEmptyGraph(t *testing.T) {
	g := newGraph(3, testParams(), 4)

	data, err := encodeGraph(g)
	require.NoError(t, err)

	got, err := decodeGraph(data)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), got.entry)
	assert.Equal(t, 0, got.storedCount())
}

func TestDecodeCorruptArtifacts(t *testing.T) {
	rng := newTestRand(21)
	g := buildGraph(t, 8, randVectors(rng, 50, 8))
	data, err := encodeGraph(g)
	require.NoError(t, err)

	flip := func(i int) []byte {
		b := append([]byte(nil), data...)
		b[i] ^= 0xff
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", data[:10]},
		{"bad magic", flip(0)},
		{"bad version", flip(5)},
		{"bad checksum", flip(17)},
		{"truncated body", data[:len(data)-7]},
		{"flipped body byte", flip(len(data) - 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeGraph(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorruptIndex)
			assert.ErrorIs(t, err, types.ErrIndexNotFound)
			assert.Contains(t, err.Error(), "HNSW index not found")
		})
	}
}

func TestWriteArtifactReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)

	require.NoError(t, writeArtifact(path, []byte("old")))
	require.NoError(t, writeArtifact(path, []byte("new")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadArtifactMissing(t *testing.T) {
	_, _, err := readArtifact(filepath.Join(t.TempDir(), IndexFileName))
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
	assert.NotErrorIs(t, err, ErrCorruptIndex)
}
