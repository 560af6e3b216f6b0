package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		openai   string
		want     string
	}{
		{"explicit wins", "LOCAL", "sk-test", ProviderLocal},
		{"openai key", "", "sk-test", ProviderOpenAI},
		{"fallback local", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local with dimension", func(t *testing.T) {
		t.Setenv(EnvProvider, "local")
		t.Setenv(EnvDimension, "128")
		t.Setenv(EnvOpenAIAPIKey, "")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, 128, emb.Dimension())
	})

	t.Run("openai from key", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvDimension, "")
		t.Setenv(EnvModel, "text-embedding-3-large")
		t.Setenv(EnvOpenAIAPIKey, "sk-test")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, "text-embedding-3-large", emb.Model())
	})

	t.Run("bad dimension", func(t *testing.T) {
		t.Setenv(EnvProvider, "local")
		t.Setenv(EnvDimension, "abc")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv(EnvProvider, "jina")
		t.Setenv(EnvDimension, "")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvProvider, "")

	emb, err := NewFromConfig(Config{Provider: "local", Dimension: 32, CacheSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 32, emb.Dimension())

	_, err = NewFromConfig(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	emb, err = NewFromConfig(Config{Provider: "openai", APIKey: "k", Dimension: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, emb.Dimension())

	emb, err = NewFromConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestIsKnownProvider(t *testing.T) {
	assert.True(t, IsKnownProvider(""))
	assert.True(t, IsKnownProvider("OpenAI"))
	assert.True(t, IsKnownProvider("local"))
	assert.False(t, IsKnownProvider("jina"))
}
