package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderFunc   = "func"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-feature-hash"

	OpenAIDimension = 1536
	LocalDimension  = 384

	MaxBatchSize = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// OpenAIOptions configures an OpenAIProvider. Zero fields take defaults.
type OpenAIOptions struct {
	APIKey     string // falls back to OPENAI_API_KEY
	Model      string
	BaseURL    string // any OpenAI-compatible endpoint
	Dimension  int    // sent to the API when set
	Retry      *RetryConfig
	HTTPClient *http.Client
}

// OpenAIProvider implements Embedder on the OpenAI embeddings API
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	dim     int
	sendDim bool
	retry   RetryConfig
	cache   *Cache
}

var _ Embedder = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI embedder. cache may be nil.
func NewOpenAIProvider(opts OpenAIOptions, cache *Cache) (*OpenAIProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// Retries are ours so they honor RetryConfig.
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	p := &OpenAIProvider{
		client:  &client,
		model:   opts.Model,
		dim:     opts.Dimension,
		sendDim: opts.Dimension > 0,
		retry:   DefaultRetryConfig(),
		cache:   cache,
	}
	if p.model == "" {
		p.model = DefaultOpenAIModel
	}
	if p.dim <= 0 {
		p.dim = OpenAIDimension
	}
	if opts.Retry != nil {
		p.retry = *opts.Retry
	}
	p.retry.Retryable = isRetryableAPIError
	return p, nil
}

// isRetryableAPIError retries transport failures, 429 and 5xx
func isRetryableAPIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	out := make([]*Embedding, len(req.Texts))
	var missing []string
	var missingIdx []int
	for i, text := range req.Texts {
		if o.cache != nil {
			if emb, ok := o.cache.Get(ComputeHash(model, text)); ok {
				out[i] = emb
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vecs, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
			return o.callAPI(ctx, missing, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		for j, vec := range vecs {
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  ProviderOpenAI,
				Model:     model,
				Hash:      ComputeHash(model, missing[j]),
			}
			if o.cache != nil {
				o.cache.Set(emb.Hash, emb)
				// hand out a copy so the cached vector stays untouched
				emb, _ = o.cache.Get(emb.Hash)
			}
			out[missingIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.sendDim {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		if len(item.Embedding) != o.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", idx, len(item.Embedding), o.dim)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dim
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// LocalProvider embeds text offline by feature hashing word unigrams and
// bigrams into a fixed number of buckets. Texts sharing words land close
// together under cosine distance. Output is unit length and deterministic.
type LocalProvider struct {
	dim   int
	cache *Cache
}

var _ Embedder = (*LocalProvider)(nil)

// NewLocalProvider creates a local embedder. dim <= 0 selects LocalDimension.
func NewLocalProvider(dim int, cache *Cache) (*LocalProvider, error) {
	if dim <= 0 {
		dim = LocalDimension
	}
	return &LocalProvider{dim: dim, cache: cache}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(DefaultLocalModel, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.featureHash(req.Text),
		Dimension: l.dim,
		Provider:  ProviderLocal,
		Model:     DefaultLocalModel,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
		emb, _ = l.cache.Get(hash)
	}
	return emb, nil
}

func (l *LocalProvider) featureHash(text string) []float32 {
	vec := make([]float32, l.dim)
	add := func(feature string, weight float32) {
		h := xxhash.Sum64String(feature)
		idx := h % uint64(l.dim)
		if h>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}
	if len(tokens) == 0 {
		add(text, 1)
	}
	return NormalizeVector(vec)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      DefaultLocalModel,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dim
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return DefaultLocalModel
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector returns v scaled to unit length. A zero vector is returned as is.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
