package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

// DefaultBatchSize caps the texts sent in one embeddings request.
const DefaultBatchSize = 256

var (
	// errShortResponse is retried: routing providers sometimes drop vectors
	// under load.
	errShortResponse = errors.New("embedding response count mismatch")

	// errEmptyResponse is not retried: no data, no model and no usage means
	// the upstream is down.
	errEmptyResponse = errors.New("upstream returned an empty embedding response")
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions is sent when positive. Only models with shortened
	// embeddings accept it.
	Dimensions    int
	BatchSize     int
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// OpenAIProvider embeds through an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	retry      backoff
}

// NewOpenAIProvider creates an OpenAIProvider, filling unset fields of cfg
// with defaults.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		retry:      newBackoff(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor),
	}
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Embed embeds texts in requests of at most the batch size. Any failed
// request fails the whole call.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) (Embeddings, error) {
	out := Embeddings{Vectors: make([][]float32, 0, len(texts))}
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vectors, usage, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return Embeddings{}, err
		}
		out.Vectors = append(out.Vectors, vectors...)
		out.Usage = out.Usage.Add(usage)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(p.model),
		Input:      texts,
		Dimensions: p.dimensions,
	}

	var resp openai.EmbeddingResponse
	attempts, err := p.retry.do(ctx, retryable, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 && resp.Model == "" && resp.Usage.TotalTokens == 0 {
			return errEmptyResponse
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errShortResponse, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, Usage{}, err
		}
		return nil, Usage{}, &RequestError{
			Model:      p.model,
			StatusCode: statusCode(err),
			Attempts:   attempts,
			Err:        err,
		}
	}

	// Each item carries its input index; trust it over response order.
	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, NewUsage(resp.Usage.PromptTokens, resp.Usage.TotalTokens), nil
}

// retryable reports whether err is transient: short responses, timeouts,
// throttling and upstream 5xx.
func retryable(err error) bool {
	if errors.Is(err, errShortResponse) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch statusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// backoff configures exponential retry delays.
type backoff struct {
	maxRetries int
	initial    time.Duration
	factor     float64
}

func newBackoff(maxRetries int, initial time.Duration, factor float64) backoff {
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if factor <= 0 {
		factor = 2.0
	}
	return backoff{maxRetries: max(maxRetries, 0), initial: initial, factor: factor}
}

// policy returns a fresh go-retry backoff; each call starts at the initial
// delay.
func (b backoff) policy() retry.Backoff {
	delay := b.initial
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d := delay
		delay = time.Duration(float64(delay) * b.factor)
		return d, false
	})
	return retry.WithMaxRetries(uint64(b.maxRetries), next)
}

// do calls fn until it succeeds, returns an error retryable rejects, or the
// retries run out. It returns the number of attempts made.
func (b backoff) do(ctx context.Context, retryable func(error) bool, fn func() error) (int, error) {
	attempts := 0
	err := retry.Do(ctx, b.policy(), func(context.Context) error {
		attempts++
		if err := fn(); err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	return attempts, err
}

var _ Embedder = (*OpenAIProvider)(nil)
