// Package provider turns chunk text into vectors through OpenAI-compatible
// embeddings endpoints, which covers both OpenAI and Ollama.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnsupportedImplementation is returned for an embedding
	// implementation this package cannot build.
	ErrUnsupportedImplementation = errors.New("unsupported embedding implementation")

	// ErrMissingCredential is returned when no API key can be resolved for
	// a provider that needs one.
	ErrMissingCredential = errors.New("missing embedding credential")
)

// Usage counts tokens billed for embedding calls.
type Usage struct {
	promptTokens int
	totalTokens  int
}

// NewUsage creates a Usage.
func NewUsage(prompt, total int) Usage {
	return Usage{promptTokens: prompt, totalTokens: total}
}

// PromptTokens returns the prompt token count.
func (u Usage) PromptTokens() int { return u.promptTokens }

// TotalTokens returns the total token count.
func (u Usage) TotalTokens() int { return u.totalTokens }

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		promptTokens: u.promptTokens + o.promptTokens,
		totalTokens:  u.totalTokens + o.totalTokens,
	}
}

// Embeddings holds one vector per input text, in input order.
type Embeddings struct {
	Vectors [][]float32
	Usage   Usage
}

// Embedder embeds chunk texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (Embeddings, error)
}

// RequestError reports an embeddings call that failed after all attempts.
type RequestError struct {
	Model      string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embed with %s: HTTP %d after %d attempt(s): %v", e.Model, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("embed with %s after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RateLimited reports whether the provider throttled the last attempt.
func (e *RequestError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
