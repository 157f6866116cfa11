package provider

import (
	"fmt"
	"strings"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/internal/config"
)

const (
	// OllamaHostVar names the environment variable holding the Ollama host.
	OllamaHostVar = "OLLAMA_HOST"

	defaultOllamaHost = "http://localhost:11434"
)

// LookupFunc resolves an environment variable, as os.LookupEnv does.
type LookupFunc func(key string) (string, bool)

// ForEmbedding builds the Embedder a vectorizer's embedding configuration
// asks for. Values missing from cfg fall back to the endpoint defaults.
func ForEmbedding(cfg vectorizer.EmbeddingConfig, endpoint config.Endpoint, lookup LookupFunc) (Embedder, error) {
	oc := OpenAIConfig{
		Model:         cfg.Model,
		BaseURL:       cfg.BaseURL,
		Timeout:       endpoint.Timeout(),
		MaxRetries:    endpoint.MaxRetries(),
		InitialDelay:  endpoint.InitialDelay(),
		BackoffFactor: endpoint.BackoffFactor(),
	}

	switch cfg.Implementation {
	case vectorizer.EmbeddingOpenAI:
		key, err := resolveKey(cfg.APIKeyName, endpoint, lookup)
		if err != nil {
			return nil, err
		}
		oc.APIKey = key
		oc.Dimensions = cfg.Dimensions
		if oc.BaseURL == "" {
			oc.BaseURL = endpoint.BaseURL()
		}
	case vectorizer.EmbeddingOllama:
		if cfg.APIKeyName != "" {
			key, err := resolveKey(cfg.APIKeyName, endpoint, lookup)
			if err != nil {
				return nil, err
			}
			oc.APIKey = key
		}
		if oc.BaseURL == "" {
			oc.BaseURL = ollamaBaseURL(lookup)
		}
	default:
		return nil, fmt.Errorf("%w: embedding implementation %q", ErrUnsupportedImplementation, cfg.Implementation)
	}

	return NewOpenAIProvider(oc), nil
}

func resolveKey(name string, endpoint config.Endpoint, lookup LookupFunc) (string, error) {
	if name != "" && lookup != nil {
		if v, ok := lookup(name); ok && v != "" {
			return v, nil
		}
	}
	if endpoint.APIKey() != "" {
		return endpoint.APIKey(), nil
	}
	return "", fmt.Errorf("%w: %s is not set", ErrMissingCredential, name)
}

func ollamaBaseURL(lookup LookupFunc) string {
	host := defaultOllamaHost
	if lookup != nil {
		if v, ok := lookup(OllamaHostVar); ok && v != "" {
			host = v
		}
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}
