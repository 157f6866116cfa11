package vectorizer

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Implementation tags.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingOllama = "ollama"

	ChunkingNone      = "none"
	ChunkingCharacter = "character_text_splitter"
	ChunkingRecursive = "recursive_character_text_splitter"

	IndexNone    = "none"
	IndexDiskANN = "diskann"
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"

	ScheduleNone     = "none"
	ScheduleInterval = "interval"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultChunkSize       = 800
	DefaultChunkOverlap    = 400
	DefaultSeparator       = "\n\n"
	DefaultTemplate        = "$chunk"
	DefaultMinRows         = 100000
	DefaultInterval        = 5 * time.Minute
	DefaultBatchSize       = 50
	DefaultConcurrency     = 1
	DefaultOpenAIKeyName   = "OPENAI_API_KEY"
	MaxBatchSize           = 2048
	MaxConcurrency         = 50
	MaxEmbeddingDimensions = 16000
)

// DefaultRecursiveSeparators is the fallback order for the recursive splitter.
var DefaultRecursiveSeparators = []string{"\n\n", "\n", ".", "?", "!", " ", ""}

var opclasses = []string{"vector_cosine_ops", "vector_l2_ops", "vector_ip_ops"}

// Duration is a time.Duration that encodes as a Go duration string ("5m").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the structured configuration bundle stored with a registration.
type Config struct {
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Chunking   ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Formatting FormattingConfig `json:"formatting" yaml:"formatting"`
	Indexing   IndexingConfig   `json:"indexing" yaml:"indexing"`
	Scheduling SchedulingConfig `json:"scheduling" yaml:"scheduling"`
	Processing ProcessingConfig `json:"processing" yaml:"processing"`
}

// EmbeddingConfig selects the embedding implementation and model.
type EmbeddingConfig struct {
	Implementation string `json:"implementation" yaml:"implementation"`
	Model          string `json:"model" yaml:"model"`
	Dimensions     int    `json:"dimensions" yaml:"dimensions"`
	// APIKeyName names the environment variable holding the credential.
	APIKeyName string `json:"api_key_name,omitempty" yaml:"api_key_name,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// ChunkingConfig selects how the chunk column is split.
type ChunkingConfig struct {
	Implementation string   `json:"implementation" yaml:"implementation"`
	ChunkColumn    string   `json:"chunk_column" yaml:"chunk_column"`
	ChunkSize      int      `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	ChunkOverlap   int      `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
	Separator      string   `json:"separator,omitempty" yaml:"separator,omitempty"`
	Separators     []string `json:"separators,omitempty" yaml:"separators,omitempty"`
}

// FormattingConfig renders each chunk before embedding. $chunk and $<column>
// are substituted from the source row.
type FormattingConfig struct {
	Template string `json:"template" yaml:"template"`
}

// IndexingConfig is the vector index policy for the target table.
type IndexingConfig struct {
	Implementation string `json:"implementation" yaml:"implementation"`
	// MinRows and CreateWhenQueueEmpty are nil when unset so an explicit 0
	// or false survives WithDefaults.
	MinRows              *int64 `json:"min_rows,omitempty" yaml:"min_rows,omitempty"`
	CreateWhenQueueEmpty *bool  `json:"create_when_queue_empty,omitempty" yaml:"create_when_queue_empty,omitempty"`
	Opclass              string `json:"opclass,omitempty" yaml:"opclass,omitempty"`

	// hnsw
	M              int `json:"m,omitempty" yaml:"m,omitempty"`
	EfConstruction int `json:"ef_construction,omitempty" yaml:"ef_construction,omitempty"`

	// diskann
	StorageLayout       string  `json:"storage_layout,omitempty" yaml:"storage_layout,omitempty"`
	NumNeighbors        int     `json:"num_neighbors,omitempty" yaml:"num_neighbors,omitempty"`
	SearchListSize      int     `json:"search_list_size,omitempty" yaml:"search_list_size,omitempty"`
	MaxAlpha            float64 `json:"max_alpha,omitempty" yaml:"max_alpha,omitempty"`
	NumDimensions       int     `json:"num_dimensions,omitempty" yaml:"num_dimensions,omitempty"`
	NumBitsPerDimension int     `json:"num_bits_per_dimension,omitempty" yaml:"num_bits_per_dimension,omitempty"`

	// ivfflat
	Lists int `json:"lists,omitempty" yaml:"lists,omitempty"`

	// BuiltAt is set once the index has been created.
	BuiltAt *time.Time `json:"built_at,omitempty" yaml:"built_at,omitempty"`
}

// SchedulingConfig is the background schedule policy.
type SchedulingConfig struct {
	Implementation string     `json:"implementation" yaml:"implementation"`
	Interval       Duration   `json:"interval,omitempty" yaml:"interval,omitempty"`
	InitialStart   *time.Time `json:"initial_start,omitempty" yaml:"initial_start,omitempty"`
	JobID          int64      `json:"job_id,omitempty" yaml:"job_id,omitempty"`
}

// ProcessingConfig holds the fan-out knobs.
type ProcessingConfig struct {
	BatchSize   int `json:"batch_size" yaml:"batch_size"`
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Scheduled reports whether the configuration asks for a background job.
func (s SchedulingConfig) Scheduled() bool {
	return s.Implementation == ScheduleInterval
}

// Enabled reports whether an index should ever be built.
func (i IndexingConfig) Enabled() bool {
	return i.Implementation != "" && i.Implementation != IndexNone
}

// MinRowCount returns the target row count required before a build,
// DefaultMinRows when unset.
func (i IndexingConfig) MinRowCount() int64 {
	if i.MinRows == nil {
		return DefaultMinRows
	}
	return *i.MinRows
}

// WaitForEmptyQueue reports whether a build must wait for the queue to
// drain. It defaults to true.
func (i IndexingConfig) WaitForEmptyQueue() bool {
	if i.CreateWhenQueueEmpty == nil {
		return true
	}
	return *i.CreateWhenQueueEmpty
}

// Built reports whether the index build marker is set.
func (i IndexingConfig) Built() bool {
	return i.BuiltAt != nil
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	e := &c.Embedding
	e.Implementation = strings.ToLower(e.Implementation)
	if e.Implementation == EmbeddingOpenAI && e.APIKeyName == "" {
		e.APIKeyName = DefaultOpenAIKeyName
	}

	ch := &c.Chunking
	ch.Implementation = strings.ToLower(ch.Implementation)
	if ch.Implementation == "" {
		ch.Implementation = ChunkingCharacter
	}
	if ch.Implementation != ChunkingNone {
		if ch.ChunkSize == 0 {
			ch.ChunkSize = DefaultChunkSize
			if ch.ChunkOverlap == 0 {
				ch.ChunkOverlap = DefaultChunkOverlap
			}
		}
		if ch.Implementation == ChunkingCharacter && ch.Separator == "" {
			ch.Separator = DefaultSeparator
		}
		if ch.Implementation == ChunkingRecursive && len(ch.Separators) == 0 {
			ch.Separators = slices.Clone(DefaultRecursiveSeparators)
		}
	}

	if c.Formatting.Template == "" {
		c.Formatting.Template = DefaultTemplate
	}

	ix := &c.Indexing
	ix.Implementation = strings.ToLower(ix.Implementation)
	if ix.Implementation == "" {
		ix.Implementation = IndexHNSW
	}
	if ix.Enabled() {
		if ix.MinRows == nil {
			minRows := int64(DefaultMinRows)
			ix.MinRows = &minRows
		}
		if ix.CreateWhenQueueEmpty == nil {
			wait := true
			ix.CreateWhenQueueEmpty = &wait
		}
		if ix.Opclass == "" {
			ix.Opclass = "vector_cosine_ops"
		}
	}

	s := &c.Scheduling
	s.Implementation = strings.ToLower(s.Implementation)
	if s.Implementation == "" {
		s.Implementation = ScheduleInterval
	}
	if s.Implementation == ScheduleInterval && s.Interval == 0 {
		s.Interval = Duration(DefaultInterval)
	}

	if c.Processing.BatchSize == 0 {
		c.Processing.BatchSize = DefaultBatchSize
	}
	if c.Processing.Concurrency == 0 {
		c.Processing.Concurrency = DefaultConcurrency
	}

	return c
}

// Validate checks the configuration. It returns a *ConfigError wrapping
// ErrInvalidConfig for the first problem found.
func (c Config) Validate() error {
	e := c.Embedding
	switch e.Implementation {
	case EmbeddingOpenAI, EmbeddingOllama:
	case "":
		return NewConfigError("embedding.implementation", "is required")
	default:
		return NewConfigError("embedding.implementation", fmt.Sprintf("unrecognized %q", e.Implementation))
	}
	if e.Model == "" {
		return NewConfigError("embedding.model", "is required")
	}
	if e.Dimensions <= 0 || e.Dimensions > MaxEmbeddingDimensions {
		return NewConfigError("embedding.dimensions", fmt.Sprintf("must be between 1 and %d", MaxEmbeddingDimensions))
	}

	ch := c.Chunking
	switch ch.Implementation {
	case ChunkingNone, ChunkingCharacter, ChunkingRecursive:
	default:
		return NewConfigError("chunking.implementation", fmt.Sprintf("unrecognized %q", ch.Implementation))
	}
	if ch.ChunkColumn == "" {
		return NewConfigError("chunking.chunk_column", "is required")
	}
	if ch.Implementation != ChunkingNone {
		if ch.ChunkSize <= 0 {
			return NewConfigError("chunking.chunk_size", "must be positive")
		}
		if ch.ChunkOverlap < 0 || ch.ChunkOverlap >= ch.ChunkSize {
			return NewConfigError("chunking.chunk_overlap", "must be non-negative and smaller than chunk_size")
		}
	}

	if !strings.Contains(c.Formatting.Template, "$chunk") && !strings.Contains(c.Formatting.Template, "${chunk}") {
		return NewConfigError("formatting.template", "must reference $chunk")
	}

	if err := c.Indexing.validate(); err != nil {
		return err
	}

	s := c.Scheduling
	switch s.Implementation {
	case ScheduleNone:
	case ScheduleInterval:
		if s.Interval.Std() <= 0 {
			return NewConfigError("scheduling.interval", "must be positive")
		}
	default:
		return NewConfigError("scheduling.implementation", fmt.Sprintf("unrecognized %q", s.Implementation))
	}

	p := c.Processing
	if p.BatchSize < 1 || p.BatchSize > MaxBatchSize {
		return NewConfigError("processing.batch_size", fmt.Sprintf("must be between 1 and %d", MaxBatchSize))
	}
	if p.Concurrency < 1 || p.Concurrency > MaxConcurrency {
		return NewConfigError("processing.concurrency", fmt.Sprintf("must be between 1 and %d", MaxConcurrency))
	}
	return nil
}

func (i IndexingConfig) validate() error {
	switch i.Implementation {
	case IndexNone:
		return nil
	case IndexHNSW, IndexDiskANN, IndexIVFFlat:
	default:
		return NewConfigError("indexing.implementation", fmt.Sprintf("unrecognized %q", i.Implementation))
	}
	if i.MinRows != nil && *i.MinRows < 0 {
		return NewConfigError("indexing.min_rows", "must not be negative")
	}
	if i.Opclass != "" && !slices.Contains(opclasses, i.Opclass) {
		return NewConfigError("indexing.opclass", fmt.Sprintf("unrecognized %q", i.Opclass))
	}
	if i.M < 0 || i.EfConstruction < 0 || i.NumNeighbors < 0 || i.SearchListSize < 0 ||
		i.NumDimensions < 0 || i.NumBitsPerDimension < 0 || i.Lists < 0 || i.MaxAlpha < 0 {
		return NewConfigError("indexing", "tuning parameters must not be negative")
	}
	switch i.StorageLayout {
	case "", "memory_optimized", "plain":
	default:
		return NewConfigError("indexing.storage_layout", fmt.Sprintf("unrecognized %q", i.StorageLayout))
	}
	return nil
}
