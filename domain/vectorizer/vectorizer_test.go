package vectorizer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() Config {
	return Config{
		Embedding: EmbeddingConfig{Implementation: EmbeddingOpenAI, Model: "text-embedding-3-small", Dimensions: 1536},
		Chunking:  ChunkingConfig{ChunkColumn: "body"},
	}.WithDefaults()
}

func TestConfig_WithDefaults(t *testing.T) {
	c := validConfig()

	assert.Equal(t, DefaultOpenAIKeyName, c.Embedding.APIKeyName)
	assert.Equal(t, ChunkingCharacter, c.Chunking.Implementation)
	assert.Equal(t, DefaultChunkSize, c.Chunking.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.Chunking.ChunkOverlap)
	assert.Equal(t, DefaultSeparator, c.Chunking.Separator)
	assert.Equal(t, DefaultTemplate, c.Formatting.Template)
	assert.Equal(t, IndexHNSW, c.Indexing.Implementation)
	assert.Equal(t, int64(DefaultMinRows), c.Indexing.MinRowCount())
	assert.True(t, c.Indexing.WaitForEmptyQueue())
	assert.Equal(t, "vector_cosine_ops", c.Indexing.Opclass)
	assert.Equal(t, ScheduleInterval, c.Scheduling.Implementation)
	assert.Equal(t, DefaultInterval, c.Scheduling.Interval.Std())
	assert.Equal(t, DefaultBatchSize, c.Processing.BatchSize)
	assert.Equal(t, DefaultConcurrency, c.Processing.Concurrency)
	require.NoError(t, c.Validate())
}

func TestConfig_WithDefaultsKeepsExplicitIndexing(t *testing.T) {
	c := Config{
		Embedding: EmbeddingConfig{Implementation: EmbeddingOllama, Model: "nomic-embed-text", Dimensions: 768},
		Chunking:  ChunkingConfig{Implementation: ChunkingRecursive, ChunkColumn: "body"},
		Indexing:  IndexingConfig{Implementation: IndexNone},
	}.WithDefaults()

	assert.Empty(t, c.Embedding.APIKeyName)
	assert.Equal(t, DefaultRecursiveSeparators, c.Chunking.Separators)
	assert.Equal(t, IndexNone, c.Indexing.Implementation)
	assert.Nil(t, c.Indexing.MinRows)
	assert.False(t, c.Indexing.Enabled())
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding", func(c *Config) { c.Embedding.Implementation = "" }, "embedding.implementation"},
		{"unknown embedding", func(c *Config) { c.Embedding.Implementation = "cohere" }, "embedding.implementation"},
		{"missing model", func(c *Config) { c.Embedding.Model = "" }, "embedding.model"},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"unknown chunking", func(c *Config) { c.Chunking.Implementation = "sentence" }, "chunking.implementation"},
		{"missing chunk column", func(c *Config) { c.Chunking.ChunkColumn = "" }, "chunking.chunk_column"},
		{"overlap too large", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }, "chunking.chunk_overlap"},
		{"template without chunk", func(c *Config) { c.Formatting.Template = "$title" }, "formatting.template"},
		{"unknown index", func(c *Config) { c.Indexing.Implementation = "btree" }, "indexing.implementation"},
		{"negative min rows", func(c *Config) { c.Indexing.MinRows = ptrTo(int64(-1)) }, "indexing.min_rows"},
		{"unknown opclass", func(c *Config) { c.Indexing.Opclass = "text_ops" }, "indexing.opclass"},
		{"unknown storage layout", func(c *Config) { c.Indexing.StorageLayout = "dense" }, "indexing.storage_layout"},
		{"unknown schedule", func(c *Config) { c.Scheduling.Implementation = "cron" }, "scheduling.implementation"},
		{"zero interval", func(c *Config) { c.Scheduling.Interval = 0 }, "scheduling.interval"},
		{"batch too large", func(c *Config) { c.Processing.BatchSize = MaxBatchSize + 1 }, "processing.batch_size"},
		{"zero concurrency", func(c *Config) { c.Processing.Concurrency = 0 }, "processing.concurrency"},
		{"concurrency too large", func(c *Config) { c.Processing.Concurrency = MaxConcurrency + 1 }, "processing.concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfig_NoScheduleIsValid(t *testing.T) {
	c := validConfig()
	c.Scheduling = SchedulingConfig{Implementation: ScheduleNone}

	require.NoError(t, c.Validate())
	assert.False(t, c.Scheduling.Scheduled())
}

func TestConfig_JSONRoundTripOfDuration(t *testing.T) {
	c := validConfig()
	c.Scheduling.Interval = Duration(90 * time.Second)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interval":"1m30s"`)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 90*time.Second, decoded.Scheduling.Interval.Std())
}

func TestConfig_YAMLDecode(t *testing.T) {
	doc := `
embedding:
  implementation: openai
  model: text-embedding-3-small
  dimensions: 1536
chunking:
  chunk_column: body
indexing:
  implementation: diskann
  min_rows: 10
  create_when_queue_empty: false
  num_neighbors: 50
scheduling:
  implementation: interval
  interval: 30s
processing:
  batch_size: 10
  concurrency: 4
`
	var c Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	c = c.WithDefaults()

	require.NoError(t, c.Validate())
	assert.Equal(t, IndexDiskANN, c.Indexing.Implementation)
	assert.Equal(t, int64(10), c.Indexing.MinRowCount())
	assert.False(t, c.Indexing.WaitForEmptyQueue())
	assert.Equal(t, 50, c.Indexing.NumNeighbors)
	assert.Equal(t, 30*time.Second, c.Scheduling.Interval.Std())
	assert.Equal(t, 4, c.Processing.Concurrency)
}

func TestConfig_IndexPolicyDefaultsWhenImplementationNamed(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte, any) error
		doc    string
	}{
		{"yaml", yaml.Unmarshal, "indexing:\n  implementation: hnsw\n"},
		{"json", json.Unmarshal, `{"indexing":{"implementation":"hnsw"}}`},
		{"yaml diskann", yaml.Unmarshal, "indexing:\n  implementation: diskann\n"},
		{"json ivfflat", json.Unmarshal, `{"indexing":{"implementation":"ivfflat"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			require.NoError(t, tt.decode([]byte(tt.doc), &c))
			c = c.WithDefaults()

			require.NotNil(t, c.Indexing.MinRows)
			require.NotNil(t, c.Indexing.CreateWhenQueueEmpty)
			assert.Equal(t, int64(DefaultMinRows), *c.Indexing.MinRows)
			assert.True(t, *c.Indexing.CreateWhenQueueEmpty)
			assert.Equal(t, "vector_cosine_ops", c.Indexing.Opclass)
		})
	}
}

func TestConfig_IndexPolicyKeepsExplicitZeroAndFalse(t *testing.T) {
	var c Config
	doc := `{"indexing":{"implementation":"hnsw","min_rows":0,"create_when_queue_empty":false}}`
	require.NoError(t, json.Unmarshal([]byte(doc), &c))
	c = c.WithDefaults()

	assert.Equal(t, int64(0), c.Indexing.MinRowCount())
	assert.False(t, c.Indexing.WaitForEmptyQueue())

	data, err := json.Marshal(c.Indexing)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"min_rows":0`)
	assert.Contains(t, string(data), `"create_when_queue_empty":false`)
}

func TestIndexingConfig_UnsetPolicyReadsAsDefault(t *testing.T) {
	var i IndexingConfig
	assert.Equal(t, int64(DefaultMinRows), i.MinRowCount())
	assert.True(t, i.WaitForEmptyQueue())
}

func ptrTo[T any](v T) *T { return &v }

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestDeriveNames_Defaults(t *testing.T) {
	names := DeriveNames(7, NewTableRef("public", "docs"), NameOverrides{})

	assert.Equal(t, NewTableRef("public", "docs_embedding_store"), names.Target)
	assert.Equal(t, NewTableRef("public", "docs_embedding"), names.View)
	assert.Equal(t, NewTableRef("ai", "_vectorizer_q_7"), names.Queue)
	assert.Equal(t, "_vectorizer_src_trg_7", names.Trigger)
	assert.Equal(t, NewTableRef("ai", "_vectorizer_src_trg_7"), names.TriggerFunction())
}

func TestDeriveNames_Overrides(t *testing.T) {
	names := DeriveNames(3, NewTableRef("public", "docs"), NameOverrides{
		Destination:  "doc_vectors",
		TargetSchema: "vectors",
		ViewName:     "doc_search",
		QueueSchema:  "work",
		QueueTable:   "doc_queue",
	})

	assert.Equal(t, NewTableRef("vectors", "doc_vectors_store"), names.Target)
	assert.Equal(t, NewTableRef("public", "doc_search"), names.View)
	assert.Equal(t, NewTableRef("work", "doc_queue"), names.Queue)
	assert.Equal(t, NewTableRef("work", "_vectorizer_src_trg_3"), names.TriggerFunction())
}

func TestTableRef(t *testing.T) {
	assert.Equal(t, "public.docs", NewTableRef("public", "docs").String())
	assert.Equal(t, "docs", NewTableRef("", "docs").String())
	assert.True(t, TableRef{}.IsZero())
}

func TestFanOut(t *testing.T) {
	tests := []struct {
		name        string
		backlog     int64
		batch       int
		concurrency int
		want        int
	}{
		{"empty", 0, 50, 4, 0},
		{"partial batch", 1, 50, 4, 1},
		{"exact batches", 100, 50, 4, 2},
		{"rounds up", 101, 50, 4, 3},
		{"capped", 10000, 50, 4, 4},
		{"sentinel", BacklogSentinel, 1, 50, 50},
		{"invalid batch", 10, 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FanOut(tt.backlog, tt.batch, tt.concurrency))
		})
	}
}

func TestVectorizer_Copies(t *testing.T) {
	pk := PrimaryKey{{Ordinal: 1, Name: "id", Type: "int4"}}
	names := DeriveNames(1, NewTableRef("public", "docs"), NameOverrides{})
	v := NewVectorizer(1, NewTableRef("public", "docs"), pk, names, validConfig())

	got := v.PrimaryKey()
	got[0].Name = "changed"
	assert.Equal(t, "id", v.PrimaryKey()[0].Name)

	withJob := v.WithJobID(9)
	assert.Equal(t, int64(9), withJob.Config().Scheduling.JobID)
	assert.Zero(t, v.Config().Scheduling.JobID)

	assert.Equal(t, []string{"id"}, v.PrimaryKey().Names())
	assert.Equal(t, "_vectorizer_src_trg_1", v.TriggerName())
}

func TestConfigError_Message(t *testing.T) {
	err := NewConfigError("embedding.model", "is required")
	assert.Equal(t, "invalid vectorizer configuration: embedding.model: is required", err.Error())
}
