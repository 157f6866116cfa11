package embedding

import (
	"context"
	"testing"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/chunking"
	"github.com/helixml/vectorizer/infrastructure/provider"
	"github.com/helixml/vectorizer/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRow(t *testing.T) {
	row, err := decodeRow(Key{"1"}, `{"id": 1, "body": "hello", "score": 12345678901234567890}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", row.data["body"])
	assert.Equal(t, "12345678901234567890", chunking.Text(row.data["score"]))

	_, err = decodeRow(Key{"1"}, `not json`)
	assert.Error(t, err)
}

func TestPrepare(t *testing.T) {
	rows := []sourceRow{
		{key: Key{"1"}, data: map[string]any{"title": "A", "body": "one two"}},
		{key: Key{"2"}, data: map[string]any{"title": "B", "body": nil}},
		{key: Key{"3"}, data: map[string]any{"title": "C"}},
		{key: Key{"4"}, data: map[string]any{"title": "D", "body": "three"}},
	}
	splitter := mustSplitter(t, vectorizer.ChunkingConfig{
		Implementation: vectorizer.ChunkingCharacter, ChunkSize: 3, ChunkOverlap: 0, Separator: " ",
	})
	formatter := chunking.NewFormatter(vectorizer.FormattingConfig{Template: "$title: $chunk"})

	docs := prepare(rows, "body", splitter, formatter)

	require.Len(t, docs, 3)
	assert.Equal(t, document{key: Key{"1"}, seq: 0, chunk: "one", text: "A: one"}, docs[0])
	assert.Equal(t, document{key: Key{"1"}, seq: 1, chunk: "two", text: "A: two"}, docs[1])
	assert.Equal(t, document{key: Key{"4"}, seq: 0, chunk: "three", text: "D: three"}, docs[2])
}

func mustSplitter(t *testing.T, cfg vectorizer.ChunkingConfig) chunking.Splitter {
	t.Helper()
	s, err := chunking.NewSplitter(cfg)
	require.NoError(t, err)
	return s
}

func TestAssemble(t *testing.T) {
	docs := []document{{key: Key{"1"}, seq: 0, chunk: "a"}, {key: Key{"1"}, seq: 1, chunk: "b"}}

	rows, err := assemble(docs, [][]float32{{1, 2}, {3, 4}}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []float32{3, 4}, rows[1].Embedding.Slice())
	assert.Equal(t, 1, rows[1].Seq)

	_, err = assemble(docs, [][]float32{{1, 2}}, 2)
	assert.Error(t, err)

	_, err = assemble(docs, [][]float32{{1, 2}, {3}}, 2)
	assert.ErrorContains(t, err, "has 1 dimensions, want 2")
}

func TestExecutor_RequiresPostgres(t *testing.T) {
	db := testdb.New(t)
	e := NewExecutor(db, func(vectorizer.EmbeddingConfig) (provider.Embedder, error) {
		t.Fatal("embedder should not be built")
		return nil, nil
	}, nil)

	_, err := e.Execute(context.Background(), testVectorizer())
	assert.ErrorIs(t, err, ErrPostgresRequired)
}
