package embedding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixml/vectorizer/infrastructure/chunking"
	"github.com/pgvector/pgvector-go"
)

// Key is a primary key value rendered as text, one element per column.
type Key []string

func (k Key) String() string { return strings.Join(k, "|") }

// sourceRow is a source row loaded as a JSON object.
type sourceRow struct {
	key  Key
	data map[string]any
}

// document is one formatted chunk awaiting its embedding.
type document struct {
	key   Key
	seq   int
	chunk string
	text  string
}

// Row is one target table row.
type Row struct {
	Key       Key
	Seq       int
	Chunk     string
	Embedding pgvector.Vector
}

func decodeRow(key Key, raw string) (sourceRow, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return sourceRow{}, fmt.Errorf("decode source row %s: %w", key, err)
	}
	return sourceRow{key: key, data: data}, nil
}

// prepare chunks the chunk column of every row and formats each chunk. Rows
// whose chunk column is null or blank produce no documents.
func prepare(rows []sourceRow, column string, splitter chunking.Splitter, formatter chunking.Formatter) []document {
	var docs []document
	for _, r := range rows {
		value, ok := r.data[column]
		if !ok || value == nil {
			continue
		}
		for seq, chunk := range splitter.Split(chunking.Text(value)) {
			docs = append(docs, document{
				key:   r.key,
				seq:   seq,
				chunk: chunk,
				text:  formatter.Format(chunk, r.data),
			})
		}
	}
	return docs
}

// assemble pairs documents with their embeddings.
func assemble(docs []document, embeddings [][]float32, dimensions int) ([]Row, error) {
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(docs))
	}
	rows := make([]Row, len(docs))
	for i, d := range docs {
		if dimensions > 0 && len(embeddings[i]) != dimensions {
			return nil, fmt.Errorf("embedding for %s chunk %d has %d dimensions, want %d", d.key, d.seq, len(embeddings[i]), dimensions)
		}
		rows[i] = Row{Key: d.key, Seq: d.seq, Chunk: d.chunk, Embedding: pgvector.NewVector(embeddings[i])}
	}
	return rows, nil
}
