package index

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/queue"
	"github.com/helixml/vectorizer/internal/database"
	"github.com/helixml/vectorizer/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu     sync.Mutex
	exists bool
	calls  int
}

func (f *fakeCatalog) VectorIndexExists(_ context.Context, _ vectorizer.TableRef, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.exists, nil
}

func newTestBuilder(t *testing.T, rows int, catalog Catalog) Builder {
	t.Helper()
	db := testdb.WithSchema(t, `CREATE TABLE store (id INTEGER PRIMARY KEY)`)
	for i := 0; i < rows; i++ {
		require.NoError(t, db.Session(context.Background()).Exec(`INSERT INTO store (id) VALUES (?)`, i+1).Error)
	}
	return Builder{
		db:      db,
		catalog: catalog,
		probe:   queue.NewProbe(db),
		locks:   database.NewLockManager(db, LockNamespace),
		logger:  slog.Default(),
	}
}

func indexedVectorizer(indexing vectorizer.IndexingConfig) vectorizer.Vectorizer {
	source := vectorizer.NewTableRef("", "docs")
	names := vectorizer.Names{
		Target:  vectorizer.NewTableRef("", "store"),
		View:    vectorizer.NewTableRef("", "docs_embedding"),
		Queue:   vectorizer.NewTableRef("", "q"),
		Trigger: "_vectorizer_src_trg_1",
	}
	return vectorizer.NewVectorizer(1, source, vectorizer.PrimaryKey{{Ordinal: 1, Name: "id", Type: "integer"}}, names,
		vectorizer.Config{Indexing: indexing})
}

func TestBuilder_Eligible(t *testing.T) {
	hnsw := vectorizer.IndexingConfig{Implementation: vectorizer.IndexHNSW, MinRows: ptrTo(int64(5)), CreateWhenQueueEmpty: ptrTo(true)}
	busyAllowed := vectorizer.IndexingConfig{Implementation: vectorizer.IndexHNSW, MinRows: ptrTo(int64(5)), CreateWhenQueueEmpty: ptrTo(false)}
	noThreshold := vectorizer.IndexingConfig{Implementation: vectorizer.IndexIVFFlat, MinRows: ptrTo(int64(0))}
	unset := vectorizer.IndexingConfig{Implementation: vectorizer.IndexHNSW}

	tests := []struct {
		name     string
		indexing vectorizer.IndexingConfig
		rows     int
		exists   bool
		backlog  int64
		want     bool
	}{
		{"eligible", hnsw, 5, false, 0, true},
		{"disabled", vectorizer.IndexingConfig{Implementation: vectorizer.IndexNone}, 5, false, 0, false},
		{"already built", hnsw, 5, true, 0, false},
		{"queue busy", hnsw, 5, false, 3, false},
		{"queue busy allowed", busyAllowed, 5, false, 3, true},
		{"too few rows", hnsw, 4, false, 0, false},
		{"no threshold", noThreshold, 0, false, 0, true},
		{"unset policy waits for queue", unset, 5, false, 3, false},
		{"unset policy needs default rows", unset, 5, false, 0, false},
		{"sentinel backlog", hnsw, 5, false, vectorizer.BacklogSentinel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t, tt.rows, &fakeCatalog{exists: tt.exists})

			got, err := b.Eligible(context.Background(), indexedVectorizer(tt.indexing), tt.backlog)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func ptrTo[T any](v T) *T { return &v }

func TestBuilder_BuildRechecksUnderLock(t *testing.T) {
	catalog := &fakeCatalog{exists: true}
	b := newTestBuilder(t, 0, catalog)

	built, err := b.Build(context.Background(), indexedVectorizer(vectorizer.IndexingConfig{Implementation: vectorizer.IndexHNSW}))
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 1, catalog.calls)
}

func TestBuilder_BuildRejectsDisabled(t *testing.T) {
	b := newTestBuilder(t, 0, &fakeCatalog{})

	_, err := b.Build(context.Background(), indexedVectorizer(vectorizer.IndexingConfig{Implementation: vectorizer.IndexNone}))
	assert.ErrorIs(t, err, vectorizer.ErrInvalidConfig)
}
