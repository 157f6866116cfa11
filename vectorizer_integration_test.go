package vectorizer_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/application/service"
	domain "github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/provider"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimensions = 3

// lengthEmbedder returns a deterministic vector per text.
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) (provider.Embeddings, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0.5}
	}
	return provider.Embeddings{Vectors: out, Usage: provider.NewUsage(len(texts), len(texts))}, nil
}

func integrationURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("VECTORIZER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VECTORIZER_TEST_DATABASE_URL not set")
	}
	return url
}

func exec(t *testing.T, db database.Database, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		require.NoError(t, db.Session(context.Background()).Exec(stmt).Error, stmt)
	}
}

func count(t *testing.T, db database.Database, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Session(context.Background()).Raw(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n).Error)
	return n
}

func rawDB(t *testing.T, url string, stmts ...string) database.Database {
	t.Helper()
	raw, err := database.NewDatabase(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	exec(t, raw, stmts...)
	return raw
}

func newIntegrationClient(t *testing.T, url string, opts ...vectorizer.Option) *vectorizer.Client {
	t.Helper()
	opts = append([]vectorizer.Option{
		vectorizer.WithDatabaseURL(url),
		vectorizer.WithEmbedderFactory(func(domain.EmbeddingConfig) (provider.Embedder, error) {
			return lengthEmbedder{}, nil
		}),
	}, opts...)
	client, err := vectorizer.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testEmbedding() domain.EmbeddingConfig {
	return domain.EmbeddingConfig{Implementation: domain.EmbeddingOllama, Model: "test", Dimensions: testDimensions}
}

func exactPending(t *testing.T, client *vectorizer.Client, id int64) int64 {
	t.Helper()
	n, err := client.Status.Pending(context.Background(), id, true)
	require.NoError(t, err)
	return n
}

func TestIntegration_Lifecycle(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()

	raw, err := database.NewDatabase(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	exec(t, raw,
		`DROP TABLE IF EXISTS public.it_docs CASCADE`,
		`CREATE TABLE public.it_docs (id int PRIMARY KEY, title text, body text)`,
		`INSERT INTO public.it_docs VALUES (1, 'one', 'first body'), (2, 'two', 'second body')`,
	)

	client, err := vectorizer.New(
		vectorizer.WithDatabaseURL(url),
		vectorizer.WithoutBackground(),
		vectorizer.WithEmbedderFactory(func(domain.EmbeddingConfig) (provider.Embedder, error) {
			return lengthEmbedder{}, nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_docs"),
		Config: domain.Config{
			Embedding:  domain.EmbeddingConfig{Implementation: domain.EmbeddingOllama, Model: "test", Dimensions: testDimensions},
			Chunking:   domain.ChunkingConfig{Implementation: domain.ChunkingNone, ChunkColumn: "body"},
			Formatting: domain.FormattingConfig{Template: "$title: $chunk"},
			Indexing:   domain.IndexingConfig{Implementation: domain.IndexNone},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Vectorizers.Drop(ctx, v.ID(), true) })

	pending, err := client.Status.Pending(ctx, v.ID(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	res, err := client.Vectorizers.Execute(ctx, v.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 2, res.Chunks)

	assert.Equal(t, int64(2), count(t, raw, `public.it_docs_embedding_store`))
	assert.Equal(t, int64(2), count(t, raw, `public.it_docs_embedding`))

	exec(t, raw, `UPDATE public.it_docs SET body = 'changed' WHERE id = 1`)
	pending, err = client.Status.Pending(ctx, v.ID(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	run, err := client.Vectorizers.Run(ctx, v.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, run.FanOut)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, int64(2), count(t, raw, `public.it_docs_embedding_store`))

	var chunk string
	require.NoError(t, raw.Session(ctx).Raw(`SELECT chunk FROM public.it_docs_embedding_store WHERE id = 1`).Scan(&chunk).Error)
	assert.Equal(t, "changed", chunk)

	require.NoError(t, client.Vectorizers.Drop(ctx, v.ID(), true))
	_, err = client.Vectorizers.Get(ctx, v.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_ReconcileAfterSourceDrop(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()

	raw, err := database.NewDatabase(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	exec(t, raw,
		`DROP TABLE IF EXISTS public.it_notes CASCADE`,
		`CREATE TABLE public.it_notes (id int PRIMARY KEY, body text)`,
	)

	client, err := vectorizer.New(vectorizer.WithDatabaseURL(url), vectorizer.WithoutBackground())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_notes"),
		Config: domain.Config{
			Embedding:  domain.EmbeddingConfig{Implementation: domain.EmbeddingOllama, Model: "test", Dimensions: testDimensions},
			Chunking:   domain.ChunkingConfig{ChunkColumn: "body"},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
		},
	})
	require.NoError(t, err)

	exec(t, raw, `DROP TABLE public.it_notes CASCADE`)

	removed, err := client.Vectorizers.Reconcile(ctx)
	require.NoError(t, err)
	assert.Contains(t, removed, v.ID())

	_, err = client.Vectorizers.Get(ctx, v.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_RolledBackInsertIsNotQueued(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_tx CASCADE`,
		`CREATE TABLE public.it_tx (id int PRIMARY KEY, body text)`,
	)
	client := newIntegrationClient(t, url, vectorizer.WithoutBackground())

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_tx"),
		Config: domain.Config{
			Embedding:  testEmbedding(),
			Chunking:   domain.ChunkingConfig{ChunkColumn: "body"},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Vectorizers.Drop(ctx, v.ID(), true) })

	rollback := errors.New("rollback")
	err = database.WithTransaction(ctx, raw, func(ctx context.Context) error {
		if err := raw.Session(ctx).Exec(`INSERT INTO public.it_tx VALUES (1, 'discarded')`).Error; err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)
	assert.Equal(t, int64(0), exactPending(t, client, v.ID()))

	exec(t, raw, `INSERT INTO public.it_tx VALUES (2, 'kept')`)
	assert.Equal(t, int64(1), exactPending(t, client, v.ID()))
}

func TestIntegration_ConcurrentExecuteSplitsQueue(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_split CASCADE`,
		`CREATE TABLE public.it_split (id int PRIMARY KEY, body text)`,
		`INSERT INTO public.it_split SELECT g, 'row ' || g FROM generate_series(1, 30) g`,
	)
	client := newIntegrationClient(t, url, vectorizer.WithoutBackground())

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_split"),
		Config: domain.Config{
			Embedding:  testEmbedding(),
			Chunking:   domain.ChunkingConfig{Implementation: domain.ChunkingNone, ChunkColumn: "body"},
			Indexing:   domain.IndexingConfig{Implementation: domain.IndexNone},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
			Processing: domain.ProcessingConfig{BatchSize: 5},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Vectorizers.Drop(ctx, v.ID(), true) })

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for range 6 {
		wg.Go(func() {
			res, err := client.Vectorizers.Execute(ctx, v.ID())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total += res.Items
		})
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 30, total)
	assert.Equal(t, int64(0), exactPending(t, client, v.ID()))
	assert.Equal(t, int64(30), count(t, raw, `public.it_split_embedding_store`))
}

func TestIntegration_ConcurrentRunsBuildOneIndex(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_race CASCADE`,
		`CREATE TABLE public.it_race (id int PRIMARY KEY, body text)`,
		`INSERT INTO public.it_race SELECT g, 'row ' || g FROM generate_series(1, 20) g`,
	)
	client := newIntegrationClient(t, url, vectorizer.WithoutBackground())

	minRows := int64(10)
	waitForQueue := true
	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_race"),
		Config: domain.Config{
			Embedding: testEmbedding(),
			Chunking:  domain.ChunkingConfig{Implementation: domain.ChunkingNone, ChunkColumn: "body"},
			Indexing: domain.IndexingConfig{
				Implementation:       domain.IndexHNSW,
				MinRows:              &minRows,
				CreateWhenQueueEmpty: &waitForQueue,
			},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
			Processing: domain.ProcessingConfig{BatchSize: 50},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Vectorizers.Drop(ctx, v.ID(), true) })

	res, err := client.Vectorizers.Execute(ctx, v.ID())
	require.NoError(t, err)
	require.Equal(t, 20, res.Items)

	const runs = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		builds int
		errs   []error
	)
	for range runs {
		wg.Go(func() {
			run, err := client.Vectorizers.Run(ctx, v.ID())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if run.IndexBuilt {
				builds++
			}
		})
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, builds)

	var indexes int64
	require.NoError(t, raw.Session(ctx).Raw(
		`SELECT count(*) FROM pg_indexes WHERE schemaname = 'public' AND tablename = 'it_race_embedding_store' AND indexdef ILIKE '%USING hnsw%'`,
	).Scan(&indexes).Error)
	assert.Equal(t, int64(1), indexes)

	stored, err := client.Vectorizers.Get(ctx, v.ID())
	require.NoError(t, err)
	assert.True(t, stored.Config().Indexing.Built())
}

func TestIntegration_DisableAndEnableSchedule(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_sched CASCADE`,
		`CREATE TABLE public.it_sched (id int PRIMARY KEY, body text)`,
		`INSERT INTO public.it_sched VALUES (1, 'first'), (2, 'second')`,
	)
	client := newIntegrationClient(t, url,
		vectorizer.WithSchedulerConfig(config.NewSchedulerConfig().WithPollPeriod(100*time.Millisecond)),
		vectorizer.WithWatchdogConfig(config.NewWatchdogConfig().WithEnabled(false)),
	)

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_sched"),
		Config: domain.Config{
			Embedding:  testEmbedding(),
			Chunking:   domain.ChunkingConfig{Implementation: domain.ChunkingNone, ChunkColumn: "body"},
			Indexing:   domain.IndexingConfig{Implementation: domain.IndexNone},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleInterval, Interval: domain.Duration(200 * time.Millisecond)},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Vectorizers.Drop(ctx, v.ID(), true) })

	drained := func() bool { return exactPending(t, client, v.ID()) == 0 }
	require.Eventually(t, drained, 15*time.Second, 100*time.Millisecond)
	assert.Equal(t, int64(2), count(t, raw, `public.it_sched_embedding_store`))

	var before []string
	require.NoError(t, raw.Session(ctx).Raw(
		`SELECT embedding_uuid::text FROM public.it_sched_embedding_store ORDER BY id`,
	).Scan(&before).Error)

	require.NoError(t, client.Vectorizers.DisableSchedule(ctx, v.ID()))
	// Let a tick claimed before the disable finish.
	time.Sleep(500 * time.Millisecond)
	exec(t, raw, `INSERT INTO public.it_sched VALUES (3, 'third')`)
	time.Sleep(time.Second)
	assert.Equal(t, int64(1), exactPending(t, client, v.ID()))
	assert.Equal(t, int64(2), count(t, raw, `public.it_sched_embedding_store`))

	require.NoError(t, client.Vectorizers.EnableSchedule(ctx, v.ID()))
	require.Eventually(t, drained, 15*time.Second, 100*time.Millisecond)
	assert.Equal(t, int64(3), count(t, raw, `public.it_sched_embedding_store`))

	var after []string
	require.NoError(t, raw.Session(ctx).Raw(
		`SELECT embedding_uuid::text FROM public.it_sched_embedding_store WHERE id IN (1, 2) ORDER BY id`,
	).Scan(&after).Error)
	assert.Equal(t, before, after)
}

func TestIntegration_RecreateWithSameDestination(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_again CASCADE`,
		`DROP TABLE IF EXISTS public.it_again_embedding_store CASCADE`,
		`CREATE TABLE public.it_again (id int PRIMARY KEY, body text)`,
		`INSERT INTO public.it_again VALUES (1, 'one')`,
	)
	client := newIntegrationClient(t, url, vectorizer.WithoutBackground())

	req := service.CreateRequest{
		Source: domain.NewTableRef("public", "it_again"),
		Config: domain.Config{
			Embedding:  testEmbedding(),
			Chunking:   domain.ChunkingConfig{ChunkColumn: "body"},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
		},
	}

	first, err := client.Vectorizers.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, client.Vectorizers.Drop(ctx, first.ID(), true))

	second, err := client.Vectorizers.Create(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, first.Target(), second.Target())
	assert.Equal(t, first.View(), second.View())
	assert.Equal(t, int64(1), exactPending(t, client, second.ID()))

	require.NoError(t, client.Vectorizers.Drop(ctx, second.ID(), false))
	t.Cleanup(func() {
		exec(t, raw, `DROP VIEW IF EXISTS public.it_again_embedding`, `DROP TABLE IF EXISTS public.it_again_embedding_store`)
	})

	_, err = client.Vectorizers.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNameCollision)
}

func TestIntegration_DropNotificationDeregisters(t *testing.T) {
	url := integrationURL(t)
	ctx := context.Background()
	raw := rawDB(t, url,
		`DROP TABLE IF EXISTS public.it_watch CASCADE`,
		`CREATE TABLE public.it_watch (id int PRIMARY KEY, body text)`,
	)

	var superuser bool
	require.NoError(t, raw.Session(ctx).Raw(
		`SELECT rolsuper FROM pg_catalog.pg_roles WHERE rolname = current_user`,
	).Scan(&superuser).Error)
	if !superuser {
		t.Skip("event triggers need a superuser")
	}

	client := newIntegrationClient(t, url,
		vectorizer.WithSchedulerConfig(config.NewSchedulerConfig().WithEnabled(false)),
		vectorizer.WithWatchdogConfig(config.NewWatchdogConfig().WithInterval(time.Hour)),
	)

	var triggers int64
	require.NoError(t, raw.Session(ctx).Raw(
		`SELECT count(*) FROM pg_catalog.pg_event_trigger WHERE evtname = '_vectorizer_handle_drops'`,
	).Scan(&triggers).Error)
	require.Equal(t, int64(1), triggers)

	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
		Source: domain.NewTableRef("public", "it_watch"),
		Config: domain.Config{
			Embedding:  testEmbedding(),
			Chunking:   domain.ChunkingConfig{ChunkColumn: "body"},
			Scheduling: domain.SchedulingConfig{Implementation: domain.ScheduleNone},
		},
	})
	require.NoError(t, err)

	// The listener connects in the background; its last statement stays
	// visible in pg_stat_activity while it waits.
	require.Eventually(t, func() bool {
		var listening int64
		err := raw.Session(ctx).Raw(
			`SELECT count(*) FROM pg_stat_activity WHERE query ILIKE 'LISTEN%ai_vectorizer_drop%'`,
		).Scan(&listening).Error
		return err == nil && listening > 0
	}, 10*time.Second, 100*time.Millisecond)

	exec(t, raw, `DROP TABLE public.it_watch CASCADE`)

	require.Eventually(t, func() bool {
		_, err := client.Vectorizers.Get(ctx, v.ID())
		return errors.Is(err, domain.ErrNotFound)
	}, 10*time.Second, 100*time.Millisecond)
}
