package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/infrastructure/persistence"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
	"github.com/helixml/vectorizer/internal/testdb"
)

type stores struct {
	db          database.Database
	vectorizers persistence.VectorizerStore
	jobs        persistence.JobStore
}

func newStores(t *testing.T) stores {
	t.Helper()
	db := testdb.New(t)
	return stores{
		db:          db,
		vectorizers: persistence.NewVectorizerStore(db),
		jobs:        persistence.NewJobStore(db),
	}
}

type fakeCatalog struct {
	mu        sync.Mutex
	relations map[string]bool
	pk        vectorizer.PrimaryKey
	columns   []schema.Column
	superuser bool
	owner     bool
}

func newFakeCatalog(tables ...string) *fakeCatalog {
	c := &fakeCatalog{
		relations: map[string]bool{},
		pk:        vectorizer.PrimaryKey{{Ordinal: 1, Name: "id", Type: "integer"}},
		columns: []schema.Column{
			{Name: "id", Type: "integer"},
			{Name: "title", Type: "text"},
			{Name: "body", Type: "text"},
		},
		owner: true,
	}
	for _, t := range tables {
		c.relations[t] = true
	}
	return c
}

func (c *fakeCatalog) setExists(ref vectorizer.TableRef, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relations[ref.String()] = exists
}

func (c *fakeCatalog) RelationExists(_ context.Context, ref vectorizer.TableRef) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relations[ref.String()], nil
}

func (c *fakeCatalog) PrimaryKey(_ context.Context, _ vectorizer.TableRef) (vectorizer.PrimaryKey, error) {
	if len(c.pk) == 0 {
		return nil, vectorizer.ErrNoPrimaryKey
	}
	return c.pk, nil
}

func (c *fakeCatalog) Columns(_ context.Context, _ vectorizer.TableRef) ([]schema.Column, error) {
	return c.columns, nil
}

func (c *fakeCatalog) IsSuperuser(_ context.Context) (bool, error) { return c.superuser, nil }

func (c *fakeCatalog) IsOwner(_ context.Context, _ vectorizer.TableRef) (bool, error) { return c.owner, nil }

// fakeProvisioner records calls and marks provisioned objects in the catalog.
type fakeProvisioner struct {
	catalog      *fakeCatalog
	collisionErr error
	provisionErr error
	backfillErr  error

	plans     []schema.Plan
	backfills []int64
	teardowns map[int64]bool
}

func newFakeProvisioner(catalog *fakeCatalog) *fakeProvisioner {
	return &fakeProvisioner{catalog: catalog, teardowns: map[int64]bool{}}
}

func (p *fakeProvisioner) CheckCollisions(_ context.Context, _ vectorizer.TableRef, _ vectorizer.Names) error {
	return p.collisionErr
}

func (p *fakeProvisioner) Provision(_ context.Context, plan schema.Plan) error {
	if p.provisionErr != nil {
		return p.provisionErr
	}
	p.plans = append(p.plans, plan)
	p.catalog.setExists(plan.Names.Target, true)
	p.catalog.setExists(plan.Names.Queue, true)
	p.catalog.setExists(plan.Names.View, true)
	return nil
}

func (p *fakeProvisioner) Backfill(_ context.Context, v vectorizer.Vectorizer) error {
	if p.backfillErr != nil {
		return p.backfillErr
	}
	p.backfills = append(p.backfills, v.ID())
	return nil
}

func (p *fakeProvisioner) Teardown(_ context.Context, v vectorizer.Vectorizer, dropAll bool) error {
	p.teardowns[v.ID()] = dropAll
	p.catalog.setExists(v.Queue(), false)
	if dropAll {
		p.catalog.setExists(v.Target(), false)
		p.catalog.setExists(v.View(), false)
	}
	return nil
}

type fakeBacklog struct {
	mu      sync.Mutex
	pending []int64
	calls   int
	err     error
	missing map[vectorizer.TableRef]bool
}

func (b *fakeBacklog) Exists(_ context.Context, queue vectorizer.TableRef) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.missing[queue], nil
}

// Pending returns the queued values in order and repeats the last one.
func (b *fakeBacklog) Pending(_ context.Context, _ vectorizer.TableRef, _ bool) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	i := min(b.calls, len(b.pending)-1)
	b.calls++
	return b.pending[i], nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	calls    int
	failEach int
	items    int
}

// Execute fails every failEach-th call when failEach is set.
func (e *fakeExecutor) Execute(_ context.Context, _ vectorizer.Vectorizer) (embedding.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failEach > 0 && e.calls%e.failEach == 0 {
		return embedding.Result{}, errors.New("provider unavailable")
	}
	return embedding.Result{Items: e.items, Chunks: e.items}, nil
}

type fakeIndexer struct {
	eligible  bool
	built     bool
	backlogs  []int64
	buildRuns int
	onBuild   func(ctx context.Context, v vectorizer.Vectorizer)
}

func (i *fakeIndexer) Eligible(_ context.Context, _ vectorizer.Vectorizer, backlog int64) (bool, error) {
	i.backlogs = append(i.backlogs, backlog)
	return i.eligible, nil
}

func (i *fakeIndexer) Build(ctx context.Context, v vectorizer.Vectorizer) (bool, error) {
	i.buildRuns++
	if i.onBuild != nil {
		i.onBuild(ctx, v)
	}
	return i.built, nil
}

func testConfig() vectorizer.Config {
	return vectorizer.Config{
		Embedding: vectorizer.EmbeddingConfig{
			Implementation: vectorizer.EmbeddingOpenAI,
			Model:          "text-embedding-3-small",
			Dimensions:     768,
		},
		Chunking: vectorizer.ChunkingConfig{ChunkColumn: "body"},
	}
}

var (
	_ Catalog      = (*fakeCatalog)(nil)
	_ Provisioner  = (*fakeProvisioner)(nil)
	_ Backlog      = (*fakeBacklog)(nil)
	_ QueueBacklog = (*fakeBacklog)(nil)
	_ Executor     = (*fakeExecutor)(nil)
	_ Indexer      = (*fakeIndexer)(nil)
)
