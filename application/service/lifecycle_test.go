package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/helixml/vectorizer/domain/schedule"
	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	stores
	catalog     *fakeCatalog
	provisioner *fakeProvisioner
	lifecycle   *Lifecycle
}

func newLifecycleFixture(t *testing.T) lifecycleFixture {
	t.Helper()
	s := newStores(t)
	catalog := newFakeCatalog(`"public"."docs"`)
	provisioner := newFakeProvisioner(catalog)
	return lifecycleFixture{
		stores:      s,
		catalog:     catalog,
		provisioner: provisioner,
		lifecycle:   NewLifecycle(s.db, s.vectorizers, s.jobs, catalog, provisioner, slog.Default()),
	}
}

func createDocs(t *testing.T, f lifecycleFixture) vectorizer.Vectorizer {
	t.Helper()
	v, err := f.lifecycle.Create(context.Background(), CreateRequest{
		Source: vectorizer.NewTableRef("", "docs"),
		Config: testConfig(),
	})
	require.NoError(t, err)
	return v
}

func TestLifecycle_Create(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	v := createDocs(t, f)

	assert.Equal(t, int64(1), v.ID())
	assert.Equal(t, vectorizer.NewTableRef("public", "docs"), v.Source())
	assert.Equal(t, vectorizer.NewTableRef("public", "docs_embedding_store"), v.Target())
	assert.Equal(t, vectorizer.NewTableRef("ai", "_vectorizer_q_1"), v.Queue())
	assert.Equal(t, []string{"id"}, v.PrimaryKey().Names())
	assert.Equal(t, vectorizer.IndexHNSW, v.Config().Indexing.Implementation)

	require.Len(t, f.provisioner.plans, 1)
	plan := f.provisioner.plans[0]
	assert.Equal(t, 768, plan.Dimensions)
	assert.Len(t, plan.SourceColumns, 3)
	assert.Equal(t, []int64{1}, f.provisioner.backfills)

	job, err := f.jobs.ForVectorizer(ctx, v.ID())
	require.NoError(t, err)
	assert.True(t, job.Active())
	assert.Equal(t, vectorizer.DefaultInterval, job.Interval())
	assert.Equal(t, job.ID(), v.Config().Scheduling.JobID)

	stored, err := f.lifecycle.Get(ctx, v.ID())
	require.NoError(t, err)
	assert.Equal(t, job.ID(), stored.Config().Scheduling.JobID)
}

func TestLifecycle_CreateUnscheduled(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.Scheduling.Implementation = vectorizer.ScheduleNone
	v, err := f.lifecycle.Create(ctx, CreateRequest{
		Source:       vectorizer.NewTableRef("public", "docs"),
		Config:       cfg,
		SkipBackfill: true,
	})
	require.NoError(t, err)

	_, err = f.jobs.ForVectorizer(ctx, v.ID())
	assert.ErrorIs(t, err, schedule.ErrNotFound)
	assert.Zero(t, v.Config().Scheduling.JobID)
	assert.Empty(t, f.provisioner.backfills)
}

func TestLifecycle_CreateFailsFast(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f lifecycleFixture, req *CreateRequest)
		wantErr error
	}{
		{
			name:    "missing embedding",
			setup:   func(_ lifecycleFixture, req *CreateRequest) { req.Config.Embedding = vectorizer.EmbeddingConfig{} },
			wantErr: vectorizer.ErrInvalidConfig,
		},
		{
			name:    "unknown chunk column",
			setup:   func(_ lifecycleFixture, req *CreateRequest) { req.Config.Chunking.ChunkColumn = "missing" },
			wantErr: vectorizer.ErrInvalidConfig,
		},
		{
			name:    "source not found",
			setup:   func(_ lifecycleFixture, req *CreateRequest) { req.Source = vectorizer.NewTableRef("public", "other") },
			wantErr: vectorizer.ErrSourceNotFound,
		},
		{
			name:    "invalid source name",
			setup:   func(_ lifecycleFixture, req *CreateRequest) { req.Source = vectorizer.NewTableRef("public", "bad name") },
			wantErr: vectorizer.ErrInvalidIdentifier,
		},
		{
			name:    "invalid grantee",
			setup:   func(_ lifecycleFixture, req *CreateRequest) { req.GrantTo = []string{"x; drop"} },
			wantErr: vectorizer.ErrInvalidIdentifier,
		},
		{
			name:    "not owner",
			setup:   func(f lifecycleFixture, _ *CreateRequest) { f.catalog.owner = false },
			wantErr: vectorizer.ErrPermissionDenied,
		},
		{
			name:    "no primary key",
			setup:   func(f lifecycleFixture, _ *CreateRequest) { f.catalog.pk = nil },
			wantErr: vectorizer.ErrNoPrimaryKey,
		},
		{
			name: "name collision",
			setup: func(f lifecycleFixture, _ *CreateRequest) {
				f.provisioner.collisionErr = vectorizer.ErrNameCollision
			},
			wantErr: vectorizer.ErrNameCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLifecycleFixture(t)
			req := CreateRequest{Source: vectorizer.NewTableRef("public", "docs"), Config: testConfig()}
			tt.setup(f, &req)

			_, err := f.lifecycle.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.provisioner.plans)

			all, err := f.lifecycle.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestLifecycle_CreateSuperuserSkipsOwnership(t *testing.T) {
	f := newLifecycleFixture(t)
	f.catalog.owner = false
	f.catalog.superuser = true

	createDocs(t, f)
}

func TestLifecycle_CreateRollsBackOnFailure(t *testing.T) {
	f := newLifecycleFixture(t)
	f.provisioner.backfillErr = errors.New("backfill failed")
	ctx := context.Background()

	_, err := f.lifecycle.Create(ctx, CreateRequest{Source: vectorizer.NewTableRef("public", "docs"), Config: testConfig()})
	require.Error(t, err)

	all, err := f.lifecycle.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.jobs.ForVectorizer(ctx, 1)
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestLifecycle_Drop(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	v := createDocs(t, f)

	require.NoError(t, f.lifecycle.Drop(ctx, v.ID(), false))

	dropAll, called := f.provisioner.teardowns[v.ID()]
	assert.True(t, called)
	assert.False(t, dropAll)

	_, err := f.lifecycle.Get(ctx, v.ID())
	assert.ErrorIs(t, err, vectorizer.ErrNotFound)
	_, err = f.jobs.ForVectorizer(ctx, v.ID())
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	err = f.lifecycle.Drop(ctx, v.ID(), false)
	assert.ErrorIs(t, err, vectorizer.ErrNotFound)
}

func TestLifecycle_DropThenRecreate(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	first := createDocs(t, f)

	require.NoError(t, f.lifecycle.Drop(ctx, first.ID(), true))
	second := createDocs(t, f)

	assert.Equal(t, first.Target(), second.Target())
	assert.Len(t, f.provisioner.plans, 2)

	all, err := f.lifecycle.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLifecycle_Deregister(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	v := createDocs(t, f)

	require.NoError(t, f.lifecycle.Deregister(ctx, v.ID()))
	assert.True(t, f.provisioner.teardowns[v.ID()])

	require.NoError(t, f.lifecycle.Deregister(ctx, v.ID()))
}

func TestLifecycle_Schedule(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	v := createDocs(t, f)

	require.NoError(t, f.lifecycle.DisableSchedule(ctx, v.ID()))
	job, err := f.jobs.ForVectorizer(ctx, v.ID())
	require.NoError(t, err)
	assert.False(t, job.Active())

	require.NoError(t, f.lifecycle.DisableSchedule(ctx, v.ID()))

	require.NoError(t, f.lifecycle.EnableSchedule(ctx, v.ID()))
	job, err = f.jobs.ForVectorizer(ctx, v.ID())
	require.NoError(t, err)
	assert.True(t, job.Active())
}

func TestLifecycle_ScheduleErrors(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.lifecycle.EnableSchedule(ctx, 42), vectorizer.ErrNotFound)

	cfg := testConfig()
	cfg.Scheduling.Implementation = vectorizer.ScheduleNone
	v, err := f.lifecycle.Create(ctx, CreateRequest{Source: vectorizer.NewTableRef("public", "docs"), Config: cfg})
	require.NoError(t, err)

	assert.ErrorIs(t, f.lifecycle.EnableSchedule(ctx, v.ID()), vectorizer.ErrNoSchedule)
	assert.ErrorIs(t, f.lifecycle.DisableSchedule(ctx, v.ID()), vectorizer.ErrNoSchedule)
}
