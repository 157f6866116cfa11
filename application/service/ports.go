package service

import (
	"context"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/infrastructure/index"
	"github.com/helixml/vectorizer/infrastructure/queue"
	"github.com/helixml/vectorizer/infrastructure/schema"
)

// Catalog reads the database catalog.
type Catalog interface {
	RelationExists(ctx context.Context, ref vectorizer.TableRef) (bool, error)
	PrimaryKey(ctx context.Context, source vectorizer.TableRef) (vectorizer.PrimaryKey, error)
	Columns(ctx context.Context, ref vectorizer.TableRef) ([]schema.Column, error)
	IsSuperuser(ctx context.Context) (bool, error)
	IsOwner(ctx context.Context, ref vectorizer.TableRef) (bool, error)
}

// Provisioner creates and removes the schema objects of a vectorizer.
type Provisioner interface {
	CheckCollisions(ctx context.Context, source vectorizer.TableRef, names vectorizer.Names) error
	Provision(ctx context.Context, plan schema.Plan) error
	Backfill(ctx context.Context, v vectorizer.Vectorizer) error
	Teardown(ctx context.Context, v vectorizer.Vectorizer, dropAll bool) error
}

// Executor processes one batch of a vectorizer's queue. Implementations must
// claim queue rows without blocking so concurrent calls split the work.
type Executor interface {
	Execute(ctx context.Context, v vectorizer.Vectorizer) (embedding.Result, error)
}

// Indexer decides on and builds the vector index of a target table.
type Indexer interface {
	Eligible(ctx context.Context, v vectorizer.Vectorizer, backlog int64) (bool, error)
	Build(ctx context.Context, v vectorizer.Vectorizer) (bool, error)
}

// Backlog measures queue depth.
type Backlog interface {
	Pending(ctx context.Context, queue vectorizer.TableRef, exact bool) (int64, error)
}

var (
	_ Catalog      = schema.Introspector{}
	_ Provisioner  = schema.Provisioner{}
	_ Executor     = embedding.Executor{}
	_ Indexer      = index.Builder{}
	_ Backlog      = queue.Probe{}
	_ QueueBacklog = queue.Probe{}
)
