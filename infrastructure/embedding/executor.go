// Package embedding is the default execution collaborator: it drains one batch
// of a vectorizer's queue into its target table.
package embedding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/chunking"
	"github.com/helixml/vectorizer/infrastructure/provider"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
)

// ErrPostgresRequired is returned when the executor runs against a database
// without pgvector and row locking.
var ErrPostgresRequired = errors.New("embedding execution requires postgres")

// EmbedderFactory builds the embedder for a vectorizer's embedding config.
type EmbedderFactory func(cfg vectorizer.EmbeddingConfig) (provider.Embedder, error)

// Result summarises one unit of work.
type Result struct {
	Items    int
	Chunks   int
	Usage    provider.Usage
	Duration time.Duration
}

// Executor processes one queue batch per call. Concurrent calls on the same
// vectorizer never process the same key: queue rows are claimed with
// FOR UPDATE SKIP LOCKED and each key takes a transaction-scoped advisory lock.
type Executor struct {
	db        database.Database
	embedders EmbedderFactory
	logger    *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(db database.Database, embedders EmbedderFactory, logger *slog.Logger) Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return Executor{
		db:        db,
		embedders: embedders,
		logger:    logger.With("component", "executor"),
	}
}

// Execute claims up to batch_size keys from the queue of v, re-embeds their
// current source rows and replaces their target rows. Claimed queue rows are
// deleted in the same transaction, so a failure leaves them queued.
func (e Executor) Execute(ctx context.Context, v vectorizer.Vectorizer) (Result, error) {
	if !e.db.IsPostgres() {
		return Result{}, ErrPostgresRequired
	}

	stmts, err := newStatements(v)
	if err != nil {
		return Result{}, err
	}
	cfg := v.Config()
	splitter, err := chunking.NewSplitter(cfg.Chunking)
	if err != nil {
		return Result{}, err
	}
	formatter := chunking.NewFormatter(cfg.Formatting)
	embedder, err := e.embedders(cfg.Embedding)
	if err != nil {
		return Result{}, fmt.Errorf("embedder for vectorizer %d: %w", v.ID(), err)
	}

	start := time.Now()
	result, err := database.WithTransactionResult(ctx, e.db, func(ctx context.Context) (Result, error) {
		keys, err := e.claim(ctx, stmts, cfg.Processing.BatchSize)
		if err != nil {
			return Result{}, err
		}
		if len(keys) == 0 {
			return Result{}, nil
		}

		rows, err := e.load(ctx, stmts, keys)
		if err != nil {
			return Result{}, err
		}

		docs := prepare(rows, cfg.Chunking.ChunkColumn, splitter, formatter)
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.text
		}

		var usage provider.Usage
		var targetRows []Row
		if len(texts) > 0 {
			resp, err := embedder.Embed(ctx, texts)
			if err != nil {
				return Result{}, fmt.Errorf("embed %d chunks: %w", len(texts), err)
			}
			usage = resp.Usage
			targetRows, err = assemble(docs, resp.Vectors, cfg.Embedding.Dimensions)
			if err != nil {
				return Result{}, err
			}
		}

		if err := e.replace(ctx, stmts, keys, targetRows); err != nil {
			return Result{}, err
		}
		return Result{Items: len(keys), Chunks: len(targetRows), Usage: usage}, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("execute vectorizer %d: %w", v.ID(), err)
	}
	result.Duration = time.Since(start)

	if result.Items > 0 {
		e.logger.Info("processed queue batch",
			slog.Int64("vectorizer_id", v.ID()),
			slog.Int("items", result.Items),
			slog.Int("chunks", result.Chunks),
			slog.Int("tokens", result.Usage.TotalTokens()),
			slog.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

func (e Executor) claim(ctx context.Context, stmts statements, batch int) ([]Key, error) {
	if batch <= 0 {
		batch = vectorizer.DefaultBatchSize
	}
	var keys []Key
	err := e.scan(ctx, len(stmts.pk), func(values []string) error {
		keys = append(keys, Key(values))
		return nil
	}, stmts.Claim(batch))
	if err != nil {
		return nil, fmt.Errorf("claim queue rows: %w", err)
	}
	return keys, nil
}

func (e Executor) load(ctx context.Context, stmts statements, keys []Key) ([]sourceRow, error) {
	query, args := stmts.Load(keys)
	var rows []sourceRow
	err := e.scan(ctx, len(stmts.pk)+1, func(values []string) error {
		row, err := decodeRow(Key(values[:len(values)-1]), values[len(values)-1])
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	}, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load source rows: %w", err)
	}
	return rows, nil
}

func (e Executor) replace(ctx context.Context, stmts statements, keys []Key, rows []Row) error {
	session := e.db.Session(ctx)

	query, args := stmts.DeleteTarget(keys)
	if err := session.Exec(query, args...).Error; err != nil {
		return fmt.Errorf("delete target rows: %w", schema.Classify(err))
	}

	for start := 0; start < len(rows); start += maxInsertRows {
		end := min(start+maxInsertRows, len(rows))
		query, args := stmts.InsertTarget(rows[start:end])
		if err := session.Exec(query, args...).Error; err != nil {
			return fmt.Errorf("insert target rows: %w", schema.Classify(err))
		}
	}
	return nil
}

// scan runs query and hands each row of n text columns to fn. NULL scans as
// the empty string.
func (e Executor) scan(ctx context.Context, n int, fn func([]string) error, query string, args ...any) error {
	rows, err := e.db.Session(ctx).Raw(query, args...).Rows()
	if err != nil {
		return schema.Classify(err)
	}
	defer func() { _ = rows.Close() }()

	dest := make([]sql.NullString, n)
	ptrs := make([]any, n)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		values := make([]string, n)
		for i, d := range dest {
			values[i] = d.String
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}
