package schema

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/internal/database"
)

// Plan describes the objects to create for a new vectorizer.
type Plan struct {
	Source        vectorizer.TableRef
	PrimaryKey    vectorizer.PrimaryKey
	Names         vectorizer.Names
	Dimensions    int
	SourceColumns []Column
	GrantTo       []string
}

// Provisioner creates and removes the objects of a vectorizer. It must run
// inside a transaction carried by ctx so a failure leaves nothing behind.
type Provisioner struct {
	db         database.Database
	introspect Introspector
	logger     *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(db database.Database, logger *slog.Logger) Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return Provisioner{
		db:         db,
		introspect: NewIntrospector(db),
		logger:     logger.With("component", "schema"),
	}
}

// CheckCollisions fails with ErrNameCollision when any generated name is taken.
func (p Provisioner) CheckCollisions(ctx context.Context, source vectorizer.TableRef, names vectorizer.Names) error {
	for _, ref := range []vectorizer.TableRef{names.Target, names.View, names.Queue} {
		exists, err := p.introspect.RelationExists(ctx, ref)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", vectorizer.ErrNameCollision, ref)
		}
	}

	exists, err := p.introspect.TriggerExists(ctx, source, names.Trigger)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: trigger %s on %s", vectorizer.ErrNameCollision, names.Trigger, source)
	}

	exists, err = p.introspect.FunctionExists(ctx, names.TriggerFunction())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: function %s", vectorizer.ErrNameCollision, names.TriggerFunction())
	}
	return nil
}

// Provision creates the target, queue, view and trigger, records dependency
// edges when permitted and applies grants.
func (p Provisioner) Provision(ctx context.Context, plan Plan) error {
	if !database.InTransaction(ctx) {
		return database.ErrNoTransaction
	}

	b, err := NewBuilder(plan.Source, plan.PrimaryKey, plan.Names)
	if err != nil {
		return err
	}
	for _, role := range plan.GrantTo {
		if err := ValidateIdentifier(role); err != nil {
			return err
		}
	}

	stmts := slices.Concat(
		b.CreateTarget(plan.Dimensions),
		b.CreateQueue(),
		[]string{
			b.CreateView(plan.SourceColumns),
			b.CreateTriggerFunction(),
			b.CreateTrigger(),
		},
	)
	if err := p.exec(ctx, stmts...); err != nil {
		return err
	}

	super, err := p.introspect.IsSuperuser(ctx)
	if err != nil {
		return err
	}
	if super {
		if err := p.exec(ctx, b.Dependencies()...); err != nil {
			return err
		}
	} else {
		p.logger.Info("not a superuser, skipping dependency edges", slog.String("target", plan.Names.Target.String()))
	}

	for _, role := range plan.GrantTo {
		if err := p.exec(ctx, b.Grants(role)...); err != nil {
			return err
		}
	}
	return nil
}

// Backfill enqueues every existing source row.
func (p Provisioner) Backfill(ctx context.Context, v vectorizer.Vectorizer) error {
	b, err := ForVectorizer(v)
	if err != nil {
		return err
	}
	return p.exec(ctx, b.Backfill())
}

// Teardown removes the objects of v. The trigger function is found through
// the trigger, or by signature if the trigger is already gone. With dropAll
// the view and target table are removed too. Missing objects are skipped.
func (p Provisioner) Teardown(ctx context.Context, v vectorizer.Vectorizer, dropAll bool) error {
	b, err := ForVectorizer(v)
	if err != nil {
		return err
	}

	fn, triggerFound, fnFound, err := p.introspect.TriggerFunction(ctx, v.Source(), v.TriggerName(), v.Names().TriggerFunction())
	if err != nil {
		return err
	}

	var stmts []string
	if triggerFound {
		stmts = append(stmts, b.DropTrigger(v.TriggerName()))
	}
	if fnFound {
		stmts = append(stmts, DropFunction(fn))
	} else {
		p.logger.Info("trigger function already removed", slog.Int64("vectorizer_id", v.ID()))
	}
	stmts = append(stmts, b.DropQueue())
	if dropAll {
		stmts = append(stmts, b.DropView(), b.DropTarget())
	}
	return p.exec(ctx, stmts...)
}

func (p Provisioner) exec(ctx context.Context, stmts ...string) error {
	session := p.db.Session(ctx)
	for _, stmt := range stmts {
		if err := session.Exec(stmt).Error; err != nil {
			return fmt.Errorf("execute %q: %w", database.TruncateSQL(stmt), Classify(err))
		}
	}
	return nil
}
