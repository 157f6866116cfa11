// Package query describes catalog lookups independently of the store that
// runs them.
package query

// Option narrows or orders a Query.
type Option func(Query) Query

// Query is a conjunction of column equalities plus an ordering.
type Query struct {
	conditions []Condition
	orderBy    []string
}

// Build applies options to an empty Query.
func Build(options ...Option) Query {
	var q Query
	for _, opt := range options {
		q = opt(q)
	}
	return q
}

// Conditions returns the equality conditions in the order they were added.
func (q Query) Conditions() []Condition {
	return append([]Condition(nil), q.conditions...)
}

// OrderBy returns the ascending sort columns.
func (q Query) OrderBy() []string {
	return append([]string(nil), q.orderBy...)
}

// Condition requires Column to equal Value.
type Condition struct {
	Column string
	Value  any
}

// WithCondition requires column = value.
func WithCondition(column string, value any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{Column: column, Value: value})
		return q
	}
}

// WithID selects a row by its "id" column.
func WithID(id int64) Option {
	return WithCondition("id", id)
}

// WithOrderAsc sorts ascending by column.
func WithOrderAsc(column string) Option {
	return func(q Query) Query {
		q.orderBy = append(q.orderBy, column)
		return q
	}
}
