package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	q := Build(WithID(7), WithCondition("source_table", "docs"), WithOrderAsc("id"))

	assert.Equal(t, []Condition{{Column: "id", Value: int64(7)}, {Column: "source_table", Value: "docs"}}, q.Conditions())
	assert.Equal(t, []string{"id"}, q.OrderBy())
}

func TestBuild_ReturnsCopies(t *testing.T) {
	q := Build(WithCondition("a", 1))
	conds := q.Conditions()
	conds[0].Value = 2

	assert.Equal(t, 1, q.Conditions()[0].Value)
	assert.Empty(t, Build().Conditions())
}
