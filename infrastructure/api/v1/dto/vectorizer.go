// Package dto holds request bodies accepted by the v1 API.
package dto

import (
	"github.com/helixml/vectorizer/application/service"
	"github.com/helixml/vectorizer/domain/vectorizer"
)

// SourceTable names the table a vectorizer watches.
type SourceTable struct {
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Table  string `json:"table" yaml:"table"`
}

// CreateVectorizerRequest is the body of POST /api/v1/vectorizers. The CLI
// reads the same document from YAML.
type CreateVectorizerRequest struct {
	Source       SourceTable              `json:"source" yaml:"source"`
	Names        vectorizer.NameOverrides `json:"names,omitempty" yaml:"names,omitempty"`
	Config       vectorizer.Config        `json:"config" yaml:"config"`
	GrantTo      []string                 `json:"grant_to,omitempty" yaml:"grant_to,omitempty"`
	SkipBackfill bool                     `json:"skip_backfill,omitempty" yaml:"skip_backfill,omitempty"`
}

// Validate checks the fields the service cannot default.
func (r CreateVectorizerRequest) Validate() error {
	if r.Source.Table == "" {
		return vectorizer.NewConfigError("source.table", "is required")
	}
	return nil
}

// ToService converts the body into a service request.
func (r CreateVectorizerRequest) ToService() service.CreateRequest {
	schema := r.Source.Schema
	if schema == "" {
		schema = service.DefaultSourceSchema
	}
	return service.CreateRequest{
		Source:       vectorizer.NewTableRef(schema, r.Source.Table),
		Names:        r.Names,
		Config:       r.Config,
		GrantTo:      r.GrantTo,
		SkipBackfill: r.SkipBackfill,
	}
}
