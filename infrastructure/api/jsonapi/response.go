// Package jsonapi renders vectorizer API payloads as JSON:API documents.
package jsonapi

import (
	"encoding/json"
	"time"
)

// BasePath prefixes resource self links.
const BasePath = "/api/v1/vectorizers"

// Document is the top-level JSON:API document. Data and Errors are mutually
// exclusive.
type Document struct {
	Data   any     `json:"data,omitempty"`
	Meta   Meta    `json:"meta,omitempty"`
	Errors []Error `json:"errors,omitempty"`
}

// Meta holds non-standard information about a document or resource.
type Meta map[string]any

// Links holds the self link of a resource.
type Links struct {
	Self string `json:"self,omitempty"`
}

// Resource is a JSON:API resource object.
type Resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
	Links      *Links `json:"links,omitempty"`
}

// Error is a JSON:API error object. ID carries the request correlation id.
type Error struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NewResource creates a resource whose self link points at the vectorizer
// it describes.
func NewResource(resourceType, id string, attrs any) *Resource {
	self := BasePath + "/" + id
	switch resourceType {
	case TypeQueuePending:
		self += "/pending"
	case TypeExecution:
		self += "/execute"
	case TypeRun:
		self += "/run"
	case TypeVectorizerStatus:
		self = BasePath
	}
	return &Resource{
		Type:       resourceType,
		ID:         id,
		Attributes: attrs,
		Links:      &Links{Self: self},
	}
}

// NewSingleResponse wraps one resource.
func NewSingleResponse(resource *Resource) *Document {
	return &Document{Data: resource}
}

// NewListResponse wraps a list of resources. An empty list still renders as
// "data": [] so clients can tell it from an error document.
func NewListResponse(resources []*Resource) *Document {
	if resources == nil {
		resources = []*Resource{}
	}
	return &Document{
		Data: resources,
		Meta: Meta{"count": len(resources)},
	}
}

// NewErrorResponse wraps errors.
func NewErrorResponse(errors ...Error) *Document {
	return &Document{Errors: errors}
}

// NewError creates an error object.
func NewError(status, title, detail string) Error {
	return Error{
		Status: status,
		Title:  title,
		Detail: detail,
	}
}

// DateTime renders a time as RFC 3339, or null when zero.
type DateTime time.Time

// MarshalJSON implements json.Marshaler.
func (dt DateTime) MarshalJSON() ([]byte, error) {
	t := time.Time(dt)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// UnmarshalJSON implements json.Unmarshaler.
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*dt = DateTime{}
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return err
	}
	*dt = DateTime(t)
	return nil
}

// NewDateTime converts a time.Time.
func NewDateTime(t time.Time) DateTime {
	return DateTime(t)
}
