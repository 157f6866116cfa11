package jsonapi

import (
	"strconv"

	"github.com/helixml/vectorizer/application/service"
	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
)

// Resource types.
const (
	TypeVectorizer       = "vectorizer"
	TypeVectorizerStatus = "vectorizer_status"
	TypeQueuePending     = "queue_pending"
	TypeExecution        = "execution"
	TypeRun              = "run"
)

// VectorizerAttributes represents vectorizer attributes in JSON:API format.
type VectorizerAttributes struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	View       string            `json:"view"`
	Queue      string            `json:"queue"`
	Trigger    string            `json:"trigger"`
	PrimaryKey []string          `json:"primary_key"`
	Config     vectorizer.Config `json:"config"`
	CreatedAt  DateTime          `json:"created_at"`
}

// StatusAttributes represents a row of the status view.
type StatusAttributes struct {
	Source string `json:"source"`
	Target string `json:"target"`
	View   string `json:"view"`
	// PendingItems is null when the queue table is missing.
	PendingItems *int64 `json:"pending_items"`
}

// PendingAttributes reports a queue backlog.
type PendingAttributes struct {
	PendingItems int64 `json:"pending_items"`
	Exact        bool  `json:"exact"`
	// Capped is set when the bounded count stopped at the cap.
	Capped bool `json:"capped"`
}

// ExecutionAttributes reports one executor batch.
type ExecutionAttributes struct {
	Items        int   `json:"items"`
	Chunks       int   `json:"chunks"`
	PromptTokens int   `json:"prompt_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMS   int64 `json:"duration_ms"`
}

// RunAttributes reports one on-demand job run.
type RunAttributes struct {
	Backlog    int64  `json:"backlog"`
	FanOut     int    `json:"fan_out"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	IndexBuilt bool   `json:"index_built"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func resourceID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// NewVectorizerResource serializes a vectorizer.
func NewVectorizerResource(v vectorizer.Vectorizer) *Resource {
	return NewResource(TypeVectorizer, resourceID(v.ID()), VectorizerAttributes{
		Source:     v.Source().String(),
		Target:     v.Target().String(),
		View:       v.View().String(),
		Queue:      v.Queue().String(),
		Trigger:    v.TriggerName(),
		PrimaryKey: v.PrimaryKey().Names(),
		Config:     v.Config(),
		CreatedAt:  NewDateTime(v.CreatedAt()),
	})
}

// NewVectorizerListResponse serializes a list of vectorizers.
func NewVectorizerListResponse(vs []vectorizer.Vectorizer) *Document {
	resources := make([]*Resource, 0, len(vs))
	for _, v := range vs {
		resources = append(resources, NewVectorizerResource(v))
	}
	return NewListResponse(resources)
}

// NewStatusResource serializes a status row.
func NewStatusResource(s vectorizer.Status) *Resource {
	return NewResource(TypeVectorizerStatus, resourceID(s.ID), StatusAttributes{
		Source:       s.Source.String(),
		Target:       s.Target.String(),
		View:         s.View.String(),
		PendingItems: s.PendingItems,
	})
}

// NewStatusListResponse serializes the status view.
func NewStatusListResponse(rows []vectorizer.Status) *Document {
	resources := make([]*Resource, 0, len(rows))
	for _, s := range rows {
		resources = append(resources, NewStatusResource(s))
	}
	return NewListResponse(resources)
}

// NewPendingResource serializes a backlog count.
func NewPendingResource(id, pending int64, exact bool) *Resource {
	return NewResource(TypeQueuePending, resourceID(id), PendingAttributes{
		PendingItems: pending,
		Exact:        exact,
		Capped:       !exact && pending == vectorizer.BacklogSentinel,
	})
}

// NewExecutionResource serializes an executor result.
func NewExecutionResource(id int64, res embedding.Result) *Resource {
	return NewResource(TypeExecution, resourceID(id), ExecutionAttributes{
		Items:        res.Items,
		Chunks:       res.Chunks,
		PromptTokens: res.Usage.PromptTokens(),
		TotalTokens:  res.Usage.TotalTokens(),
		DurationMS:   res.Duration.Milliseconds(),
	})
}

// NewRunResource serializes a job run.
func NewRunResource(res service.RunResult) *Resource {
	attrs := RunAttributes{
		Backlog:    res.Backlog,
		FanOut:     res.FanOut,
		Processed:  res.Processed,
		Failed:     res.Failed,
		IndexBuilt: res.IndexBuilt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		attrs.Error = res.Err.Error()
	}
	return NewResource(TypeRun, resourceID(res.VectorizerID), attrs)
}
