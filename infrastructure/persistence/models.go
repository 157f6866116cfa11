package persistence

import (
	"encoding/json"
	"time"
)

// VectorizerModel represents a vectorizer registration row.
type VectorizerModel struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement:false"`
	SourceSchema string          `gorm:"column:source_schema;not null;index:idx_vectorizer_source"`
	SourceTable  string          `gorm:"column:source_table;not null;index:idx_vectorizer_source"`
	SourcePK     json.RawMessage `gorm:"column:source_pk;type:jsonb;not null"`
	TargetSchema string          `gorm:"column:target_schema;not null;uniqueIndex:idx_vectorizer_target"`
	TargetTable  string          `gorm:"column:target_table;not null;uniqueIndex:idx_vectorizer_target"`
	ViewSchema   string          `gorm:"column:view_schema;not null;uniqueIndex:idx_vectorizer_view"`
	ViewName     string          `gorm:"column:view_name;not null;uniqueIndex:idx_vectorizer_view"`
	QueueSchema  string          `gorm:"column:queue_schema;not null;uniqueIndex:idx_vectorizer_queue"`
	QueueTable   string          `gorm:"column:queue_table;not null;uniqueIndex:idx_vectorizer_queue"`
	TriggerName  string          `gorm:"column:trigger_name;not null"`
	Config       json.RawMessage `gorm:"column:config;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null"`
}

// TableName returns the unqualified table name used by AutoMigrate.
func (VectorizerModel) TableName() string { return "vectorizer" }

// VectorizerJobModel represents the background job of a vectorizer.
type VectorizerJobModel struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	VectorizerID int64      `gorm:"column:vectorizer_id;not null;uniqueIndex"`
	IntervalMS   int64      `gorm:"column:interval_ms;not null"`
	NextStart    time.Time  `gorm:"column:next_start;not null;index"`
	Active       bool       `gorm:"column:active;not null;default:true"`
	LastRunAt    *time.Time `gorm:"column:last_run_at"`
	LastError    string     `gorm:"column:last_error;not null;default:''"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
}

// TableName returns the unqualified table name used by AutoMigrate.
func (VectorizerJobModel) TableName() string { return "vectorizer_job" }
