package eventlog

import "time"

// Status is a RawEvent's position in the processing pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// RawEvent is one externally observed occurrence, staged durably before
// the processing pipeline (C5) transforms it into a KnowledgeChunk.
type RawEvent struct {
	ID          string
	Source      string // "slack", "jira", "git", ...
	EventType   string
	ExternalID  string // empty when the source has none
	Payload     map[string]any
	Metadata    map[string]any
	IngestedAt  time.Time
	ProcessedAt *time.Time
	Status      Status
}
