package model

import (
	"fmt"
	"time"
)

// KnowledgeRecord is a persisted claim plus its latest verification and usage bookkeeping
type KnowledgeRecord struct {
	ID                     int64               `json:"id"`
	Claim                  KnowledgeClaim      `json:"claim"`
	Verification           *VerificationResult `json:"verification,omitempty"` // nil when never verified
	Verified               bool                `json:"verified"`
	VerificationConfidence float64             `json:"verification_confidence"`
	AccessCount            int64               `json:"access_count"`
	CreatedAt              time.Time           `json:"created_at"`
	LastAccessedAt         time.Time           `json:"last_accessed_at"`
	SupersededBy           int64               `json:"superseded_by,omitempty"` // Survivor id once tombstoned
}

// Superseded reports whether the record was folded into another during consolidation
func (r KnowledgeRecord) Superseded() bool {
	return r.SupersededBy != 0
}

// Tombstone is the content written into a superseded record
func Tombstone(survivorID int64) string {
	return fmt.Sprintf("[Consolidated into item %d]", survivorID)
}

// TopicAccess is one row of the most-accessed topics list
type TopicAccess struct {
	Topic    string `json:"topic" yaml:"topic"`
	Accesses int64  `json:"accesses" yaml:"accesses"`
}

// KnowledgeStats summarizes the knowledge table
type KnowledgeStats struct {
	Total             int64         `json:"total" yaml:"total"`
	Verified          int64         `json:"verified" yaml:"verified"`
	Uncertain         int64         `json:"uncertain" yaml:"uncertain"` // confidence < 0.5
	AverageConfidence float64       `json:"average_confidence" yaml:"average_confidence"`
	TopTopics         []TopicAccess `json:"top_topics" yaml:"top_topics"`
}

// ConsolidationReport describes one consolidate() run
type ConsolidationReport struct {
	Groups     int     `json:"groups"`     // Topic groups merged
	Survivors  []int64 `json:"survivors"`  // Ids that absorbed other records
	Tombstoned int     `json:"tombstoned"` // Records superseded in this run
}

// ExportedRecord is the JSON shape written by the knowledge export
type ExportedRecord struct {
	Topic                  string         `json:"topic"`
	Content                string         `json:"content"`
	Source                 ClaimSource    `json:"source"`
	Confidence             float64        `json:"confidence"`
	Verified               bool           `json:"verified"`
	VerificationConfidence float64        `json:"verification_confidence"`
	Timestamp              time.Time      `json:"timestamp"`
	Tags                   []string       `json:"tags"`
	Metadata               map[string]any `json:"metadata"`
}

// KnowledgeExport is the document written by the knowledge export
type KnowledgeExport struct {
	ExportTimestamp time.Time        `json:"export_timestamp"`
	TotalItems      int              `json:"total_items"`
	Knowledge       []ExportedRecord `json:"knowledge"`
}

// LearningEventType classifies a recorded learning signal
type LearningEventType string

const (
	EventUnknownCommand LearningEventType = "unknown_command"
	EventUserFeedback   LearningEventType = "user_feedback"
	EventKnowledgeGap   LearningEventType = "knowledge_gap"
)

// LearningStats counts recorded learning events
type LearningStats struct {
	Total  int64                       `json:"total_learning_data" yaml:"total_learning_data"`
	ByType map[LearningEventType]int64 `json:"by_type" yaml:"by_type"`
}
