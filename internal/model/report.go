package model

import (
	"fmt"
	"time"
)

// StatusReport is the combined view shown by the CLI, HTTP and chat surfaces
type StatusReport struct {
	GeneratedAt  time.Time          `json:"generated_at" yaml:"generated_at"`
	Knowledge    KnowledgeStats     `json:"knowledge" yaml:"knowledge"`
	Verification VerificationStats  `json:"verification" yaml:"verification"`
	Learning     LearningStats      `json:"learning" yaml:"learning"`
	Improvement  ImprovementStats   `json:"improvement" yaml:"improvement"`
	Session      SessionStats       `json:"session" yaml:"session"`
	Performance  PerformanceMetrics `json:"performance" yaml:"performance"`
}

// SessionStats is the self-modification session counter
type SessionStats struct {
	Applied       int `json:"applied" yaml:"applied"`
	MaxPerSession int `json:"max_per_session" yaml:"max_per_session"`
}

// Headline is the one-line presence string ("Learned N things | M verified")
func (r StatusReport) Headline() string {
	return fmt.Sprintf("Learned %d things | %d verified", r.Knowledge.Total, r.Knowledge.Verified)
}

// PerformanceMetrics are aggregate traffic measurements used by the periodic check
type PerformanceMetrics struct {
	ResponseTimeAvg   float64  `json:"response_time_avg" yaml:"response_time_avg"` // seconds
	AccuracyRate      float64  `json:"accuracy_rate" yaml:"accuracy_rate"`
	UserSatisfaction  float64  `json:"user_satisfaction" yaml:"user_satisfaction"`
	KnowledgeCoverage float64  `json:"knowledge_coverage" yaml:"knowledge_coverage"`
	ErrorRate         float64  `json:"error_rate" yaml:"error_rate"`
	Samples           int64    `json:"samples" yaml:"samples"`
	Signals           []Signal `json:"signals,omitempty" yaml:"signals,omitempty"`
}

// Signal is a diagnostic derived from performance metrics, with its inputs
type Signal struct {
	Type        SignalType     `json:"type" yaml:"type"`
	Severity    SignalSeverity `json:"severity" yaml:"severity"`
	Description string         `json:"description" yaml:"description"`
	Data        map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// SignalType classifies a performance signal
type SignalType string

const (
	SignalResponseTime  SignalType = "response_time"
	SignalAccuracy      SignalType = "accuracy"
	SignalSatisfaction  SignalType = "user_satisfaction"
	SignalKnowledgeGaps SignalType = "knowledge_gaps"
	SignalErrorRate     SignalType = "error_rate"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
