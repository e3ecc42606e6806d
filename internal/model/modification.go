package model

import (
	"fmt"
	"time"
)

// Kind is the structural edit a Modification performs
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAddFunction
	KindModifyFunction
	KindAddImport
	KindAddClass
	KindModifyClass
)

var kindNames = map[Kind]string{
	KindAddFunction:    "add_function",
	KindModifyFunction: "modify_function",
	KindAddImport:      "add_import",
	KindAddClass:       "add_class",
	KindModifyClass:    "modify_class",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a wire name into a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown modification kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Modification is a proposed structural edit to an allow-listed source file
type Modification struct {
	TargetFile  string `json:"target_file"`
	Kind        Kind   `json:"kind"`
	Payload     string `json:"payload"`
	Description string `json:"description,omitempty"`
}

// BackupRecord points at a whole-file snapshot taken before an edit
type BackupRecord struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	Timestamp    time.Time `json:"timestamp"`
}

// HistoryEntry is one successfully applied modification
type HistoryEntry struct {
	Modification Modification `json:"modification"`
	Backup       BackupRecord `json:"backup"`
	AppliedAt    time.Time    `json:"applied_at"`
}

// RestorePoint bundles copies of every allow-listed file
type RestorePoint struct {
	ID                string    `json:"id"`
	Dir               string    `json:"-"`
	Timestamp         time.Time `json:"timestamp"`
	Description       string    `json:"description"`
	Files             []string  `json:"files"`
	ModificationCount int       `json:"modification_count"`
}

// Priority orders improvement proposals
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Proposal is an improvement suggestion, optionally carrying a code change
type Proposal struct {
	Type         string        `json:"type"`
	Description  string        `json:"description"`
	Priority     Priority      `json:"priority"`
	Modification *Modification `json:"modification,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ImprovementStats summarizes advisor activity
type ImprovementStats struct {
	Checks             int       `json:"total_improvements" yaml:"total_improvements"`
	Pending            int       `json:"pending_suggestions" yaml:"pending_suggestions"`
	LastCheck          time.Time `json:"last_improvement_check" yaml:"last_improvement_check"`
	IntervalHours      float64   `json:"improvement_interval_hours" yaml:"improvement_interval_hours"`
	AppliedThisSession int       `json:"applied_this_session" yaml:"applied_this_session"`
}
