package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/model"
)

const (
	consolidationMethod = "similarity_merge"

	// Other contents folded into a survivor, at most
	maxAdditional = 3
	// Contents this short are never folded in
	minAdditionalLen = 20
	confidenceBoost  = 0.1
)

type consolidationRow struct {
	id         int64
	topic      string
	content    string
	confidence float64
}

// Consolidate merges verified live records that share a topic. Rows are read sorted by
// (topic, confidence desc) and grouped in one linear pass; in each group of two or more the
// most confident record survives, absorbs up to three other distinct contents and gains
// +0.1 confidence, and the rest are tombstoned. The whole run is one transaction.
func (s *Store) Consolidate(ctx context.Context) (model.ConsolidationReport, error) {
	report := model.ConsolidationReport{Survivors: []int64{}}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, s.unavailable("begin consolidate", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic, content, confidence
		FROM knowledge
		WHERE verified = 1 AND superseded_by IS NULL
		ORDER BY topic, confidence DESC, id ASC
	`)
	if err != nil {
		return report, s.unavailable("select verified", err)
	}

	var items []consolidationRow
	for rows.Next() {
		var r consolidationRow
		if err := rows.Scan(&r.id, &r.topic, &r.content, &r.confidence); err != nil {
			_ = rows.Close()
			return report, s.unavailable("scan verified", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return report, s.unavailable("iterate verified", err)
	}
	_ = rows.Close()

	now := s.timestamp()
	start := 0
	for i := 1; i <= len(items); i++ {
		if i < len(items) && items[i].topic == items[start].topic {
			continue
		}
		if group := items[start:i]; len(group) > 1 {
			tombstoned, err := s.mergeGroup(ctx, tx, group, now)
			if err != nil {
				return model.ConsolidationReport{Survivors: []int64{}}, err
			}
			report.Groups++
			report.Survivors = append(report.Survivors, group[0].id)
			report.Tombstoned += tombstoned
		}
		start = i
	}

	if err := tx.Commit(); err != nil {
		return model.ConsolidationReport{Survivors: []int64{}}, s.unavailable("commit consolidate", err)
	}

	s.metrics.ObserveConsolidation(report.Tombstoned)
	if report.Groups > 0 {
		s.logger.Info("consolidated knowledge",
			zap.Int("groups", report.Groups),
			zap.Int("tombstoned", report.Tombstoned))
	}
	return report, nil
}

// mergeGroup folds group[1:] into group[0]; the group is sorted by confidence desc
func (s *Store) mergeGroup(ctx context.Context, tx *sql.Tx, group []consolidationRow, now string) (int, error) {
	survivor := group[0]

	merged := survivor.content
	var additional []string
	for _, other := range group[1:] {
		if len(additional) == maxAdditional {
			break
		}
		if len(other.content) > minAdditionalLen && !strings.Contains(merged, other.content) &&
			!containsAny(additional, other.content) {
			additional = append(additional, other.content)
		}
	}
	if len(additional) > 0 {
		merged += "\n\nAdditional information:\n" + strings.Join(additional, "\n")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE knowledge SET content = ?, confidence = ? WHERE id = ?`,
		merged, model.ClampConfidence(survivor.confidence+confidenceBoost), survivor.id); err != nil {
		return 0, s.unavailable("update survivor", err)
	}

	ids := make([]int64, 0, len(group))
	ids = append(ids, survivor.id)
	for _, other := range group[1:] {
		if _, err := tx.ExecContext(ctx, `
			UPDATE knowledge SET content = ?, verified = 0, superseded_by = ? WHERE id = ?
		`, model.Tombstone(survivor.id), survivor.id, other.id); err != nil {
			return 0, s.unavailable("tombstone record", err)
		}
		ids = append(ids, other.id)
	}

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO consolidations (survivor_id, original_ids, consolidated_content, consolidation_method, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, survivor.id, string(idsJSON), merged, consolidationMethod, now); err != nil {
		return 0, s.unavailable("record consolidation", err)
	}

	return len(group) - 1, nil
}

// ConsolidationCount returns how many merges have been recorded
func (s *Store) ConsolidationCount(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM consolidations`)
}

func containsAny(list []string, s string) bool {
	for _, v := range list {
		if strings.Contains(v, s) || strings.Contains(s, v) {
			return true
		}
	}
	return false
}
