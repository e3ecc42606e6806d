package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/model"
)

const knowledgeColumns = `id, topic, content, source, extraction_method, confidence, verified,
	verification_confidence, polarity, subjectivity, created_at, last_accessed_at,
	access_count, tags, metadata, COALESCE(superseded_by, 0)`

// queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Save persists a claim and, when present, its verification. v == nil stores the
// claim as never verified, which is distinct from a failed verification.
func (s *Store) Save(ctx context.Context, claim model.KnowledgeClaim, v *model.VerificationResult) (int64, error) {
	if strings.TrimSpace(claim.Content) == "" {
		return 0, model.Reject("claim content is empty", nil)
	}
	if claim.Topic == "" {
		claim.Topic = "unknown"
	}
	if claim.Source == "" {
		claim.Source = model.SourceConversation
	}

	tags := claim.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("encode tags: %w", err)
	}
	metadata := claim.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	var verified bool
	var verificationConfidence float64
	if v != nil {
		verified = v.IsVerified
		verificationConfidence = v.Confidence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.unavailable("begin save", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge (topic, content, source, extraction_method, confidence, verified,
			verification_confidence, polarity, subjectivity, created_at, last_accessed_at,
			access_count, tags, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, claim.Topic, claim.Content, string(claim.Source), string(claim.Method),
		model.ClampConfidence(claim.Confidence), boolToInt(verified), verificationConfidence,
		claim.Sentiment.Polarity, claim.Sentiment.Subjectivity, now, now,
		string(tagsJSON), string(metaJSON))
	if err != nil {
		return 0, s.unavailable("insert knowledge", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, s.unavailable("knowledge id", err)
	}

	if v != nil {
		if err := insertVerification(ctx, tx, id, *v, now); err != nil {
			return 0, s.unavailable("insert verification", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, s.unavailable("commit save", err)
	}

	s.logger.Info("stored knowledge",
		zap.Int64("id", id),
		zap.String("topic", claim.Topic),
		zap.String("source", string(claim.Source)),
		zap.Bool("verified", verified))
	return id, nil
}

func insertVerification(ctx context.Context, tx *sql.Tx, id int64, v model.VerificationResult, now string) error {
	sources := v.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	method := v.Method
	if method == "" {
		method = model.VerificationMethodWeb
	}
	created := now
	if !v.Timestamp.IsZero() {
		created = formatTime(v.Timestamp)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verifications (knowledge_id, verification_method, is_verified, confidence, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, method, boolToInt(v.IsVerified), v.Confidence, string(sourcesJSON), created)
	return err
}

// Search returns the best record whose topic or content contains query
// (case-insensitive), ranked by confidence, then verified, then access count.
// The hit's access count and last access time are updated. A miss returns nil, nil.
func (s *Store) Search(ctx context.Context, query string) (*model.KnowledgeRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.unavailable("begin search", err)
	}
	defer func() { _ = tx.Rollback() }()

	pattern := likePattern(query)
	rows, err := tx.QueryContext(ctx, `
		SELECT `+knowledgeColumns+`
		FROM knowledge
		WHERE superseded_by IS NULL
		  AND (fold(topic) LIKE ? ESCAPE '\' OR fold(content) LIKE ? ESCAPE '\')
		ORDER BY confidence DESC, verified DESC, access_count DESC, id ASC
		LIMIT 1
	`, pattern, pattern)
	if err != nil {
		return nil, s.unavailable("search knowledge", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, s.unavailable("search knowledge", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE knowledge SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?
	`, formatTime(now), rec.ID); err != nil {
		return nil, s.unavailable("touch knowledge", err)
	}
	if rec.Verification, err = latestVerification(ctx, tx, rec.ID); err != nil {
		return nil, s.unavailable("load verification", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.unavailable("commit search", err)
	}

	rec.AccessCount++
	rec.LastAccessedAt = parseTime(formatTime(now))
	return &rec, nil
}

// Find lists live records matching query in search order without touching access bookkeeping.
// An empty query lists every live record.
func (s *Store) Find(ctx context.Context, query string, limit int) ([]model.KnowledgeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `SELECT ` + knowledgeColumns + ` FROM knowledge WHERE superseded_by IS NULL`
	args := []any{}
	if query = strings.TrimSpace(query); query != "" {
		pattern := likePattern(query)
		q += ` AND (fold(topic) LIKE ? ESCAPE '\' OR fold(content) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	q += ` ORDER BY confidence DESC, verified DESC, access_count DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.unavailable("find knowledge", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, s.unavailable("find knowledge", err)
	}
	for i := range records {
		if records[i].Verification, err = latestVerification(ctx, s.db, records[i].ID); err != nil {
			return nil, s.unavailable("load verification", err)
		}
	}
	return records, nil
}

// Get returns a record by id, including superseded ones. A missing id returns nil, nil.
func (s *Store) Get(ctx context.Context, id int64) (*model.KnowledgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge WHERE id = ?`, id)
	if err != nil {
		return nil, s.unavailable("get knowledge", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, s.unavailable("get knowledge", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	if rec.Verification, err = latestVerification(ctx, s.db, rec.ID); err != nil {
		return nil, s.unavailable("load verification", err)
	}
	return &rec, nil
}

// Count returns the number of stored records, tombstones included
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM knowledge`)
}

// VerifiedCount returns the number of verified records
func (s *Store) VerifiedCount(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM knowledge WHERE verified = 1`)
}

func (s *Store) count(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, s.unavailable("count knowledge", err)
	}
	return n, nil
}

// Stats summarizes the knowledge table and refreshes the record gauge
func (s *Store) Stats(ctx context.Context) (model.KnowledgeStats, error) {
	stats := model.KnowledgeStats{TopTopics: []model.TopicAccess{}}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(verified), 0),
		       COALESCE(SUM(CASE WHEN confidence < 0.5 THEN 1 ELSE 0 END), 0),
		       AVG(confidence)
		FROM knowledge
	`).Scan(&stats.Total, &stats.Verified, &stats.Uncertain, &avg)
	if err != nil {
		return stats, s.unavailable("knowledge stats", err)
	}
	if avg.Valid {
		stats.AverageConfidence = math.Round(avg.Float64*1000) / 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, SUM(access_count) AS accesses
		FROM knowledge
		GROUP BY topic
		ORDER BY accesses DESC, topic ASC
		LIMIT 5
	`)
	if err != nil {
		return stats, s.unavailable("top topics", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var ta model.TopicAccess
		if err := rows.Scan(&ta.Topic, &ta.Accesses); err != nil {
			return stats, s.unavailable("scan top topics", err)
		}
		stats.TopTopics = append(stats.TopTopics, ta)
	}
	if err := rows.Err(); err != nil {
		return stats, s.unavailable("iterate top topics", err)
	}

	s.metrics.SetKnowledgeRecords(stats.Total)
	return stats, nil
}

// Export returns every record, newest first, in the export document shape
func (s *Store) Export(ctx context.Context) (*model.KnowledgeExport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, s.unavailable("export knowledge", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, s.unavailable("export knowledge", err)
	}

	export := &model.KnowledgeExport{
		ExportTimestamp: s.now().UTC(),
		TotalItems:      len(records),
		Knowledge:       make([]model.ExportedRecord, 0, len(records)),
	}
	for _, r := range records {
		export.Knowledge = append(export.Knowledge, model.ExportedRecord{
			Topic:                  r.Claim.Topic,
			Content:                r.Claim.Content,
			Source:                 r.Claim.Source,
			Confidence:             r.Claim.Confidence,
			Verified:               r.Verified,
			VerificationConfidence: r.VerificationConfidence,
			Timestamp:              r.CreatedAt,
			Tags:                   r.Claim.Tags,
			Metadata:               r.Claim.Metadata,
		})
	}
	return export, nil
}

func latestVerification(ctx context.Context, q queryer, id int64) (*model.VerificationResult, error) {
	var (
		v           model.VerificationResult
		isVerified  int
		sourcesJSON string
		created     string
	)
	err := q.QueryRowContext(ctx, `
		SELECT verification_method, is_verified, confidence, sources, created_at
		FROM verifications
		WHERE knowledge_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, id).Scan(&v.Method, &isVerified, &v.Confidence, &sourcesJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.IsVerified = isVerified == 1
	v.Timestamp = parseTime(created)
	if err := json.Unmarshal([]byte(sourcesJSON), &v.Sources); err != nil || v.Sources == nil {
		v.Sources = []string{}
	}
	return &v, nil
}

// scanRecords reads knowledgeColumns rows and closes rows
func scanRecords(rows *sql.Rows) ([]model.KnowledgeRecord, error) {
	defer func() { _ = rows.Close() }()

	result := make([]model.KnowledgeRecord, 0)
	for rows.Next() {
		var (
			r                      model.KnowledgeRecord
			source, method         string
			verified               int
			created, lastAccessed  string
			tagsJSON, metadataJSON string
		)
		if err := rows.Scan(
			&r.ID,
			&r.Claim.Topic,
			&r.Claim.Content,
			&source,
			&method,
			&r.Claim.Confidence,
			&verified,
			&r.VerificationConfidence,
			&r.Claim.Sentiment.Polarity,
			&r.Claim.Sentiment.Subjectivity,
			&created,
			&lastAccessed,
			&r.AccessCount,
			&tagsJSON,
			&metadataJSON,
			&r.SupersededBy,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}

		r.Claim.Source = model.ClaimSource(source)
		r.Claim.Method = model.ExtractionMethod(method)
		r.Verified = verified == 1
		r.CreatedAt = parseTime(created)
		r.LastAccessedAt = parseTime(lastAccessed)
		if err := json.Unmarshal([]byte(tagsJSON), &r.Claim.Tags); err != nil || r.Claim.Tags == nil {
			r.Claim.Tags = []string{}
		}
		if err := json.Unmarshal([]byte(metadataJSON), &r.Claim.Metadata); err != nil || r.Claim.Metadata == nil {
			r.Claim.Metadata = map[string]any{}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge: %w", err)
	}
	return result, nil
}
