// Package store persists knowledge records, their verification and consolidation audit
// trail, conversation analyses and learning events in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
)

// foldFunc lowercases with Go's Unicode tables. SQLite's own lower() only folds ASCII,
// so searches compare fold(column) against a query lowered the same way.
const foldFunc = "fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, fold)
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the knowledge database. Writes are serialized; reads run concurrently.
type Store struct {
	db      *sql.DB
	path    string
	mu      sync.Mutex
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string, logger *zap.Logger, m *metrics.Metrics) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", model.ErrStorageUnavailable, err)
	}

	s := &Store{
		db:      db,
		path:    path,
		now:     time.Now,
		logger:  logging.OrNop(logger).Named("store"),
		metrics: m,
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS knowledge (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'conversation',
			extraction_method TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			verified INTEGER NOT NULL DEFAULT 0,
			verification_confidence REAL NOT NULL DEFAULT 0,
			polarity REAL NOT NULL DEFAULT 0,
			subjectivity REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_accessed_at TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			superseded_by INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_topic ON knowledge(topic)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_verified ON knowledge(verified, topic, confidence)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge(created_at)`,
		`CREATE TABLE IF NOT EXISTS verifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_id INTEGER NOT NULL REFERENCES knowledge(id),
			verification_method TEXT NOT NULL,
			is_verified INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			sources TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_knowledge ON verifications(knowledge_id, id)`,
		`CREATE TABLE IF NOT EXISTS consolidations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			survivor_id INTEGER NOT NULL,
			original_ids TEXT NOT NULL,
			consolidated_content TEXT NOT NULL,
			consolidation_method TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_analysis (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			polarity REAL NOT NULL DEFAULT 0,
			subjectivity REAL NOT NULL DEFAULT 0,
			emotion TEXT NOT NULL DEFAULT 'neutral',
			topics TEXT NOT NULL DEFAULT '[]',
			keywords TEXT NOT NULL DEFAULT '[]',
			message_length INTEGER NOT NULL DEFAULT 0,
			word_count INTEGER NOT NULL DEFAULT 0,
			has_question INTEGER NOT NULL DEFAULT 0,
			has_command INTEGER NOT NULL DEFAULT 0,
			has_mention INTEGER NOT NULL DEFAULT 0,
			complexity REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_channel ON conversation_analysis(channel_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_user ON conversation_analysis(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS learning_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_learning_type ON learning_events(type)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %w", model.ErrStorageUnavailable, err)
		}
	}
	return nil
}

// unavailable wraps a database error so callers can match ErrStorageUnavailable
func (s *Store) unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", model.ErrStorageUnavailable, op, err)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// likePattern builds a case-insensitive substring LIKE pattern for a folded column
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	return "%" + escaped + "%"
}
