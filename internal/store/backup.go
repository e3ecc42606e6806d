package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// restoreOrder lists tables parents first; deletes run in reverse
var restoreOrder = []string{
	"knowledge",
	"verifications",
	"consolidations",
	"conversation_analysis",
	"learning_events",
}

// DefaultBackupName is the snapshot file name used when no path is given
func DefaultBackupName(t time.Time) string {
	return fmt.Sprintf("knowledge_backup_%s.db", t.Format("20060102_150405"))
}

// Backup writes a consistent snapshot of the database to path with VACUUM INTO.
// An empty path uses DefaultBackupName in the current directory; a path that is an
// existing directory receives a DefaultBackupName file.
func (s *Store) Backup(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = DefaultBackupName(s.now())
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultBackupName(s.now()))
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup target %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create backup dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO `+quoteLiteral(path)); err != nil {
		return "", s.unavailable("backup", err)
	}

	s.logger.Info("database backed up", zap.String("path", path))
	return path, nil
}

// Restore replaces every table's rows with the rows of a backup made by Backup,
// in one transaction. Tables missing from the backup are left empty.
func (s *Store) Restore(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ATTACH is per connection, so pin one for the whole restore
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.unavailable("restore conn", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE `+quoteLiteral(path)+` AS backup`); err != nil {
		return s.unavailable("attach backup", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `DETACH DATABASE backup`); err != nil {
			s.logger.Warn("detach backup failed", zap.Error(err))
		}
	}()

	present := make(map[string]bool)
	rows, err := conn.QueryContext(ctx, `SELECT name FROM backup.sqlite_master WHERE type = 'table'`)
	if err != nil {
		return s.unavailable("inspect backup", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return s.unavailable("inspect backup", err)
		}
		present[name] = true
	}
	_ = rows.Close()
	if !present["knowledge"] {
		return errors.New("backup has no knowledge table")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return s.unavailable("begin restore", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := len(restoreOrder) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, `DELETE FROM main.`+restoreOrder[i]); err != nil {
			return s.unavailable("clear "+restoreOrder[i], err)
		}
	}
	for _, table := range restoreOrder {
		if !present[table] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO main.`+table+` SELECT * FROM backup.`+table); err != nil {
			return s.unavailable("restore "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.unavailable("commit restore", err)
	}

	s.logger.Info("database restored", zap.String("path", path))
	return nil
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
