package selfmod

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/model"
)

const backupExt = ".bak"

// createBackup snapshots the whole file as {stem}_{YYYYMMDD_HHMMSS}.bak.
// A second snapshot of the same file within one second gets a numeric suffix.
func (e *Engine) createBackup(path string, data []byte, mode os.FileMode) (model.BackupRecord, error) {
	if err := os.MkdirAll(e.backupDir, 0755); err != nil {
		return model.BackupRecord{}, fmt.Errorf("create backup dir: %w", err)
	}

	now := e.now()
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s_%s", stem, now.Format("20060102_150405"))

	backupPath := filepath.Join(e.backupDir, name+backupExt)
	for i := 1; ; i++ {
		f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
		if os.IsExist(err) {
			backupPath = filepath.Join(e.backupDir, fmt.Sprintf("%s_%d%s", name, i, backupExt))
			continue
		}
		if err != nil {
			return model.BackupRecord{}, fmt.Errorf("create backup: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(backupPath)
			return model.BackupRecord{}, fmt.Errorf("write backup: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(backupPath)
			return model.BackupRecord{}, fmt.Errorf("close backup: %w", err)
		}
		break
	}

	e.logger.Info("created backup", zap.String("file", path), zap.String("backup", backupPath))
	return model.BackupRecord{OriginalPath: path, BackupPath: backupPath, Timestamp: now}, nil
}

// restoreBackup copies a backup over its original file
func restoreBackup(rec model.BackupRecord, mode os.FileMode) error {
	data, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := os.WriteFile(rec.OriginalPath, data, mode.Perm()); err != nil {
		return fmt.Errorf("restore %s: %w", rec.OriginalPath, err)
	}
	return nil
}

// PruneBackups removes all but the newest keep file backups and returns how many were
// removed. Restore points are never pruned.
func (e *Engine) PruneBackups(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	entries, err := os.ReadDir(e.backupDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	type backupFile struct {
		name    string
		modTime time.Time
	}
	var files []backupFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != backupExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{name: entry.Name(), modTime: info.ModTime()})
	}
	if len(files) <= keep {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].name > files[j].name
	})

	removed := 0
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(e.backupDir, f.name)); err != nil {
			return removed, fmt.Errorf("remove backup: %w", err)
		}
		removed++
	}

	e.logger.Info("pruned backups", zap.Int("removed", removed), zap.Int("kept", keep))
	return removed, nil
}
