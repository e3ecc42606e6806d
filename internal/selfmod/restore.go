package selfmod

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/model"
)

const (
	restorePointPrefix = "restore_point_"
	metadataFile       = "metadata.json"
)

// CreateRestorePoint copies every allow-listed file under the root into a new
// restore point directory with a metadata.json descriptor
func (e *Engine) CreateRestorePoint(description string) (*model.RestorePoint, error) {
	files, err := e.allowListedFiles()
	if err != nil {
		return nil, err
	}

	now := e.now()
	id := uuid.New().String()
	if description == "" {
		description = "Restore point " + now.Format("2006-01-02 15:04:05")
	}
	dir := filepath.Join(e.backupDir, fmt.Sprintf("%s%s_%s", restorePointPrefix, now.Format("20060102_150405"), id[:8]))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create restore point: %w", err)
	}

	for _, rel := range files {
		if err := copyFile(filepath.Join(e.root, filepath.FromSlash(rel)), filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}

	rp := &model.RestorePoint{
		ID:                id,
		Dir:               dir,
		Timestamp:         now,
		Description:       description,
		Files:             files,
		ModificationCount: e.Applied(),
	}
	data, err := json.MarshalIndent(rp, "", "  ")
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write restore metadata: %w", err)
	}

	e.logger.Info("created restore point",
		zap.String("id", id),
		zap.String("dir", dir),
		zap.Int("files", len(files)))
	return rp, nil
}

// ListRestorePoints returns restore points, newest first
func (e *Engine) ListRestorePoints() ([]model.RestorePoint, error) {
	entries, err := os.ReadDir(e.backupDir)
	if os.IsNotExist(err) {
		return []model.RestorePoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	points := []model.RestorePoint{}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), restorePointPrefix) {
			continue
		}
		dir := filepath.Join(e.backupDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, metadataFile))
		if err != nil {
			e.logger.Warn("restore point without metadata", zap.String("dir", dir))
			continue
		}
		var rp model.RestorePoint
		if err := json.Unmarshal(data, &rp); err != nil {
			e.logger.Warn("unreadable restore point metadata", zap.String("dir", dir), zap.Error(err))
			continue
		}
		rp.Dir = dir
		points = append(points, rp)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.After(points[j].Timestamp)
	})
	return points, nil
}

// RestoreTo copies the files of a restore point back into the root. id may be the
// full id or a unique prefix of it.
func (e *Engine) RestoreTo(id string) (*model.RestorePoint, error) {
	if id == "" {
		return nil, model.Reject("restore point id is required", nil)
	}
	points, err := e.ListRestorePoints()
	if err != nil {
		return nil, err
	}

	var match *model.RestorePoint
	for i := range points {
		if !strings.HasPrefix(points[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, model.Reject("restore point id is ambiguous", map[string]any{"id": id})
		}
		match = &points[i]
	}
	if match == nil {
		return nil, model.Reject("restore point not found", map[string]any{"id": id})
	}

	for _, rel := range match.Files {
		path, clean, err := e.resolve(filepath.FromSlash(rel))
		if err != nil || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, model.Reject("restore point file escapes the root", map[string]any{"file": rel})
		}
		lock := e.lockFor(path)
		lock.Lock()
		err = copyFile(filepath.Join(match.Dir, filepath.FromSlash(clean)), path)
		lock.Unlock()
		if err != nil {
			return nil, err
		}
	}

	e.logger.Info("restored to restore point", zap.String("id", match.ID), zap.Int("files", len(match.Files)))
	return match, nil
}

// allowListedFiles walks the root for regular files the policy allows,
// skipping the backup directory and hidden directories
func (e *Engine) allowListedFiles() ([]string, error) {
	policy := e.policy.Load()
	files := []string{}

	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != e.root && (path == e.backupDir || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); policy.Allowed(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list allow-listed files: %w", err)
	}
	return files, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
