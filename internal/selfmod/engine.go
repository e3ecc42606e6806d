// Package selfmod applies structural edits to an allow-listed set of Go source files
// under a per-session quota, with a whole-file backup before every edit and automatic
// rollback when the edited file no longer parses.
package selfmod

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
)

// Engine owns the modification session: the applied counter, the history log,
// the policy snapshot and one lock per target file.
type Engine struct {
	root          string
	backupDir     string
	enabled       bool
	maxPerSession int

	policyMu sync.Mutex
	policy   atomic.Pointer[Policy]

	mu       sync.Mutex
	applied  int
	inflight int
	history  []model.HistoryEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine builds an engine from configuration. A relative BackupDir is resolved
// against Root.
func NewEngine(cfg model.SelfModConfig, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = "backups"
	}
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(root, backupDir)
	}

	maxPerSession := cfg.MaxPerSession
	if maxPerSession <= 0 {
		maxPerSession = 10
	}

	policy, err := NewPolicy(cfg.AllowList, cfg.SafetyPatterns)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		root:          root,
		backupDir:     backupDir,
		enabled:       cfg.Enabled,
		maxPerSession: maxPerSession,
		locks:         make(map[string]*sync.Mutex),
		now:           time.Now,
		logger:        logging.OrNop(logger).Named("selfmod"),
		metrics:       m,
	}
	e.policy.Store(policy)
	return e, nil
}

// Validate checks a modification. It reads the target at most; it never executes
// or compiles the payload.
func (e *Engine) Validate(mod model.Modification) error {
	if strings.TrimSpace(mod.TargetFile) == "" || strings.TrimSpace(mod.Payload) == "" {
		return model.Reject("target file and payload are required", nil)
	}
	if mod.Kind == model.KindUnknown || mod.Kind.String() == "unknown" {
		return model.Reject("unknown modification kind", map[string]any{"kind": int(mod.Kind)})
	}

	policy := e.policy.Load()
	path, rel, err := e.resolve(mod.TargetFile)
	if err != nil || !policy.Allowed(rel) {
		return model.Reject("target file is not in the allow-list", map[string]any{
			"file":       mod.TargetFile,
			"allow_list": policy.AllowList(),
		})
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return model.Reject("target file does not exist", map[string]any{"file": rel})
	}

	if pattern, blocked := policy.Blocked(mod.Payload); blocked {
		return model.Reject("payload matches a safety pattern", map[string]any{"pattern": pattern})
	}

	if mod.Kind == model.KindAddFunction || mod.Kind == model.KindAddClass {
		src, err := os.ReadFile(path)
		if err != nil {
			return model.Reject("target file is not readable", map[string]any{"file": rel})
		}
		if err := checkRedeclared(src, mod.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether Validate accepts the modification
func (e *Engine) Check(mod model.Modification) bool {
	return e.Validate(mod) == nil
}

// Apply validates, backs up, edits and re-parses the target file. On any failure after
// the file was written the backup is restored, so the file is never left partially
// modified. The returned error wraps one of the model sentinels.
func (e *Engine) Apply(mod model.Modification) (model.HistoryEntry, error) {
	entry, err := e.apply(mod)
	if err != nil {
		e.metrics.ObserveModification(failureClass(err))
		e.logger.Warn("modification failed",
			zap.String("file", mod.TargetFile),
			zap.Stringer("kind", mod.Kind),
			zap.Error(err))
		return model.HistoryEntry{}, err
	}
	e.metrics.ObserveModification("success")
	e.logger.Info("modification applied",
		zap.String("file", mod.TargetFile),
		zap.Stringer("kind", mod.Kind),
		zap.String("backup", entry.Backup.BackupPath))
	return entry, nil
}

func (e *Engine) apply(mod model.Modification) (model.HistoryEntry, error) {
	if !e.enabled {
		return model.HistoryEntry{}, model.Reject("self-modification is disabled", nil)
	}
	if err := e.Validate(mod); err != nil {
		return model.HistoryEntry{}, err
	}
	if err := e.reserve(); err != nil {
		return model.HistoryEntry{}, err
	}

	applied := false
	defer func() { e.release(applied) }()

	path, _, _ := e.resolve(mod.TargetFile)
	lock := e.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("stat target: %w", err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("read target: %w", err)
	}

	edited, err := edit(original, mod.Kind, mod.Payload)
	if err != nil {
		return model.HistoryEntry{}, err
	}

	backup, err := e.createBackup(path, original, info.Mode())
	if err != nil {
		return model.HistoryEntry{}, err
	}

	if err := e.writeAndCheck(path, edited, info.Mode()); err != nil {
		if rerr := restoreBackup(backup, info.Mode()); rerr != nil {
			e.logger.Error("rollback failed", zap.String("file", path), zap.Error(rerr))
			return model.HistoryEntry{}, errors.Join(err, rerr)
		}
		e.logger.Info("rolled back modification", zap.String("file", path))
		return model.HistoryEntry{}, err
	}

	entry := model.HistoryEntry{Modification: mod, Backup: backup, AppliedAt: e.now()}
	e.mu.Lock()
	e.history = append(e.history, entry)
	e.mu.Unlock()
	applied = true
	return entry, nil
}

func (e *Engine) writeAndCheck(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode.Perm()); err != nil {
		return fmt.Errorf("write target: %w", err)
	}
	written, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("re-read target: %w", err)
	}
	return checkSyntax(path, written)
}

// reserve takes a quota slot before any file is touched
func (e *Engine) reserve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied+e.inflight >= e.maxPerSession {
		return &model.Violation{
			Kind:    model.ErrQuotaExceeded,
			Reason:  fmt.Sprintf("session limit of %d modifications reached", e.maxPerSession),
			Details: map[string]any{"applied": e.applied, "max": e.maxPerSession},
		}
	}
	e.inflight++
	return nil
}

func (e *Engine) release(applied bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if applied {
		e.applied++
	}
}

func (e *Engine) lockFor(path string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	return l
}

// resolve returns the absolute path and the slash-separated root-relative path
func (e *Engine) resolve(target string) (string, string, error) {
	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return "", "", err
	}
	return path, filepath.ToSlash(rel), nil
}

// Declarations lists the top-level function, method and type names of an allow-listed file
func (e *Engine) Declarations(target string) ([]string, error) {
	path, rel, err := e.resolve(target)
	if err != nil || !e.policy.Load().Allowed(rel) {
		return nil, model.Reject("target file is not in the allow-list", map[string]any{"file": target})
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}
	return topLevelNames(src)
}

// Applied returns the number of modifications applied this session
func (e *Engine) Applied() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}

// MaxPerSession returns the session quota
func (e *Engine) MaxPerSession() int {
	return e.maxPerSession
}

// Reset starts a new session; history is kept
func (e *Engine) Reset() {
	e.mu.Lock()
	e.applied = 0
	e.mu.Unlock()
	e.logger.Info("modification session reset")
}

// History returns the applied modifications, oldest first
func (e *Engine) History() []model.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.HistoryEntry(nil), e.history...)
}

// Policy returns the current policy snapshot
func (e *Engine) Policy() *Policy {
	return e.policy.Load()
}

// SetAllowList replaces the allow-list
func (e *Engine) SetAllowList(allowList []string) error {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	next, err := e.policy.Load().withAllowList(allowList)
	if err != nil {
		return err
	}
	e.policy.Store(next)
	e.logger.Info("updated allow-list", zap.Strings("allow_list", allowList))
	return nil
}

// AddSafetyPattern adds a payload blocklist pattern; it must compile
func (e *Engine) AddSafetyPattern(pattern string) error {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	next, err := e.policy.Load().withSafetyPattern(pattern)
	if err != nil {
		return err
	}
	e.policy.Store(next)
	e.logger.Info("added safety pattern", zap.String("pattern", pattern))
	return nil
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, model.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, model.ErrSyntaxRegression):
		return "syntax_regression"
	case errors.Is(err, model.ErrRejectedInput):
		return "rejected"
	default:
		return "failure"
	}
}
