package selfmod

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/model"
)

const targetRel = "extensions/improvements.go"

const targetSrc = `// Package extensions holds runtime improvements.
package extensions

import "strings"

// Greeting returns the greeting.
func Greeting() string {
	return strings.ToUpper("hello")
}

func Nested(n int) int {
	if n > 0 {
		n--

		return n
	}
	return 0
}

type Tracker struct {
	Count int
}

func (t *Tracker) Name() string {
	return "tracker"
}
`

func newTestEngine(t *testing.T, mutate func(*model.SelfModConfig)) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "extensions"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, targetRel), []byte(targetSrc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))

	cfg := model.SelfModConfig{
		Enabled:        true,
		Root:           root,
		BackupDir:      "backups",
		AllowList:      []string{"extensions/*.go"},
		MaxPerSession:  10,
		SafetyPatterns: model.DefaultSafetyPatterns(),
		KeepBackups:    50,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)
	return e, root
}

func readTarget(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, targetRel))
	require.NoError(t, err)
	return string(data)
}

func backups(t *testing.T, root string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "backups", "*.bak"))
	require.NoError(t, err)
	return matches
}

func requireParses(t *testing.T, src string) {
	t.Helper()
	_, err := parser.ParseFile(token.NewFileSet(), "", src, 0)
	require.NoError(t, err, src)
}

func addFunc(name string) model.Modification {
	return model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindAddFunction,
		Payload:    fmt.Sprintf("func %s() int {\n\treturn 1\n}", name),
	}
}

func TestEngine_Validate(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	tests := []struct {
		desc string
		mod  model.Modification
		ok   bool
	}{
		{"valid", addFunc("Valid"), true},
		{"missing payload", model.Modification{TargetFile: targetRel, Kind: model.KindAddFunction}, false},
		{"missing target", model.Modification{Kind: model.KindAddFunction, Payload: "func A() {}"}, false},
		{"unknown kind", model.Modification{TargetFile: targetRel, Payload: "func A() {}"}, false},
		{"out of range kind", model.Modification{TargetFile: targetRel, Kind: model.Kind(42), Payload: "func A() {}"}, false},
		{"not allow-listed", model.Modification{TargetFile: "main.go", Kind: model.KindAddFunction, Payload: "func A() {}"}, false},
		{"escapes root", model.Modification{TargetFile: "../extensions/improvements.go", Kind: model.KindAddFunction, Payload: "func A() {}"}, false},
		{"nested dir not matched", model.Modification{TargetFile: "extensions/sub/x.go", Kind: model.KindAddFunction, Payload: "func A() {}"}, false},
		{"missing file", model.Modification{TargetFile: "extensions/missing.go", Kind: model.KindAddFunction, Payload: "func A() {}"}, false},
		{"exec blocked", model.Modification{TargetFile: targetRel, Kind: model.KindAddFunction, Payload: "func A() { exec.Command(\"ls\").Run() }"}, false},
		{"unsafe import blocked", model.Modification{TargetFile: targetRel, Kind: model.KindAddImport, Payload: `"unsafe"`}, false},
		{"file write blocked", model.Modification{TargetFile: targetRel, Kind: model.KindAddFunction, Payload: "func A() { os.WriteFile(\"x\", nil, 0644) }"}, false},
		{"function already declared", addFunc("Greeting"), false},
		{"type already declared", model.Modification{TargetFile: targetRel, Kind: model.KindAddClass, Payload: "type Tracker struct{}"}, false},
		{"method name is free as a function", addFunc("Name"), true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := e.Validate(tt.mod)
			assert.Equal(t, tt.ok, err == nil, "err = %v", err)
			assert.Equal(t, tt.ok, e.Check(tt.mod))
			if !tt.ok {
				assert.True(t, errors.Is(err, model.ErrRejectedInput))
			}
		})
	}
}

func TestEngine_BlockedPayloadNeverApplied(t *testing.T) {
	e, root := newTestEngine(t, nil)

	mod := model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindAddFunction,
		Payload:    "func Run() {\n\tsyscall.Exit(1)\n}",
	}
	_, err := e.Apply(mod)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRejectedInput))

	var v *model.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, `syscall\.`, v.Details["pattern"])

	assert.Equal(t, targetSrc, readTarget(t, root))
	assert.Empty(t, backups(t, root))
	assert.Zero(t, e.Applied())
}

func TestEngine_AddFunction(t *testing.T) {
	e, root := newTestEngine(t, nil)

	entry, err := e.Apply(addFunc("Answer"))
	require.NoError(t, err)

	got := readTarget(t, root)
	requireParses(t, got)
	assert.True(t, strings.HasPrefix(got, targetSrc))
	assert.Contains(t, got, "func Answer() int {")

	assert.Equal(t, 1, e.Applied())
	require.Len(t, e.History(), 1)
	assert.Equal(t, model.KindAddFunction, e.History()[0].Modification.Kind)

	assert.Regexp(t, regexp.MustCompile(`^improvements_\d{8}_\d{6}\.bak$`), filepath.Base(entry.Backup.BackupPath))
	backup, err := os.ReadFile(entry.Backup.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, targetSrc, string(backup))
}

func TestEngine_AddClass(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindAddClass,
		Payload:    "type Cache struct {\n\tItems map[string]string\n}",
	})
	require.NoError(t, err)

	got := readTarget(t, root)
	requireParses(t, got)
	assert.Contains(t, got, "type Cache struct {")
}

func TestEngine_AddExistingDeclarationRejected(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(addFunc("Nested"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
	assert.Contains(t, err.Error(), "Nested is already declared")

	assert.Equal(t, targetSrc, readTarget(t, root))
	assert.Empty(t, backups(t, root))
	assert.Zero(t, e.Applied())
}

func TestEngine_ModifyFunction(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindModifyFunction,
		Payload:    "// Nested clamps n at zero.\nfunc Nested(n int) int {\n\treturn max(n, 0)\n}",
	})
	require.NoError(t, err)

	got := readTarget(t, root)
	requireParses(t, got)
	assert.Contains(t, got, "// Nested clamps n at zero.\nfunc Nested(n int) int {\n\treturn max(n, 0)\n}")
	assert.NotContains(t, got, "if n > 0")
	assert.Contains(t, got, "type Tracker struct", "following declarations survive")
	assert.Contains(t, got, "func (t *Tracker) Name() string")

	// The doc comment is replaced along with the function
	_, err = e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindModifyFunction,
		Payload:    "func Greeting() string {\n\treturn \"hi\"\n}",
	})
	require.NoError(t, err)
	got = readTarget(t, root)
	assert.NotContains(t, got, "// Greeting returns the greeting.")
	assert.Contains(t, got, "return \"hi\"")
}

func TestEngine_ModifyMethod(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindModifyFunction,
		Payload:    "func (t *Tracker) Name() string {\n\treturn \"renamed\"\n}",
	})
	require.NoError(t, err)

	got := readTarget(t, root)
	requireParses(t, got)
	assert.Contains(t, got, `return "renamed"`)
	assert.NotContains(t, got, `return "tracker"`)
}

func TestEngine_ModifyClass(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindModifyClass,
		Payload:    "type Tracker struct {\n\tCount int\n\tLabel string\n}",
	})
	require.NoError(t, err)

	got := readTarget(t, root)
	requireParses(t, got)
	assert.Contains(t, got, "Label string")
	assert.Equal(t, 1, strings.Count(got, "type Tracker struct"))
}

func TestEngine_ModifyMissingDeclaration(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindModifyFunction,
		Payload:    "func Missing() {}",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
	assert.Equal(t, targetSrc, readTarget(t, root))
	assert.Empty(t, backups(t, root))
	assert.Zero(t, e.Applied())
}

func TestEngine_AddImport(t *testing.T) {
	e, root := newTestEngine(t, nil)

	_, err := e.Apply(model.Modification{TargetFile: targetRel, Kind: model.KindAddImport, Payload: "sort"})
	require.NoError(t, err)

	got := readTarget(t, root)
	f, err := parser.ParseFile(token.NewFileSet(), "", got, parser.ImportsOnly)
	require.NoError(t, err)
	var paths []string
	for _, imp := range f.Imports {
		paths = append(paths, imp.Path.Value)
	}
	assert.Equal(t, []string{`"strings"`, `"sort"`}, paths)

	_, err = e.Apply(model.Modification{TargetFile: targetRel, Kind: model.KindAddImport, Payload: `import "strings"`})
	assert.True(t, errors.Is(err, model.ErrRejectedInput), "duplicate import")
}

func TestEngine_AddImportWithoutImports(t *testing.T) {
	e, root := newTestEngine(t, nil)
	plain := "// Package extensions holds runtime improvements.\npackage extensions\n\nfunc A() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "extensions", "plain.go"), []byte(plain), 0644))

	_, err := e.Apply(model.Modification{TargetFile: "extensions/plain.go", Kind: model.KindAddImport, Payload: `"fmt"`})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "extensions", "plain.go"))
	require.NoError(t, err)
	assert.Equal(t, "// Package extensions holds runtime improvements.\npackage extensions\n\nimport \"fmt\"\n\nfunc A() {}\n", string(data))
}

func TestEngine_RollbackOnSyntaxRegression(t *testing.T) {
	e, root := newTestEngine(t, nil)

	before, err := os.ReadFile(filepath.Join(root, targetRel))
	require.NoError(t, err)

	_, err = e.Apply(model.Modification{
		TargetFile: targetRel,
		Kind:       model.KindAddFunction,
		Payload:    "func broken( {",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSyntaxRegression))

	after, err := os.ReadFile(filepath.Join(root, targetRel))
	require.NoError(t, err)
	assert.Equal(t, before, after, "file restored byte for byte")
	assert.Zero(t, e.Applied())
	assert.Empty(t, e.History())
	assert.Len(t, backups(t, root), 1, "backup taken before the file was touched")
}

func TestEngine_QuotaExceeded(t *testing.T) {
	e, root := newTestEngine(t, nil)

	for i := 0; i < 10; i++ {
		_, err := e.Apply(addFunc(fmt.Sprintf("F%d", i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 10, e.Applied())
	backupCount := len(backups(t, root))
	assert.Equal(t, 10, backupCount, "same-second backups do not overwrite each other")
	before := readTarget(t, root)

	_, err := e.Apply(addFunc("F10"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded))
	assert.Equal(t, 10, e.Applied())
	assert.Len(t, backups(t, root), backupCount, "no backup for a rejected apply")
	assert.Equal(t, before, readTarget(t, root))

	e.Reset()
	assert.Zero(t, e.Applied())
	_, err = e.Apply(addFunc("F10"))
	require.NoError(t, err)
	assert.Len(t, e.History(), 11)
}

func TestEngine_ConcurrentApplySameFile(t *testing.T) {
	e, root := newTestEngine(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Apply(addFunc(fmt.Sprintf("C%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	got := readTarget(t, root)
	requireParses(t, got)
	for i := range errs {
		assert.Contains(t, got, fmt.Sprintf("func C%d() int", i))
	}
	assert.Equal(t, 5, e.Applied())
}

func TestEngine_Disabled(t *testing.T) {
	e, root := newTestEngine(t, func(c *model.SelfModConfig) { c.Enabled = false })

	_, err := e.Apply(addFunc("Nope"))
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
	assert.Equal(t, targetSrc, readTarget(t, root))
}

func TestEngine_RuntimePolicyUpdates(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	require.NoError(t, e.SetAllowList([]string{"main.go"}))
	assert.False(t, e.Check(addFunc("A")))
	assert.True(t, e.Check(model.Modification{TargetFile: "main.go", Kind: model.KindAddFunction, Payload: "func A() {}"}))

	require.NoError(t, e.SetAllowList([]string{"extensions/*.go"}))
	require.Error(t, e.AddSafetyPattern("("), "pattern must compile")

	mod := model.Modification{TargetFile: targetRel, Kind: model.KindAddFunction, Payload: "func P() { panic(\"x\") }"}
	assert.True(t, e.Check(mod))
	require.NoError(t, e.AddSafetyPattern(`panic\(`))
	require.NoError(t, e.AddSafetyPattern(`panic\(`))
	assert.False(t, e.Check(mod))
	assert.Equal(t, len(model.DefaultSafetyPatterns())+1, len(e.Policy().SafetyPatterns()))
}

func TestEngine_RestorePoints(t *testing.T) {
	e, root := newTestEngine(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "extensions", "other.go"), []byte("package extensions\n"), 0644))

	_, err := e.Apply(addFunc("Before"))
	require.NoError(t, err)
	snapshot := readTarget(t, root)

	rp, err := e.CreateRestorePoint("")
	require.NoError(t, err)
	assert.Equal(t, []string{"extensions/improvements.go", "extensions/other.go"}, rp.Files)
	assert.Equal(t, 1, rp.ModificationCount)
	assert.True(t, strings.HasPrefix(rp.Description, "Restore point "))
	assert.Regexp(t, regexp.MustCompile(`^restore_point_\d{8}_\d{6}_[0-9a-f]{8}$`), filepath.Base(rp.Dir))
	_, err = os.Stat(filepath.Join(rp.Dir, metadataFile))
	require.NoError(t, err)

	_, err = e.Apply(addFunc("After"))
	require.NoError(t, err)
	assert.NotEqual(t, snapshot, readTarget(t, root))

	points, err := e.ListRestorePoints()
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, rp.ID, points[0].ID)

	restored, err := e.RestoreTo(rp.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, rp.ID, restored.ID)
	assert.Equal(t, snapshot, readTarget(t, root))

	_, err = e.RestoreTo("does-not-exist")
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
}

func TestEngine_PruneBackups(t *testing.T) {
	e, root := newTestEngine(t, nil)

	for i := 0; i < 4; i++ {
		_, err := e.Apply(addFunc(fmt.Sprintf("P%d", i)))
		require.NoError(t, err)
	}
	_, err := e.CreateRestorePoint("keep me")
	require.NoError(t, err)

	removed, err := e.PruneBackups(1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Len(t, backups(t, root), 1)

	points, err := e.ListRestorePoints()
	require.NoError(t, err)
	assert.Len(t, points, 1)

	removed, err = e.PruneBackups(5)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPolicy_Allowed(t *testing.T) {
	p, err := NewPolicy([]string{"extensions/*.go", "handlers/commands.go"}, nil)
	require.NoError(t, err)

	assert.True(t, p.Allowed("extensions/a.go"))
	assert.True(t, p.Allowed("./extensions/a.go"))
	assert.True(t, p.Allowed("handlers/commands.go"))
	assert.False(t, p.Allowed("extensions/sub/a.go"))
	assert.False(t, p.Allowed("../extensions/a.go"))
	assert.False(t, p.Allowed("handlers/other.go"))

	_, err = NewPolicy(nil, []string{"("})
	assert.Error(t, err)

	empty, err := NewPolicy(nil, nil)
	require.NoError(t, err)
	assert.False(t, empty.Allowed("extensions/a.go"))
}

func TestEngine_Declarations(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	names, err := e.Declarations(targetRel)
	require.NoError(t, err)
	assert.Equal(t, []string{"Greeting", "Nested", "Tracker", "Tracker.Name"}, names)

	_, err = e.Declarations("main.go")
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
}
