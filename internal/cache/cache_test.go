package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/metrics"
)

func TestKey(t *testing.T) {
	a := Key("page", "https://en.wikipedia.org/wiki/Paris")
	b := Key("search", "https://en.wikipedia.org/wiki/Paris")

	assert.True(t, strings.HasPrefix(a, "ranger:v1:page:"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Key("page", "https://en.wikipedia.org/wiki/Paris"))
	assert.NotEqual(t, Key("search", "ab", "c"), Key("search", "a", "bc"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	value := []byte("paris")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	got[1] = 'X'

	again, _ := c.Get("k")
	assert.Equal(t, "paris", string(again))
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	require.NoError(t, c.Set(Key("page", "x"), []byte("fresh"), 0))
	require.NoError(t, c.Set(Key("page", "y"), []byte("stale"), time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	got, ok := c.Get(Key("page", "x"))
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)

	_, ok = c.Get(Key("page", "y"))
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "expired entry is removed on read")
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	assert.ErrorIs(t, c.Delete("missing"), errNotCached)
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()

	first := NewLayeredCache(time.Minute, dir, time.Hour, nil)
	require.NoError(t, first.Set("k", []byte("v"), 0))

	// A new process has an empty memory layer
	second := NewLayeredCache(time.Minute, dir, time.Hour, nil)
	got, ok := second.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	_, ok = second.memory.Get("k")
	assert.True(t, ok)
}

func TestLayeredCache_MemoryOnly(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", 0, nil)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, ok := c.Get("k")
	assert.True(t, ok)

	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Clear())
}

func TestDiskCache_Prune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewDiskCache(dir, time.Hour)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(Key("page", "fresh"), []byte("a"), 2*time.Hour))
	require.NoError(t, c.Set(Key("page", "stale"), []byte("b"), 30*time.Minute))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken"+diskExt), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))

	now = now.Add(time.Hour)
	removed, err := c.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := c.Get(Key("page", "fresh"))
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestDiskCache_PruneMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	removed, err := c.Prune()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDiskCache_KeyMismatch(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	require.NoError(t, c.Set("a:b", []byte("v"), 0))

	// "a_b" maps to the same file name as "a:b"
	_, ok := c.Get("a_b")
	assert.False(t, ok)
}

func TestLayeredCache_ReportsLayer(t *testing.T) {
	m := metrics.New()
	dir := t.TempDir()

	require.NoError(t, NewLayeredCache(time.Minute, dir, time.Hour, nil).Set("k", []byte("v"), 0))

	c := NewLayeredCache(time.Minute, dir, time.Hour, m)
	_, _ = c.Get("k")       // disk, then promoted
	_, _ = c.Get("k")       // memory
	_, _ = c.Get("missing") // miss

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues(LayerDisk)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues(LayerMemory)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues(LayerMiss)))

	removed, err := c.Prune()
	require.NoError(t, err)
	assert.Zero(t, removed)
}
