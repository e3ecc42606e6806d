package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/ranger/internal/model"
)

// mockLearner implements Learner
type mockLearner struct {
	mu      sync.Mutex
	failOn  map[string]bool
	learned []string
}

func (m *mockLearner) Learn(ctx context.Context, topic string) (*model.KnowledgeRecord, error) {
	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[topic] {
		return nil, errors.New("learn error")
	}
	m.learned = append(m.learned, topic)
	return &model.KnowledgeRecord{
		ID:    int64(len(m.learned)),
		Claim: model.KnowledgeClaim{Topic: topic, Source: model.SourceWebSearch},
	}, nil
}

func writeTopics(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topics.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchLearner_LearnTopics(t *testing.T) {
	learner := &mockLearner{}
	batch := NewBatchLearner(learner, 2)

	topics := []string{"eiffel tower", "photosynthesis", "jupiter"}
	results := batch.LearnTopics(context.Background(), topics)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var got []string
	for _, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Topic, res.Error)
			continue
		}
		if res.Record == nil {
			t.Errorf("expected record for %s", res.Topic)
			continue
		}
		got = append(got, res.Record.Claim.Topic)
	}

	sort.Strings(got)
	want := []string{"eiffel tower", "jupiter", "photosynthesis"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected topics %v, got %v", want, got)
		}
	}
}

func TestBatchLearner_LearnTopics_Error(t *testing.T) {
	learner := &mockLearner{failOn: map[string]bool{"broken": true}}
	batch := NewBatchLearner(learner, 2)

	results := batch.LearnTopics(context.Background(), []string{"broken", "fine"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	failed := 0
	for _, res := range results {
		if res.GetError() != nil {
			failed++
			if res.Topic != "broken" {
				t.Errorf("unexpected failure for %s", res.Topic)
			}
			if res.Record != nil {
				t.Error("expected nil record on error")
			}
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
}

func TestBatchLearner_LearnTopics_Empty(t *testing.T) {
	batch := NewBatchLearner(&mockLearner{}, 2)

	results := batch.LearnTopics(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchLearner_LearnFile(t *testing.T) {
	path := writeTopics(t, "mars\nvenus\n# comment\n\nmars\nmercury\n")

	learner := &mockLearner{}
	batch := NewBatchLearner(learner, 3)

	results, err := batch.LearnFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LearnFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchLearner_LearnFile_NonExistent(t *testing.T) {
	batch := NewBatchLearner(&mockLearner{}, 2)

	if _, err := batch.LearnFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestReadLinesFromFile(t *testing.T) {
	path := writeTopics(t, "black holes\n# comment\nquantum computing\n   \n  coral reefs   ")

	lines, err := ReadLinesFromFile(path)
	if err != nil {
		t.Fatalf("ReadLinesFromFile failed: %v", err)
	}

	expected := []string{"black holes", "quantum computing", "coral reefs"}
	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %d", len(expected), len(lines))
	}
	for i, line := range lines {
		if line != expected[i] {
			t.Errorf("expected %q at index %d, got %q", expected[i], i, line)
		}
	}
}

func TestReadLinesFromFile_Deduplication(t *testing.T) {
	path := writeTopics(t, "volcanoes\nvolcanoes\n")

	lines, err := ReadLinesFromFile(path)
	if err != nil {
		t.Fatalf("ReadLinesFromFile failed: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("expected 1 line after deduplication, got %d", len(lines))
	}
}

func TestLearnResult_GetError(t *testing.T) {
	r1 := &LearnResult{Topic: "tides"}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("learn failed")
	r2 := &LearnResult{Topic: "tides", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
