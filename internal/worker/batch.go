package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

// Learner learns one topic from the web and stores the result
type Learner interface {
	Learn(ctx context.Context, topic string) (*model.KnowledgeRecord, error)
}

// LearnJob learns a single topic
type LearnJob struct {
	Topic   string
	Learner Learner
}

// Execute runs the learner for the job's topic
func (j *LearnJob) Execute(ctx context.Context) Result {
	record, err := j.Learner.Learn(ctx, j.Topic)
	return &LearnResult{
		Topic:  j.Topic,
		Record: record,
		Error:  err,
	}
}

// LearnResult is the outcome of one LearnJob. Record is nil when nothing was stored.
type LearnResult struct {
	Topic  string
	Record *model.KnowledgeRecord
	Error  error
}

// GetError returns the learning error, if any
func (r *LearnResult) GetError() error {
	return r.Error
}

// BatchLearner learns many topics concurrently
type BatchLearner struct {
	learner     Learner
	concurrency int
}

// NewBatchLearner creates a batch learner running at most concurrency topics at once
func NewBatchLearner(learner Learner, concurrency int) *BatchLearner {
	return &BatchLearner{
		learner:     learner,
		concurrency: concurrency,
	}
}

// LearnTopics learns every topic and returns one result per submitted topic.
// Results follow completion order, not input order.
func (b *BatchLearner) LearnTopics(ctx context.Context, topics []string) []*LearnResult {
	if len(topics) == 0 {
		return []*LearnResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, topic := range topics {
		if !pool.Submit(&LearnJob{Topic: topic, Learner: b.learner}) {
			break
		}
	}

	results := pool.Wait()

	learned := make([]*LearnResult, len(results))
	for i, result := range results {
		learned[i] = result.(*LearnResult)
	}

	return learned
}

// LearnFile reads topics from a file and learns them concurrently
func (b *BatchLearner) LearnFile(ctx context.Context, filePath string) ([]*LearnResult, error) {
	topics, err := ReadLinesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read topics: %w", err)
	}

	return b.LearnTopics(ctx, topics), nil
}

// ReadLinesFromFile reads one entry per line, skipping blanks, # comments and duplicates
func ReadLinesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
