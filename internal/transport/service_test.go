package transport

import (
	"context"
	"sync"

	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/pipeline"
)

// fakeService records calls and returns canned results
type fakeService struct {
	mu sync.Mutex

	messages   []model.Message
	outcome    pipeline.Outcome
	processErr error

	knowledge map[string]*model.KnowledgeRecord
	askErr    error

	learned  *model.KnowledgeRecord
	learnErr error

	feedback []bool
	unknown  []string
	applied  []model.Proposal
	status   model.StatusReport
}

func (f *fakeService) ProcessMessage(_ context.Context, msg model.Message) (pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.outcome, f.processErr
}

func (f *fakeService) Ask(_ context.Context, query string) (pipeline.AskResult, error) {
	res := pipeline.AskResult{Query: query}
	if query == "" {
		return res, model.Reject("query is empty", nil)
	}
	if f.askErr != nil {
		return res, f.askErr
	}
	if rec, ok := f.knowledge[query]; ok {
		res.Record = rec
		res.Answer.Text = rec.Claim.Content
		res.Answer.Cited = []int64{rec.ID}
	}
	return res, nil
}

func (f *fakeService) Learn(_ context.Context, topic string) (*model.KnowledgeRecord, error) {
	if topic == "" {
		return nil, model.Reject("topic is empty", nil)
	}
	return f.learned, f.learnErr
}

func (f *fakeService) Feedback(_ context.Context, _ string, positive bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, positive)
	return nil
}

func (f *fakeService) UnknownCommand(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unknown = append(f.unknown, command)
	return nil
}

func (f *fakeService) Improve() []model.Proposal {
	return f.applied
}

func (f *fakeService) Status(context.Context) (model.StatusReport, error) {
	return f.status, nil
}

func eiffelRecord() *model.KnowledgeRecord {
	return &model.KnowledgeRecord{
		ID:       3,
		Verified: true,
		Claim: model.KnowledgeClaim{
			Topic:      "eiffel",
			Content:    "The Eiffel Tower is 330 meters tall",
			Confidence: 0.95,
		},
	}
}
