package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/model"
)

var (
	citationRe = regexp.MustCompile(`\[#(\d+)\]`)
	urlRe      = regexp.MustCompile(`https?://[^\s\)\]]+`)
)

// Answer is the reply to a knowledge question
type Answer struct {
	Text     string  `json:"text"`
	Cited    []int64 `json:"cited,omitempty"`
	Composed bool    `json:"composed"` // false when the best record is returned as is
	Model    string  `json:"model,omitempty"`
}

// Answerer wraps stored knowledge in a short reply. Without a provider it returns
// the best record verbatim.
type Answerer struct {
	provider Provider
	config   Config
	logger   *zap.Logger
}

// NewAnswerer creates an answerer from configuration; an empty provider disables composition
func NewAnswerer(config Config, logger *zap.Logger) (*Answerer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return NewAnswererWithProvider(provider, config, logger), nil
}

// NewAnswererWithProvider creates an answerer around an existing provider (may be nil)
func NewAnswererWithProvider(provider Provider, config Config, logger *zap.Logger) *Answerer {
	return &Answerer{
		provider: provider,
		config:   config,
		logger:   logging.OrNop(logger).Named("llm"),
	}
}

// IsEnabled reports whether a provider is configured
func (a *Answerer) IsEnabled() bool {
	return a != nil && a.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (a *Answerer) ProviderName() string {
	if !a.IsEnabled() {
		return ""
	}
	return a.provider.Name()
}

// Answer composes a reply from records, best first. Provider failures and replies
// that cite anything other than the supplied records fall back to the best record.
func (a *Answerer) Answer(ctx context.Context, question string, records []model.KnowledgeRecord) Answer {
	if len(records) == 0 {
		return Answer{}
	}
	plain := Answer{Text: records[0].Claim.Content, Cited: []int64{records[0].ID}}
	if !a.IsEnabled() {
		return plain
	}

	resp, err := a.provider.Complete(ctx, CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildPrompt(question, records),
		MaxTokens: a.config.MaxTokens,
	})
	if err != nil {
		a.logger.Warn("answer composition failed", zap.String("provider", a.provider.Name()), zap.Error(err))
		return plain
	}
	if strings.TrimSpace(resp.Text) == "" {
		return plain
	}

	cited, err := CheckCitations(resp.Text, records)
	if err != nil && a.config.StrictCitations {
		a.logger.Warn("answer rejected", zap.String("provider", a.provider.Name()), zap.Error(err))
		return plain
	}

	return Answer{
		Text:     resp.Text,
		Cited:    cited,
		Composed: true,
		Model:    resp.Model,
	}
}

// CheckCitations returns the record ids cited as [#id], in order of first use. It
// fails on a citation of any record not in records and on any URL, since records
// carry no links.
func CheckCitations(text string, records []model.KnowledgeRecord) ([]int64, error) {
	allowed := make(map[int64]bool, len(records))
	for _, r := range records {
		allowed[r.ID] = true
	}

	if u := urlRe.FindString(text); u != "" {
		return nil, model.Reject("answer cites an external link", map[string]any{"url": u})
	}

	var cited []int64
	seen := make(map[int64]bool)
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || !allowed[id] {
			return nil, model.Reject("answer cites a record that was not supplied", map[string]any{"citation": m[0]})
		}
		if !seen[id] {
			seen[id] = true
			cited = append(cited, id)
		}
	}
	return cited, nil
}
