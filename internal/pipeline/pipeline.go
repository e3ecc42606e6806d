package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/advisor"
	"github.com/ppiankov/ranger/internal/analyze"
	"github.com/ppiankov/ranger/internal/cache"
	"github.com/ppiankov/ranger/internal/extract"
	"github.com/ppiankov/ranger/internal/llm"
	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/score"
	"github.com/ppiankov/ranger/internal/selfmod"
	"github.com/ppiankov/ranger/internal/store"
	"github.com/ppiankov/ranger/internal/validate"
	"github.com/ppiankov/ranger/internal/worker"
)

// Confidence given to page text learned for a topic, by source
const (
	webSearchConfidence       = 0.7
	activeExpansionConfidence = 0.8
	relatedRecords            = 5
)

// Pipeline wires feature analysis, claim extraction, verification, storage and the
// improvement advisor into the operations the transports and CLI call
type Pipeline struct {
	store     *store.Store
	features  *analyze.FeatureExtractor
	context   *analyze.Tracker
	extractor *extract.ClaimExtractor
	verifier  *validate.Verifier
	engine    *selfmod.Engine
	advisor   *advisor.Advisor
	tracker   *score.Tracker
	answerer  *llm.Answerer
	expander  *worker.BatchLearner
	cache     *cache.LayeredCache // nil when caching is off or the fetcher was replaced

	extractEnabled bool
	verifyEnabled  bool
	advisorEnabled bool

	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type options struct {
	fetcher  validate.ContentFetcher
	provider llm.Provider
}

// Option customizes NewPipeline
type Option func(*options)

// WithFetcher replaces the HTTP content fetcher
func WithFetcher(f validate.ContentFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithProvider replaces the configured LLM provider
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// NewPipeline creates a pipeline over an open store
func NewPipeline(cfg *model.Config, st *store.Store, logger *zap.Logger, m *metrics.Metrics, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)

	taxonomy := model.DefaultTaxonomy()
	if cfg.Taxonomy.Path != "" {
		t, err := model.LoadTaxonomy(cfg.Taxonomy.Path)
		if err != nil {
			return nil, err
		}
		taxonomy = t
	}
	features := analyze.NewFeatureExtractor(taxonomy)

	var fetchCache *cache.LayeredCache
	fetcher := o.fetcher
	if fetcher == nil {
		var c cache.Cache
		if cfg.Cache.Enabled {
			fetchCache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL, m)
			c = fetchCache
		}
		fetcher = NewHTTPFetcher(cfg.HTTP, c, nil, logger, m)
	}

	engine, err := selfmod.NewEngine(cfg.SelfMod, logger, m)
	if err != nil {
		return nil, fmt.Errorf("self-modification engine: %w", err)
	}

	llmConfig := llm.ConfigFromModel(cfg.LLM, cfg.HTTP)
	var answerer *llm.Answerer
	if o.provider != nil {
		answerer = llm.NewAnswererWithProvider(o.provider, llmConfig, logger)
	} else if answerer, err = llm.NewAnswerer(llmConfig, logger); err != nil {
		logger.Warn("LLM provider disabled", zap.Error(err))
		answerer = llm.NewAnswererWithProvider(nil, llmConfig, logger)
	}

	tracker := score.NewTracker(0)

	p := &Pipeline{
		store:          st,
		features:       features,
		context:        analyze.NewTracker(cfg.Extraction.ContextWindow),
		extractor:      extract.NewClaimExtractor(features, cfg.Extraction.MinConfidence),
		verifier:       validate.NewVerifier(fetcher, validate.OptionsFromConfig(cfg.Verification, cfg.Concurrency.FetchWorkers), logger, m),
		engine:         engine,
		advisor:        advisor.New(cfg.Advisor, engine, tracker, logger, m),
		tracker:        tracker,
		answerer:       answerer,
		cache:          fetchCache,
		extractEnabled: cfg.Extraction.Enabled,
		verifyEnabled:  cfg.Verification.Enabled,
		advisorEnabled: cfg.Advisor.Enabled,
		now:            time.Now,
		logger:         logger.Named("pipeline"),
		metrics:        m,
	}
	p.expander = worker.NewBatchLearner(expansionLearner{p}, cfg.Concurrency.BatchWorkers)
	return p, nil
}

// Outcome reports what ProcessMessage did with one message
type Outcome struct {
	Features     model.Features            `json:"features"`
	Context      model.ConversationContext `json:"context"`
	Claim        *model.KnowledgeClaim     `json:"claim,omitempty"`
	Verification *model.VerificationResult `json:"verification,omitempty"`
	RecordID     int64                     `json:"record_id,omitempty"`
	Proposals    []model.Proposal          `json:"proposals,omitempty"`
}

// ProcessMessage analyzes an inbound message, stores any claim it announces and lets
// the advisor inspect it. Low confidence and failed verification are not errors; the
// error is non-nil only when storage failed.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg model.Message) (Outcome, error) {
	start := p.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = start
	}

	out := Outcome{Features: p.features.Extract(msg.Content)}
	out.Context = p.context.Observe(msg, out.Features)

	if err := p.store.SaveAnalysis(ctx, msg, out.Features); err != nil {
		p.logger.Warn("conversation analysis not saved", zap.String("channel", msg.ChannelID), zap.Error(err))
	}

	var err error
	if p.extractEnabled {
		err = p.learnFromMessage(ctx, msg, &out)
	}

	if p.advisorEnabled {
		out.Proposals = p.advisor.Analyze(msg, out.Features)
	}

	p.tracker.RecordInteraction(p.now().Sub(start), err)
	return out, err
}

func (p *Pipeline) learnFromMessage(ctx context.Context, msg model.Message, out *Outcome) error {
	claim, ok := p.extractor.Extract(msg.Content, out.Context)
	if !ok {
		return nil
	}
	p.metrics.ObserveClaim(string(claim.Method))
	out.Claim = &claim

	if p.verifyEnabled {
		res := p.verifier.Verify(ctx, claim)
		p.tracker.RecordVerification(res.IsVerified)
		out.Verification = &res
	}

	id, err := p.store.Save(ctx, claim, out.Verification)
	if err != nil {
		p.logger.Error("claim not stored", zap.String("topic", claim.Topic), zap.Error(err))
		return err
	}
	out.RecordID = id
	return nil
}

// Learn searches the web for topic and stores the most trusted page text as a
// web_search record. It returns nil, ErrTransientFetch when no trusted content was found.
func (p *Pipeline) Learn(ctx context.Context, topic string) (*model.KnowledgeRecord, error) {
	return p.learn(ctx, topic, model.SourceWebSearch, webSearchConfidence)
}

type expansionLearner struct{ p *Pipeline }

func (e expansionLearner) Learn(ctx context.Context, topic string) (*model.KnowledgeRecord, error) {
	return e.p.learn(ctx, topic, model.SourceActiveExpansion, activeExpansionConfidence)
}

func (p *Pipeline) learn(ctx context.Context, topic string, source model.ClaimSource, confidence float64) (*model.KnowledgeRecord, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, model.Reject("topic is empty", nil)
	}

	content, ok := p.verifier.SearchWeb(ctx, topic)
	if !ok {
		p.logger.Info("nothing learned", zap.String("topic", topic), zap.String("source", string(source)))
		return nil, fmt.Errorf("no trusted content for %q: %w", topic, model.ErrTransientFetch)
	}

	claim := model.KnowledgeClaim{
		Topic:      strings.ToLower(topic),
		Content:    content.Text,
		Source:     source,
		Method:     model.MethodWebLearning,
		Confidence: confidence,
		Metadata:   map[string]any{"url": content.URL, "trust": content.Trust},
		Sentiment:  p.features.Sentiment().Analyze(content.Text),
	}
	claim.AddTag(string(source))

	var verification *model.VerificationResult
	if p.verifyEnabled {
		res := p.verifier.Verify(ctx, claim)
		p.tracker.RecordVerification(res.IsVerified)
		verification = &res
	}

	id, err := p.store.Save(ctx, claim, verification)
	if err != nil {
		return nil, err
	}
	return p.store.Get(ctx, id)
}

// LearnTopics learns many topics through the worker pool
func (p *Pipeline) LearnTopics(ctx context.Context, topics []string, concurrency int) []*worker.LearnResult {
	return worker.NewBatchLearner(p, concurrency).LearnTopics(ctx, topics)
}

// Expand learns up to n knowledge-gap topics noted by the advisor (n <= 0 drains all)
// and returns how many were stored
func (p *Pipeline) Expand(ctx context.Context, n int) int {
	topics := p.advisor.DrainGaps(n)
	if len(topics) == 0 {
		return 0
	}

	learned := 0
	for _, r := range p.expander.LearnTopics(ctx, topics) {
		if r.Error == nil && r.Record != nil {
			learned++
		}
	}
	p.logger.Info("expanded knowledge",
		zap.Int("topics", len(topics)),
		zap.Int("learned", learned))
	return learned
}

// AskResult is the reply to a knowledge query. Record is nil when nothing matched.
type AskResult struct {
	Query  string                 `json:"query"`
	Record *model.KnowledgeRecord `json:"record,omitempty"`
	Answer llm.Answer             `json:"answer"`
}

// Found reports whether the query matched a record
func (r AskResult) Found() bool {
	return r.Record != nil
}

// Ask looks up the best record for query. A miss is recorded as a knowledge gap.
func (p *Pipeline) Ask(ctx context.Context, query string) (AskResult, error) {
	start := p.now()
	res := AskResult{Query: strings.TrimSpace(query)}
	if res.Query == "" {
		return res, model.Reject("query is empty", nil)
	}

	rec, err := p.store.Search(ctx, res.Query)
	if err != nil {
		p.tracker.RecordInteraction(p.now().Sub(start), err)
		return res, err
	}
	p.tracker.RecordLookup(rec != nil)

	if rec == nil {
		if err := p.store.RecordLearningEvent(ctx, model.EventKnowledgeGap, map[string]any{"query": res.Query}); err != nil {
			p.logger.Warn("knowledge gap not recorded", zap.Error(err))
		}
		p.advisor.NoteGap(res.Query)
		p.tracker.RecordInteraction(p.now().Sub(start), nil)
		return res, nil
	}
	res.Record = rec

	records := []model.KnowledgeRecord{*rec}
	if p.answerer.IsEnabled() {
		related, err := p.store.Find(ctx, res.Query, relatedRecords)
		if err != nil {
			p.logger.Warn("related records unavailable", zap.Error(err))
		}
		for _, r := range related {
			if r.ID != rec.ID {
				records = append(records, r)
			}
		}
	}
	res.Answer = p.answerer.Answer(ctx, res.Query, records)

	p.tracker.RecordInteraction(p.now().Sub(start), nil)
	return res, nil
}

// Feedback records a user's rating of a reply
func (p *Pipeline) Feedback(ctx context.Context, userID string, positive bool, comment string) error {
	p.tracker.RecordFeedback(positive)
	return p.store.RecordLearningEvent(ctx, model.EventUserFeedback, map[string]any{
		"user_id":  userID,
		"positive": positive,
		"comment":  comment,
	})
}

// UnknownCommand records a command no handler recognized
func (p *Pipeline) UnknownCommand(ctx context.Context, command string) error {
	return p.store.RecordLearningEvent(ctx, model.EventUnknownCommand, map[string]any{"command": command})
}

// Consolidate merges verified records per topic
func (p *Pipeline) Consolidate(ctx context.Context) (model.ConsolidationReport, error) {
	return p.store.Consolidate(ctx)
}

// CheckImprovements runs the advisor's periodic check when its interval has elapsed
func (p *Pipeline) CheckImprovements(context.Context) error {
	if !p.advisorEnabled {
		return nil
	}
	p.advisor.PeriodicCheck()
	return nil
}

// Improve applies queued high-priority proposals
func (p *Pipeline) Improve() []model.Proposal {
	return p.advisor.Trigger()
}

// Status gathers knowledge, verification, learning, improvement and session statistics
func (p *Pipeline) Status(ctx context.Context) (model.StatusReport, error) {
	report := model.StatusReport{
		GeneratedAt:  p.now(),
		Verification: p.verifier.Stats(),
		Improvement:  p.advisor.Stats(),
		Session: model.SessionStats{
			Applied:       p.engine.Applied(),
			MaxPerSession: p.engine.MaxPerSession(),
		},
		Performance: p.tracker.Snapshot(),
	}

	var errs []error
	var err error
	if report.Knowledge, err = p.store.Stats(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Learning, err = p.store.LearningStats(ctx); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

// PruneCache removes expired fetch cache entries from disk
func (p *Pipeline) PruneCache() (int, error) {
	if p.cache == nil {
		return 0, nil
	}
	return p.cache.Prune()
}

// Store returns the knowledge store
func (p *Pipeline) Store() *store.Store { return p.store }

// Engine returns the self-modification engine
func (p *Pipeline) Engine() *selfmod.Engine { return p.engine }

// Advisor returns the improvement advisor
func (p *Pipeline) Advisor() *advisor.Advisor { return p.advisor }

// Verifier returns the claim verifier
func (p *Pipeline) Verifier() *validate.Verifier { return p.verifier }

// Extractor returns the claim extractor
func (p *Pipeline) Extractor() *extract.ClaimExtractor { return p.extractor }

// Tracker returns the performance tracker
func (p *Pipeline) Tracker() *score.Tracker { return p.tracker }
