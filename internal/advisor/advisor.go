// Package advisor inspects traffic and aggregate metrics for quality signals and
// turns them into improvement proposals for the self-modification engine.
package advisor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/score"
)

const (
	shortMessageLen = 10
	maxGapTopics    = 50
	maxPending      = 50
)

var (
	uncertaintyPhrases = []string{
		"i don't know",
		"i'm not sure",
		"i can't help",
		"sorry, i can't",
		"i don't understand",
	}
	gapPhrases = []string{
		"no information about",
		"don't have data on",
		"not in my knowledge",
		"haven't learned about",
	}

	gapTopicRe  = regexp.MustCompile(`(?i)(?:no information about|don't have data on|haven't learned about)\s+([\w\s-]{2,60}?)\s*(?:[.!?,]|$)`)
	funcNameRe  = regexp.MustCompile(`(?m)^func\s+(\w+)\s*\(`)
	normalizeRe = regexp.MustCompile(`\s+`)
)

// Applier applies modifications; *selfmod.Engine implements it
type Applier interface {
	Apply(mod model.Modification) (model.HistoryEntry, error)
	Declarations(target string) ([]string, error)
}

// MetricsSource reports aggregate performance; *score.Tracker implements it
type MetricsSource interface {
	Snapshot() model.PerformanceMetrics
}

// Advisor queues proposals from per-message heuristics and periodic metric checks,
// and applies high-priority ones on Trigger
type Advisor struct {
	mu         sync.Mutex
	interval   time.Duration
	thresholds model.Thresholds
	targetFile string
	maxApply   int

	pending   []model.Proposal
	gaps      []string
	checks    int
	lastCheck time.Time
	applied   int

	engine  Applier
	source  MetricsSource
	scorer  *score.Scorer
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an advisor. The first periodic check runs one interval after creation.
func New(cfg model.AdvisorConfig, engine Applier, source MetricsSource, logger *zap.Logger, m *metrics.Metrics) *Advisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.MaxApplyPerTrigger <= 0 {
		cfg.MaxApplyPerTrigger = 3
	}
	if cfg.TargetFile == "" {
		cfg.TargetFile = "extensions/improvements.go"
	}

	return &Advisor{
		interval:   cfg.Interval,
		thresholds: cfg.Thresholds,
		targetFile: cfg.TargetFile,
		maxApply:   cfg.MaxApplyPerTrigger,
		lastCheck:  time.Now(),
		engine:     engine,
		source:     source,
		scorer:     score.NewScorer(),
		now:        time.Now,
		logger:     logging.OrNop(logger).Named("advisor"),
		metrics:    m,
	}
}

// Analyze runs the per-message heuristics and queues any proposals they produce
func (a *Advisor) Analyze(msg model.Message, f model.Features) []model.Proposal {
	content := strings.ToLower(msg.Content)
	var proposals []model.Proposal

	if containsAny(content, uncertaintyPhrases) {
		proposals = append(proposals, a.proposal("response_improvement",
			"Responses show uncertainty and knowledge gaps", model.PriorityHigh, responseGuidanceFunc))
	}

	if containsAny(content, gapPhrases) {
		proposals = append(proposals, a.proposal("knowledge_expansion",
			"Knowledge base lacks information in some areas", model.PriorityMedium, expansionPolicyFunc))
		if m := gapTopicRe.FindStringSubmatch(msg.Content); m != nil {
			a.NoteGap(m[1])
		}
	}

	length := f.CharCount
	if length == 0 {
		length = len([]rune(strings.TrimSpace(msg.Content)))
	}
	if length < shortMessageLen {
		proposals = append(proposals, a.proposal("interaction_improvement",
			"Very short messages, possible interaction issues", model.PriorityLow, interactionHintFunc))
	}

	a.enqueue(proposals)
	return proposals
}

// PeriodicCheck evaluates aggregate metrics against the thresholds once per interval.
// It reports false without doing anything when the interval has not elapsed.
func (a *Advisor) PeriodicCheck() ([]model.Proposal, bool) {
	a.mu.Lock()
	now := a.now()
	if now.Sub(a.lastCheck) < a.interval {
		a.mu.Unlock()
		return nil, false
	}
	thresholds := a.thresholds
	a.lastCheck = now
	a.checks++
	a.mu.Unlock()

	var pm model.PerformanceMetrics
	if a.source != nil {
		pm = a.source.Snapshot()
	}
	breaches := score.Breaches(a.scorer.Evaluate(pm, thresholds))

	var proposals []model.Proposal
	for _, sig := range breaches {
		if p, ok := a.remedy(sig); ok {
			proposals = append(proposals, p)
		}
	}
	a.enqueue(proposals)

	a.logger.Info("periodic improvement check",
		zap.Int("breaches", len(breaches)),
		zap.Int("proposals", len(proposals)))
	return proposals, true
}

func (a *Advisor) remedy(sig model.Signal) (model.Proposal, bool) {
	switch sig.Type {
	case model.SignalResponseTime:
		return a.proposal("performance_optimization",
			"Response time is above threshold, optimize processing", model.PriorityHigh, performanceBudgetFunc), true
	case model.SignalAccuracy:
		return a.proposal("accuracy_improvement",
			"Accuracy rate is below threshold, improve learning", model.PriorityHigh, accuracyPolicyFunc), true
	case model.SignalSatisfaction:
		return a.proposal("user_experience",
			"User satisfaction is low, improve response quality", model.PriorityMedium, experiencePolicyFunc), true
	case model.SignalKnowledgeGaps:
		return a.proposal("knowledge_expansion",
			"Too many lookups miss the knowledge base", model.PriorityMedium, expansionPolicyFunc), true
	case model.SignalErrorRate:
		return a.proposal("error_handling",
			"Error rate is above threshold", model.PriorityMedium, errorBudgetFunc), true
	}
	return model.Proposal{}, false
}

// Trigger drains the queue, applies up to the configured number of high-priority
// proposals and discards the rest. It returns the proposals that were applied.
func (a *Advisor) Trigger() []model.Proposal {
	a.mu.Lock()
	queued := a.pending
	a.pending = nil
	a.mu.Unlock()

	var applied []model.Proposal
	for _, p := range queued {
		if len(applied) == a.maxApply {
			break
		}
		if p.Priority != model.PriorityHigh || p.Modification == nil || a.engine == nil {
			continue
		}

		mod := a.resolveKind(*p.Modification)
		if _, err := a.engine.Apply(mod); err != nil {
			a.logger.Warn("improvement not applied", zap.String("type", p.Type), zap.Error(err))
			continue
		}
		p.Modification = &mod
		applied = append(applied, p)
	}

	a.mu.Lock()
	a.applied += len(applied)
	a.mu.Unlock()

	a.logger.Info("improvement trigger",
		zap.Int("queued", len(queued)),
		zap.Int("applied", len(applied)))
	return applied
}

// resolveKind turns an add_function into a modify_function when the target
// already declares that function
func (a *Advisor) resolveKind(mod model.Modification) model.Modification {
	if mod.Kind != model.KindAddFunction {
		return mod
	}
	m := funcNameRe.FindStringSubmatch(mod.Payload)
	if m == nil {
		return mod
	}
	names, err := a.engine.Declarations(mod.TargetFile)
	if err != nil {
		return mod
	}
	for _, name := range names {
		if name == m[1] {
			mod.Kind = model.KindModifyFunction
			break
		}
	}
	return mod
}

// NoteGap remembers a topic the knowledge base could not answer
func (a *Advisor) NoteGap(topic string) {
	topic = strings.ToLower(strings.TrimSpace(normalizeRe.ReplaceAllString(topic, " ")))
	if topic == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, g := range a.gaps {
		if g == topic {
			return
		}
	}
	if len(a.gaps) == maxGapTopics {
		a.gaps = a.gaps[1:]
	}
	a.gaps = append(a.gaps, topic)
}

// DrainGaps returns up to n noted gap topics, oldest first, and forgets them
func (a *Advisor) DrainGaps(n int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.gaps) {
		n = len(a.gaps)
	}
	out := append([]string(nil), a.gaps[:n]...)
	a.gaps = a.gaps[n:]
	return out
}

// Pending returns the queued proposals
func (a *Advisor) Pending() []model.Proposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Proposal(nil), a.pending...)
}

// Stats summarizes advisor activity
func (a *Advisor) Stats() model.ImprovementStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.ImprovementStats{
		Checks:             a.checks,
		Pending:            len(a.pending),
		LastCheck:          a.lastCheck,
		IntervalHours:      a.interval.Hours(),
		AppliedThisSession: a.applied,
	}
}

// UpdateThresholds changes individual thresholds by name
func (a *Advisor) UpdateThresholds(updates map[string]float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.thresholds
	for name, v := range updates {
		if v < 0 {
			return fmt.Errorf("threshold %s must not be negative", name)
		}
		switch name {
		case "response_time":
			next.ResponseTime = v
		case "accuracy_rate":
			next.AccuracyRate = v
		case "user_satisfaction":
			next.UserSatisfaction = v
		case "knowledge_gaps":
			next.KnowledgeGaps = v
		case "error_rate":
			next.ErrorRate = v
		default:
			return fmt.Errorf("unknown threshold %q", name)
		}
	}
	a.thresholds = next
	a.logger.Info("updated thresholds", zap.Any("thresholds", next))
	return nil
}

// Thresholds returns the current thresholds
func (a *Advisor) Thresholds() model.Thresholds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thresholds
}

// UpdateInterval changes the minimum time between periodic checks
func (a *Advisor) UpdateInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()
	a.logger.Info("updated improvement interval", zap.Duration("interval", d))
	return nil
}

func (a *Advisor) proposal(typ, description string, priority model.Priority, payload string) model.Proposal {
	return model.Proposal{
		Type:        typ,
		Description: description,
		Priority:    priority,
		Modification: &model.Modification{
			TargetFile:  a.targetFile,
			Kind:        model.KindAddFunction,
			Payload:     payload,
			Description: description,
		},
		CreatedAt: a.now(),
	}
}

func (a *Advisor) enqueue(proposals []model.Proposal) {
	if len(proposals) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range proposals {
		// A newer proposal of a queued type replaces it, so one trigger never
		// applies the same remedy twice
		if i := a.pendingIndex(p.Type); i >= 0 {
			a.pending[i] = p
			continue
		}
		a.pending = append(a.pending, p)
		a.metrics.ObserveProposal(string(p.Priority))
	}
	if over := len(a.pending) - maxPending; over > 0 {
		a.pending = append([]model.Proposal(nil), a.pending[over:]...)
	}
}

func (a *Advisor) pendingIndex(typ string) int {
	for i, p := range a.pending {
		if p.Type == typ {
			return i
		}
	}
	return -1
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
