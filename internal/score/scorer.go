package score

import (
	"fmt"

	"github.com/ppiankov/ranger/internal/model"
)

// epsilon absorbs float error in derived rates, so a value sitting on a
// threshold (1 - 0.7 is 0.30000000000000004) counts as meeting it
const epsilon = 1e-9

func above(value, limit float64) bool { return value-limit > epsilon }

func below(value, limit float64) bool { return limit-value > epsilon }

// Scorer compares aggregate performance metrics against thresholds and emits
// one diagnostic signal per metric
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Evaluate returns a signal for each threshold in a fixed order: response time,
// accuracy, user satisfaction, knowledge gaps, error rate. Healthy metrics yield
// info signals; callers act on warning and critical ones.
func (s *Scorer) Evaluate(pm model.PerformanceMetrics, th model.Thresholds) []model.Signal {
	return []model.Signal{
		s.responseTime(pm, th.ResponseTime),
		s.accuracy(pm, th.AccuracyRate),
		s.satisfaction(pm, th.UserSatisfaction),
		s.knowledgeGaps(pm, th.KnowledgeGaps),
		s.errorRate(pm, th.ErrorRate),
	}
}

// Breaches filters signals down to those above info severity
func Breaches(signals []model.Signal) []model.Signal {
	var out []model.Signal
	for _, sig := range signals {
		if sig.Severity != model.SeverityInfo {
			out = append(out, sig)
		}
	}
	return out
}

// responseTime: above threshold is a warning, above twice the threshold critical
func (s *Scorer) responseTime(pm model.PerformanceMetrics, threshold float64) model.Signal {
	severity := model.SeverityInfo
	switch {
	case threshold > 0 && above(pm.ResponseTimeAvg, 2*threshold):
		severity = model.SeverityCritical
	case threshold > 0 && above(pm.ResponseTimeAvg, threshold):
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalResponseTime,
		Severity:    severity,
		Description: fmt.Sprintf("Average response time: %.2fs (threshold %.2fs)", pm.ResponseTimeAvg, threshold),
		Data: map[string]any{
			"value":     pm.ResponseTimeAvg,
			"threshold": threshold,
			"samples":   pm.Samples,
			"formula":   "sum(response_seconds) / interactions",
		},
	}
}

func (s *Scorer) accuracy(pm model.PerformanceMetrics, threshold float64) model.Signal {
	return s.minimum(model.SignalAccuracy, "Accuracy rate", pm.AccuracyRate, threshold,
		"verified_claims / verification_attempts", pm.Samples)
}

func (s *Scorer) satisfaction(pm model.PerformanceMetrics, threshold float64) model.Signal {
	return s.minimum(model.SignalSatisfaction, "User satisfaction", pm.UserSatisfaction, threshold,
		"positive_feedback / feedback", pm.Samples)
}

// knowledgeGaps compares the share of lookups that missed with the threshold
func (s *Scorer) knowledgeGaps(pm model.PerformanceMetrics, threshold float64) model.Signal {
	gaps := 1 - pm.KnowledgeCoverage
	return s.maximum(model.SignalKnowledgeGaps, "Knowledge gaps", gaps, threshold,
		"1 - lookup_hits / lookups", pm.Samples)
}

func (s *Scorer) errorRate(pm model.PerformanceMetrics, threshold float64) model.Signal {
	return s.maximum(model.SignalErrorRate, "Error rate", pm.ErrorRate, threshold,
		"failed_interactions / interactions", pm.Samples)
}

// minimum: below threshold is a warning, below three quarters of it critical
func (s *Scorer) minimum(typ model.SignalType, label string, value, threshold float64, formula string, samples int64) model.Signal {
	severity := model.SeverityInfo
	switch {
	case below(value, threshold*0.75):
		severity = model.SeverityCritical
	case below(value, threshold):
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        typ,
		Severity:    severity,
		Description: fmt.Sprintf("%s: %.0f%% (threshold %.0f%%)", label, value*100, threshold*100),
		Data: map[string]any{
			"value":     value,
			"threshold": threshold,
			"samples":   samples,
			"formula":   formula,
		},
	}
}

// maximum: above threshold is a warning, above twice the threshold critical
func (s *Scorer) maximum(typ model.SignalType, label string, value, threshold float64, formula string, samples int64) model.Signal {
	severity := model.SeverityInfo
	switch {
	case above(value, 2*threshold):
		severity = model.SeverityCritical
	case above(value, threshold):
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        typ,
		Severity:    severity,
		Description: fmt.Sprintf("%s: %.0f%% (threshold %.0f%%)", label, value*100, threshold*100),
		Data: map[string]any{
			"value":     value,
			"threshold": threshold,
			"samples":   samples,
			"formula":   formula,
		},
	}
}
