package phase

import (
	"math"

	"github.com/bouwupdate/intake-api/internal/model"
)

// Rule names which fusion branch decided the phase.
type Rule string

const (
	RuleClassifier Rule = "classifier"
	RuleBoost      Rule = "keyword_boost"
	RuleOverride   Rule = "keyword_override"
)

// Fusion is the combined phase estimate for one classification.
type Fusion struct {
	Phase           model.Phase `json:"phase"`
	Confidence      float64     `json:"confidence"`
	ClassifierPhase model.Phase `json:"classifier_phase,omitempty"`
	KeywordPhase    model.Phase `json:"keyword_phase,omitempty"`
	KeywordScore    int         `json:"keyword_score"`
	Rule            Rule        `json:"rule"`
}

// Fuse combines the classifier label with keyword evidence. Keywords only
// override the classifier when they are emphatic.
func (e *Engine) Fuse(c model.ClassificationResult) Fusion {
	th := e.th
	f := Fusion{
		ClassifierPhase: MapClassifierPhase(c.PhaseID),
		Confidence:      clamp01(c.Confidence),
		Rule:            RuleClassifier,
	}
	f.Phase = f.ClassifierPhase

	f.KeywordPhase, f.KeywordScore = TopKeywordPhase(ScoreKeywords(c.FreeText()), f.ClassifierPhase)
	if f.KeywordScore == 0 {
		return f
	}

	switch {
	case f.KeywordPhase == f.ClassifierPhase && f.KeywordScore >= th.BoostMinHits:
		f.Confidence = math.Max(f.Confidence, math.Min(th.BoostCap, f.Confidence+th.Boost))
		f.Rule = RuleBoost
	case f.KeywordPhase != f.ClassifierPhase && f.KeywordScore >= th.OverrideMinHits:
		f.Phase = f.KeywordPhase
		f.Confidence = math.Min(th.OverrideCap, th.OverrideBase+th.OverridePerHit*float64(f.KeywordScore))
		f.Rule = RuleOverride
	}
	f.Confidence = roundConfidence(f.Confidence)
	return f
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// roundConfidence trims float noise from the additive rules.
func roundConfidence(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
