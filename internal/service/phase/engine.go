// Package phase infers the build phase of a project from classified photos
// and decides when the persisted phase should advance.
package phase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

// Path identifies which advance rule fired.
type Path string

const (
	PathNone       Path = ""
	PathMajority   Path = "majority"
	PathCompletion Path = "completion"
	PathJump       Path = "jump"
)

// Observation is the per-phase tally over the window.
type Observation struct {
	Phase         model.Phase `json:"phase"`
	Count         int         `json:"count"`
	Confidence    float64     `json:"confidence"`
	MaxConfidence float64     `json:"max_confidence"`
}

// Analysis is recomputed on every classified photo and acted on at once.
type Analysis struct {
	ProjectID            string        `json:"project_id"`
	CurrentPhase         model.Phase   `json:"current_phase"`
	InferredPhase        model.Phase   `json:"inferred_phase,omitempty"`
	Confidence           float64       `json:"confidence"`
	DetectedPhases       []Observation `json:"detected_phases"`
	WindowSize           int           `json:"window_size"`
	NextPhase            model.Phase   `json:"next_phase,omitempty"`
	NextRatio            float64       `json:"next_ratio"`
	SuggestedPhase       model.Phase   `json:"suggested_phase,omitempty"`
	CompletionIndicators []string      `json:"completion_indicators"`
	Ready                bool          `json:"ready"`
	Path                 Path          `json:"path,omitempty"`
	Reason               string        `json:"reason"`
}

// Observed returns the tally for p, or a zero observation.
func (a *Analysis) Observed(p model.Phase) Observation {
	for _, o := range a.DetectedPhases {
		if o.Phase == p {
			return o
		}
	}
	return Observation{Phase: p}
}

type Engine struct {
	docs repository.DocumentRepository
	th   Thresholds
}

func NewEngine(docs repository.DocumentRepository, th Thresholds) *Engine {
	return &Engine{docs: docs, th: th.normalized()}
}

// Thresholds returns the effective thresholds.
func (e *Engine) Thresholds() Thresholds { return e.th }

// Analyze loads the recent window for the project and evaluates it against
// the persisted phase.
func (e *Engine) Analyze(ctx context.Context, project *model.Project) (*Analysis, error) {
	docs, err := e.docs.ListRecentClassified(ctx, project.ID, e.th.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("load recent documents: %w", err)
	}
	a := e.Evaluate(project.EffectivePhase(), docs)
	a.ProjectID = project.ID
	return a, nil
}

// Evaluate runs the advance decision over docs, newest first.
func (e *Engine) Evaluate(current model.Phase, docs []*model.Document) *Analysis {
	if len(docs) > e.th.WindowSize {
		docs = docs[:e.th.WindowSize]
	}

	a := &Analysis{CurrentPhase: current, CompletionIndicators: []string{}}
	a.DetectedPhases, a.WindowSize = tally(docs)
	if len(a.DetectedPhases) > 0 {
		a.InferredPhase = a.DetectedPhases[0].Phase
		a.Confidence = a.DetectedPhases[0].Confidence
	}

	next, hasNext := current.Next()
	if !hasNext {
		a.Reason = fmt.Sprintf("Het project zit in de laatste fase (%s).", current.Label())
		return a
	}
	a.NextPhase = next

	cur, nxt := a.Observed(current), a.Observed(next)
	if total := cur.Count + nxt.Count; total > 0 {
		a.NextRatio = float64(nxt.Count) / float64(total)
	}

	var text strings.Builder
	for _, d := range docs {
		text.WriteString(d.Classification.FreeText())
		text.WriteByte(' ')
	}
	a.CompletionIndicators = append(a.CompletionIndicators, CompletionIndicatorsIn(current, text.String())...)

	th := e.th
	switch {
	case nxt.Count > 0 && a.NextRatio >= th.NextRatio && nxt.MaxConfidence >= th.NextRatioMinConfidence:
		a.advance(PathMajority, next, fmt.Sprintf(
			"%d van de %d recente foto's tonen %s (hoogste zekerheid %.0f%%).",
			nxt.Count, cur.Count+nxt.Count, next.Label(), nxt.MaxConfidence*100))
	case len(a.CompletionIndicators) >= th.MinCompletionIndicators && nxt.Count > 0:
		a.advance(PathCompletion, next, fmt.Sprintf(
			"Afronding van %s gemeld (%s) en %d foto('s) van %s.",
			current.Label(), strings.Join(a.CompletionIndicators, ", "), nxt.Count, next.Label()))
	case a.WindowSize >= th.JumpMinWindow && a.InferredPhase.After(current) && a.Confidence >= th.JumpMinConfidence:
		a.advance(PathJump, a.InferredPhase, fmt.Sprintf(
			"%s is de meest waargenomen fase in de laatste %d foto's (gemiddelde zekerheid %.0f%%).",
			a.InferredPhase.Label(), a.WindowSize, a.Confidence*100))
	default:
		a.Reason = fmt.Sprintf("Nog onvoldoende aanwijzingen om %s af te ronden.", current.Label())
	}
	return a
}

func (a *Analysis) advance(path Path, to model.Phase, reason string) {
	a.Ready = true
	a.Path = path
	a.SuggestedPhase = to
	a.Reason = reason
}

// tally counts phases over docs, skipping documents without a fused phase.
// Observations are ordered by count, then mean confidence, then build order.
func tally(docs []*model.Document) ([]Observation, int) {
	byPhase := make(map[model.Phase]*Observation)
	sums := make(map[model.Phase]float64)
	n := 0
	for _, d := range docs {
		if !d.Phase.Valid() {
			continue
		}
		n++
		o, ok := byPhase[d.Phase]
		if !ok {
			o = &Observation{Phase: d.Phase}
			byPhase[d.Phase] = o
		}
		o.Count++
		sums[d.Phase] += d.PhaseConfidence
		if d.PhaseConfidence > o.MaxConfidence {
			o.MaxConfidence = d.PhaseConfidence
		}
	}

	out := make([]Observation, 0, len(byPhase))
	for p, o := range byPhase {
		o.Confidence = roundConfidence(sums[p] / float64(o.Count))
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Phase.Index() < out[j].Phase.Index()
	})
	return out, n
}
