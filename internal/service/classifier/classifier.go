// Package classifier turns a site photo into a structured classification. It
// never fails: model errors degrade to a keyword guess from the message text.
package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/gemini"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
)

const (
	defaultTimeout        = 30 * time.Second
	maxHeuristicConf      = 0.5
	heuristicBaseConf     = 0.3
	heuristicPerHit       = 0.05
	heuristicNoMatchConf  = 0.25
	placeholderConfidence = 0.2
)

// Input is one image to classify. Context is the sender's caption, if any.
type Input struct {
	Image    []byte
	MIMEType string
	Context  string
}

// Classifier is the adapter contract used by the media processor.
type Classifier interface {
	Classify(ctx context.Context, in Input) model.ClassificationResult
}

type Service struct {
	gen     gemini.Generator
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewService(gen gemini.Generator, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{gen: gen, timeout: timeout, metrics: m, logger: log}
}

func (s *Service) Classify(ctx context.Context, in Input) model.ClassificationResult {
	start := time.Now()
	res, err := s.classify(ctx, in)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Classifier degraded to heuristic", "error", err.Error(), "mime_type", in.MIMEType)
		res = Fallback(in.Context)
	}
	s.metrics.ObserveClassification(string(res.Source), time.Since(start))
	return res
}

func (s *Service) classify(ctx context.Context, in Input) (model.ClassificationResult, error) {
	if s.gen == nil {
		return model.ClassificationResult{}, fmt.Errorf("classifier: no model configured")
	}
	if len(in.Image) == 0 {
		return model.ClassificationResult{}, fmt.Errorf("classifier: empty image")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.gen.Generate(ctx, gemini.Request{
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(in.Context),
		MIMEType:     in.MIMEType,
		Data:         in.Image,
	})
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("classifier: %w", err)
	}
	res, err := parseResult(content)
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("classifier: decode response: %w", err)
	}
	return res, nil
}

// Fallback builds the degraded result: a keyword guess from text capped at
// confidence 0.5, or a placeholder at 0.2 when there is no text.
func Fallback(text string) model.ClassificationResult {
	text = strings.TrimSpace(text)
	if text == "" {
		res := model.ClassificationResult{
			Title:       "Foto-update",
			Description: "Foto ontvangen; automatische analyse was niet beschikbaar.",
			Confidence:  placeholderConfidence,
			Quality:     model.QualityAssessment{Score: defaultQualityScore},
			Source:      model.SourcePlaceholder,
		}
		res.Normalize()
		return res
	}

	res := model.ClassificationResult{
		Title:       "Foto-update",
		Description: text,
		Confidence:  heuristicNoMatchConf,
		Quality:     model.QualityAssessment{Score: defaultQualityScore},
		Source:      model.SourceHeuristic,
	}
	if p, hits := phase.TopKeywordPhase(phase.ScoreKeywords(text), ""); hits > 0 {
		res.PhaseID = string(p)
		res.PhaseLabel = p.Label()
		res.Title = fmt.Sprintf("%s (automatisch herkend)", p.Label())
		res.Confidence = math.Min(maxHeuristicConf, heuristicBaseConf+heuristicPerHit*float64(hits))
	}
	res.Normalize()
	return res
}

var _ Classifier = (*Service)(nil)
