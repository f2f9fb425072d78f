package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/gemini"
)

const defaultQualityScore = 5

// stringList accepts an array of strings, a single string or an object of
// key/value pairs.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			*l = stringList{single}
		}
		return nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s: %s", k, stringify(obj[k])))
		}
		*l = out
		return nil
	}
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]interface{}:
		if name, ok := t["name"].(string); ok {
			return name
		}
		data, _ := json.Marshal(t)
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// material accepts either {"name","type"} or a bare string.
type material model.Material

func (m *material) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Name = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	m.Name, m.Type = strings.TrimSpace(obj.Name), strings.TrimSpace(obj.Type)
	return nil
}

type rawQuality struct {
	Score     *float64   `json:"score"`
	Positives stringList `json:"positives"`
	Issues    stringList `json:"issues"`
}

type rawResult struct {
	PhaseID            string     `json:"phase_id"`
	Phase              string     `json:"phase"`
	PhaseLabel         string     `json:"phase_label"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Category           string     `json:"category"`
	Confidence         *float64   `json:"confidence"`
	DetectedElements   stringList `json:"detected_elements"`
	Materials          []material `json:"materials"`
	TechnicalSpecs     stringList `json:"technical_specs"`
	Quality            rawQuality `json:"quality"`
	SafetyNotes        stringList `json:"safety_notes"`
	ComplianceNotes    stringList `json:"compliance_notes"`
	ProgressPercentage *float64   `json:"progress_percentage"`
	WorkStatus         string     `json:"work_status"`
}

// parseResult decodes a model response into a fully defaulted result.
func parseResult(content string) (model.ClassificationResult, error) {
	var raw rawResult
	if err := gemini.DecodeJSON(content, &raw); err != nil {
		return model.ClassificationResult{}, err
	}

	label := strings.TrimSpace(raw.PhaseID)
	if label == "" {
		label = strings.TrimSpace(raw.Phase)
	}
	if label == "" {
		label = strings.TrimSpace(raw.PhaseLabel)
	}

	res := model.ClassificationResult{
		PhaseID:          label,
		PhaseLabel:       strings.TrimSpace(raw.PhaseLabel),
		Title:            strings.TrimSpace(raw.Title),
		Description:      strings.TrimSpace(raw.Description),
		Category:         strings.TrimSpace(raw.Category),
		DetectedElements: raw.DetectedElements,
		TechnicalSpecs:   raw.TechnicalSpecs,
		SafetyNotes:      raw.SafetyNotes,
		ComplianceNotes:  raw.ComplianceNotes,
		WorkStatus:       model.ParseWorkStatus(raw.WorkStatus),
		Source:           model.SourceModel,
		Quality: model.QualityAssessment{
			Score:     defaultQualityScore,
			Positives: raw.Quality.Positives,
			Issues:    raw.Quality.Issues,
		},
	}

	if p := phase.MapClassifierPhase(label); p != "" {
		res.PhaseID = string(p)
		if res.PhaseLabel == "" {
			res.PhaseLabel = p.Label()
		}
	}

	if raw.Confidence != nil {
		res.Confidence = normalizeConfidence(*raw.Confidence)
	}
	if raw.Quality.Score != nil {
		res.Quality.Score = clampRound(*raw.Quality.Score, 1, 10)
	}
	if raw.ProgressPercentage != nil {
		p := clampRound(*raw.ProgressPercentage, 0, 100)
		res.ProgressPercentage = &p
	}
	for _, m := range raw.Materials {
		if m.Name != "" {
			res.Materials = append(res.Materials, model.Material(m))
		}
	}

	res.Normalize()
	return res, nil
}

// clampRound rounds v into [lo, hi]. The float is clamped first because
// converting an out-of-range float to int is undefined.
func clampRound(v, lo, hi float64) int {
	if math.IsNaN(v) {
		return int(lo)
	}
	return int(math.Round(math.Max(lo, math.Min(hi, v))))
}

// normalizeConfidence accepts both fractions and percentages.
func normalizeConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}
