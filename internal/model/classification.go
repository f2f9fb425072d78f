package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

type WorkStatus string

const (
	WorkStatusNotStarted WorkStatus = "not_started"
	WorkStatusInProgress WorkStatus = "in_progress"
	WorkStatusCompleted  WorkStatus = "completed"
	WorkStatusUnknown    WorkStatus = "unknown"
)

// ParseWorkStatus maps loose model output onto the work status enum.
func ParseWorkStatus(s string) WorkStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not_started", "not started", "niet gestart", "gepland":
		return WorkStatusNotStarted
	case "in_progress", "in progress", "bezig", "in uitvoering", "ongoing":
		return WorkStatusInProgress
	case "completed", "complete", "done", "gereed", "klaar", "afgerond":
		return WorkStatusCompleted
	default:
		return WorkStatusUnknown
	}
}

type ClassificationSource string

const (
	SourceModel       ClassificationSource = "model"
	SourceHeuristic   ClassificationSource = "heuristic"
	SourcePlaceholder ClassificationSource = "placeholder"
	SourceEmpty       ClassificationSource = "empty"
)

// Material is a detected building material.
type Material struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QualityAssessment is the classifier's judgement of workmanship.
type QualityAssessment struct {
	Score     int      `json:"score"`
	Positives []string `json:"positives"`
	Issues    []string `json:"issues"`
}

// ClassificationResult is the structured output for one photo. It is
// embedded into documents and timeline events rather than stored on its own.
type ClassificationResult struct {
	PhaseID            string               `json:"phase_id"`
	PhaseLabel         string               `json:"phase_label"`
	Title              string               `json:"title"`
	Description        string               `json:"description"`
	Category           string               `json:"category"`
	Confidence         float64              `json:"confidence"`
	DetectedElements   []string             `json:"detected_elements"`
	Materials          []Material           `json:"materials"`
	TechnicalSpecs     []string             `json:"technical_specs"`
	Quality            QualityAssessment    `json:"quality"`
	SafetyNotes        []string             `json:"safety_notes"`
	ComplianceNotes    []string             `json:"compliance_notes"`
	ProgressPercentage *int                 `json:"progress_percentage,omitempty"`
	WorkStatus         WorkStatus           `json:"work_status"`
	Source             ClassificationSource `json:"source"`
}

// EmptyClassification is used when no media could be classified.
func EmptyClassification() ClassificationResult {
	c := ClassificationResult{Source: SourceEmpty}
	c.Normalize()
	return c
}

// Normalize enforces the value invariants: confidence in [0,1], quality
// score in [1,10], progress in [0,100] and non-nil lists.
func (c *ClassificationResult) Normalize() {
	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	switch {
	case c.Quality.Score < 1:
		c.Quality.Score = 1
	case c.Quality.Score > 10:
		c.Quality.Score = 10
	}
	if c.ProgressPercentage != nil {
		p := *c.ProgressPercentage
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		c.ProgressPercentage = &p
	}
	if c.WorkStatus == "" {
		c.WorkStatus = WorkStatusUnknown
	}
	c.DetectedElements = nonNil(c.DetectedElements)
	c.TechnicalSpecs = nonNil(c.TechnicalSpecs)
	c.Quality.Positives = nonNil(c.Quality.Positives)
	c.Quality.Issues = nonNil(c.Quality.Issues)
	c.SafetyNotes = nonNil(c.SafetyNotes)
	c.ComplianceNotes = nonNil(c.ComplianceNotes)
	if c.Materials == nil {
		c.Materials = []Material{}
	}
}

// FreeText concatenates every free-text field used for keyword scoring.
func (c *ClassificationResult) FreeText() string {
	parts := []string{c.Description, c.Category, c.Title}
	parts = append(parts, c.DetectedElements...)
	for _, m := range c.Materials {
		parts = append(parts, m.Name, m.Type)
	}
	parts = append(parts, c.TechnicalSpecs...)
	return strings.Join(parts, " ")
}

// Value implements driver.Valuer so the result can be stored as JSON.
func (c ClassificationResult) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *ClassificationResult) Scan(src interface{}) error {
	if err := scanJSON(src, c); err != nil {
		return err
	}
	c.Normalize()
	return nil
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func scanJSON(src interface{}, target interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, target)
	case string:
		return json.Unmarshal([]byte(v), target)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
