package model

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityLabels = map[Severity]string{
	SeverityLow:      "laag",
	SeverityMedium:   "gemiddeld",
	SeverityHigh:     "hoog",
	SeverityCritical: "kritiek",
}

// Label returns the Dutch name used in replies.
func (s Severity) Label() string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return string(s)
}

type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusDismissed  IssueStatus = "dismissed"
)

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusDismissed:
		return true
	}
	return false
}

// Issue is a defect record, created from a classification or by hand.
type Issue struct {
	Base
	ProjectID        string      `json:"project_id" db:"project_id"`
	Title            string      `json:"title" db:"title"`
	Description      string      `json:"description" db:"description"`
	Severity         Severity    `json:"severity" db:"severity"`
	Status           IssueStatus `json:"status" db:"status"`
	AssigneeID       *string     `json:"assignee_id,omitempty" db:"assignee_id"`
	Phase            Phase       `json:"phase,omitempty" db:"phase"`
	SourceDocumentID *string     `json:"source_document_id,omitempty" db:"source_document_id"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IssueComment is free text attached to an issue; it may mention members.
type IssueComment struct {
	Base
	IssueID  string `json:"issue_id" db:"issue_id"`
	AuthorID string `json:"author_id" db:"author_id"`
	Body     string `json:"body" db:"body"`
}
