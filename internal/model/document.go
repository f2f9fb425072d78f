package model

// Document is one classified photo or video submitted through a channel.
// It is immutable after creation except for the human verification flag.
type Document struct {
	Base
	ProjectID       string               `json:"project_id" db:"project_id"`
	CompanyID       string               `json:"company_id" db:"company_id"`
	MessageID       string               `json:"message_id" db:"message_id"`
	Sender          string               `json:"sender" db:"sender"`
	SubmittedBy     string               `json:"submitted_by" db:"submitted_by"`
	Name            string               `json:"name" db:"name"`
	FileURL         string               `json:"file_url" db:"file_url"`
	MimeType        string               `json:"mime_type" db:"mime_type"`
	MediaKind       MediaKind            `json:"media_kind" db:"media_kind"`
	Classification  ClassificationResult `json:"classification" db:"classification"`
	Phase           Phase                `json:"phase,omitempty" db:"phase"`
	PhaseConfidence float64              `json:"phase_confidence" db:"phase_confidence"`
	Verified        bool                 `json:"verified" db:"verified"`
}

// Classified reports whether the document carries a usable classification.
func (d *Document) Classified() bool {
	return d.Classification.Source != SourceEmpty && d.Classification.Source != ""
}

type TimelineEventType string

const (
	EventSitePreparation  TimelineEventType = "site_preparation"
	EventFoundationWork   TimelineEventType = "foundation_work"
	EventStructuralWork   TimelineEventType = "structural_work"
	EventRoofing          TimelineEventType = "roofing"
	EventFacadeWork       TimelineEventType = "facade_work"
	EventInstallationWork TimelineEventType = "installation_work"
	EventFinishingWork    TimelineEventType = "finishing_work"
	EventHandover         TimelineEventType = "handover"
	EventPhotoUpdate      TimelineEventType = "photo_update"
	EventPhaseTransition  TimelineEventType = "phase_transition"
	EventVoiceNote        TimelineEventType = "voice_note"
)

// phaseEventTypes is the fixed phase to timeline event type map.
var phaseEventTypes = map[Phase]TimelineEventType{
	PhaseGrondwerk:      EventSitePreparation,
	PhaseFundering:      EventFoundationWork,
	PhaseRuwbouw:        EventStructuralWork,
	PhaseDakconstructie: EventRoofing,
	PhaseGevel:          EventFacadeWork,
	PhaseInstallaties:   EventInstallationWork,
	PhaseAfbouw:         EventFinishingWork,
	PhaseOplevering:     EventHandover,
}

// EventTypeForPhase returns the timeline event type for a classified phase.
func EventTypeForPhase(p Phase) TimelineEventType {
	if t, ok := phaseEventTypes[p]; ok {
		return t
	}
	return EventPhotoUpdate
}

// TimelineEvent is one entry on a project's timeline.
type TimelineEvent struct {
	Base
	ProjectID   string            `json:"project_id" db:"project_id"`
	DocumentID  *string           `json:"document_id,omitempty" db:"document_id"`
	Type        TimelineEventType `json:"type" db:"type"`
	Title       string            `json:"title" db:"title"`
	Description string            `json:"description" db:"description"`
	Phase       Phase             `json:"phase,omitempty" db:"phase"`
	Metadata    JSONMap           `json:"metadata" db:"metadata"`
}
