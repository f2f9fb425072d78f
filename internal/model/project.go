package model

import "time"

// Project is a single build site. CurrentPhase is the persisted phase that
// automated inference advances.
type Project struct {
	Base
	CompanyID      string     `json:"company_id" db:"company_id"`
	Name           string     `json:"name" db:"name"`
	Address        string     `json:"address" db:"address"`
	CurrentPhase   Phase      `json:"current_phase" db:"current_phase"`
	PhaseUpdatedAt *time.Time `json:"phase_updated_at,omitempty" db:"phase_updated_at"`
}

// EffectivePhase returns the persisted phase, treating an unset phase as the
// first phase of the build.
func (p *Project) EffectivePhase() Phase {
	if p.CurrentPhase.Valid() {
		return p.CurrentPhase
	}
	return Phases[0]
}

type ProjectPhaseStatus string

const (
	ProjectPhasePlanned    ProjectPhaseStatus = "PLANNED"
	ProjectPhaseInProgress ProjectPhaseStatus = "IN_PROGRESS"
	ProjectPhaseCompleted  ProjectPhaseStatus = "COMPLETED"
)

// ProjectPhase is one entry of the optional ordered phase schedule.
type ProjectPhase struct {
	Base
	ProjectID   string             `json:"project_id" db:"project_id"`
	Phase       Phase              `json:"phase" db:"phase"`
	Position    int                `json:"position" db:"position"`
	Status      ProjectPhaseStatus `json:"status" db:"status"`
	StartedAt   *time.Time         `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// TeamMember is a person that can be mentioned on issues.
type TeamMember struct {
	Base
	ProjectID string `json:"project_id" db:"project_id"`
	Name      string `json:"name" db:"name"`
	Phone     string `json:"phone,omitempty" db:"phone"`
	Email     string `json:"email,omitempty" db:"email"`
	Active    bool   `json:"active" db:"active"`
}

// Reachable reports whether the member has any address a notification can
// be delivered to.
func (m *TeamMember) Reachable() bool {
	return m.Phone != "" || m.Email != ""
}
