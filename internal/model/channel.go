package model

import "time"

// Channel binds a sender phone number to exactly one project and company.
// Channels are never deleted, only deactivated.
type Channel struct {
	Base
	Phone         string     `json:"phone" db:"phone"`
	ProjectID     string     `json:"project_id" db:"project_id"`
	CompanyID     string     `json:"company_id" db:"company_id"`
	WorkerName    string     `json:"worker_name" db:"worker_name"`
	Verified      bool       `json:"verified" db:"verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CodeHash      *string    `json:"-" db:"code_hash"`
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty" db:"code_expires_at"`
	Active        bool       `json:"active" db:"active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// HasPendingCode reports whether a one-time code is stored and still valid at now.
func (c *Channel) HasPendingCode(now time.Time) bool {
	return c.CodeHash != nil && c.CodeExpiresAt != nil && now.Before(*c.CodeExpiresAt)
}
