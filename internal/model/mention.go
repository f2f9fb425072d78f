package model

import "time"

// Mention tags a team member on an issue. The (IssueID, TeamMemberID) pair is
// unique and Notified only ever moves from false to true.
type Mention struct {
	Base
	IssueID      string     `json:"issue_id" db:"issue_id"`
	TeamMemberID string     `json:"team_member_id" db:"team_member_id"`
	Notified     bool       `json:"notified" db:"notified"`
	NotifiedAt   *time.Time `json:"notified_at,omitempty" db:"notified_at"`
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	// ClaimedUntil is the delivery lease held by whichever process is
	// sending; a send only starts after a successful claim.
	ClaimedUntil *time.Time `json:"-" db:"claimed_until"`
}

// MentionEvent is the in-app payload published when a mention is delivered.
type MentionEvent struct {
	MentionID    string    `json:"mention_id"`
	IssueID      string    `json:"issue_id"`
	TeamMemberID string    `json:"team_member_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}
