package models

import "gorm.io/gorm"

// MaxTeamSize is the hard cap on eligible members per team, enforced at
// every membership-changing operation.
const MaxTeamSize = 4

// MaxTeamNameLength bounds the trimmed team name.
const MaxTeamNameLength = 50

type Team struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
)

// Invitation asks one applicant to join one team. A new invite to the
// same (email, team) pair supersedes any prior pending one.
type Invitation struct {
	gorm.Model
	Email       string           `gorm:"not null;index" json:"email"`
	TeamID      uint             `gorm:"not null;index" json:"team_id"`
	ApplicantID string           `gorm:"not null;index" json:"applicant_id"`
	Status      InvitationStatus `gorm:"default:'PENDING';not null" json:"status"`
}
