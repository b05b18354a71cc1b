package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is an applicant's position in the admission pipeline.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusVerified   Status = "VERIFIED"
	StatusApplied    Status = "APPLIED"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusWaitlisted Status = "WAITLISTED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusDeclined   Status = "DECLINED"
)

// Decidable reports whether a pending decision may exist for this status.
func (s Status) Decidable() bool {
	return s == StatusApplied || s == StatusWaitlisted
}

type Role string

const (
	RoleHacker    Role = "HACKER"
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleSponsor   Role = "SPONSOR"
)

// Applicant represents a registered person progressing through the
// admission pipeline. TeamID is the only side of the team relation;
// membership is always computed by query.
type Applicant struct {
	ID           string `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         Role   `gorm:"default:'HACKER';not null" json:"role"`
	Status       Status `gorm:"default:'CREATED';not null;index" json:"status"`

	// GitHub OAuth fields
	GithubID       *string `gorm:"uniqueIndex" json:"github_id,omitempty"`
	GithubUsername *string `json:"github_username,omitempty"`

	Application AnswerMap `gorm:"type:jsonb" json:"application"`
	TeamID      *uint     `gorm:"index" json:"team_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Applicant) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// FullName derives a display name from the application answers, falling
// back to the GitHub username and then the email.
func (a *Applicant) FullName() string {
	first, _ := a.Application["firstName"].(string)
	if first == "" {
		first, _ = a.Application["name"].(string)
	}
	last, _ := a.Application["lastName"].(string)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case a.GithubUsername != nil && *a.GithubUsername != "":
		return *a.GithubUsername
	}
	return a.Email
}

// Decision is a pending, not-yet-released admission outcome. At most one
// row per applicant, and only while the applicant is APPLIED or
// WAITLISTED. Rows are hard-deleted on release so the unique index keeps
// holding across decide/release cycles.
type Decision struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ApplicantID string    `gorm:"uniqueIndex;not null" json:"applicant_id"`
	Outcome     Status    `gorm:"not null" json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
