package models

import "time"

// Token is a single-use, expiring, purpose-scoped bearer credential. The
// ID is the credential itself. At most one live token exists per
// (subject, purpose) pair; issuing or validating deletes the siblings.
type Token struct {
	ID        string    `gorm:"primaryKey" json:"-"`
	SubjectID string    `gorm:"not null;index:idx_tokens_subject_purpose" json:"subject_id"`
	Purpose   string    `gorm:"not null;index:idx_tokens_subject_purpose" json:"purpose"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
