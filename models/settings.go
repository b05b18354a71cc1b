package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settings is a single-row table (id 0) holding the application window
// and the outcome notification templates.
type Settings struct {
	ID int `gorm:"primaryKey" json:"id"`

	ApplicationOpen     bool       `gorm:"default:true" json:"application_open"`
	ApplicationDeadline *time.Time `json:"application_deadline,omitempty"`
	ApplicationLimit    *int       `json:"application_limit,omitempty"`
	ConfirmBy           *time.Time `json:"confirm_by,omitempty"`
	RollingAdmissions   bool       `gorm:"default:false" json:"rolling_admissions"`

	SubmitTemplate   string `gorm:"type:text" json:"submit_template"`
	AcceptTemplate   string `gorm:"type:text" json:"accept_template"`
	RejectTemplate   string `gorm:"type:text" json:"reject_template"`
	WaitlistTemplate string `gorm:"type:text" json:"waitlist_template"`
	ConfirmTemplate  string `gorm:"type:text" json:"confirm_template"`
	DeclineTemplate  string `gorm:"type:text" json:"decline_template"`
}

// Template returns the notification body configured for the given
// released outcome.
func (s *Settings) Template(outcome Status) string {
	switch outcome {
	case StatusAccepted:
		return s.AcceptTemplate
	case StatusRejected:
		return s.RejectTemplate
	case StatusWaitlisted:
		return s.WaitlistTemplate
	case StatusConfirmed:
		return s.ConfirmTemplate
	case StatusDeclined:
		return s.DeclineTemplate
	}
	return ""
}

// GetSettings loads the settings row, creating the default one on first
// use.
func GetSettings(db *gorm.DB) (*Settings, error) {
	settings := Settings{ID: 0, ApplicationOpen: true}
	if err := db.Where(Settings{ID: 0}).FirstOrCreate(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings upserts the settings row.
func SaveSettings(db *gorm.DB, settings *Settings) error {
	settings.ID = 0
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(settings).Error
}
