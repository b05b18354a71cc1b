package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionSentence  QuestionType = "SENTENCE"
	QuestionParagraph QuestionType = "PARAGRAPH"
	QuestionNumber    QuestionType = "NUMBER"
	QuestionCheckbox  QuestionType = "CHECKBOX"
	QuestionDropdown  QuestionType = "DROPDOWN"
	QuestionMultiple  QuestionType = "MULTISELECT"
)

// Question is one entry of the application schema. Order values form a
// sparse integer sequence (multiples of 1000 when freshly numbered) so
// questions can be moved by assigning midpoints instead of swapping.
type Question struct {
	ID       string       `gorm:"primaryKey" json:"id"`
	Label    string       `gorm:"not null" json:"label"`
	Type     QuestionType `gorm:"not null" json:"type"`
	Required bool         `gorm:"default:false" json:"required"`
	Regex    *string      `json:"regex,omitempty"`
	Min      *float64     `json:"min,omitempty"`
	Max      *float64     `json:"max,omitempty"`
	Options  StringSlice  `gorm:"type:jsonb" json:"options,omitempty"`
	Order    int          `gorm:"uniqueIndex;not null" json:"order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// AnswerMap maps question ids to answer values. Values are one of
// string, float64, bool, or []string; shape is validated at write time
// against the current question schema, never assumed elsewhere.
type AnswerMap map[string]any

func (m AnswerMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *AnswerMap) Scan(value any) error {
	if value == nil {
		*m = AnswerMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported answer map source %T", value)
	}
	return json.Unmarshal(data, m)
}

// Joined flattens all answers into one search string for blacklist
// substring scanning.
func (m AnswerMap) Joined() string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// StringSlice stores a list of strings as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string slice source %T", value)
	}
	return json.Unmarshal(data, s)
}
