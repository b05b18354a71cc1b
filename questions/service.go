// Package questions owns the application form schema and validates
// submitted answers against it.
package questions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"hackreg/apperr"
	"hackreg/models"
)

// orderGap is the spacing between freshly numbered questions. Moves
// assign midpoints between neighbors; a full renumber restores the gaps
// once a midpoint would collide.
const orderGap = 1000

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// List returns the schema in display order.
func (s *Service) List() ([]models.Question, error) {
	var questions []models.Question
	err := s.DB.Order("\"order\" ASC").Find(&questions).Error
	return questions, err
}

// Create appends a question after the current last one.
func (s *Service) Create(q models.Question) (*models.Question, error) {
	if err := checkDefinition(&q); err != nil {
		return nil, err
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var max int
		row := tx.Model(&models.Question{}).Select("COALESCE(MAX(\"order\"), 0)").Row()
		if err := row.Scan(&max); err != nil {
			return err
		}
		q.Order = max + orderGap
		return tx.Create(&q).Error
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Update replaces a question's definition in place. Order is not
// touched here; use Move.
func (s *Service) Update(id string, q models.Question) (*models.Question, error) {
	if err := checkDefinition(&q); err != nil {
		return nil, err
	}
	var existing models.Question
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("question %s", id)
		}
		return nil, err
	}
	updates := map[string]any{
		"label":    q.Label,
		"type":     q.Type,
		"required": q.Required,
		"regex":    q.Regex,
		"min":      q.Min,
		"max":      q.Max,
		"options":  q.Options,
	}
	if err := s.DB.Model(&existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Service) Delete(id string) error {
	res := s.DB.Delete(&models.Question{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("question %s", id)
	}
	return nil
}

// Move places the question at the given zero-based position in the
// display order. The question takes the midpoint between its new
// neighbors; when no integer midpoint is free the whole sequence is
// renumbered back to multiples of the gap first.
func (s *Service) Move(id string, position int) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		order, err := placeAt(tx, id, position)
		if err != nil {
			return err
		}
		if order == nil {
			if err := renumber(tx); err != nil {
				return err
			}
			order, err = placeAt(tx, id, position)
			if err != nil {
				return err
			}
			if order == nil {
				return fmt.Errorf("no free order slot after renumbering")
			}
		}
		return tx.Model(&models.Question{}).Where("id = ?", id).
			Update("order", *order).Error
	})
}

// placeAt computes the order value for the target position, or nil if
// the neighbors sit too close for an integer midpoint.
func placeAt(tx *gorm.DB, id string, position int) (*int, error) {
	var questions []models.Question
	if err := tx.Order("\"order\" ASC").Find(&questions).Error; err != nil {
		return nil, err
	}

	rest := questions[:0:0]
	found := false
	for _, q := range questions {
		if q.ID == id {
			found = true
			continue
		}
		rest = append(rest, q)
	}
	if !found {
		return nil, apperr.NotFound("question %s", id)
	}
	if position < 0 {
		position = 0
	}
	if position > len(rest) {
		position = len(rest)
	}

	var prev, next int
	switch {
	case len(rest) == 0:
		order := orderGap
		return &order, nil
	case position == 0:
		prev, next = 0, rest[0].Order
	case position == len(rest):
		order := rest[len(rest)-1].Order + orderGap
		return &order, nil
	default:
		prev, next = rest[position-1].Order, rest[position].Order
	}

	mid := prev + (next-prev)/2
	if mid == prev || mid == next {
		return nil, nil
	}
	return &mid, nil
}

// renumber rewrites every order to consecutive multiples of the gap.
// Orders are unique, so each row passes through a negative placeholder
// before taking its final value.
func renumber(tx *gorm.DB) error {
	var questions []models.Question
	if err := tx.Order("\"order\" ASC").Find(&questions).Error; err != nil {
		return err
	}
	for i, q := range questions {
		if err := tx.Model(&models.Question{}).Where("id = ?", q.ID).
			Update("order", -(i + 1)).Error; err != nil {
			return err
		}
	}
	for i, q := range questions {
		if err := tx.Model(&models.Question{}).Where("id = ?", q.ID).
			Update("order", (i+1)*orderGap).Error; err != nil {
			return err
		}
	}
	return nil
}

// ValidateAnswers checks submitted answers against the current schema.
// It returns per-question problem messages keyed by question id, plus a
// sanitized copy of the answers containing only known question ids with
// coerced value types. Invalid answers are reported, not errored:
// drafts save whatever is valid, and the caller decides whether
// problems block.
func (s *Service) ValidateAnswers(answers models.AnswerMap) (map[string]string, models.AnswerMap, error) {
	schema, err := s.List()
	if err != nil {
		return nil, nil, err
	}

	problems := map[string]string{}
	clean := models.AnswerMap{}
	for _, q := range schema {
		raw, present := answers[q.ID]
		if !present || isEmpty(raw) {
			if q.Required {
				problems[q.ID] = "an answer is required"
			}
			continue
		}
		value, problem := checkAnswer(q, raw)
		if problem != "" {
			problems[q.ID] = problem
			continue
		}
		clean[q.ID] = value
	}

	if len(problems) == 0 {
		return nil, clean, nil
	}
	return problems, clean, nil
}

// checkAnswer validates one value against its question and returns the
// coerced value, or a human-readable problem.
func checkAnswer(q models.Question, raw any) (any, string) {
	switch q.Type {
	case models.QuestionSentence, models.QuestionParagraph:
		text, ok := raw.(string)
		if !ok {
			return nil, "expected text"
		}
		if q.Min != nil && float64(len(text)) < *q.Min {
			return nil, fmt.Sprintf("must be at least %.0f characters", *q.Min)
		}
		if q.Max != nil && float64(len(text)) > *q.Max {
			return nil, fmt.Sprintf("must be at most %.0f characters", *q.Max)
		}
		if q.Regex != nil && *q.Regex != "" {
			re, err := regexp.Compile(*q.Regex)
			if err != nil {
				return nil, "question has an invalid pattern"
			}
			if !re.MatchString(text) {
				return nil, "does not match the expected format"
			}
		}
		return text, ""

	case models.QuestionNumber:
		number, ok := raw.(float64)
		if !ok {
			// Integers survive some decoders un-floated.
			if n, isInt := raw.(int); isInt {
				number, ok = float64(n), true
			}
		}
		if !ok {
			return nil, "expected a number"
		}
		if q.Min != nil && number < *q.Min {
			return nil, fmt.Sprintf("must be at least %g", *q.Min)
		}
		if q.Max != nil && number > *q.Max {
			return nil, fmt.Sprintf("must be at most %g", *q.Max)
		}
		return number, ""

	case models.QuestionCheckbox:
		b, ok := raw.(bool)
		if !ok {
			return nil, "expected true or false"
		}
		return b, ""

	case models.QuestionDropdown:
		choice, ok := raw.(string)
		if !ok {
			return nil, "expected a choice"
		}
		if !optionOf(q, choice) {
			return nil, "not one of the allowed options"
		}
		return choice, ""

	case models.QuestionMultiple:
		choices, problem := stringSliceOf(raw)
		if problem != "" {
			return nil, problem
		}
		for _, c := range choices {
			if !optionOf(q, c) {
				return nil, fmt.Sprintf("%q is not one of the allowed options", c)
			}
		}
		return choices, ""
	}
	return nil, "unknown question type"
}

func checkDefinition(q *models.Question) error {
	q.Label = strings.TrimSpace(q.Label)
	if q.Label == "" {
		return apperr.Validation("question label must not be empty")
	}
	switch q.Type {
	case models.QuestionSentence, models.QuestionParagraph, models.QuestionNumber,
		models.QuestionCheckbox:
	case models.QuestionDropdown, models.QuestionMultiple:
		if len(q.Options) == 0 {
			return apperr.Validation("choice questions need at least one option")
		}
	default:
		return apperr.Validation("unknown question type %q", q.Type)
	}
	if q.Regex != nil && *q.Regex != "" {
		if _, err := regexp.Compile(*q.Regex); err != nil {
			return apperr.Validation("invalid question pattern: %v", err)
		}
	}
	if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
		return apperr.Validation("min must not exceed max")
	}
	return nil
}

func optionOf(q models.Question, choice string) bool {
	for _, o := range q.Options {
		if o == choice {
			return true
		}
	}
	return false
}

// stringSliceOf coerces a multiselect answer. JSON decoding yields
// []any; stored answers round-trip as []string.
func stringSliceOf(raw any) ([]string, string) {
	switch v := raw.(type) {
	case []string:
		return v, ""
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, "expected a list of choices"
			}
			out = append(out, s)
		}
		return out, ""
	}
	return nil, "expected a list of choices"
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}
