package questions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hackreg/apperr"
	"hackreg/models"
	"hackreg/utils"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Question{}))
	return NewService(db)
}

func addQuestion(t *testing.T, s *Service, label string, qt models.QuestionType) *models.Question {
	t.Helper()
	q, err := s.Create(models.Question{Label: label, Type: qt})
	require.NoError(t, err)
	return q
}

func labels(t *testing.T, s *Service) []string {
	t.Helper()
	schema, err := s.List()
	require.NoError(t, err)
	out := make([]string, 0, len(schema))
	for _, q := range schema {
		out = append(out, q.Label)
	}
	return out
}

func TestCreateAppendsWithGaps(t *testing.T) {
	s := newTestService(t)
	first := addQuestion(t, s, "first", models.QuestionSentence)
	second := addQuestion(t, s, "second", models.QuestionParagraph)

	assert.Equal(t, orderGap, first.Order)
	assert.Equal(t, 2*orderGap, second.Order)
	assert.Equal(t, []string{"first", "second"}, labels(t, s))
}

func TestCreateValidatesDefinition(t *testing.T) {
	s := newTestService(t)

	_, err := s.Create(models.Question{Label: "  ", Type: models.QuestionSentence})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Create(models.Question{Label: "pick", Type: models.QuestionDropdown})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Create(models.Question{Label: "bad", Type: "MYSTERY"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Create(models.Question{
		Label: "bad pattern", Type: models.QuestionSentence,
		Regex: utils.Pointer("("),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMoveAssignsMidpoint(t *testing.T) {
	s := newTestService(t)
	addQuestion(t, s, "a", models.QuestionSentence)
	addQuestion(t, s, "b", models.QuestionSentence)
	third := addQuestion(t, s, "c", models.QuestionSentence)

	require.NoError(t, s.Move(third.ID, 1))
	assert.Equal(t, []string{"a", "c", "b"}, labels(t, s))

	var moved models.Question
	require.NoError(t, s.DB.First(&moved, "id = ?", third.ID).Error)
	assert.Equal(t, orderGap+orderGap/2, moved.Order)
}

func TestMoveToEnds(t *testing.T) {
	s := newTestService(t)
	first := addQuestion(t, s, "a", models.QuestionSentence)
	addQuestion(t, s, "b", models.QuestionSentence)
	last := addQuestion(t, s, "c", models.QuestionSentence)

	require.NoError(t, s.Move(last.ID, 0))
	assert.Equal(t, []string{"c", "a", "b"}, labels(t, s))

	require.NoError(t, s.Move(first.ID, 2))
	assert.Equal(t, []string{"c", "b", "a"}, labels(t, s))
}

func TestMoveRenumbersWhenGapExhausted(t *testing.T) {
	s := newTestService(t)
	addQuestion(t, s, "a", models.QuestionSentence)
	b := addQuestion(t, s, "b", models.QuestionSentence)
	c := addQuestion(t, s, "c", models.QuestionSentence)

	// Alternately squeezing b and c into the second slot halves the
	// available gap every round, forcing a renumber well before 12
	// iterations; ordering must survive throughout.
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Move(c.ID, 1))
		require.NoError(t, s.Move(b.ID, 1))
	}
	assert.Equal(t, []string{"a", "b", "c"}, labels(t, s))

	schema, err := s.List()
	require.NoError(t, err)
	for i := 1; i < len(schema); i++ {
		assert.Greater(t, schema[i].Order, schema[i-1].Order)
	}
}

func TestDeleteUnknownQuestion(t *testing.T) {
	s := newTestService(t)
	err := s.Delete("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestValidateAnswersTypes(t *testing.T) {
	s := newTestService(t)
	sentence, err := s.Create(models.Question{
		Label: "name", Type: models.QuestionSentence, Required: true,
		Min: utils.Pointer(2.0), Max: utils.Pointer(10.0),
	})
	require.NoError(t, err)
	number, err := s.Create(models.Question{
		Label: "age", Type: models.QuestionNumber,
		Min: utils.Pointer(18.0), Max: utils.Pointer(120.0),
	})
	require.NoError(t, err)
	dropdown, err := s.Create(models.Question{
		Label: "shirt", Type: models.QuestionDropdown,
		Options: models.StringSlice{"S", "M", "L"},
	})
	require.NoError(t, err)
	multi, err := s.Create(models.Question{
		Label: "diet", Type: models.QuestionMultiple,
		Options: models.StringSlice{"vegan", "halal", "kosher"},
	})
	require.NoError(t, err)

	problems, clean, err := s.ValidateAnswers(models.AnswerMap{
		sentence.ID: "Ada",
		number.ID:   float64(30),
		dropdown.ID: "M",
		multi.ID:    []any{"vegan", "halal"},
		"unknown":   "dropped",
	})
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, "Ada", clean[sentence.ID])
	assert.Equal(t, float64(30), clean[number.ID])
	assert.Equal(t, "M", clean[dropdown.ID])
	assert.Equal(t, []string{"vegan", "halal"}, clean[multi.ID])
	assert.NotContains(t, clean, "unknown")
}

func TestValidateAnswersProblems(t *testing.T) {
	s := newTestService(t)
	required, err := s.Create(models.Question{
		Label: "name", Type: models.QuestionSentence, Required: true,
	})
	require.NoError(t, err)
	number, err := s.Create(models.Question{
		Label: "age", Type: models.QuestionNumber, Min: utils.Pointer(18.0),
	})
	require.NoError(t, err)
	dropdown, err := s.Create(models.Question{
		Label: "shirt", Type: models.QuestionDropdown,
		Options: models.StringSlice{"S", "M"},
	})
	require.NoError(t, err)

	problems, clean, err := s.ValidateAnswers(models.AnswerMap{
		number.ID:   float64(12),
		dropdown.ID: "XXL",
	})
	require.NoError(t, err)
	assert.Contains(t, problems, required.ID)
	assert.Contains(t, problems, number.ID)
	assert.Contains(t, problems, dropdown.ID)
	assert.Empty(t, clean)
}

func TestValidateAnswersRegex(t *testing.T) {
	s := newTestService(t)
	q, err := s.Create(models.Question{
		Label: "github", Type: models.QuestionSentence,
		Regex: utils.Pointer(`^[a-z0-9-]+$`),
	})
	require.NoError(t, err)

	problems, _, err := s.ValidateAnswers(models.AnswerMap{q.ID: "valid-handle"})
	require.NoError(t, err)
	assert.Empty(t, problems)

	problems, _, err = s.ValidateAnswers(models.AnswerMap{q.ID: "Not Valid!"})
	require.NoError(t, err)
	assert.Contains(t, problems, q.ID)
}

func TestValidateAnswersBlankOptionalSkipped(t *testing.T) {
	s := newTestService(t)
	q, err := s.Create(models.Question{Label: "bio", Type: models.QuestionParagraph})
	require.NoError(t, err)

	problems, clean, err := s.ValidateAnswers(models.AnswerMap{q.ID: "   "})
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.NotContains(t, clean, q.ID)
}
