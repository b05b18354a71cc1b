package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"hackreg/apperr"
)

var validate = validator.New()

// ValidateStruct runs tag-based validation on a request body and folds
// failures into one readable validation error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var problems []string
	for _, err := range err.(validator.ValidationErrors) {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			problems = append(problems, field+" is required")
		case "min":
			problems = append(problems, field+" must be at least "+param+" characters")
		case "max":
			problems = append(problems, field+" must be at most "+param+" characters")
		case "email":
			problems = append(problems, field+" must be a valid email")
		default:
			problems = append(problems, field+" is invalid")
		}
	}

	return apperr.Validation("%s", strings.Join(problems, ", "))
}
