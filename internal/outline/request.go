package outline

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
)

// Request is the body of an outline generation call.
type Request struct {
	Title         string `json:"title" validate:"required,min=3,max=200"`
	Description   string `json:"description" validate:"required,min=10,max=2000"`
	NumUnits      int    `json:"numUnits" validate:"min=1,max=20"`
	Difficulty    string `json:"difficulty" validate:"required,oneof=Beginner Intermediate Advanced"`
	IncludeVideos bool   `json:"includeVideos"`
	Provider      string `json:"provider,omitempty"`
	Model         string `json:"model,omitempty"`
}

// UnmarshalJSON accepts the camelCase fields and their snake_case aliases
// (course_title, num_units, include_videos, include_youtube). camelCase wins when both are set.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title          *string `json:"title"`
		CourseTitle    *string `json:"course_title"`
		Description    string  `json:"description"`
		NumUnits       *int    `json:"numUnits"`
		NumUnitsSnake  *int    `json:"num_units"`
		Difficulty     string  `json:"difficulty"`
		IncludeVideos  *bool   `json:"includeVideos"`
		IncludeSnake   *bool   `json:"include_videos"`
		IncludeYoutube *bool   `json:"include_youtube"`
		Provider       string  `json:"provider"`
		Model          string  `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Request{
		Title:         strings.TrimSpace(deref(first(raw.Title, raw.CourseTitle))),
		Description:   strings.TrimSpace(raw.Description),
		NumUnits:      deref(first(raw.NumUnits, raw.NumUnitsSnake)),
		Difficulty:    strings.TrimSpace(raw.Difficulty),
		IncludeVideos: deref(first(raw.IncludeVideos, raw.IncludeSnake, raw.IncludeYoutube)),
		Provider:      strings.TrimSpace(raw.Provider),
		Model:         strings.TrimSpace(raw.Model),
	}
	return nil
}

func first[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request and returns a *schemas.ValidationError listing every
// offending field.
func (r *Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &schemas.ValidationError{}
	for _, fe := range fieldErrs {
		ve.Errors = append(ve.Errors, schemas.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return ve
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "failed " + fe.Tag() + " validation"
}
