package server

import (
	"errors"
	"net/http"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
)

// ErrAlreadyEnrolled is returned when a user enrolls in a course twice.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation  *schemas.ValidationError
		unsupported *llm.UnsupportedProviderError
		forbidden   *generation.ForbiddenError
		notFound    *generation.NotFoundError
		conflict    *generation.ConflictError
		output      *llm.ProviderOutputError
		apiCall     *llm.APICallError
		units       *outline.InsufficientUnitsError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &unsupported), errors.Is(err, generation.ErrNoUnits):
		return http.StatusBadRequest
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, db.ErrGenerationInProgress), errors.Is(err, ErrAlreadyEnrolled):
		return http.StatusConflict
	case errors.As(err, &output), errors.As(err, &apiCall), errors.As(err, &units):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error envelope. Fields is set for validation failures.
type errorBody struct {
	Error  string         `json:"error"`
	Fields map[string]any `json:"fields,omitempty"`
}

// errorBodyFor builds the response body for err. Internal errors are not echoed to clients.
func errorBodyFor(err error, status int) errorBody {
	var validation *schemas.ValidationError
	switch {
	case errors.As(err, &validation):
		return errorBody{Error: "Validation Failed", Fields: validation.Tree()}
	case status == http.StatusInternalServerError:
		return errorBody{Error: "Internal server error"}
	case status == http.StatusBadGateway:
		var units *outline.InsufficientUnitsError
		if errors.As(err, &units) {
			return errorBody{Error: "LLM returned fewer units than requested. Try again."}
		}
		return errorBody{Error: "LLM provider failed: " + err.Error()}
	}
	return errorBody{Error: err.Error()}
}
