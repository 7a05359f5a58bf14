package generation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoUnits is returned when generation is requested for a course without units.
var ErrNoUnits = errors.New("course has no units")

// ErrRunSuperseded stops a run whose status row was taken over by a newer run.
var ErrRunSuperseded = errors.New("generation run superseded")

// NotFoundError indicates the course, subtopic or status row does not exist.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ForbiddenError indicates the user may not act on the course.
type ForbiddenError struct {
	CourseID uuid.UUID
	UserID   uuid.UUID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s may not access course %s", e.UserID, e.CourseID)
}

// ConflictError indicates a generation run already holds the course.
type ConflictError struct {
	CourseID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("generation already in progress for course %s", e.CourseID)
}
