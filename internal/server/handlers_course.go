package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
	"github.com/codeW-Krish/ai-course-backend/internal/server/middleware"
)

// -----------------------------------------------------------------------------
// Request helpers
// -----------------------------------------------------------------------------

// pathID parses the {name} path value as a UUID.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, schemas.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return schemas.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
}

// userID returns the authenticated caller. Routes are wrapped in AuthMiddleware, so a
// missing user is a wiring bug.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := middleware.GetUserID(r)
	if err != nil {
		s.jsonResponse(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return uuid.Nil, false
	}
	return id, true
}

// -----------------------------------------------------------------------------
// Course listing
// -----------------------------------------------------------------------------

func (s *Server) handleListPublicCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.courses.ListPublicCourses(r.Context())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleMyCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courses, err := s.courses.ListCoursesByCreator(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"myCourses": courses})
}

func (s *Server) handleEnrolledCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courses, err := s.courses.ListEnrolledCourses(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"enrolledCourses": courses})
}

// -----------------------------------------------------------------------------
// Outline authoring
// -----------------------------------------------------------------------------

func (s *Server) handleGenerateOutline(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req outline.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	course, err := s.outlines.Generate(r.Context(), userID, &req)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"courseId": course.ID,
		"status":   course.Status,
		"outline":  course.Outline,
	})
}

func (s *Server) handleUpdateOutline(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	var body struct {
		Outline any `json:"outline"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if body.Outline == nil {
		s.errorResponse(w, r, schemas.NewValidationError("outline", "is required"))
		return
	}

	updated, err := s.outlines.Update(r.Context(), userID, courseID, body.Outline)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"ok":       true,
		"courseId": courseID,
		"outline":  updated,
		"status":   db.CourseStatusDraft,
	})
}

// -----------------------------------------------------------------------------
// Enrollment and course view
// -----------------------------------------------------------------------------

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	course, err := s.courses.GetCourse(r.Context(), courseID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if course == nil {
		s.errorResponse(w, r, &generation.NotFoundError{Resource: "course", ID: courseID})
		return
	}

	added, err := s.courses.Enroll(r.Context(), userID, courseID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if !added {
		s.errorResponse(w, r, ErrAlreadyEnrolled)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Enrolled successfully"})
}

// courseView is the full course with its units, subtopics and generated content.
type courseView struct {
	Course    *db.Course             `json:"course"`
	Units     []db.UnitWithSubtopics `json:"units"`
	Remaining int                    `json:"remaining_subtopics"`
}

// handleCourseFull returns the whole course to its owner or an enrolled user.
func (s *Server) handleCourseFull(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ctx := r.Context()
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if course == nil {
		s.errorResponse(w, r, &generation.NotFoundError{Resource: "course", ID: courseID})
		return
	}
	if course.CreatedBy != userID {
		enrolled, err := s.courses.IsEnrolled(ctx, userID, courseID)
		if err != nil {
			s.errorResponse(w, r, err)
			return
		}
		if !enrolled {
			s.errorResponse(w, r, &generation.ForbiddenError{CourseID: courseID, UserID: userID})
			return
		}
	}

	view := courseView{Course: course}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		units, err := s.courses.ListUnitsWithSubtopics(gCtx, courseID)
		view.Units = units
		return err
	})
	g.Go(func() error {
		remaining, err := s.courses.CountSubtopicsMissingContent(gCtx, courseID)
		view.Remaining = remaining
		return err
	})
	if err := g.Wait(); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}
