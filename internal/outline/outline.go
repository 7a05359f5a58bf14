// Package outline generates course outlines with the LLM provider and persists them as
// courses with their unit and subtopic rows.
package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/content"
	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
	"github.com/codeW-Krish/ai-course-backend/internal/prompts"
	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// Store is the persistence the outline service needs. *db.DB implements it.
type Store interface {
	CreateCourseWithOutline(ctx context.Context, input *db.CourseInput) (*db.Course, error)
	GetCourse(ctx context.Context, courseID uuid.UUID) (*db.Course, error)
	ReplaceOutline(ctx context.Context, courseID uuid.UUID, outline *types.Outline) error
}

// promptInput is the provider payload for an outline.
type promptInput struct {
	CourseTitle    string `json:"course_title"`
	Description    string `json:"description"`
	NumUnits       int    `json:"num_units"`
	Difficulty     string `json:"difficulty"`
	IncludeYoutube bool   `json:"include_youtube"`
}

// Service creates and updates course outlines.
type Service struct {
	store     Store
	providers generation.Providers
	log       *logger.Logger
}

// NewService creates an outline service.
func NewService(store Store, providers generation.Providers, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, providers: providers, log: log}
}

// Draft validates req and asks the provider for an outline with exactly req.NumUnits
// units. Nothing is stored.
func (s *Service) Draft(ctx context.Context, req *Request) (*types.Outline, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	client, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	raw, err := client.Generate(ctx, llm.Request{
		SystemPrompt: prompts.Outline(req.NumUnits),
		Input: promptInput{
			CourseTitle:    req.Title,
			Description:    req.Description,
			NumUnits:       req.NumUnits,
			Difficulty:     req.Difficulty,
			IncludeYoutube: req.IncludeVideos,
		},
		Tier:  llm.TierAdvanced,
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	// Units past the requested count are dropped unvalidated
	raw, got := content.TruncateUnits(raw, req.NumUnits)
	if got >= 0 && got < req.NumUnits {
		return nil, &InsufficientUnitsError{Requested: req.NumUnits, Returned: got}
	}

	outline, err := content.ParseOutline(raw)
	if err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, &llm.ProviderOutputError{Provider: client.Name(), Cause: err}
		}
		return nil, err
	}
	if err := EnforceUnitCount(outline, req.NumUnits); err != nil {
		return nil, err
	}
	if outline.Difficulty == "" {
		outline.Difficulty = req.Difficulty
	}
	return outline, nil
}

// Generate drafts an outline for req and stores it as a new draft course owned by userID.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, req *Request) (*db.Course, error) {
	outline, err := s.Draft(ctx, req)
	if err != nil {
		return nil, err
	}

	course, err := s.store.CreateCourseWithOutline(ctx, &db.CourseInput{
		CreatedBy:     userID,
		Title:         req.Title,
		Description:   req.Description,
		Difficulty:    req.Difficulty,
		IncludeVideos: req.IncludeVideos,
		Outline:       outline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store course: %w", err)
	}

	s.log.Info("course outline created",
		"course_id", course.ID, "provider", req.Provider, "units", len(outline.Units), "subtopics", outline.SubtopicCount())
	return course, nil
}

// Update replaces the outline of a course owned by userID. raw is the decoded JSON of the
// new outline and is held to the same contract as provider output.
func (s *Service) Update(ctx context.Context, userID, courseID uuid.UUID, raw any) (*types.Outline, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, &generation.NotFoundError{Resource: "course", ID: courseID}
	}
	if course.CreatedBy != userID {
		return nil, &generation.ForbiddenError{CourseID: courseID, UserID: userID}
	}

	outline, err := content.ParseOutline(raw)
	if err != nil {
		return nil, err
	}
	renumber(outline)

	if err := s.store.ReplaceOutline(ctx, courseID, outline); err != nil {
		return nil, err
	}
	s.log.Info("course outline replaced", "course_id", courseID, "units", len(outline.Units))
	return outline, nil
}

// EnforceUnitCount truncates an outline to want units and renumbers positions 1..want.
// An outline with fewer units fails with *InsufficientUnitsError.
func EnforceUnitCount(outline *types.Outline, want int) error {
	if got := len(outline.Units); got < want {
		return &InsufficientUnitsError{Requested: want, Returned: got}
	}
	outline.Units = outline.Units[:want]
	renumber(outline)
	return nil
}

func renumber(outline *types.Outline) {
	for i := range outline.Units {
		outline.Units[i].Position = i + 1
	}
}
