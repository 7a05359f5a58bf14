package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/codeW-Krish/ai-course-backend/internal/config"
	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
)

// Trigger outcomes reported to callers.
const (
	StatusIdle       = "idle"
	StatusInProgress = db.GenerationInProgress
	StatusCompleted  = db.GenerationCompleted
)

// Providers resolves a provider name to a client. *llm.Registry implements it.
type Providers interface {
	Get(name string) (llm.Client, error)
}

// Options configures the Service.
type Options struct {
	SyncUnits         int
	MaxConcurrentRuns int
	StaleRunAfter     time.Duration
	RetryPolicy       string
}

// OptionsFromConfig maps generation config onto service options.
func OptionsFromConfig(cfg config.GenerationConfig) Options {
	return Options{
		SyncUnits:         cfg.SyncUnits,
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		StaleRunAfter:     cfg.StaleRunAfter,
		RetryPolicy:       cfg.RetryPolicy,
	}
}

// TriggerResult is returned by Trigger and Retry.
type TriggerResult struct {
	Message   string `json:"message,omitempty"`
	Units     int    `json:"units,omitempty"`
	Remaining int    `json:"remaining_subtopics"`
	Status    string `json:"status"`
}

// StatusReport is the polling view of a course's generation.
type StatusReport struct {
	db.GenerationStatus
	Subtopics []db.GeneratedSubtopic `json:"subtopics"`
}

// AroundResult is the content around a clicked subtopic.
type AroundResult struct {
	ClickedSubtopicID uuid.UUID     `json:"clickedSubtopicId"`
	Siblings          []db.Subtopic `json:"siblings"`
	NextUnitSubtopics []db.Subtopic `json:"nextUnitSubtopics"`
}

// Service is the entry point for content generation. Runs started by Trigger and Retry
// continue after the request returns; Shutdown waits for them.
type Service struct {
	store     Store
	providers Providers
	orch      *Orchestrator
	opts      Options
	runs      *semaphore.Weighted
	wg        sync.WaitGroup
	log       *logger.Logger
}

// NewService creates a generation service. The pacer is shared by every run.
func NewService(store Store, providers Providers, pacer *Pacer, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.SyncUnits < 1 {
		opts.SyncUnits = 1
	}
	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.RetryPolicy == "" {
		opts.RetryPolicy = config.RetryPolicyReject
	}
	return &Service{
		store:     store,
		providers: providers,
		orch:      NewOrchestrator(store, pacer, log),
		opts:      opts,
		runs:      semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		log:       log,
	}
}

// Trigger starts generation for the owner's course. Units up to the sync_units-th are
// generated before returning; the rest continue in the background.
func (s *Service) Trigger(ctx context.Context, userID, courseID uuid.UUID, providerName string) (*TriggerResult, error) {
	course, err := s.ownedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	client, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	units, err := s.store.ListUnits(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	missing, err := s.store.FindSubtopicsMissingContent(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return &TriggerResult{Status: StatusIdle, Remaining: 0}, nil
	}

	runID := uuid.New()
	started, err := s.store.TryStartGeneration(ctx, courseID, runID, len(missing), s.opts.StaleRunAfter)
	if err != nil {
		return nil, err
	}
	if !started {
		return s.busy(ctx, courseID)
	}

	// Runs are not cancelled with the request
	runCtx := context.WithoutCancel(ctx)

	syncUnits := min(s.opts.SyncUnits, len(units))
	head, tail := splitAtUnit(missing, units[syncUnits-1].Position)

	generated, err := s.orch.Run(runCtx, runID, course, client, head, 0)
	if err != nil {
		s.orch.Finish(runCtx, courseID, runID, err)
		if errors.Is(err, ErrRunSuperseded) {
			return nil, &ConflictError{CourseID: courseID}
		}
		return nil, err
	}

	if len(tail) == 0 {
		s.orch.Finish(runCtx, courseID, runID, nil)
		return &TriggerResult{
			Message:   "Course content generated",
			Units:     syncUnits,
			Remaining: 0,
			Status:    StatusCompleted,
		}, nil
	}

	s.detach(runCtx, runID, course, client, tail, generated)
	return &TriggerResult{
		Message:   fmt.Sprintf("Generated the first %d unit(s); remaining content is being generated in the background", syncUnits),
		Units:     syncUnits,
		Remaining: len(tail),
		Status:    StatusInProgress,
	}, nil
}

// Retry regenerates every subtopic still missing content, entirely in the background.
func (s *Service) Retry(ctx context.Context, userID, courseID uuid.UUID, providerName string) (*TriggerResult, error) {
	course, err := s.ownedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	client, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	missing, err := s.store.FindSubtopicsMissingContent(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return &TriggerResult{Status: StatusIdle, Remaining: 0}, nil
	}

	runID := uuid.New()
	started, err := s.store.TryStartGeneration(ctx, courseID, runID, len(missing), s.opts.StaleRunAfter)
	if err != nil {
		return nil, err
	}
	if !started {
		return s.busy(ctx, courseID)
	}

	s.detach(context.WithoutCancel(ctx), runID, course, client, missing, 0)
	return &TriggerResult{
		Message:   "Retrying generation for missing subtopics",
		Remaining: len(missing),
		Status:    StatusInProgress,
	}, nil
}

// Status returns the generation status row and the subtopics generated after since.
func (s *Service) Status(ctx context.Context, userID, courseID uuid.UUID, since *time.Time) (*StatusReport, error) {
	if _, err := s.readableCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}

	status, err := s.store.GetGenerationStatus(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, &NotFoundError{Resource: "generation status", ID: courseID}
	}

	generated, err := s.store.ListGeneratedSince(ctx, courseID, since)
	if err != nil {
		return nil, err
	}
	return &StatusReport{GenerationStatus: *status, Subtopics: generated}, nil
}

// GenerateAround fills missing content for the clicked subtopic's unit and the unit
// after it, synchronously, and returns both units' subtopics as stored afterwards.
func (s *Service) GenerateAround(ctx context.Context, userID, subtopicID uuid.UUID, providerName string) (*AroundResult, error) {
	sc, err := s.store.GetSubtopicContext(ctx, subtopicID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, &NotFoundError{Resource: "subtopic", ID: subtopicID}
	}

	course, err := s.readableCourse(ctx, userID, sc.CourseID)
	if err != nil {
		return nil, err
	}
	client, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	current := db.Unit{ID: sc.UnitID, CourseID: sc.CourseID, Title: sc.UnitTitle, Position: sc.UnitPosition}
	next, err := s.store.NextUnit(ctx, sc.CourseID, sc.UnitPosition)
	if err != nil {
		return nil, err
	}

	units := []db.Unit{current}
	if next != nil {
		units = append(units, *next)
	}

	var missing []db.MissingSubtopic
	for _, u := range units {
		subs, err := s.store.ListUnitSubtopics(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		missing = append(missing, missingOf(u, subs)...)
	}

	if len(missing) > 0 {
		if err := s.orch.generate(context.WithoutCancel(ctx), course, client, missing, nil); err != nil {
			return nil, err
		}
	}

	res := &AroundResult{ClickedSubtopicID: subtopicID, NextUnitSubtopics: []db.Subtopic{}}
	if res.Siblings, err = s.store.ListUnitSubtopics(ctx, current.ID); err != nil {
		return nil, err
	}
	if next != nil {
		if res.NextUnitSubtopics, err = s.store.ListUnitSubtopics(ctx, next.ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Shutdown waits for background runs to finish or ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background generation still running: %w", ctx.Err())
	}
}

// detach continues a started run in the background. At most MaxConcurrentRuns detached
// runs generate at once; the rest wait their turn. A run that was taken over while it
// waited exits without touching the status row.
func (s *Service) detach(ctx context.Context, runID uuid.UUID, course *db.Course, client llm.Client, missing []db.MissingSubtopic, generated int) {
	s.log.Info("continuing generation in background", "course_id", course.ID, "run_id", runID, "remaining", len(missing))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.runs.Acquire(ctx, 1); err != nil {
			s.orch.Finish(ctx, course.ID, runID, err)
			return
		}
		defer s.runs.Release(1)

		held, err := s.store.TouchGeneration(ctx, course.ID, runID)
		if err != nil {
			s.orch.Finish(ctx, course.ID, runID, err)
			return
		}
		if !held {
			s.orch.Finish(ctx, course.ID, runID, ErrRunSuperseded)
			return
		}

		_, err = s.orch.Run(ctx, runID, course, client, missing, generated)
		s.orch.Finish(ctx, course.ID, runID, err)
	}()
}

// busy answers a trigger for a course whose run is already in progress.
func (s *Service) busy(ctx context.Context, courseID uuid.UUID) (*TriggerResult, error) {
	if s.opts.RetryPolicy != config.RetryPolicyJoin {
		return nil, &ConflictError{CourseID: courseID}
	}

	status, err := s.store.GetGenerationStatus(ctx, courseID)
	if err != nil {
		return nil, err
	}
	res := &TriggerResult{Message: "Generation already in progress", Status: StatusInProgress}
	if status != nil {
		res.Remaining = max(status.TotalSubtopics-status.GeneratedSubtopics, 0)
	}
	return res, nil
}

func (s *Service) ownedCourse(ctx context.Context, userID, courseID uuid.UUID) (*db.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, &NotFoundError{Resource: "course", ID: courseID}
	}
	if course.CreatedBy != userID {
		return nil, &ForbiddenError{CourseID: courseID, UserID: userID}
	}
	return course, nil
}

// readableCourse allows the owner and enrolled users.
func (s *Service) readableCourse(ctx context.Context, userID, courseID uuid.UUID) (*db.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, &NotFoundError{Resource: "course", ID: courseID}
	}
	if course.CreatedBy == userID {
		return course, nil
	}

	enrolled, err := s.store.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, &ForbiddenError{CourseID: courseID, UserID: userID}
	}
	return course, nil
}

func missingOf(u db.Unit, subs []db.Subtopic) []db.MissingSubtopic {
	var missing []db.MissingSubtopic
	for _, s := range subs {
		if s.Content != nil {
			continue
		}
		missing = append(missing, db.MissingSubtopic{
			ID:           s.ID,
			Title:        s.Title,
			Position:     s.Position,
			UnitID:       u.ID,
			UnitTitle:    u.Title,
			UnitPosition: u.Position,
		})
	}
	return missing
}
