// Package generation drives lesson content generation for courses: it batches missing
// subtopics, calls the LLM provider, reconciles and persists the results, and tracks
// progress on the course's generation status row.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/content"
	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
	"github.com/codeW-Krish/ai-course-backend/internal/prompts"
	"github.com/codeW-Krish/ai-course-backend/internal/reconcile"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// Store is the persistence the generation service needs. *db.DB implements it.
type Store interface {
	GetCourse(ctx context.Context, courseID uuid.UUID) (*db.Course, error)
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	ListUnits(ctx context.Context, courseID uuid.UUID) ([]db.Unit, error)
	NextUnit(ctx context.Context, courseID uuid.UUID, position int) (*db.Unit, error)
	ListUnitSubtopics(ctx context.Context, unitID uuid.UUID) ([]db.Subtopic, error)
	GetSubtopicContext(ctx context.Context, subtopicID uuid.UUID) (*db.SubtopicContext, error)

	FindSubtopicsMissingContent(ctx context.Context, courseID uuid.UUID) ([]db.MissingSubtopic, error)
	UpdateSubtopicContent(ctx context.Context, subtopicID uuid.UUID, content types.SubtopicContent, generatedAt time.Time) (bool, error)
	ListGeneratedSince(ctx context.Context, courseID uuid.UUID, since *time.Time) ([]db.GeneratedSubtopic, error)

	TryStartGeneration(ctx context.Context, courseID, runID uuid.UUID, total int, staleAfter time.Duration) (bool, error)
	TouchGeneration(ctx context.Context, courseID, runID uuid.UUID) (bool, error)
	SetGeneratedCount(ctx context.Context, courseID, runID uuid.UUID, generated int) (bool, error)
	FinishGeneration(ctx context.Context, courseID, runID uuid.UUID, status string) (bool, error)
	GetGenerationStatus(ctx context.Context, courseID uuid.UUID) (*db.GenerationStatus, error)
}

// batchInput is the provider payload for one batch.
type batchInput struct {
	CourseTitle         string   `json:"course_title"`
	UnitTitle           string   `json:"unit_title"`
	Subtopics           []string `json:"subtopics"`
	Difficulty          string   `json:"difficulty"`
	WantYoutubeKeywords bool     `json:"want_youtube_keywords"`
}

// Orchestrator processes batches of missing subtopics for one course at a time.
// Batches run sequentially. The first batch of a call starts at once; the ones after it
// wait on the shared Pacer.
type Orchestrator struct {
	store  Store
	pacer  *Pacer
	prompt string
	log    *logger.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator using the embedded batch prompt.
func NewOrchestrator(store Store, pacer *Pacer, log *logger.Logger) *Orchestrator {
	if pacer == nil {
		pacer = NewPacer(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		store:  store,
		pacer:  pacer,
		prompt: prompts.Batch(),
		log:    log,
		now:    time.Now,
	}
}

// progressFunc is called after each batch with the number of subtopics it persisted.
type progressFunc func(ctx context.Context, persisted int) error

// Run generates content for missing, which must be ordered by unit position then
// subtopic position, and records the cumulative count on the status row held by runID
// after every batch. generated is the count already produced earlier in the same run. It
// returns the new cumulative count. Provider and validation failures skip the batch; store
// errors are returned, and ErrRunSuperseded once runID no longer holds the row.
func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID, course *db.Course, client llm.Client, missing []db.MissingSubtopic, generated int) (int, error) {
	err := o.generate(ctx, course, client, missing, func(ctx context.Context, persisted int) error {
		generated += persisted
		held, err := o.store.SetGeneratedCount(ctx, course.ID, runID, generated)
		if err != nil {
			return err
		}
		if !held {
			return ErrRunSuperseded
		}
		return nil
	})
	return generated, err
}

// Finish moves the status row held by runID to completed, or failed when runErr is set.
// A superseded run leaves the row to its successor.
func (o *Orchestrator) Finish(ctx context.Context, courseID, runID uuid.UUID, runErr error) {
	if errors.Is(runErr, ErrRunSuperseded) {
		o.log.Warn("generation run superseded, leaving status to the newer run", "course_id", courseID, "run_id", runID)
		return
	}

	status := db.GenerationCompleted
	if runErr != nil {
		status = db.GenerationFailed
		o.log.Error("generation run failed", "course_id", courseID, "run_id", runID, "error", runErr)
	}
	held, err := o.store.FinishGeneration(ctx, courseID, runID, status)
	if err != nil {
		o.log.Error("failed to finalize generation status", "course_id", courseID, "status", status, "error", err)
		return
	}
	if !held {
		o.log.Warn("generation run superseded before finishing", "course_id", courseID, "run_id", runID, "status", status)
		return
	}
	o.log.Info("generation run finished", "course_id", courseID, "run_id", runID, "status", status)
}

func (o *Orchestrator) generate(ctx context.Context, course *db.Course, client llm.Client, missing []db.MissingSubtopic, progress progressFunc) error {
	log := o.log.With("course_id", course.ID, "provider", client.Name())

	first := true
	for _, unit := range groupByUnit(missing) {
		for i, batch := range chunk(unit.Subtopics) {
			if first {
				o.pacer.Take()
				first = false
			} else if err := o.pacer.Wait(ctx); err != nil {
				return fmt.Errorf("pacing interrupted: %w", err)
			}

			persisted, err := o.runBatch(ctx, log, course, client, unit, batch)
			if err != nil {
				return err
			}
			if progress != nil {
				if err := progress(ctx, persisted); err != nil {
					return err
				}
			}
			log.Info("generation batch complete",
				"unit", unit.Position, "batch", i+1, "requested", len(batch), "persisted", persisted)
		}
	}
	return nil
}

// runBatch returns the number of subtopics persisted. A non-nil error is a store failure.
func (o *Orchestrator) runBatch(ctx context.Context, log *logger.Logger, course *db.Course, client llm.Client, unit unitGroup, batch []db.MissingSubtopic) (int, error) {
	input := batchInput{
		CourseTitle:         course.Title,
		UnitTitle:           unit.Title,
		Subtopics:           make([]string, len(batch)),
		Difficulty:          course.Difficulty,
		WantYoutubeKeywords: course.IncludeVideos,
	}
	stubs := make([]reconcile.Stub, len(batch))
	for i, s := range batch {
		input.Subtopics[i] = s.Title
		stubs[i] = reconcile.Stub{ID: s.ID, Title: s.Title}
	}
	if input.Difficulty == "" {
		input.Difficulty = types.DifficultyBeginner
	}

	raw, err := client.Generate(ctx, llm.Request{
		SystemPrompt: o.prompt,
		Input:        input,
		Tier:         llm.TierStandard,
	})
	if err != nil {
		log.Warn("provider call failed, skipping batch", "unit", unit.Position, "error", err)
		return 0, nil
	}

	decoded, err := content.DecodeBatch(raw)
	if err != nil {
		log.Warn("batch response rejected, skipping batch", "unit", unit.Position, "error", err)
		return 0, nil
	}
	for _, r := range decoded.Rejected {
		log.Warn("malformed batch item dropped",
			"unit", unit.Position, "index", r.Index, "subtopic_title", r.SubtopicTitle, "error", r.Err)
	}

	result := reconcile.Reconcile(stubs, decoded.Items)
	for _, d := range result.Dropped {
		log.Warn("batch item not matched to a requested subtopic",
			"unit", unit.Position, "subtopic_title", d.SubtopicTitle, "reason", d.Reason)
	}

	persisted := 0
	for _, m := range result.Matches {
		wrote, err := o.store.UpdateSubtopicContent(ctx, m.SubtopicID, m.Content, o.now())
		if err != nil {
			return persisted, fmt.Errorf("failed to persist subtopic %s: %w", m.SubtopicID, err)
		}
		if !wrote {
			continue
		}
		persisted++

		if course.IncludeVideos && len(m.Content.YoutubeKeywords) > 0 {
			log.Info("queue video search", "subtopic_id", m.SubtopicID, "keywords", m.Content.YoutubeKeywords)
		}
	}
	return persisted, nil
}
