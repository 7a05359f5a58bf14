package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const upsertGenerationStatusSQL = `
	INSERT INTO course_generation_status (course_id, status, total_subtopics, generated_subtopics, last_updated)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (course_id) DO UPDATE SET
		status = EXCLUDED.status,
		total_subtopics = EXCLUDED.total_subtopics,
		generated_subtopics = EXCLUDED.generated_subtopics,
		last_updated = NOW(),
		run_id = NULL`

// -----------------------------------------------------------------------------
// Generation Status Methods
// -----------------------------------------------------------------------------

// UpsertGenerationStatus writes the status row unconditionally and clears any run token
func (db *DB) UpsertGenerationStatus(ctx context.Context, courseID uuid.UUID, status string, total, generated int) error {
	if _, err := db.pool.Exec(ctx, upsertGenerationStatusSQL, courseID, status, total, generated); err != nil {
		return fmt.Errorf("failed to upsert generation status: %w", err)
	}
	return nil
}

// TryStartGeneration atomically moves the course to in_progress under runID unless
// another run holds it. A holder whose row has not been touched for staleAfter is treated
// as dead and taken over; staleAfter <= 0 disables takeover. On success the course status
// becomes generating. Only the run holding runID may update the row afterwards.
func (db *DB) TryStartGeneration(ctx context.Context, courseID, runID uuid.UUID, total int, staleAfter time.Duration) (bool, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`WITH started AS (
			INSERT INTO course_generation_status (course_id, status, total_subtopics, generated_subtopics, last_updated, run_id)
			VALUES ($1, 'in_progress', $2, 0, NOW(), $4)
			ON CONFLICT (course_id) DO UPDATE SET
				status = 'in_progress',
				total_subtopics = EXCLUDED.total_subtopics,
				generated_subtopics = 0,
				last_updated = NOW(),
				run_id = EXCLUDED.run_id
			WHERE course_generation_status.status <> 'in_progress'
			   OR ($3 > 0 AND course_generation_status.last_updated < NOW() - make_interval(secs => $3))
			RETURNING course_id
		)
		UPDATE courses SET status = 'generating'
		WHERE id IN (SELECT course_id FROM started)
		RETURNING id`,
		courseID, total, staleAfter.Seconds(), runID,
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to start generation: %w", err)
	}
	return true, nil
}

// TouchGeneration refreshes last_updated for the run holding runID. It reports false once
// the run has been taken over or finished.
func (db *DB) TouchGeneration(ctx context.Context, courseID, runID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE course_generation_status SET last_updated = NOW()
		 WHERE course_id = $1 AND run_id = $2 AND status = 'in_progress'`,
		courseID, runID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to touch generation status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetGeneratedCount records progress for the run holding runID. The stored counter never
// moves backwards. It reports false, writing nothing, when runID no longer holds the row.
func (db *DB) SetGeneratedCount(ctx context.Context, courseID, runID uuid.UUID, generated int) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE course_generation_status
		 SET generated_subtopics = LEAST(GREATEST(generated_subtopics, $3), total_subtopics), last_updated = NOW()
		 WHERE course_id = $1 AND run_id = $2 AND status = 'in_progress'`,
		courseID, runID, generated,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update generated count: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishGeneration moves the status row held by runID to a terminal state and mirrors it
// onto the course: completed makes the course ready, anything else marks it failed. It
// reports false, changing nothing, when runID no longer holds the row.
func (db *DB) FinishGeneration(ctx context.Context, courseID, runID uuid.UUID, status string) (bool, error) {
	courseStatus := CourseStatusFailed
	if status == GenerationCompleted {
		courseStatus = CourseStatusReady
	}

	tag, err := db.pool.Exec(ctx,
		`WITH finished AS (
			UPDATE course_generation_status SET status = $3, last_updated = NOW()
			WHERE course_id = $1 AND run_id = $2 AND status = 'in_progress'
			RETURNING course_id
		)
		UPDATE courses SET status = $4 WHERE id IN (SELECT course_id FROM finished)`,
		courseID, runID, status, courseStatus,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish generation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetGenerationStatus returns the status row, or nil, nil when none exists.
func (db *DB) GetGenerationStatus(ctx context.Context, courseID uuid.UUID) (*GenerationStatus, error) {
	var s GenerationStatus
	err := db.pool.QueryRow(ctx,
		`SELECT course_id, status, total_subtopics, generated_subtopics, last_updated
		 FROM course_generation_status WHERE course_id = $1`,
		courseID,
	).Scan(&s.CourseID, &s.Status, &s.TotalSubtopics, &s.GeneratedSubtopics, &s.LastUpdated)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generation status: %w", err)
	}
	return &s, nil
}
