package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// ErrGenerationInProgress is returned when a structural change is attempted while a
// generation run owns the course.
var ErrGenerationInProgress = errors.New("content generation is in progress for this course")

const courseColumns = `id, created_by, title, description, difficulty, include_videos, is_public,
	status, outline_json, outline_generated_at, created_at`

func scanCourse(row pgx.Row) (*Course, error) {
	var c Course
	var outlineJSON []byte
	if err := row.Scan(&c.ID, &c.CreatedBy, &c.Title, &c.Description, &c.Difficulty,
		&c.IncludeVideos, &c.IsPublic, &c.Status, &outlineJSON, &c.OutlineGeneratedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if outlineJSON != nil {
		var o types.Outline
		if err := json.Unmarshal(outlineJSON, &o); err != nil {
			return nil, fmt.Errorf("failed to decode outline: %w", err)
		}
		c.Outline = &o
	}
	return &c, nil
}

// -----------------------------------------------------------------------------
// Course Methods
// -----------------------------------------------------------------------------

// CreateCourseWithOutline inserts the course, its units and subtopics and a pending
// generation status row in a single transaction.
func (db *DB) CreateCourseWithOutline(ctx context.Context, input *CourseInput) (*Course, error) {
	if input.Outline == nil {
		return nil, fmt.Errorf("outline is required")
	}
	outlineJSON, err := json.Marshal(input.Outline)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outline: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	course, err := scanCourse(tx.QueryRow(ctx,
		`INSERT INTO courses (created_by, title, description, difficulty, include_videos, status,
		                      outline_json, outline_generated_at, is_public)
		 VALUES ($1, $2, $3, $4, $5, 'draft', $6, NOW(), TRUE)
		 RETURNING `+courseColumns,
		input.CreatedBy, input.Title, input.Description, input.Difficulty, input.IncludeVideos, outlineJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	if err := insertStructure(ctx, tx, course.ID, input.Outline); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, upsertGenerationStatusSQL,
		course.ID, GenerationPending, input.Outline.SubtopicCount(), 0); err != nil {
		return nil, fmt.Errorf("failed to initialise generation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit course: %w", err)
	}
	return course, nil
}

// insertStructure writes unit rows and queues all subtopic inserts of a unit as one batch.
func insertStructure(ctx context.Context, tx pgx.Tx, courseID uuid.UUID, outline *types.Outline) error {
	for _, u := range outline.Units {
		var unitID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO units (course_id, title, position) VALUES ($1, $2, $3) RETURNING id`,
			courseID, u.Title, u.Position,
		).Scan(&unitID)
		if err != nil {
			return fmt.Errorf("failed to insert unit %d: %w", u.Position, err)
		}

		batch := &pgx.Batch{}
		for i, title := range u.Subtopics {
			batch.Queue(`INSERT INTO subtopics (unit_id, title, position) VALUES ($1, $2, $3)`,
				unitID, title, i+1)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert subtopics for unit %d: %w", u.Position, err)
		}
	}
	return nil
}

// GetCourse retrieves a course by ID. Returns nil, nil when it does not exist.
func (db *DB) GetCourse(ctx context.Context, courseID uuid.UUID) (*Course, error) {
	course, err := scanCourse(db.pool.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, courseID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// ListPublicCourses returns public courses, newest first
func (db *DB) ListPublicCourses(ctx context.Context) ([]Course, error) {
	return db.listCourses(ctx, "list public courses",
		`SELECT `+courseColumns+` FROM courses WHERE is_public = TRUE ORDER BY created_at DESC`)
}

// ListCoursesByCreator returns the courses a user created, newest first
func (db *DB) ListCoursesByCreator(ctx context.Context, userID uuid.UUID) ([]Course, error) {
	return db.listCourses(ctx, "list courses by creator",
		`SELECT `+courseColumns+` FROM courses WHERE created_by = $1 ORDER BY created_at DESC`, userID)
}

// ListEnrolledCourses returns the courses a user is enrolled in, most recent enrollment first
func (db *DB) ListEnrolledCourses(ctx context.Context, userID uuid.UUID) ([]Course, error) {
	return db.listCourses(ctx, "list enrolled courses",
		`SELECT c.id, c.created_by, c.title, c.description, c.difficulty, c.include_videos, c.is_public,
		        c.status, c.outline_json, c.outline_generated_at, c.created_at
		 FROM user_courses uc
		 JOIN courses c ON c.id = uc.course_id
		 WHERE uc.user_id = $1
		 ORDER BY uc.joined_at DESC`, userID)
}

func (db *DB) listCourses(ctx context.Context, op, query string, args ...any) ([]Course, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	courses := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", op, err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

// Enroll adds the user to the course. Returns false when already enrolled.
func (db *DB) Enroll(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO user_courses (user_id, course_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enroll: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsEnrolled reports whether the user is enrolled in the course
func (db *DB) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_courses WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}

// ReplaceOutline swaps the course structure for a new outline, discarding generated
// content, and resets generation status to pending. Fails with ErrGenerationInProgress
// while a run holds the course.
func (db *DB) ReplaceOutline(ctx context.Context, courseID uuid.UUID, outline *types.Outline) error {
	outlineJSON, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("failed to marshal outline: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM course_generation_status WHERE course_id = $1 FOR UPDATE`, courseID,
	).Scan(&status)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("failed to lock generation status: %w", err)
	}
	if status == GenerationInProgress {
		return ErrGenerationInProgress
	}

	if _, err := tx.Exec(ctx, `DELETE FROM units WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("failed to clear units: %w", err)
	}
	if err := insertStructure(ctx, tx, courseID, outline); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE courses SET outline_json = $2, outline_generated_at = NOW(), status = 'draft' WHERE id = $1`,
		courseID, outlineJSON,
	); err != nil {
		return fmt.Errorf("failed to update outline: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertGenerationStatusSQL,
		courseID, GenerationPending, outline.SubtopicCount(), 0); err != nil {
		return fmt.Errorf("failed to reset generation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit outline: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Unit Methods
// -----------------------------------------------------------------------------

// ListUnits returns the units of a course ordered by position
func (db *DB) ListUnits(ctx context.Context, courseID uuid.UUID) ([]Unit, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, course_id, title, position FROM units WHERE course_id = $1 ORDER BY position`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.CourseID, &u.Title, &u.Position); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// NextUnit returns the unit following position in the course, or nil at the end.
func (db *DB) NextUnit(ctx context.Context, courseID uuid.UUID, position int) (*Unit, error) {
	var u Unit
	err := db.pool.QueryRow(ctx,
		`SELECT id, course_id, title, position FROM units
		 WHERE course_id = $1 AND position > $2
		 ORDER BY position LIMIT 1`,
		courseID, position,
	).Scan(&u.ID, &u.CourseID, &u.Title, &u.Position)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next unit: %w", err)
	}
	return &u, nil
}

// ListUnitsWithSubtopics returns the full course structure with content, ordered by
// unit position then subtopic position.
func (db *DB) ListUnitsWithSubtopics(ctx context.Context, courseID uuid.UUID) ([]UnitWithSubtopics, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT u.id, u.course_id, u.title, u.position,
		        s.id, s.title, s.position, s.content, s.content_generated_at
		 FROM units u
		 LEFT JOIN subtopics s ON s.unit_id = u.id
		 WHERE u.course_id = $1
		 ORDER BY u.position, s.position`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list course structure: %w", err)
	}
	defer rows.Close()

	units := []UnitWithSubtopics{}
	for rows.Next() {
		var u Unit
		var (
			subID    *uuid.UUID
			subTitle *string
			subPos   *int
			s        Subtopic
		)
		if err := rows.Scan(&u.ID, &u.CourseID, &u.Title, &u.Position,
			&subID, &subTitle, &subPos, &s.Content, &s.ContentGeneratedAt); err != nil {
			return nil, err
		}

		if len(units) == 0 || units[len(units)-1].ID != u.ID {
			units = append(units, UnitWithSubtopics{Unit: u, Subtopics: []Subtopic{}})
		}
		if subID == nil {
			continue
		}
		s.ID, s.UnitID, s.Title, s.Position = *subID, u.ID, *subTitle, *subPos
		last := &units[len(units)-1]
		last.Subtopics = append(last.Subtopics, s)
	}
	return units, rows.Err()
}
