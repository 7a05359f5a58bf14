package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// -----------------------------------------------------------------------------
// Subtopic Methods
// -----------------------------------------------------------------------------

// FindSubtopicsMissingContent returns content-less subtopics of a course ordered by unit
// position, then subtopic position.
func (db *DB) FindSubtopicsMissingContent(ctx context.Context, courseID uuid.UUID) ([]MissingSubtopic, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT s.id, s.title, s.position, u.id, u.title, u.position
		 FROM subtopics s
		 JOIN units u ON u.id = s.unit_id
		 WHERE u.course_id = $1 AND s.content IS NULL
		 ORDER BY u.position, s.position`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find subtopics missing content: %w", err)
	}
	defer rows.Close()

	var missing []MissingSubtopic
	for rows.Next() {
		var m MissingSubtopic
		if err := rows.Scan(&m.ID, &m.Title, &m.Position, &m.UnitID, &m.UnitTitle, &m.UnitPosition); err != nil {
			return nil, err
		}
		missing = append(missing, m)
	}
	return missing, rows.Err()
}

// CountSubtopicsMissingContent counts content-less subtopics of a course
func (db *DB) CountSubtopicsMissingContent(ctx context.Context, courseID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM subtopics s
		 JOIN units u ON u.id = s.unit_id
		 WHERE u.course_id = $1 AND s.content IS NULL`,
		courseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subtopics missing content: %w", err)
	}
	return n, nil
}

// UpdateSubtopicContent stores generated content. Content that is already set is left
// alone; the boolean reports whether this call wrote it.
func (db *DB) UpdateSubtopicContent(ctx context.Context, subtopicID uuid.UUID, content types.SubtopicContent, generatedAt time.Time) (bool, error) {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return false, fmt.Errorf("failed to marshal content: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE subtopics SET content = $2, content_generated_at = $3
		 WHERE id = $1 AND content IS NULL`,
		subtopicID, contentJSON, generatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subtopic content: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnitSubtopics returns the subtopics of a unit ordered by position
func (db *DB) ListUnitSubtopics(ctx context.Context, unitID uuid.UUID) ([]Subtopic, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, unit_id, title, position, content, content_generated_at
		 FROM subtopics WHERE unit_id = $1 ORDER BY position`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit subtopics: %w", err)
	}
	defer rows.Close()

	subtopics := []Subtopic{}
	for rows.Next() {
		var s Subtopic
		if err := rows.Scan(&s.ID, &s.UnitID, &s.Title, &s.Position, &s.Content, &s.ContentGeneratedAt); err != nil {
			return nil, err
		}
		subtopics = append(subtopics, s)
	}
	return subtopics, rows.Err()
}

// GetSubtopicContext locates a subtopic. Returns nil, nil when it does not exist.
func (db *DB) GetSubtopicContext(ctx context.Context, subtopicID uuid.UUID) (*SubtopicContext, error) {
	var sc SubtopicContext
	err := db.pool.QueryRow(ctx,
		`SELECT s.id, u.id, u.title, u.position, u.course_id
		 FROM subtopics s
		 JOIN units u ON u.id = s.unit_id
		 WHERE s.id = $1`,
		subtopicID,
	).Scan(&sc.SubtopicID, &sc.UnitID, &sc.UnitTitle, &sc.UnitPosition, &sc.CourseID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subtopic: %w", err)
	}
	return &sc, nil
}

// ListGeneratedSince returns subtopics with content generated strictly after since,
// oldest first. A nil since returns every generated subtopic.
func (db *DB) ListGeneratedSince(ctx context.Context, courseID uuid.UUID, since *time.Time) ([]GeneratedSubtopic, error) {
	query := `SELECT s.id, s.title, s.content, s.content_generated_at, u.title
	          FROM subtopics s
	          JOIN units u ON u.id = s.unit_id
	          WHERE u.course_id = $1 AND s.content IS NOT NULL AND s.content_generated_at IS NOT NULL`
	args := []interface{}{courseID}

	if since != nil {
		query += " AND s.content_generated_at > $2"
		args = append(args, *since)
	}
	query += " ORDER BY s.content_generated_at, u.position, s.position"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated subtopics: %w", err)
	}
	defer rows.Close()

	generated := []GeneratedSubtopic{}
	for rows.Next() {
		var g GeneratedSubtopic
		if err := rows.Scan(&g.ID, &g.Title, &g.Content, &g.ContentGeneratedAt, &g.UnitTitle); err != nil {
			return nil, err
		}
		generated = append(generated, g)
	}
	return generated, rows.Err()
}
