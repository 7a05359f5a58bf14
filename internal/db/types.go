package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// Course status values
const (
	CourseStatusDraft      = "draft"
	CourseStatusGenerating = "generating"
	CourseStatusReady      = "ready"
	CourseStatusFailed     = "failed"
)

// Generation status values
const (
	GenerationPending    = "pending"
	GenerationInProgress = "in_progress"
	GenerationCompleted  = "completed"
	GenerationFailed     = "failed"
)

// Course represents a course record
type Course struct {
	ID                 uuid.UUID      `json:"id"`
	CreatedBy          uuid.UUID      `json:"created_by"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Difficulty         string         `json:"difficulty"`
	IncludeVideos      bool           `json:"include_videos"`
	IsPublic           bool           `json:"is_public"`
	Status             string         `json:"status"`
	Outline            *types.Outline `json:"outline,omitempty"`
	OutlineGeneratedAt *time.Time     `json:"outline_generated_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// CourseInput holds the fields needed to create a course from a generated outline
type CourseInput struct {
	CreatedBy     uuid.UUID
	Title         string
	Description   string
	Difficulty    string
	IncludeVideos bool
	Outline       *types.Outline
}

// Unit represents a unit row
type Unit struct {
	ID       uuid.UUID `json:"id"`
	CourseID uuid.UUID `json:"course_id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
}

// Subtopic represents a subtopic row. Content is null until generated.
type Subtopic struct {
	ID                 uuid.UUID       `json:"id"`
	UnitID             uuid.UUID       `json:"unit_id"`
	Title              string          `json:"title"`
	Position           int             `json:"position"`
	Content            json.RawMessage `json:"content"`
	ContentGeneratedAt *time.Time      `json:"content_generated_at"`
}

// UnitWithSubtopics is a unit and its ordered subtopics
type UnitWithSubtopics struct {
	Unit
	Subtopics []Subtopic `json:"subtopics"`
}

// MissingSubtopic is a subtopic without content, joined with its unit
type MissingSubtopic struct {
	ID           uuid.UUID
	Title        string
	Position     int
	UnitID       uuid.UUID
	UnitTitle    string
	UnitPosition int
}

// GeneratedSubtopic is a subtopic with content, as reported by status polling
type GeneratedSubtopic struct {
	ID                 uuid.UUID       `json:"id"`
	Title              string          `json:"title"`
	Content            json.RawMessage `json:"content"`
	ContentGeneratedAt time.Time       `json:"content_generated_at"`
	UnitTitle          string          `json:"unit_title"`
}

// GenerationStatus is the per-course progress record
type GenerationStatus struct {
	CourseID           uuid.UUID `json:"courseId"`
	Status             string    `json:"status"`
	TotalSubtopics     int       `json:"totalSubtopics"`
	GeneratedSubtopics int       `json:"generatedSubtopics"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// SubtopicContext locates a subtopic within its unit and course
type SubtopicContext struct {
	SubtopicID   uuid.UUID
	UnitID       uuid.UUID
	UnitTitle    string
	UnitPosition int
	CourseID     uuid.UUID
}
