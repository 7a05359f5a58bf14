// Package types defines the structured documents exchanged with the LLM and stored on courses.
package types

import "strings"

// Difficulty levels accepted for courses and outlines.
const (
	DifficultyBeginner     = "Beginner"
	DifficultyIntermediate = "Intermediate"
	DifficultyAdvanced     = "Advanced"
)

// Example types allowed in subtopic content.
const (
	ExampleAnalogy   = "analogy"
	ExampleTechnical = "technical_example"
)

// Outline is the unit/subtopic skeleton of a course.
type Outline struct {
	CourseTitle string        `json:"course_title"`
	Difficulty  string        `json:"difficulty,omitempty"`
	Units       []OutlineUnit `json:"units"`
}

// OutlineUnit is one unit of an outline. Position is 1-based.
type OutlineUnit struct {
	Position  int      `json:"position"`
	Title     string   `json:"title"`
	Subtopics []string `json:"subtopics"`
}

// SubtopicCount returns the number of subtopics across all units.
func (o *Outline) SubtopicCount() int {
	n := 0
	for _, u := range o.Units {
		n += len(u.Subtopics)
	}
	return n
}

// SubtopicContent is the lesson payload generated for a single subtopic.
type SubtopicContent struct {
	SubtopicTitle   string        `json:"subtopic_title"`
	Title           string        `json:"title"`
	WhyThisMatters  string        `json:"why_this_matters"`
	CoreConcepts    []CoreConcept `json:"core_concepts"`
	Examples        []Example     `json:"examples"`
	CodeOrMath      *string       `json:"code_or_math"`
	YoutubeKeywords []string      `json:"youtube_keywords"`
}

// CoreConcept is a named concept with its explanation.
type CoreConcept struct {
	Concept     string `json:"concept"`
	Explanation string `json:"explanation"`
}

// Example is either an analogy or a technical example.
type Example struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ValidDifficulty reports whether d is one of the accepted difficulty levels.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// NormalizeTitle case-folds a title and collapses internal whitespace so that
// "  Intro   To AI " and "intro to ai" compare equal.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
