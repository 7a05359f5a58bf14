package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// memStore is an in-memory Store with the same guard semantics as the Postgres one.
type memStore struct {
	mu        sync.Mutex
	courses   map[uuid.UUID]*db.Course
	enrolled  map[[2]uuid.UUID]bool
	units     map[uuid.UUID][]db.Unit // by course
	subtopics map[uuid.UUID][]*db.Subtopic
	status    map[uuid.UUID]*db.GenerationStatus
	runs      map[uuid.UUID]uuid.UUID // run token by course
	counts    []int
	rejected  int

	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		courses:   map[uuid.UUID]*db.Course{},
		enrolled:  map[[2]uuid.UUID]bool{},
		units:     map[uuid.UUID][]db.Unit{},
		subtopics: map[uuid.UUID][]*db.Subtopic{},
		status:    map[uuid.UUID]*db.GenerationStatus{},
		runs:      map[uuid.UUID]uuid.UUID{},
	}
}

// addCourse creates a course owned by owner with one unit per entry of sizes.
func (s *memStore) addCourse(owner uuid.UUID, sizes ...int) *db.Course {
	s.mu.Lock()
	defer s.mu.Unlock()

	course := &db.Course{
		ID:            uuid.New(),
		CreatedBy:     owner,
		Title:         "Intro to Go",
		Difficulty:    types.DifficultyBeginner,
		IncludeVideos: true,
		Status:        db.CourseStatusDraft,
	}
	s.courses[course.ID] = course

	total := 0
	for i, n := range sizes {
		u := db.Unit{ID: uuid.New(), CourseID: course.ID, Title: unitTitle(i + 1), Position: i + 1}
		s.units[course.ID] = append(s.units[course.ID], u)
		for j := 0; j < n; j++ {
			s.subtopics[u.ID] = append(s.subtopics[u.ID], &db.Subtopic{
				ID:       uuid.New(),
				UnitID:   u.ID,
				Title:    subtopicTitle(i+1, j+1),
				Position: j + 1,
			})
		}
		total += n
	}
	s.status[course.ID] = &db.GenerationStatus{CourseID: course.ID, Status: db.GenerationPending, TotalSubtopics: total}
	return course
}

func unitTitle(pos int) string { return "Unit " + string(rune('A'+pos-1)) }

func subtopicTitle(unit, pos int) string {
	return "Topic " + string(rune('A'+unit-1)) + string(rune('0'+pos))
}

func (s *memStore) GetCourse(ctx context.Context, courseID uuid.UUID) (*db.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolled[[2]uuid.UUID{userID, courseID}], nil
}

func (s *memStore) enroll(userID, courseID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolled[[2]uuid.UUID{userID, courseID}] = true
}

func (s *memStore) ListUnits(ctx context.Context, courseID uuid.UUID) ([]db.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.Unit(nil), s.units[courseID]...), nil
}

func (s *memStore) NextUnit(ctx context.Context, courseID uuid.UUID, position int) (*db.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units[courseID] {
		if u.Position > position {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListUnitSubtopics(ctx context.Context, unitID uuid.UUID) ([]db.Subtopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Subtopic, 0, len(s.subtopics[unitID]))
	for _, st := range s.subtopics[unitID] {
		out = append(out, *st)
	}
	return out, nil
}

func (s *memStore) GetSubtopicContext(ctx context.Context, subtopicID uuid.UUID) (*db.SubtopicContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for courseID, units := range s.units {
		for _, u := range units {
			for _, st := range s.subtopics[u.ID] {
				if st.ID == subtopicID {
					return &db.SubtopicContext{
						SubtopicID:   st.ID,
						UnitID:       u.ID,
						UnitTitle:    u.Title,
						UnitPosition: u.Position,
						CourseID:     courseID,
					}, nil
				}
			}
		}
	}
	return nil, nil
}

func (s *memStore) FindSubtopicsMissingContent(ctx context.Context, courseID uuid.UUID) ([]db.MissingSubtopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.MissingSubtopic
	for _, u := range s.units[courseID] {
		for _, st := range s.subtopics[u.ID] {
			if st.Content != nil {
				continue
			}
			out = append(out, db.MissingSubtopic{
				ID: st.ID, Title: st.Title, Position: st.Position,
				UnitID: u.ID, UnitTitle: u.Title, UnitPosition: u.Position,
			})
		}
	}
	return out, nil
}

func (s *memStore) UpdateSubtopicContent(ctx context.Context, subtopicID uuid.UUID, content types.SubtopicContent, generatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	for _, subs := range s.subtopics {
		for _, st := range subs {
			if st.ID != subtopicID {
				continue
			}
			if st.Content != nil {
				return false, nil
			}
			b, err := json.Marshal(content)
			if err != nil {
				return false, err
			}
			st.Content = b
			at := generatedAt
			st.ContentGeneratedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListGeneratedSince(ctx context.Context, courseID uuid.UUID, since *time.Time) ([]db.GeneratedSubtopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []db.GeneratedSubtopic{}
	for _, u := range s.units[courseID] {
		for _, st := range s.subtopics[u.ID] {
			if st.Content == nil {
				continue
			}
			if since != nil && !st.ContentGeneratedAt.After(*since) {
				continue
			}
			out = append(out, db.GeneratedSubtopic{
				ID: st.ID, Title: st.Title, Content: st.Content,
				ContentGeneratedAt: *st.ContentGeneratedAt, UnitTitle: u.Title,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ContentGeneratedAt.Before(out[j].ContentGeneratedAt)
	})
	return out, nil
}

func (s *memStore) TryStartGeneration(ctx context.Context, courseID, runID uuid.UUID, total int, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[courseID]
	if !ok {
		st = &db.GenerationStatus{CourseID: courseID}
		s.status[courseID] = st
	}
	if st.Status == db.GenerationInProgress {
		if staleAfter <= 0 || time.Since(st.LastUpdated) < staleAfter {
			return false, nil
		}
	}
	st.Status = db.GenerationInProgress
	st.TotalSubtopics = total
	st.GeneratedSubtopics = 0
	st.LastUpdated = time.Now()
	s.runs[courseID] = runID
	s.courses[courseID].Status = db.CourseStatusGenerating
	return true, nil
}

// holds reports whether runID owns the in_progress row. Callers hold s.mu.
func (s *memStore) holds(courseID, runID uuid.UUID) bool {
	st, ok := s.status[courseID]
	if !ok || st.Status != db.GenerationInProgress || s.runs[courseID] != runID {
		s.rejected++
		return false
	}
	return true
}

func (s *memStore) TouchGeneration(ctx context.Context, courseID, runID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(courseID, runID) {
		return false, nil
	}
	s.status[courseID].LastUpdated = time.Now()
	return true, nil
}

func (s *memStore) SetGeneratedCount(ctx context.Context, courseID, runID uuid.UUID, generated int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(courseID, runID) {
		return false, nil
	}
	st := s.status[courseID]
	s.counts = append(s.counts, generated)
	st.GeneratedSubtopics = min(max(st.GeneratedSubtopics, generated), st.TotalSubtopics)
	st.LastUpdated = time.Now()
	return true, nil
}

func (s *memStore) FinishGeneration(ctx context.Context, courseID, runID uuid.UUID, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(courseID, runID) {
		return false, nil
	}
	s.status[courseID].Status = status
	if status == db.GenerationCompleted {
		s.courses[courseID].Status = db.CourseStatusReady
	} else {
		s.courses[courseID].Status = db.CourseStatusFailed
	}
	return true, nil
}

// start begins a run over total subtopics on courseID and returns its token.
func (s *memStore) start(t *testing.T, courseID uuid.UUID, total int) uuid.UUID {
	t.Helper()
	runID := uuid.New()
	ok, err := s.TryStartGeneration(context.Background(), courseID, runID, total, 0)
	require.NoError(t, err)
	require.True(t, ok)
	return runID
}

// age moves the status row's last update back by d.
func (s *memStore) age(courseID uuid.UUID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[courseID].LastUpdated = s.status[courseID].LastUpdated.Add(-d)
}

func (s *memStore) rejectedWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

func (s *memStore) GetGenerationStatus(ctx context.Context, courseID uuid.UUID) (*db.GenerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[courseID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) recordedCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.counts...)
}

// lessonClient answers every batch with one valid lesson per requested subtopic.
// respond, when set, replaces the default answer.
type lessonClient struct {
	mu      sync.Mutex
	batches [][]string
	respond func(call int, in batchInput) (any, error)
}

func (c *lessonClient) Name() string { return "fake" }

func (c *lessonClient) Generate(ctx context.Context, req llm.Request) (any, error) {
	in, ok := req.Input.(batchInput)
	if !ok {
		return nil, errors.New("unexpected input type")
	}

	c.mu.Lock()
	c.batches = append(c.batches, in.Subtopics)
	call := len(c.batches)
	c.mu.Unlock()

	if c.respond != nil {
		return c.respond(call, in)
	}
	return lessons(in.Subtopics...), nil
}

func (c *lessonClient) Close() error { return nil }

func (c *lessonClient) batchSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make([]int, len(c.batches))
	for i, b := range c.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func lesson(title string) map[string]any {
	return map[string]any{
		"subtopic_title":   title,
		"title":            "Lesson: " + title,
		"why_this_matters": "It comes up everywhere.",
		"core_concepts":    []any{map[string]any{"concept": title, "explanation": "what it is"}},
		"examples":         []any{map[string]any{"type": "analogy", "content": "like a box"}},
		"code_or_math":     nil,
		"youtube_keywords": []any{title + " tutorial"},
	}
}

func lessons(titles ...string) []any {
	out := make([]any, len(titles))
	for i, t := range titles {
		out[i] = lesson(t)
	}
	return out
}

// staticProviders resolves every name to the same client.
type staticProviders struct {
	client llm.Client
}

func (p staticProviders) Get(name string) (llm.Client, error) {
	if name == "missing" {
		return nil, &llm.UnsupportedProviderError{Name: name}
	}
	return p.client, nil
}
