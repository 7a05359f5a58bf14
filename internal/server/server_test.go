package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
	"github.com/codeW-Krish/ai-course-backend/internal/server/ratelimit"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeCourses struct {
	pingErr  error
	courses  map[uuid.UUID]*db.Course
	enrolled map[uuid.UUID]map[uuid.UUID]bool // user -> course
	units    []db.UnitWithSubtopics
	missing  int
}

func newFakeCourses() *fakeCourses {
	return &fakeCourses{
		courses:  map[uuid.UUID]*db.Course{},
		enrolled: map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (f *fakeCourses) add(owner uuid.UUID) *db.Course {
	c := &db.Course{ID: uuid.New(), CreatedBy: owner, Title: "Go Concurrency", Status: db.CourseStatusDraft, IsPublic: true}
	f.courses[c.ID] = c
	return c
}

func (f *fakeCourses) GetCourse(_ context.Context, id uuid.UUID) (*db.Course, error) {
	return f.courses[id], nil
}

func (f *fakeCourses) ListPublicCourses(context.Context) ([]db.Course, error) {
	out := []db.Course{}
	for _, c := range f.courses {
		if c.IsPublic {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCourses) ListCoursesByCreator(_ context.Context, userID uuid.UUID) ([]db.Course, error) {
	out := []db.Course{}
	for _, c := range f.courses {
		if c.CreatedBy == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCourses) ListEnrolledCourses(_ context.Context, userID uuid.UUID) ([]db.Course, error) {
	out := []db.Course{}
	for id := range f.enrolled[userID] {
		out = append(out, *f.courses[id])
	}
	return out, nil
}

func (f *fakeCourses) Enroll(_ context.Context, userID, courseID uuid.UUID) (bool, error) {
	if f.enrolled[userID] == nil {
		f.enrolled[userID] = map[uuid.UUID]bool{}
	}
	if f.enrolled[userID][courseID] {
		return false, nil
	}
	f.enrolled[userID][courseID] = true
	return true, nil
}

func (f *fakeCourses) IsEnrolled(_ context.Context, userID, courseID uuid.UUID) (bool, error) {
	return f.enrolled[userID][courseID], nil
}

func (f *fakeCourses) ListUnitsWithSubtopics(context.Context, uuid.UUID) ([]db.UnitWithSubtopics, error) {
	return f.units, nil
}

func (f *fakeCourses) CountSubtopicsMissingContent(context.Context, uuid.UUID) (int, error) {
	return f.missing, nil
}

func (f *fakeCourses) Ping(context.Context) error { return f.pingErr }

type fakeOutlines struct {
	generate func(req *outline.Request) (*db.Course, error)
	update   func(courseID uuid.UUID, raw any) (*types.Outline, error)
}

func (f *fakeOutlines) Generate(_ context.Context, _ uuid.UUID, req *outline.Request) (*db.Course, error) {
	return f.generate(req)
}

func (f *fakeOutlines) Update(_ context.Context, _ uuid.UUID, courseID uuid.UUID, raw any) (*types.Outline, error) {
	return f.update(courseID, raw)
}

type fakeGenerator struct {
	trigger      func(provider string) (*generation.TriggerResult, error)
	status       func(since *time.Time) (*generation.StatusReport, error)
	around       func(subtopicID uuid.UUID) (*generation.AroundResult, error)
	shutdownErr  error
	lastProvider string
}

func (f *fakeGenerator) Trigger(_ context.Context, _, _ uuid.UUID, provider string) (*generation.TriggerResult, error) {
	f.lastProvider = provider
	return f.trigger(provider)
}

func (f *fakeGenerator) Retry(_ context.Context, _, _ uuid.UUID, provider string) (*generation.TriggerResult, error) {
	f.lastProvider = provider
	return f.trigger(provider)
}

func (f *fakeGenerator) Status(_ context.Context, _, _ uuid.UUID, since *time.Time) (*generation.StatusReport, error) {
	return f.status(since)
}

func (f *fakeGenerator) GenerateAround(_ context.Context, _, subtopicID uuid.UUID, _ string) (*generation.AroundResult, error) {
	return f.around(subtopicID)
}

func (f *fakeGenerator) Shutdown(context.Context) error { return f.shutdownErr }

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type testServer struct {
	t         *testing.T
	handler   http.Handler
	jwt       *JWTService
	courses   *fakeCourses
	outlines  *fakeOutlines
	generator *fakeGenerator
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	if limiter == nil {
		limiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}
	t.Cleanup(limiter.Stop)

	ts := &testServer{
		t:         t,
		jwt:       setupTestJWTService(t, 24),
		courses:   newFakeCourses(),
		outlines:  &fakeOutlines{},
		generator: &fakeGenerator{},
	}
	srv := New(Config{Port: 0}, Deps{
		Courses:     ts.courses,
		Outlines:    ts.outlines,
		Generator:   ts.generator,
		Tokens:      ts.jwt.AsTokenValidator(),
		RateLimiter: limiter,
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(method, path string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		token, err := ts.jwt.GenerateToken(user)
		require.NoError(ts.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestServer_HealthAndCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/health", uuid.Nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(http.MethodOptions, "/courses/me", uuid.Nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	ts.courses.pingErr = assert.AnError
	w = ts.do(http.MethodGet, "/health", uuid.Nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, w.Body.String())
}

func TestServer_AuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)
	id := uuid.New()

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/courses/me"},
		{http.MethodGet, "/courses/me/enrolled"},
		{http.MethodPost, "/courses/generate-outline"},
		{http.MethodPut, "/courses/" + id.String() + "/outline"},
		{http.MethodPost, "/courses/" + id.String() + "/enroll"},
		{http.MethodGet, "/courses/" + id.String() + "/full"},
		{http.MethodPost, "/courses/" + id.String() + "/generate-content"},
		{http.MethodGet, "/courses/" + id.String() + "/generation-status"},
		{http.MethodPost, "/courses/" + id.String() + "/retry-generation"},
		{http.MethodPost, "/subtopics/" + id.String() + "/generate-content"},
	} {
		w := ts.do(route.method, route.path, uuid.Nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}

	// Public listing needs no token
	ts.courses.add(uuid.New())
	w := ts.do(http.MethodGet, "/courses", uuid.Nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["courses"], 1)
}

func TestServer_MyAndEnrolledCourses(t *testing.T) {
	ts := newTestServer(t, nil)
	owner, student := uuid.New(), uuid.New()
	course := ts.courses.add(owner)
	ts.courses.add(uuid.New())

	w := ts.do(http.MethodGet, "/courses/me", owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["myCourses"], 1)

	w = ts.do(http.MethodPost, "/courses/"+course.ID.String()+"/enroll", student, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/courses/me/enrolled", student, "")
	require.Equal(t, http.StatusOK, w.Code)
	enrolled := decode(t, w)["enrolledCourses"].([]any)
	require.Len(t, enrolled, 1)
	assert.Equal(t, course.ID.String(), enrolled[0].(map[string]any)["id"])
}

func TestServer_Enroll(t *testing.T) {
	ts := newTestServer(t, nil)
	user := uuid.New()
	course := ts.courses.add(uuid.New())
	path := "/courses/" + course.ID.String() + "/enroll"

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, path, user, "").Code)

	w := ts.do(http.MethodPost, path, user, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"already enrolled"}`, w.Body.String())

	w = ts.do(http.MethodPost, "/courses/"+uuid.NewString()+"/enroll", user, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/courses/not-a-uuid/enroll", user, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "id")
}

func TestServer_GenerateOutline(t *testing.T) {
	ts := newTestServer(t, nil)
	user := uuid.New()
	courseID := uuid.New()

	var got *outline.Request
	ts.outlines.generate = func(req *outline.Request) (*db.Course, error) {
		got = req
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return &db.Course{
			ID:      courseID,
			Status:  db.CourseStatusDraft,
			Outline: &types.Outline{CourseTitle: req.Title},
		}, nil
	}

	w := ts.do(http.MethodPost, "/courses/generate-outline", user,
		`{"title":"Go Concurrency","description":"Goroutines, channels and sync","numUnits":2,"difficulty":"Beginner","include_youtube":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, courseID.String(), body["courseId"])
	assert.Equal(t, "draft", body["status"])
	assert.NotNil(t, body["outline"])
	assert.True(t, got.IncludeVideos)

	w = ts.do(http.MethodPost, "/courses/generate-outline", user, `{"title":"Go"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Validation Failed", body["error"])
	assert.Contains(t, body["fields"], "description")

	w = ts.do(http.MethodPost, "/courses/generate-outline", user, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.outlines.generate = func(*outline.Request) (*db.Course, error) {
		return nil, &outline.InsufficientUnitsError{Requested: 3, Returned: 2}
	}
	w = ts.do(http.MethodPost, "/courses/generate-outline", user,
		`{"title":"Go Concurrency","description":"Goroutines, channels and sync","numUnits":3,"difficulty":"Beginner"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServer_UpdateOutline(t *testing.T) {
	ts := newTestServer(t, nil)
	user := uuid.New()
	courseID := uuid.New()
	path := "/courses/" + courseID.String() + "/outline"

	ts.outlines.update = func(id uuid.UUID, raw any) (*types.Outline, error) {
		assert.Equal(t, courseID, id)
		assert.IsType(t, map[string]any{}, raw)
		return &types.Outline{CourseTitle: "Edited"}, nil
	}

	w := ts.do(http.MethodPut, path, user, `{"outline":{"course_title":"Edited","units":[]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, courseID.String(), body["courseId"])
	assert.Equal(t, "draft", body["status"])

	w = ts.do(http.MethodPut, path, user, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.outlines.update = func(uuid.UUID, any) (*types.Outline, error) {
		return nil, db.ErrGenerationInProgress
	}
	w = ts.do(http.MethodPut, path, user, `{"outline":{}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.outlines.update = func(id uuid.UUID, _ any) (*types.Outline, error) {
		return nil, &generation.ForbiddenError{CourseID: id, UserID: user}
	}
	w = ts.do(http.MethodPut, path, user, `{"outline":{}}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_CourseFull(t *testing.T) {
	ts := newTestServer(t, nil)
	owner, student, stranger := uuid.New(), uuid.New(), uuid.New()
	course := ts.courses.add(owner)
	unitID := uuid.New()
	ts.courses.units = []db.UnitWithSubtopics{{
		Unit: db.Unit{ID: unitID, CourseID: course.ID, Title: "Goroutines", Position: 1},
		Subtopics: []db.Subtopic{
			{ID: uuid.New(), UnitID: unitID, Title: "Scheduling", Position: 1, Content: json.RawMessage(`{"why_this_matters":"x"}`)},
			{ID: uuid.New(), UnitID: unitID, Title: "Leaks", Position: 2},
		},
	}}
	ts.courses.missing = 1
	path := "/courses/" + course.ID.String() + "/full"

	w := ts.do(http.MethodGet, path, owner, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, course.ID.String(), body["course"].(map[string]any)["id"])
	units := body["units"].([]any)
	require.Len(t, units, 1)
	assert.Len(t, units[0].(map[string]any)["subtopics"], 2)
	assert.EqualValues(t, 1, body["remaining_subtopics"])

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, path, stranger, "").Code)

	_, err := ts.courses.Enroll(context.Background(), student, course.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, path, student, "").Code)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/courses/"+uuid.NewString()+"/full", owner, "").Code)
}

func TestServer_GenerateContent(t *testing.T) {
	ts := newTestServer(t, nil)
	user := uuid.New()
	courseID := uuid.New()
	path := "/courses/" + courseID.String() + "/generate-content"

	tests := []struct {
		name       string
		result     *generation.TriggerResult
		err        error
		wantStatus int
	}{
		{
			name:       "continues in background",
			result:     &generation.TriggerResult{Message: "First unit generated", Units: 3, Remaining: 7, Status: generation.StatusInProgress},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "nothing to generate",
			result:     &generation.TriggerResult{Status: generation.StatusIdle},
			wantStatus: http.StatusOK,
		},
		{
			name:       "completed inline",
			result:     &generation.TriggerResult{Status: generation.StatusCompleted, Units: 1},
			wantStatus: http.StatusOK,
		},
		{name: "already running", err: &generation.ConflictError{CourseID: courseID}, wantStatus: http.StatusConflict},
		{name: "no units", err: generation.ErrNoUnits, wantStatus: http.StatusBadRequest},
		{name: "unknown provider", err: &llm.UnsupportedProviderError{Name: "claude"}, wantStatus: http.StatusBadRequest},
		{name: "not owner", err: &generation.ForbiddenError{CourseID: courseID, UserID: user}, wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.generator.trigger = func(string) (*generation.TriggerResult, error) { return tt.result, tt.err }
			w := ts.do(http.MethodPost, path, user, `{"providerName":"groq"}`)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "groq", ts.generator.lastProvider)
		})
	}

	ts.generator.trigger = func(string) (*generation.TriggerResult, error) {
		return &generation.TriggerResult{Status: generation.StatusIdle}, nil
	}
	w := ts.do(http.MethodPost, path, user, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"idle","remaining_subtopics":0}`, w.Body.String())
	assert.Empty(t, ts.generator.lastProvider)
}

func TestServer_RetryGeneration(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generator.trigger = func(string) (*generation.TriggerResult, error) {
		return &generation.TriggerResult{Message: "Retry started", Remaining: 4, Status: generation.StatusInProgress}, nil
	}

	w := ts.do(http.MethodPost, "/courses/"+uuid.NewString()+"/retry-generation", uuid.New(), "")
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "in_progress", body["status"])
	assert.EqualValues(t, 4, body["remaining_subtopics"])
}

func TestServer_GenerationStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	user := uuid.New()
	courseID := uuid.New()
	path := "/courses/" + courseID.String() + "/generation-status"

	var gotSince *time.Time
	ts.generator.status = func(since *time.Time) (*generation.StatusReport, error) {
		gotSince = since
		return &generation.StatusReport{
			GenerationStatus: db.GenerationStatus{CourseID: courseID, Status: db.GenerationInProgress, TotalSubtopics: 6, GeneratedSubtopics: 3},
			Subtopics:        []db.GeneratedSubtopic{},
		}, nil
	}

	w := ts.do(http.MethodGet, path, user, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "in_progress", body["status"])
	assert.EqualValues(t, 6, body["totalSubtopics"])
	assert.EqualValues(t, 3, body["generatedSubtopics"])
	assert.Equal(t, []any{}, body["subtopics"])
	assert.Nil(t, gotSince)

	w = ts.do(http.MethodGet, path+"?since=2026-01-02T15:04:05Z", user, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotSince)
	assert.True(t, gotSince.Equal(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)))

	w = ts.do(http.MethodGet, path+"?since=yesterday", user, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.generator.status = func(*time.Time) (*generation.StatusReport, error) {
		return nil, &generation.NotFoundError{Resource: "generation status", ID: courseID}
	}
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, path, user, "").Code)
}

func TestServer_GenerateAround(t *testing.T) {
	ts := newTestServer(t, nil)
	subtopicID := uuid.New()
	ts.generator.around = func(id uuid.UUID) (*generation.AroundResult, error) {
		return &generation.AroundResult{
			ClickedSubtopicID: id,
			Siblings:          []db.Subtopic{{ID: id, Title: "Channels"}},
			NextUnitSubtopics: []db.Subtopic{},
		}, nil
	}

	w := ts.do(http.MethodPost, "/subtopics/"+subtopicID.String()+"/generate-content", uuid.New(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, subtopicID.String(), body["clickedSubtopicId"])
	assert.Len(t, body["siblings"], 1)
	assert.Equal(t, []any{}, body["nextUnitSubtopics"])
}

func TestServer_InternalErrorsAreHidden(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generator.trigger = func(string) (*generation.TriggerResult, error) {
		return nil, assert.AnError
	}

	w := ts.do(http.MethodPost, "/courses/"+uuid.NewString()+"/generate-content", uuid.New(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestServer_RateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  2,
		DefaultWindow: time.Minute,
	})
	ts := newTestServer(t, limiter)

	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodGet, "/courses", uuid.Nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodGet, "/courses", uuid.Nil, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	body := decode(t, w)
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Contains(t, body, "retry_after")

	// Health checks are never limited
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", uuid.Nil, "").Code)
}
