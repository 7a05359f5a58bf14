package server

import (
	"net/http"
	"time"

	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
)

// providerRequest is the optional body of the generation triggers.
type providerRequest struct {
	ProviderName string `json:"providerName"`
}

// triggerStatus is 202 while a run continues in the background, 200 otherwise.
func triggerStatus(res *generation.TriggerResult) int {
	if res.Status == generation.StatusInProgress {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (s *Server) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	var body providerRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	res, err := s.generator.Trigger(r.Context(), userID, courseID, body.ProviderName)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, triggerStatus(res), res)
}

func (s *Server) handleRetryGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	var body providerRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	res, err := s.generator.Retry(r.Context(), userID, courseID, body.ProviderName)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, triggerStatus(res), res)
}

// handleGenerationStatus reports progress. With ?since only subtopics generated after that
// instant are listed.
func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	courseID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.errorResponse(w, r, schemas.NewValidationError("since", "must be an RFC3339 timestamp"))
			return
		}
		since = &t
	}

	report, err := s.generator.Status(r.Context(), userID, courseID, since)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleGenerateAround(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	subtopicID, err := pathID(r, "id")
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	var body providerRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	res, err := s.generator.GenerateAround(r.Context(), userID, subtopicID, body.ProviderName)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}
