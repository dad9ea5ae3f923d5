package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Olymp Queue Bot API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"olymp":    "/api/v1/olymp",
			"queue":    "/api/v1/queue",
			"problems": "/api/v1/problems",
			"stats":    "/api/v1/stats",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	oc := s.deps.Contexts.Get()
	stats := map[string]any{
		"uptime_seconds": s.Uptime().Seconds(),
		"olymp_id":       oc.OlympID,
		"olymp_status":   oc.Status,
	}
	if s.deps.Bot != nil {
		stats["bot"] = s.deps.Bot.Stats()
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// OLYMP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetOlymp handles GET /api/v1/olymp
func (s *Server) handleGetOlymp(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Queries.OlympInfo(r.Context(), s.deps.Contexts.Get())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

// handleGetProblems handles GET /api/v1/problems
func (s *Server) handleGetProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := s.deps.Queries.Problems(r.Context(), s.deps.Contexts.Get())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	type problemDTO struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	out := make([]problemDTO, 0, len(problems))
	for _, p := range problems {
		out = append(out, problemDTO{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type entryDTO struct {
	ID            int64        `json:"id"`
	ParticipantID int64        `json:"participant_id"`
	ProblemID     int64        `json:"problem_id"`
	Status        queue.Status `json:"status"`
	ExaminerID    *int64       `json:"examiner_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func toEntryDTO(e queue.Entry) entryDTO {
	return entryDTO{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		ProblemID:     e.ProblemID,
		Status:        e.Status,
		ExaminerID:    e.ExaminerID,
		CreatedAt:     e.CreatedAt,
	}
}

// handleGetQueue handles GET /api/v1/queue
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Queries.QueueSnapshot(r.Context(), s.deps.Contexts.Get())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	entries := make([]entryDTO, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, toEntryDTO(e))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         snap.Status,
		"entries":        entries,
		"free_examiners": snap.FreeExaminers,
	})
}

// handleGetProgress handles GET /api/v1/participants/{id}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	progress, err := s.deps.Queries.ParticipantProgress(r.Context(), s.deps.Contexts.Get(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{
		"participant_id":    progress.ParticipantID,
		"last_block_number": progress.LastBlockNumber,
		"problems":          progress.Problems,
	}
	if progress.Active != nil {
		resp["active"] = toEntryDTO(*progress.Active)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetEntryExaminer handles GET /api/v1/entries/{id}/examiner and shows
// who would take a waiting entry right now.
func (s *Server) handleGetEntryExaminer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	x, err := s.deps.Queries.FindExaminerFor(r.Context(), s.deps.Contexts.Get(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if x == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"examiner_id": nil})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"examiner_id": x.ID, "busyness_level": x.BusynessLevel})
}

// handleGetExaminerNext handles GET /api/v1/examiners/{id}/next
func (s *Server) handleGetExaminerNext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.deps.Queries.FindQueueEntryFor(r.Context(), s.deps.Contexts.Get(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if e == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"entry": nil})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entry": toEntryDTO(*e)})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeDomainError maps the domain error taxonomy to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, r, http.StatusNotFound, "not_found", shared.UserMessage(err))
	case errors.Is(err, shared.ErrValidation):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", shared.UserMessage(err))
	case shared.IsUserFacing(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", shared.UserMessage(err))
	default:
		logger.FromContextOr(r.Context(), s.logger).Error("request failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}
