package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/query"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/locking"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/memory"
	"github.com/hselingforschool/olymp-queue-bot/internal/interface/http/handlers"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

type silentAnnouncer struct{}

func (silentAnnouncer) QueueJoined(context.Context, port.QueueNotice) error            { return nil }
func (silentAnnouncer) QueueLeft(context.Context, port.QueueNotice) error              { return nil }
func (silentAnnouncer) ExaminerAssigned(context.Context, port.AssignmentNotice) error  { return nil }
func (silentAnnouncer) EntryJudged(context.Context, port.JudgementNotice) error        { return nil }
func (silentAnnouncer) ExaminerWithdrawn(context.Context, port.WithdrawalNotice) error { return nil }
func (silentAnnouncer) EntryCanceled(context.Context, port.CancelNotice) error         { return nil }
func (silentAnnouncer) PhaseChanged(context.Context, port.PhaseNotice) error           { return nil }
func (silentAnnouncer) DistributeBlock(context.Context, member.Participant, problem.Block) error {
	return nil
}

type staticStats map[string]any

func (s staticStats) Stats() map[string]any { return s }

type apiFixture struct {
	engine *command.Engine
	server *Server
	oc     olymp.Context
	pupil  *member.Participant
}

func newAPIFixture(t *testing.T, cfg Config, checker *handlers.HealthChecker) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	engine := command.NewEngine(command.Deps{
		Store:       store,
		Locker:      locking.NewLocalLocker(),
		Announcer:   silentAnnouncer{},
		Distributor: silentAnnouncer{},
		Logger:      logger.Discard(),
	})
	srv, err := NewServer(cfg, Dependencies{
		Queries:       query.NewService(store, matching.DefaultPolicy()),
		Contexts:      engine.Contexts(),
		Bot:           staticStats{"updates_handled": 3},
		HealthChecker: checker,
		Logger:        logger.Discard(),
	})
	require.NoError(t, err)
	return &apiFixture{engine: engine, server: srv}
}

// seed brings the olymp to CONTEST with one queued participant.
func (f *apiFixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	res, err := f.engine.CreateOlymp(ctx, "Весенняя")
	require.NoError(t, err)
	res, err = f.engine.StartRegistration(ctx, res.Olymp)
	require.NoError(t, err)
	oc := res.Olymp

	var ids []int64
	for _, name := range []string{"Шахматы", "Домино", "Спички"} {
		p, err := f.engine.CreateProblem(ctx, oc, name)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	bt, err := problem.ParseBlockType("junior_1")
	require.NoError(t, err)
	_, err = f.engine.CreateBlock(ctx, oc, command.CreateBlockCommand{ProblemIDs: ids, Type: &bt})
	require.NoError(t, err)

	f.pupil, err = f.engine.RegisterParticipant(ctx, oc, command.RegisterParticipantCommand{
		Handle: "pupil", Name: "Иван", Surname: "Петров", Grade: 8,
	})
	require.NoError(t, err)

	res, err = f.engine.StartContest(ctx, oc)
	require.NoError(t, err)
	f.oc = res.Olymp

	_, err = f.engine.JoinQueue(ctx, f.oc, command.JoinQueueCommand{ParticipantID: f.pupil.ID, Number: 2})
	require.NoError(t, err)
}

func (f *apiFixture) get(t *testing.T, path string, header ...string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func dataMap(t *testing.T, body JSONResponse) map[string]any {
	t.Helper()
	m, ok := body.Data.(map[string]any)
	require.True(t, ok, "data is %T", body.Data)
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_Health(t *testing.T) {
	checker := handlers.NewHealthChecker("test")
	checker.AddCheck("store", func(context.Context) error { return nil })
	f := newAPIFixture(t, DefaultConfig(), checker)

	rec, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Content-Type-Options"))

	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, body = f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, dataMap(t, body)["message"], "redis")
}

func TestServer_OlympNotFound(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig(), nil)

	rec, body := f.get(t, "/api/v1/olymp")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found", body.Error.Code)
	assert.Equal(t, "Нет текущей олимпиады", body.Error.Message)
}

func TestServer_OlympAndQueue(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig(), nil)
	f.seed(t)

	rec, body := f.get(t, "/api/v1/olymp")
	require.Equal(t, http.StatusOK, rec.Code)
	info := dataMap(t, body)
	assert.Equal(t, "contest", info["status"])
	assert.EqualValues(t, 1, info["participants"])
	assert.EqualValues(t, 1, info["waiting"])
	assert.EqualValues(t, 3, info["problems"])

	rec, body = f.get(t, "/api/v1/queue")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := dataMap(t, body)
	entries, ok := snap["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "waiting", entry["status"])
	assert.EqualValues(t, f.pupil.ID, entry["participant_id"])
	assert.NotContains(t, entry, "examiner_id")

	rec, body = f.get(t, "/api/v1/problems")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body.Data, 3)
}

func TestServer_Progress(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig(), nil)
	f.seed(t)

	rec, body := f.get(t, "/api/v1/participants/"+strconv.FormatInt(f.pupil.ID, 10)+"/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	progress := dataMap(t, body)
	assert.EqualValues(t, 1, progress["last_block_number"])
	assert.Len(t, progress["problems"], 3)
	assert.Contains(t, progress, "active")

	rec, _ = f.get(t, "/api/v1/participants/abc/progress")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/v1/participants/999999/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MatchingPreview(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig(), nil)
	f.seed(t)

	rec, body := f.get(t, "/api/v1/examiners/999999/next")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.Success)
}

func TestServer_APIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeys = []string{"secret-key"}
	f := newAPIFixture(t, cfg, nil)

	rec, _ := f.get(t, "/api/v1/stats")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.get(t, "/api/v1/stats", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := f.get(t, "/api/v1/stats", "Authorization", "Bearer secret-key")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := dataMap(t, body)
	assert.Contains(t, stats, "bot")

	// Health stays public.
	rec, _ = f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_DisableAPI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableAPI = true
	f := newAPIFixture(t, cfg, nil)

	rec, _ := f.get(t, "/api/v1/olymp")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.get(t, "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NotFound(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig(), nil)

	rec, body := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found", body.Error.Code)
}
