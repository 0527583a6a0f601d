package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/infrastructure/fixture"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/viewmodels"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/composables"
	"github.com/iota-uz/taskpulse/pkg/httpapi"
)

var fixedNow = time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*mux.Router, *services.Engine) {
	t.Helper()
	clock := func() time.Time { return fixedNow }

	src, err := fixture.Load("../../infrastructure/fixture/testdata/team.yaml", fixture.Options{ViewerID: 4, Now: clock})
	require.NoError(t, err)

	engine := services.NewEngine(src, nil, services.EngineOptions{ViewerID: 4, Now: clock})
	require.NoError(t, engine.Load(context.Background()))
	t.Cleanup(engine.Close)

	c := NewTaskAnalyticsController(engine)
	c.now = clock

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(composables.WithRequestID(r.Context(), "req-1")))
		})
	})
	c.Register(r)
	return r, engine
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httpapi.ErrorEnvelope {
	t.Helper()
	env, ok := httpapi.ParseError(rec.Body.Bytes())
	require.True(t, ok, rec.Body.String())
	return env
}

func TestController_Hierarchy(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/hierarchy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []viewmodels.ManagerNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	require.Equal(t, "M1", nodes[0].Manager.EmpID)
	require.Equal(t, viewmodels.Rollup{Total: 3, Pending: 2, Completed: 1, Delayed: 1, Performance: 33}, nodes[0].Stats)
}

func TestController_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Contains(t, rec.Body.String(), `"scheduler":"idle"`)
}

func TestController_Stats(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats task.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 5, stats.Total)
	require.Equal(t, 2, stats.Delayed)
}

func TestController_Delay(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/tasks/13/delay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"task_id":13,"delayed":true,"days":18}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/tasks/10/delay", nil)
	require.JSONEq(t, `{"task_id":10,"delayed":false,"days":0}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/tasks/999/delay", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, services.CodeNotFound, env.Code)
	require.Equal(t, "req-1", env.Meta["request_id"])
}

func TestController_Timer(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/tasks/12/timer/can-start", nil)
	require.JSONEq(t, `{"task_id":12,"viewer_id":4,"can_start":false}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/tasks/12/timer/can-start?viewer=3", nil)
	require.JSONEq(t, `{"task_id":12,"viewer_id":3,"can_start":true}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/tasks/12/timer/can-start?viewer=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/tasks/12/timer/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, services.CodeTimerConflict, decodeError(t, rec).Code)

	rec = do(t, r, http.MethodPost, "/api/tasks/12/timer/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":2`)
	require.NotContains(t, rec.Body.String(), `"end_time":null`)

	rec = do(t, r, http.MethodPost, "/api/tasks/12/timer/stop", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/tasks/12/timer/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"end_time":null`)

	rec = do(t, r, http.MethodPost, "/api/tasks/10/timer/start", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestController_UpdateTask(t *testing.T) {
	r, engine := newTestRouter(t)

	rec := do(t, r, http.MethodPatch, "/api/tasks/11", map[string]any{"status": "bogus"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, services.CodeValidation, env.Code)
	require.Contains(t, env.Meta, "status")

	rec = do(t, r, http.MethodPatch, "/api/tasks/11", map[string]any{"status": "done", "percent_complete": 100})
	require.Equal(t, http.StatusOK, rec.Code)

	var vm viewmodels.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	require.Equal(t, "done", vm.Status)
	require.False(t, vm.Delayed)

	updated, ok := engine.Task(11)
	require.True(t, ok)
	require.True(t, updated.IsTerminal())

	rec = do(t, r, http.MethodPatch, "/api/tasks/11", "not an object")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestController_ValidateDraft(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/tasks/validate", map[string]any{
		"title":          "  vendor AUDIT ",
		"assigned_to_id": 3,
		"start_date":     "2025-03-12",
		"due_date":       "2025-03-11",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "must be unique", env.Meta["title"])
	require.Equal(t, "must not be before start_date", env.Meta["due_date"])

	rec = do(t, r, http.MethodPost, "/api/tasks/validate", map[string]any{
		"title":          "Fresh task",
		"assigned_to_id": 3,
		"due_date":       "2025-03-11",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/tasks/validate", map[string]any{"title": "x", "due_date": "11/03/2025"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestController_VisibleAndDurations(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/visible", map[string]any{"task_ids": []int64{12, 12, 10}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"visible":[12,10],"state":"idle"}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/durations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"state":"idle","entries":[]}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/durations/12", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
