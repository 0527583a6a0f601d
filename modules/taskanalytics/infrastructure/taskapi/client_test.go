package taskapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/composables"
	"github.com/iota-uz/taskpulse/pkg/httpapi"
	"github.com/iota-uz/taskpulse/pkg/ratelimit"
)

func newTestClient(t *testing.T, r *mux.Router, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost"})
	require.Error(t, err)
}

func TestClient_ListTasksDecodesDates(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "7", req.URL.Query().Get("assigned_to_id"))
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `[
			{"id":1,"title":"A","status":"todo","percent_complete":0,"assigned_to_id":7,"due_date":"2025-03-01","project_id":null},
			{"id":2,"title":"B","status":"done","percent_complete":100,"assigned_to_id":7,"due_date":"2025-03-02T10:00:00Z","start_date":""},
			{"id":3,"title":"C","status":"review","percent_complete":80,"assigned_to_id":7,"due_date":null}
		]`)
	}).Methods(http.MethodGet)

	c := newTestClient(t, r, Options{Token: "secret"})
	assignee := int64(7)
	tasks, err := c.ListTasks(context.Background(), task.Filter{AssignedToID: &assignee})
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	require.NotNil(t, tasks[0].DueDate)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *tasks[0].DueDate)
	require.Nil(t, tasks[0].ProjectID)
	require.True(t, tasks[1].IsTerminal())
	require.Equal(t, 2, tasks[1].DueDate.Day())
	require.Nil(t, tasks[1].StartDate)
	require.Nil(t, tasks[2].DueDate)
}

func TestClient_ListRosterTrimsReportTo(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/users", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":1,"empid":"M1","name":"Mia","role":"Manager","report_to_id":null},
			{"id":2,"empid":"E1","name":"Eli","role":"Employee","report_to_id":" M1 "}
		]`)
	})
	r.HandleFunc("/api/users/managers", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"empid":"M1","name":"Mia","role":"Manager"}]`)
	})

	c := newTestClient(t, r, Options{})
	persons, err := c.ListRoster(context.Background())
	require.NoError(t, err)
	require.Equal(t, roster.Person{ID: 2, EmpID: "E1", Name: "Eli", Role: roster.RoleEmployee, ReportToID: "M1"}, persons[1])
	require.Empty(t, persons[0].ReportToID)

	managers, err := c.ListManagers(context.Background())
	require.NoError(t, err)
	require.Len(t, managers, 1)
	require.True(t, managers[0].IsManager())
}

func TestClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{name: "not found envelope", status: http.StatusNotFound, body: `{"code":"NOT_FOUND","message":"task not found"}`, check: services.IsNotFound},
		{name: "not found plain", status: http.StatusNotFound, body: `gone`, check: services.IsNotFound},
		{name: "conflict", status: http.StatusConflict, body: `{"code":"TIMER_OPEN","message":"already running"}`, check: services.IsConflict},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"code":"INVALID","message":"bad","meta":{"status":"unknown"}}`, check: services.IsValidation},
		{name: "server error", status: http.StatusBadGateway, body: `upstream`, check: services.IsTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mux.NewRouter()
			r.HandleFunc("/api/tasks/{id}/duration", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			c := newTestClient(t, r, Options{})

			_, err := c.GetTaskDuration(context.Background(), 5)
			require.Error(t, err)
			require.True(t, tc.check(err), "unexpected error: %v", err)
		})
	}
}

func TestClient_ValidationCarriesFields(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID", "bad patch", map[string]string{"percent_complete": "out of range"})
	}).Methods(http.MethodPatch)
	c := newTestClient(t, r, Options{})

	pct := 50
	_, err := c.UpdateTask(context.Background(), 3, task.Patch{PercentComplete: &pct})
	var svcErr *services.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "out of range", svcErr.Fields["percent_complete"])
}

func TestClient_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.GetTaskStats(context.Background())
	require.True(t, services.IsTransient(err))
}

func TestClient_TimerRoundTrip(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/{id}/timers/start", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "9", mux.Vars(req)["id"])
		_ = httpapi.WriteJSON(w, http.StatusCreated, map[string]any{
			"id": 44, "task_id": 9, "user_id": 2, "start_time": "2025-03-01T08:00:00Z", "end_time": nil,
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/timers/{id}/stop", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{id}/timers", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":44,"task_id":9,"user_id":2,"start_time":"2025-03-01T08:00:00Z","end_time":"2025-03-01T09:00:00Z"}]`)
	}).Methods(http.MethodGet)
	c := newTestClient(t, r, Options{})

	iv, err := c.StartTimer(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(44), iv.ID)
	require.True(t, iv.IsOpen())

	stopped, err := c.StopTimer(context.Background(), 44)
	require.NoError(t, err)
	require.Equal(t, int64(44), stopped.ID)

	list, err := c.ListTimers(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].IsOpen())
}

func TestClient_UpdateTaskSendsPatch(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, map[string]any{"status": "done"}, body)
		_, _ = io.WriteString(w, `{"id":3,"title":"T","status":"done","percent_complete":100}`)
	}).Methods(http.MethodPatch)
	c := newTestClient(t, r, Options{})

	done := task.StatusDone
	got, err := c.UpdateTask(context.Background(), 3, task.Patch{Status: &done})
	require.NoError(t, err)
	require.True(t, got.IsTerminal())
}

func TestClient_ForwardsRequestID(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/stats", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "req-123", req.Header.Get("X-Trace-Request"))
		_, _ = io.WriteString(w, `{"total":4,"todo":1,"in_progress":1,"blocked":1,"delayed":0,"completed":1}`)
	})
	c := newTestClient(t, r, Options{RequestIDHeader: "X-Trace-Request"})

	ctx := composables.WithRequestID(context.Background(), "req-123")
	stats, err := c.GetTaskStats(ctx)
	require.NoError(t, err)
	require.Equal(t, task.Stats{Total: 4, Todo: 1, InProgress: 1, Blocked: 1, Completed: 1}, stats)
}

func TestClient_RateLimitIsTransient(t *testing.T) {
	var hits atomic.Int64
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/stats", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{}`)
	})
	c := newTestClient(t, r, Options{Limiter: ratelimit.New(ratelimit.NewMemoryStore(), 1)})

	_, err := c.GetTaskStats(context.Background())
	require.NoError(t, err)
	_, err = c.GetTaskStats(context.Background())
	require.True(t, services.IsTransient(err))
	require.Equal(t, int64(1), hits.Load())
}
