package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/mappers"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/composables"
	"github.com/iota-uz/taskpulse/pkg/httpapi"
)

type TaskAnalyticsController struct {
	engine    *services.Engine
	apiPrefix string
	now       func() time.Time
}

func NewTaskAnalyticsController(engine *services.Engine) *TaskAnalyticsController {
	return &TaskAnalyticsController{
		engine:    engine,
		apiPrefix: "/api",
		now:       time.Now,
	}
}

func (c *TaskAnalyticsController) Key() string {
	return c.apiPrefix
}

func (c *TaskAnalyticsController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Health).Methods(http.MethodGet)

	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/hierarchy", instrumentAPI("hierarchy", c.GetHierarchy)).Methods(http.MethodGet)
	api.HandleFunc("/stats", instrumentAPI("stats", c.GetStats)).Methods(http.MethodGet)

	api.HandleFunc("/durations", instrumentAPI("durations", c.ListDurations)).Methods(http.MethodGet)
	api.HandleFunc("/durations/{taskID:[0-9]+}", instrumentAPI("duration", c.GetDuration)).Methods(http.MethodGet)
	api.HandleFunc("/visible", instrumentAPI("visible", c.SetVisible)).Methods(http.MethodPost)

	api.HandleFunc("/tasks/validate", instrumentAPI("validate_task", c.ValidateDraft)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID:[0-9]+}", instrumentAPI("update_task", c.UpdateTask)).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/delay", instrumentAPI("delay", c.GetDelay)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/timer/can-start", instrumentAPI("timer_can_start", c.CanStartTimer)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/timer/start", instrumentAPI("timer_start", c.StartTimer)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/timer/stop", instrumentAPI("timer_stop", c.StopTimer)).Methods(http.MethodPost)
}

func (c *TaskAnalyticsController) Health(w http.ResponseWriter, r *http.Request) {
	type healthResponse struct {
		Status    string `json:"status"`
		Scheduler string `json:"scheduler"`
		LoadedAt  string `json:"loaded_at,omitempty"`
	}
	resp := healthResponse{Status: "ok", Scheduler: string(c.engine.Scheduler().State())}
	if at := c.engine.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = at.UTC().Format(time.RFC3339)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *TaskAnalyticsController) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.ManagerNodesToViewModels(c.engine.GetHierarchy(), c.now()))
}

func (c *TaskAnalyticsController) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.engine.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, stats)
}

func (c *TaskAnalyticsController) ListDurations(w http.ResponseWriter, r *http.Request) {
	s := c.engine.Scheduler()
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.DurationsToViewModel(s.State(), s.Entries()))
}

func (c *TaskAnalyticsController) GetDuration(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	entry, found := c.engine.GetDuration(taskID)
	if !found {
		writeAPIError(w, r, http.StatusNotFound, services.CodeNotFound, "no duration cached for task", nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.DurationToViewModel(entry))
}

type setVisibleRequest struct {
	TaskIDs []int64 `json:"task_ids"`
}

func (c *TaskAnalyticsController) SetVisible(w http.ResponseWriter, r *http.Request) {
	var req setVisibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_BODY", "invalid json body", nil)
		return
	}
	c.engine.SetVisibleIDs(req.TaskIDs)

	type setVisibleResponse struct {
		Visible []int64 `json:"visible"`
		State   string  `json:"state"`
	}
	s := c.engine.Scheduler()
	_ = httpapi.WriteJSON(w, http.StatusOK, setVisibleResponse{Visible: s.VisibleIDs(), State: string(s.State())})
}

func (c *TaskAnalyticsController) GetDelay(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	t, found := c.engine.Task(taskID)
	if !found {
		writeAPIError(w, r, http.StatusNotFound, services.CodeNotFound, "task not found", nil)
		return
	}
	type delayResponse struct {
		TaskID  int64 `json:"task_id"`
		Delayed bool  `json:"delayed"`
		Days    int   `json:"days"`
	}
	days := c.engine.DelayDays(t)
	_ = httpapi.WriteJSON(w, http.StatusOK, delayResponse{TaskID: taskID, Delayed: days > 0, Days: days})
}

func (c *TaskAnalyticsController) CanStartTimer(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	viewerID := c.engine.ViewerID()
	if raw := strings.TrimSpace(r.URL.Query().Get("viewer")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_QUERY", "viewer is invalid", nil)
			return
		}
		viewerID = v
	}
	type canStartResponse struct {
		TaskID   int64 `json:"task_id"`
		ViewerID int64 `json:"viewer_id"`
		CanStart bool  `json:"can_start"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, canStartResponse{
		TaskID:   taskID,
		ViewerID: viewerID,
		CanStart: c.engine.CanStartTimer(taskID, viewerID),
	})
}

type intervalResponse struct {
	ID        int64   `json:"id"`
	TaskID    int64   `json:"task_id"`
	UserID    int64   `json:"user_id"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

func (c *TaskAnalyticsController) StartTimer(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	iv, err := c.engine.StartTimer(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, intervalResponse{
		ID:        iv.ID,
		TaskID:    iv.TaskID,
		UserID:    iv.UserID,
		StartTime: iv.StartTime.UTC().Format(time.RFC3339),
	})
}

func (c *TaskAnalyticsController) StopTimer(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	iv, err := c.engine.StopTimer(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := intervalResponse{
		ID:        iv.ID,
		TaskID:    taskID,
		UserID:    iv.UserID,
		StartTime: iv.StartTime.UTC().Format(time.RFC3339),
	}
	if iv.EndTime != nil {
		end := iv.EndTime.UTC().Format(time.RFC3339)
		resp.EndTime = &end
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

type updateTaskRequest struct {
	Status          *string `json:"status"`
	PercentComplete *int    `json:"percent_complete"`
}

func (c *TaskAnalyticsController) UpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_BODY", "invalid json body", nil)
		return
	}
	patch := task.Patch{PercentComplete: req.PercentComplete}
	if req.Status != nil {
		s := task.Status(strings.TrimSpace(*req.Status))
		patch.Status = &s
	}
	updated, err := c.engine.UpdateTask(r.Context(), taskID, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.TaskToViewModel(updated, c.now()))
}

type validateDraftRequest struct {
	Title        string `json:"title"`
	Priority     string `json:"priority"`
	AssignedToID int64  `json:"assigned_to_id"`
	StartDate    string `json:"start_date"`
	DueDate      string `json:"due_date"`
}

func (c *TaskAnalyticsController) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	var req validateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_BODY", "invalid json body", nil)
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_BODY", "start_date is invalid", nil)
		return
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_BODY", "due_date is invalid", nil)
		return
	}
	err = c.engine.ValidateDraft(task.Draft{
		Title:        req.Title,
		Priority:     req.Priority,
		AssignedToID: req.AssignedToID,
		StartDate:    start,
		DueDate:      due,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["taskID"], 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, r, http.StatusBadRequest, "TASK_INVALID_ID", "task id is invalid", nil)
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, r, svcErr.Status, svcErr.Code, svcErr.Message, svcErr.Fields)
		return
	}
	composables.UseLogger(r.Context()).WithError(err).Error("analytics api: unexpected error")
	writeAPIError(w, r, http.StatusInternalServerError, "TASK_INTERNAL", err.Error(), nil)
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields map[string]string) {
	meta := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		meta[k] = v
	}
	if requestID, ok := composables.UseRequestID(r.Context()); ok {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
