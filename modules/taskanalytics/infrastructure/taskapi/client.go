package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/composables"
	"github.com/iota-uz/taskpulse/pkg/httpapi"
	"github.com/iota-uz/taskpulse/pkg/logging"
	"github.com/iota-uz/taskpulse/pkg/ratelimit"
)

const tracerName = "github.com/iota-uz/taskpulse/taskapi"

type Options struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token           string
	Timeout         time.Duration
	RequestIDHeader string

	Limiter    *ratelimit.Limiter
	HTTPClient *http.Client
	Logger     *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RequestIDHeader == "" {
		o.RequestIDHeader = "X-Request-ID"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

// Client talks to the remote task, user and timer service.
type Client struct {
	baseURL *url.URL
	opts    Options
	tracer  trace.Tracer
	m       *metrics
}

var _ services.TaskAPI = (*Client)(nil)

func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid task api url: %q", base)
	}
	opts.setDefaults()
	return &Client{
		baseURL: u,
		opts:    opts,
		tracer:  otel.Tracer(tracerName),
		m:       getMetrics(),
	}, nil
}

func (c *Client) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	q := url.Values{}
	if filter.AssignedToID != nil {
		q.Set("assigned_to_id", strconv.FormatInt(*filter.AssignedToID, 10))
	}
	if filter.ProjectID != nil {
		q.Set("project_id", strconv.FormatInt(*filter.ProjectID, 10))
	}
	if filter.Status != nil {
		q.Set("status", string(*filter.Status))
	}
	var out []taskDTO
	if err := c.call(ctx, "list_tasks", http.MethodGet, "/api/tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return mapSlice(out, taskDTO.toDomain), nil
}

func (c *Client) GetTaskStats(ctx context.Context) (task.Stats, error) {
	var out statsDTO
	if err := c.call(ctx, "task_stats", http.MethodGet, "/api/tasks/stats", nil, nil, &out); err != nil {
		return task.Stats{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, patch task.Patch) (task.Task, error) {
	var out taskDTO
	path := fmt.Sprintf("/api/tasks/%d", id)
	if err := c.call(ctx, "update_task", http.MethodPatch, path, nil, patchFromDomain(patch), &out); err != nil {
		return task.Task{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) ListRoster(ctx context.Context) ([]roster.Person, error) {
	var out []personDTO
	if err := c.call(ctx, "list_roster", http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return mapSlice(out, personDTO.toDomain), nil
}

func (c *Client) ListManagers(ctx context.Context) ([]roster.Person, error) {
	var out []personDTO
	if err := c.call(ctx, "list_managers", http.MethodGet, "/api/users/managers", nil, nil, &out); err != nil {
		return nil, err
	}
	return mapSlice(out, personDTO.toDomain), nil
}

func (c *Client) GetTaskDuration(ctx context.Context, taskID int64) (timer.Duration, error) {
	var out durationDTO
	path := fmt.Sprintf("/api/tasks/%d/duration", taskID)
	if err := c.call(ctx, "task_duration", http.MethodGet, path, nil, nil, &out); err != nil {
		return timer.Duration{}, err
	}
	return timer.Duration{AssignedSeconds: out.AssignedSeconds, WorkingSeconds: out.WorkingSeconds}, nil
}

func (c *Client) ListTimers(ctx context.Context, taskID int64) ([]timer.Interval, error) {
	var out []intervalDTO
	path := fmt.Sprintf("/api/tasks/%d/timers", taskID)
	if err := c.call(ctx, "list_timers", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return mapSlice(out, intervalDTO.toDomain), nil
}

func (c *Client) StartTimer(ctx context.Context, taskID int64) (timer.Interval, error) {
	var out intervalDTO
	path := fmt.Sprintf("/api/tasks/%d/timers/start", taskID)
	if err := c.call(ctx, "start_timer", http.MethodPost, path, nil, nil, &out); err != nil {
		return timer.Interval{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) StopTimer(ctx context.Context, intervalID int64) (timer.Interval, error) {
	var out intervalDTO
	path := fmt.Sprintf("/api/timers/%d/stop", intervalID)
	if err := c.call(ctx, "stop_timer", http.MethodPost, path, nil, nil, &out); err != nil {
		return timer.Interval{}, err
	}
	if out.ID == 0 {
		out.ID = intervalID
	}
	return out.toDomain(), nil
}

// call wraps doJSON with rate limiting, a span, metrics and error mapping.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, reqBody, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "taskapi."+op, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	status := 0
	defer func() {
		result := resultLabel(status, err)
		c.m.requests.WithLabelValues(op, result).Inc()
		c.m.latency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
			attribute.Int("http.status_code", status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	allowed, lerr := c.opts.Limiter.Allow(ctx, "taskapi")
	if lerr != nil {
		c.opts.Logger.WithError(lerr).Warn("taskapi: rate limiter unavailable, letting call through")
	} else if !allowed {
		c.m.limited.Inc()
		return services.TransientError("task service rate limit reached", nil)
	}

	var apiErr *httpapi.ErrorEnvelope
	status, apiErr, err = c.doJSON(ctx, method, path, query, reqBody, out)
	if err != nil {
		if status == 0 {
			return services.TransientError(fmt.Sprintf("%s: task service unreachable", op), err)
		}
		return mapStatus(op, status, nil, err)
	}
	if apiErr != nil {
		return mapStatus(op, status, apiErr, nil)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, out any) (int, *httpapi.ErrorEnvelope, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("json marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(c.opts.RequestIDHeader, requestID(ctx))
	if token := strings.TrimSpace(c.opts.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("http read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if apiErr, ok := httpapi.ParseError(respBody); ok {
			return resp.StatusCode, apiErr, nil
		}
		return resp.StatusCode, nil, fmt.Errorf("http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, nil, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("json unmarshal response: %w", err)
	}
	return resp.StatusCode, nil, nil
}

func mapStatus(op string, status int, apiErr *httpapi.ErrorEnvelope, cause error) error {
	msg := fmt.Sprintf("%s failed with status %d", op, status)
	if apiErr != nil {
		msg = fmt.Sprintf("%s: %s (%s)", op, apiErr.Message, apiErr.Code)
	}
	switch {
	case status == http.StatusNotFound:
		return services.NotFoundError(msg, cause)
	case status == http.StatusConflict:
		return services.ConflictError(msg, cause)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		var fields map[string]string
		if apiErr != nil {
			fields = apiErr.Meta
		}
		return services.ValidationError(msg, fields)
	default:
		return services.TransientError(msg, cause)
	}
}

func resultLabel(status int, err error) string {
	switch {
	case err == nil:
		return "ok"
	case services.IsNotFound(err):
		return "not_found"
	case services.IsConflict(err):
		return "conflict"
	case services.IsValidation(err):
		return "invalid"
	case status == 0:
		return "unreachable"
	default:
		return "error"
	}
}

// requestID forwards the inbound request id when there is one.
func requestID(ctx context.Context) string {
	if id, ok := composables.UseRequestID(ctx); ok {
		return id
	}
	return uuid.NewString()
}
