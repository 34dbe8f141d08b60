package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"photo-ingest/internal/queue"
)

// maxBatchSize caps a single batch-enqueue request.
const maxBatchSize = 1000

type taskRequest struct {
	Payload     queue.Payload `json:"payload"`
	Priority    *int          `json:"priority,omitempty"`
	MaxAttempts *int          `json:"maxAttempts,omitempty"`
}

// options resolves per-task overrides against batch-level defaults.
func (t taskRequest) options(defaults queue.EnqueueOptions) queue.EnqueueOptions {
	opts := defaults
	if t.Priority != nil {
		opts.Priority = *t.Priority
	}
	if t.MaxAttempts != nil {
		opts.MaxAttempts = *t.MaxAttempts
	}
	return opts
}

func validateOptions(opts queue.EnqueueOptions) error {
	if opts.Priority < 0 || opts.Priority > queue.MaxPriority {
		return fmt.Errorf("priority %d out of range 0-%d", opts.Priority, queue.MaxPriority)
	}
	if opts.MaxAttempts != 0 && (opts.MaxAttempts < 1 || opts.MaxAttempts > queue.MaxAttemptsCeiling) {
		return fmt.Errorf("maxAttempts %d out of range 1-%d", opts.MaxAttempts, queue.MaxAttemptsCeiling)
	}
	return nil
}

type addTaskResponse struct {
	Success bool   `json:"success"`
	TaskID  int64  `json:"taskId"`
	Message string `json:"message"`
}

// AddTask enqueues a single processing task.
func (h *Handlers) AddTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts := req.options(queue.EnqueueOptions{})
	if err := req.Payload.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateOptions(opts); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	taskID, err := h.store.Enqueue(r.Context(), req.Payload, opts)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, addTaskResponse{
		Success: true,
		TaskID:  taskID,
		Message: "Task added to queue successfully",
	})
}

type batchAddRequest struct {
	Tasks              []taskRequest `json:"tasks"`
	DefaultPriority    int           `json:"defaultPriority"`
	DefaultMaxAttempts int           `json:"defaultMaxAttempts"`
}

type batchTaskResult struct {
	Index      int    `json:"index"`
	TaskID     int64  `json:"taskId"`
	StorageKey string `json:"storageKey"`
	Success    bool   `json:"success"`
}

type batchTaskError struct {
	Index      int    `json:"index"`
	StorageKey string `json:"storageKey"`
	Error      string `json:"error"`
	Success    bool   `json:"success"`
}

type batchAddResponse struct {
	Success      bool              `json:"success"`
	TotalTasks   int               `json:"totalTasks"`
	SuccessCount int               `json:"successCount"`
	ErrorCount   int               `json:"errorCount"`
	Results      []batchTaskResult `json:"results"`
	Errors       []batchTaskError  `json:"errors,omitempty"`
	Message      string            `json:"message"`
}

// AddTaskBatch enqueues up to maxBatchSize tasks in one request. Individual
// task failures do not abort the batch; the response reports both outcomes
// per index.
func (h *Handlers) AddTaskBatch(w http.ResponseWriter, r *http.Request) {
	var req batchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Tasks) == 0 {
		writeJSONError(w, "at least one task is required", http.StatusBadRequest)
		return
	}
	if len(req.Tasks) > maxBatchSize {
		writeJSONError(w, fmt.Sprintf("too many tasks: maximum %d tasks per batch", maxBatchSize), http.StatusBadRequest)
		return
	}

	defaults := queue.EnqueueOptions{
		Priority:    req.DefaultPriority,
		MaxAttempts: req.DefaultMaxAttempts,
	}
	if err := validateOptions(defaults); err != nil {
		writeJSONError(w, "invalid defaults: "+err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]batchTaskResult, 0, len(req.Tasks))
	var taskErrors []batchTaskError

	for i, task := range req.Tasks {
		opts := task.options(defaults)

		err := task.Payload.Validate()
		if err == nil {
			err = validateOptions(opts)
		}
		var taskID int64
		if err == nil {
			taskID, err = h.store.Enqueue(r.Context(), task.Payload, opts)
		}
		if err != nil {
			taskErrors = append(taskErrors, batchTaskError{
				Index:      i,
				StorageKey: task.Payload.StorageKey,
				Error:      err.Error(),
			})
			continue
		}

		results = append(results, batchTaskResult{
			Index:      i,
			TaskID:     taskID,
			StorageKey: task.Payload.StorageKey,
			Success:    true,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, batchAddResponse{
		Success:      len(taskErrors) == 0,
		TotalTasks:   len(req.Tasks),
		SuccessCount: len(results),
		ErrorCount:   len(taskErrors),
		Results:      results,
		Errors:       taskErrors,
		Message: fmt.Sprintf("Processed %d tasks: %d successful, %d failed",
			len(req.Tasks), len(results), len(taskErrors)),
	})
}

type failedTask struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	StorageKey   string `json:"storageKey"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"maxAttempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type failedListResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Tasks      []failedTask `json:"tasks"`
		Pagination pagination   `json:"pagination"`
	} `json:"data"`
}

// ListFailed returns a page of failed tasks, newest first, optionally
// filtered by kind.
func (h *Handlers) ListFailed(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	kind := queue.TaskKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", queue.KindPhoto, queue.KindMotionVideo:
	default:
		writeJSONError(w, fmt.Sprintf("unrecognized kind %q", kind), http.StatusBadRequest)
		return
	}

	result, err := h.store.ListFailed(r.Context(), page, limit, kind)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tasks := make([]failedTask, 0, len(result.Tasks))
	for _, t := range result.Tasks {
		ft := failedTask{
			ID:           t.ID,
			Kind:         string(t.Payload.Kind),
			StorageKey:   t.Payload.StorageKey,
			Attempts:     t.Attempts,
			MaxAttempts:  t.MaxAttempts,
			ErrorMessage: t.ErrorMessage,
			CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if !t.CompletedAt.IsZero() {
			ft.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		tasks = append(tasks, ft)
	}

	resp := failedListResponse{Success: true}
	resp.Data.Tasks = tasks
	resp.Data.Pagination = pagination{
		Page:       result.Page,
		Limit:      result.PageSize,
		Total:      result.Total,
		TotalPages: result.TotalPages,
		HasNext:    result.Page*result.PageSize < result.Total,
		HasPrev:    result.Page > 1,
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// RetryFailedTask resets one failed task to pending with its attempt budget
// restored.
func (h *Handlers) RetryFailedTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.failedTaskFromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.store.RetryFailed(r.Context(), taskID); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success": true,
		"message": "Task has been reset and will be retried",
		"taskId":  taskID,
	})
}

// DeleteFailedTask removes one failed task from the queue.
func (h *Handlers) DeleteFailedTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.failedTaskFromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.store.DeleteFailed(r.Context(), taskID); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success": true,
		"message": "Failed task has been deleted",
		"taskId":  taskID,
	})
}

// failedTaskFromPath parses the task id from the route and verifies the task
// exists and is in the failed state. On failure it writes the error response
// and returns ok=false.
func (h *Handlers) failedTaskFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	taskID, err := strconv.ParseInt(mux.Vars(r)["taskId"], 10, 64)
	if err != nil {
		writeJSONError(w, "invalid task id", http.StatusBadRequest)
		return 0, false
	}

	task, err := h.store.Get(r.Context(), taskID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		writeJSONError(w, "task not found", http.StatusNotFound)
		return 0, false
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return 0, false
	}
	if task.Status != queue.StatusFailed {
		writeJSONError(w, fmt.Sprintf("task is not failed, current status: %s", task.Status), http.StatusBadRequest)
		return 0, false
	}
	return taskID, true
}

type batchRetryRequest struct {
	TaskIDs  []int64 `json:"taskIds"`
	RetryAll bool    `json:"retryAll"`
}

// RetryFailedBatch resets the named failed tasks, or all of them, to
// pending.
func (h *Handlers) RetryFailedBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !req.RetryAll && len(req.TaskIDs) == 0 {
		writeJSONError(w, "either taskIds array or retryAll flag must be provided", http.StatusBadRequest)
		return
	}

	var n int64
	var err error
	if req.RetryAll {
		n, err = h.store.RetryAllFailed(r.Context())
	} else {
		n, err = h.store.RetryFailedBatch(r.Context(), req.TaskIDs)
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("%d failed tasks have been reset and will be retried", n),
		"retriedCount": n,
	})
}

type batchDeleteRequest struct {
	TaskIDs   []int64 `json:"taskIds"`
	DeleteAll bool    `json:"deleteAll"`
}

// DeleteFailedBatch removes the named failed tasks, or all of them.
func (h *Handlers) DeleteFailedBatch(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !req.DeleteAll && len(req.TaskIDs) == 0 {
		writeJSONError(w, "either taskIds array or deleteAll flag must be provided", http.StatusBadRequest)
		return
	}

	var n int64
	var err error
	if req.DeleteAll {
		n, err = h.store.DeleteAllFailed(r.Context())
	} else {
		n, err = h.store.DeleteFailedBatch(r.Context(), req.TaskIDs)
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("%d failed tasks have been deleted", n),
		"deletedCount": n,
	})
}

type statsResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// QueueStats returns an on-demand snapshot of queue and worker health.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, statsResponse{Success: true, Data: stats})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
