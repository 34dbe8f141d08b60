package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photo-ingest/internal/pool"
	"photo-ingest/internal/queue"
)

func newTestHandlers(t *testing.T) (*Handlers, *queue.Store) {
	t.Helper()
	store, err := queue.NewStore(context.Background(), t.TempDir()+"/queue.db")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := pool.New(pool.Config{Workers: 2, PollInterval: time.Second}, store, nil, nil)
	return New(store, p), store
}

func doRequest(t *testing.T, h *Handlers, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// failTask enqueues a task and drives it to the failed state.
func failTask(t *testing.T, store *queue.Store, kind queue.TaskKind, key string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.Enqueue(ctx, queue.Payload{Kind: kind, StorageKey: key}, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	task, err := store.ClaimNext(ctx, 0)
	if err != nil || task == nil {
		t.Fatalf("ClaimNext() = %v, %v", task, err)
	}
	if err := store.Fail(ctx, task.ID, errors.New("decode failed")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	return id
}

func TestAddTask(t *testing.T) {
	h, store := newTestHandlers(t)

	w := doRequest(t, h, http.MethodPost, "/api/queue/tasks", map[string]any{
		"payload": map[string]string{"kind": "photo", "storageKey": "photos/a.jpg"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Error("success should be true")
	}

	taskID := int64(body["taskId"].(float64))
	task, err := store.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.Priority != 0 || task.MaxAttempts != 3 {
		t.Errorf("defaults not applied: priority=%d maxAttempts=%d", task.Priority, task.MaxAttempts)
	}
	if task.Payload.StorageKey != "photos/a.jpg" {
		t.Errorf("storage key = %q", task.Payload.StorageKey)
	}
}

func TestAddTaskValidation(t *testing.T) {
	h, _ := newTestHandlers(t)

	priority := 10
	attempts := 6
	tests := []struct {
		name string
		body any
	}{
		{"unknown kind", map[string]any{
			"payload": map[string]string{"kind": "document", "storageKey": "a"},
		}},
		{"empty storage key", map[string]any{
			"payload": map[string]string{"kind": "photo", "storageKey": ""},
		}},
		{"priority out of range", map[string]any{
			"payload":  map[string]string{"kind": "photo", "storageKey": "a"},
			"priority": priority,
		}},
		{"maxAttempts out of range", map[string]any{
			"payload":     map[string]string{"kind": "photo", "storageKey": "a"},
			"maxAttempts": attempts,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, "/api/queue/tasks", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/queue/tasks", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		h.Router().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestAddTaskBatchPartialSuccess(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := doRequest(t, h, http.MethodPost, "/api/queue/tasks/batch", map[string]any{
		"tasks": []map[string]any{
			{"payload": map[string]string{"kind": "photo", "storageKey": "photos/a.jpg"}},
			{"payload": map[string]string{"kind": "photo", "storageKey": ""}},
			{"payload": map[string]string{"kind": "motion-video", "storageKey": "photos/a.mp4"}},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Error("batch with one invalid task should not report overall success")
	}
	if got := body["successCount"].(float64); got != 2 {
		t.Errorf("successCount = %v, want 2", got)
	}
	if got := body["errorCount"].(float64); got != 1 {
		t.Errorf("errorCount = %v, want 1", got)
	}

	errs := body["errors"].([]any)
	if idx := errs[0].(map[string]any)["index"].(float64); idx != 1 {
		t.Errorf("failed index = %v, want 1", idx)
	}
}

func TestAddTaskBatchLimits(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := doRequest(t, h, http.MethodPost, "/api/queue/tasks/batch", map[string]any{
		"tasks": []map[string]any{},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", w.Code)
	}

	tasks := make([]map[string]any, maxBatchSize+1)
	for i := range tasks {
		tasks[i] = map[string]any{
			"payload": map[string]string{"kind": "photo", "storageKey": fmt.Sprintf("photos/%d.jpg", i)},
		}
	}
	w = doRequest(t, h, http.MethodPost, "/api/queue/tasks/batch", map[string]any{"tasks": tasks})
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized batch status = %d, want 400", w.Code)
	}
}

func TestAddTaskBatchAtSizeCap(t *testing.T) {
	h, store := newTestHandlers(t)

	tasks := make([]map[string]any, maxBatchSize)
	for i := range tasks {
		tasks[i] = map[string]any{
			"payload": map[string]string{"kind": "photo", "storageKey": fmt.Sprintf("photos/%d.jpg", i)},
		}
	}
	w := doRequest(t, h, http.MethodPost, "/api/queue/tasks/batch", map[string]any{"tasks": tasks})
	if w.Code != http.StatusOK {
		t.Fatalf("batch at the cap status = %d, want 200: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Error("batch exactly at the cap should report overall success")
	}
	if got := body["successCount"].(float64); got != maxBatchSize {
		t.Errorf("successCount = %v, want %d", got, maxBatchSize)
	}
	if got := body["errorCount"].(float64); got != 0 {
		t.Errorf("errorCount = %v, want 0", got)
	}

	counts, err := store.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[queue.StatusPending] != maxBatchSize {
		t.Errorf("pending tasks = %d, want %d", counts[queue.StatusPending], maxBatchSize)
	}
}

func TestAddTaskBatchDefaults(t *testing.T) {
	h, store := newTestHandlers(t)

	override := 5
	w := doRequest(t, h, http.MethodPost, "/api/queue/tasks/batch", map[string]any{
		"tasks": []map[string]any{
			{"payload": map[string]string{"kind": "photo", "storageKey": "photos/a.jpg"}},
			{
				"payload":  map[string]string{"kind": "photo", "storageKey": "photos/b.jpg"},
				"priority": override,
			},
		},
		"defaultPriority":    2,
		"defaultMaxAttempts": 4,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	results := body["results"].([]any)
	first := int64(results[0].(map[string]any)["taskId"].(float64))
	second := int64(results[1].(map[string]any)["taskId"].(float64))

	taskA, _ := store.Get(context.Background(), first)
	if taskA.Priority != 2 || taskA.MaxAttempts != 4 {
		t.Errorf("defaults not applied: priority=%d maxAttempts=%d", taskA.Priority, taskA.MaxAttempts)
	}
	taskB, _ := store.Get(context.Background(), second)
	if taskB.Priority != 5 {
		t.Errorf("per-task override not applied: priority=%d", taskB.Priority)
	}
}

func TestListFailedPagination(t *testing.T) {
	h, store := newTestHandlers(t)

	for i := 0; i < 25; i++ {
		failTask(t, store, queue.KindPhoto, fmt.Sprintf("photos/%d.jpg", i))
	}

	w := doRequest(t, h, http.MethodGet, "/api/queue/failed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)
	if got := len(data["tasks"].([]any)); got != 20 {
		t.Errorf("page 1 size = %d, want 20", got)
	}
	pg := data["pagination"].(map[string]any)
	if pg["total"].(float64) != 25 || pg["totalPages"].(float64) != 2 {
		t.Errorf("pagination = %v", pg)
	}
	if pg["hasNext"] != true || pg["hasPrev"] != false {
		t.Errorf("page 1 hasNext/hasPrev = %v/%v", pg["hasNext"], pg["hasPrev"])
	}

	w = doRequest(t, h, http.MethodGet, "/api/queue/failed?page=2", nil)
	data = decodeBody(t, w)["data"].(map[string]any)
	if got := len(data["tasks"].([]any)); got != 5 {
		t.Errorf("page 2 size = %d, want 5", got)
	}
	pg = data["pagination"].(map[string]any)
	if pg["hasNext"] != false || pg["hasPrev"] != true {
		t.Errorf("page 2 hasNext/hasPrev = %v/%v", pg["hasNext"], pg["hasPrev"])
	}
}

func TestListFailedKindFilter(t *testing.T) {
	h, store := newTestHandlers(t)

	failTask(t, store, queue.KindPhoto, "photos/a.jpg")
	failTask(t, store, queue.KindPhoto, "photos/b.jpg")
	failTask(t, store, queue.KindMotionVideo, "photos/a.mp4")

	w := doRequest(t, h, http.MethodGet, "/api/queue/failed?kind=motion-video", nil)
	data := decodeBody(t, w)["data"].(map[string]any)
	tasks := data["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("filtered size = %d, want 1", len(tasks))
	}
	if key := tasks[0].(map[string]any)["storageKey"]; key != "photos/a.mp4" {
		t.Errorf("storageKey = %v", key)
	}

	w = doRequest(t, h, http.MethodGet, "/api/queue/failed?kind=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus kind status = %d, want 400", w.Code)
	}
}

func TestRetryFailedTask(t *testing.T) {
	h, store := newTestHandlers(t)
	id := failTask(t, store, queue.KindPhoto, "photos/a.jpg")

	w := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/queue/failed/%d/retry", id), map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	task, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.Status != queue.StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.Attempts != 0 || task.ErrorMessage != "" {
		t.Errorf("attempt budget not reset: attempts=%d err=%q", task.Attempts, task.ErrorMessage)
	}
}

func TestRetryFailedTaskErrors(t *testing.T) {
	h, store := newTestHandlers(t)

	w := doRequest(t, h, http.MethodPost, "/api/queue/failed/9999/retry", map[string]any{})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing task status = %d, want 404", w.Code)
	}

	// Pending tasks cannot be retried.
	id, err := store.Enqueue(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/a.jpg"}, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	w = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/queue/failed/%d/retry", id), map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("pending task status = %d, want 400", w.Code)
	}
}

func TestDeleteFailedTask(t *testing.T) {
	h, store := newTestHandlers(t)
	id := failTask(t, store, queue.KindPhoto, "photos/a.jpg")

	w := doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/queue/failed/%d", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if _, err := store.Get(context.Background(), id); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Errorf("task should be gone, got err = %v", err)
	}
}

func TestRetryFailedBatch(t *testing.T) {
	h, store := newTestHandlers(t)
	a := failTask(t, store, queue.KindPhoto, "photos/a.jpg")
	b := failTask(t, store, queue.KindPhoto, "photos/b.jpg")
	failTask(t, store, queue.KindPhoto, "photos/c.jpg")

	w := doRequest(t, h, http.MethodPost, "/api/queue/failed/batch-retry", map[string]any{
		"taskIds": []int64{a, b},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["retriedCount"].(float64); got != 2 {
		t.Errorf("retriedCount = %v, want 2", got)
	}

	w = doRequest(t, h, http.MethodPost, "/api/queue/failed/batch-retry", map[string]any{
		"retryAll": true,
	})
	if got := decodeBody(t, w)["retriedCount"].(float64); got != 1 {
		t.Errorf("retryAll retriedCount = %v, want 1", got)
	}

	w = doRequest(t, h, http.MethodPost, "/api/queue/failed/batch-retry", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty selector status = %d, want 400", w.Code)
	}
}

func TestDeleteFailedBatch(t *testing.T) {
	h, store := newTestHandlers(t)
	a := failTask(t, store, queue.KindPhoto, "photos/a.jpg")
	failTask(t, store, queue.KindPhoto, "photos/b.jpg")

	w := doRequest(t, h, http.MethodDelete, "/api/queue/failed/batch-delete", map[string]any{
		"taskIds": []int64{a},
	})
	if got := decodeBody(t, w)["deletedCount"].(float64); got != 1 {
		t.Errorf("deletedCount = %v, want 1", got)
	}

	w = doRequest(t, h, http.MethodDelete, "/api/queue/failed/batch-delete", map[string]any{
		"deleteAll": true,
	})
	if got := decodeBody(t, w)["deletedCount"].(float64); got != 1 {
		t.Errorf("deleteAll deletedCount = %v, want 1", got)
	}
}

func TestQueueStats(t *testing.T) {
	h, store := newTestHandlers(t)
	failTask(t, store, queue.KindPhoto, "photos/a.jpg")

	w := doRequest(t, h, http.MethodGet, "/api/queue/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Error("success should be true")
	}
	data := body["data"].(map[string]any)
	if data["workerCount"].(float64) != 2 {
		t.Errorf("workerCount = %v, want 2", data["workerCount"])
	}
	counts := data["statusCounts"].(map[string]any)
	if counts["failed"].(float64) != 1 {
		t.Errorf("failed count = %v, want 1", counts["failed"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestHandlers(t)

	for _, path := range []string{"/health", "/healthz", "/livez", "/readyz"} {
		w := doRequest(t, h, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
	}

	w := doRequest(t, h, http.MethodGet, "/healthz", nil)
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != statusHealthy {
		t.Errorf("health status = %q, want %q", health.Status, statusHealthy)
	}
}

func TestGetVersion(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := doRequest(t, h, http.MethodGet, "/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["version"] == "" {
		t.Error("version should not be empty")
	}
}
