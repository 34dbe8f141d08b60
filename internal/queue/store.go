package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-ingest/internal/logging"
	"photo-ingest/internal/metrics"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// ErrTaskNotFound is returned when an operation references an unknown task.
var ErrTaskNotFound = errors.New("task not found")

// Store is the durable task queue. All methods are safe for concurrent use;
// ClaimNext is atomic with respect to concurrent claimers.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the queue database at dbPath. The parent
// directory must exist and be writable. Use ":memory:" style paths only in
// tests with a single connection.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Queue database path: %s", dbPath)

	// WAL mode plus a busy timeout keeps concurrent claimers from seeing
	// "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close queue database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to queue database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close queue database after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}

	logging.Info("Queue database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipeline_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL,
		kind TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		status TEXT NOT NULL DEFAULT 'pending',
		stage TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_queue_claim ON pipeline_queue(status, priority, id);
	CREATE INDEX IF NOT EXISTS idx_queue_status_kind ON pipeline_queue(status, kind);
	`

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(initCtx, schema); err != nil {
		return err
	}

	// A crash mid-execution leaves tasks stranded in-progress; re-offer
	// them on startup so at-least-once delivery holds across restarts.
	res, err := s.db.ExecContext(initCtx,
		`UPDATE pipeline_queue SET status = ?, stage = NULL WHERE status = ?`,
		StatusPending, StatusInProgress)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Warn("Re-queued %d task(s) left in-progress by a previous run", n)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue adds a new pending task and returns its id.
func (s *Store) Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (int64, error) {
	if err := payload.Validate(); err != nil {
		return 0, fmt.Errorf("invalid payload: %w", err)
	}
	opts, err := opts.normalize()
	if err != nil {
		return 0, err
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`INSERT INTO pipeline_queue (payload, kind, priority, max_attempts, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		raw, string(payload.Kind), opts.Priority, opts.MaxAttempts, StatusPending, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new task id: %w", err)
	}

	metrics.QueueTasksEnqueued.WithLabelValues(string(payload.Kind)).Inc()
	logging.Debug("Enqueued task %d (%s %s, priority %d)", id, payload.Kind, payload.StorageKey, opts.Priority)
	return id, nil
}

const taskColumns = `id, payload, priority, attempts, max_attempts, status,
	COALESCE(stage, ''), COALESCE(error_message, ''), created_at, COALESCE(completed_at, 0)`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var raw string
	var createdAt, completedAt int64
	var status string
	if err := row.Scan(&t.ID, &raw, &t.Priority, &t.Attempts, &t.MaxAttempts,
		&status, &t.Stage, &t.ErrorMessage, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	payload, err := unmarshalPayload(raw)
	if err != nil {
		return nil, err
	}
	t.Payload = payload
	t.Status = Status(status)
	t.CreatedAt = time.Unix(createdAt, 0)
	if completedAt != 0 {
		t.CompletedAt = time.Unix(completedAt, 0)
	}
	return &t, nil
}

// ClaimNext atomically claims the oldest, lowest-priority-number pending
// task with priority >= minPriority and returns it, or (nil, nil) when no
// eligible task exists. The selection and the pending -> in-progress
// transition happen in one statement, so concurrent claimers can never
// receive the same task.
func (s *Store) ClaimNext(ctx context.Context, minPriority int) (*Task, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(opCtx, `
		UPDATE pipeline_queue
		SET status = ?, stage = NULL
		WHERE id = (
			SELECT id FROM pipeline_queue
			WHERE status = ? AND priority >= ?
			ORDER BY priority ASC, id ASC
			LIMIT 1
		)
		RETURNING `+taskColumns,
		StatusInProgress, StatusPending, minPriority)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.QueueEmptyPolls.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	task.Status = StatusInProgress

	metrics.QueueClaims.Inc()
	return task, nil
}

// MarkStage records the pipeline stage a claimed task is entering, for
// progress visibility and stuck-task diagnostics.
func (s *Store) MarkStage(ctx context.Context, taskID int64, stage string) error {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`UPDATE pipeline_queue SET stage = ? WHERE id = ? AND status = ?`,
		stage, taskID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark stage for task %d: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d (or not in-progress)", ErrTaskNotFound, taskID)
	}
	return nil
}

// Complete transitions an in-progress task to completed.
func (s *Store) Complete(ctx context.Context, taskID int64) error {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`UPDATE pipeline_queue
		 SET status = ?, stage = NULL, completed_at = ?
		 WHERE id = ? AND status = ?`,
		StatusCompleted, time.Now().Unix(), taskID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete task %d: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d (or not in-progress)", ErrTaskNotFound, taskID)
	}

	metrics.QueueTasksCompleted.Inc()
	return nil
}

// FailOrRetry records a failed attempt. Below the attempt ceiling the task
// returns to pending (with the error kept for visibility); at the ceiling
// it becomes failed with completed_at stamped.
func (s *Store) FailOrRetry(ctx context.Context, taskID int64, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// One statement: increment attempts and branch on the new count.
	row := s.db.QueryRowContext(opCtx, `
		UPDATE pipeline_queue
		SET attempts = attempts + 1,
			error_message = ?,
			status = CASE WHEN attempts + 1 >= max_attempts THEN ? ELSE ? END,
			stage = NULL,
			completed_at = CASE WHEN attempts + 1 >= max_attempts THEN ? ELSE NULL END
		WHERE id = ? AND status = ?
		RETURNING status`,
		msg, StatusFailed, StatusPending, time.Now().Unix(), taskID, StatusInProgress)

	var newStatus string
	if err := row.Scan(&newStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d (or not in-progress)", ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("failed to record attempt for task %d: %w", taskID, err)
	}

	if Status(newStatus) == StatusFailed {
		metrics.QueueTasksFailed.WithLabelValues("attempts_exhausted").Inc()
		logging.Warn("Task %d failed permanently: %s", taskID, msg)
	} else {
		metrics.QueueTasksRequeued.Inc()
		logging.Info("Task %d returned to pending for retry: %s", taskID, msg)
	}
	return nil
}

// Fail transitions an in-progress task directly to failed, bypassing the
// remaining attempt budget. Used for non-retryable failure classes
// (missing source object, malformed input).
func (s *Store) Fail(ctx context.Context, taskID int64, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`UPDATE pipeline_queue
		 SET status = ?, attempts = attempts + 1, error_message = ?, stage = NULL, completed_at = ?
		 WHERE id = ? AND status = ?`,
		StatusFailed, msg, time.Now().Unix(), taskID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to fail task %d: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d (or not in-progress)", ErrTaskNotFound, taskID)
	}

	metrics.QueueTasksFailed.WithLabelValues("non_retryable").Inc()
	logging.Warn("Task %d failed permanently (non-retryable): %s", taskID, msg)
	return nil
}

// FailedPage is one page of failed tasks.
type FailedPage struct {
	Tasks      []Task
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ListFailed returns failed tasks newest-first, optionally filtered by
// kind. Pages are 1-based.
func (s *Store) ListFailed(ctx context.Context, page, pageSize int, kindFilter TaskKind) (*FailedPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where := `status = ?`
	args := []any{StatusFailed}
	if kindFilter != "" {
		where += ` AND kind = ?`
		args = append(args, string(kindFilter))
	}

	var total int
	if err := s.db.QueryRowContext(opCtx,
		`SELECT COUNT(*) FROM pipeline_queue WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count failed tasks: %w", err)
	}

	listArgs := append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(opCtx,
		`SELECT `+taskColumns+` FROM pipeline_queue WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed tasks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close failed-task rows: %v", err)
		}
	}()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating failed tasks: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &FailedPage{
		Tasks:      tasks,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Retried tasks go to the front of the line: they were already waiting
// once, and an operator explicitly asked for them.
const retryPriority = 0

// retrySet resets the matched failed tasks to pending with attempts and
// error cleared, returning the affected count. Non-failed rows never match.
func (s *Store) retrySet(ctx context.Context, where string, args ...any) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE pipeline_queue
		SET status = ?, attempts = 0, error_message = NULL, stage = NULL,
			priority = ?, created_at = ?, completed_at = NULL
		WHERE status = ? AND %s`, where)

	allArgs := append([]any{StatusPending, retryPriority, time.Now().Unix(), StatusFailed}, args...)
	res, err := s.db.ExecContext(opCtx, query, allArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to retry tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Info("%d failed task(s) reset for retry", n)
	}
	return n, nil
}

// RetryFailed resets one failed task to pending. Returns the number of
// affected tasks (0 when the task is missing or not failed).
func (s *Store) RetryFailed(ctx context.Context, taskID int64) (int64, error) {
	return s.retrySet(ctx, `id = ?`, taskID)
}

// RetryAllFailed resets every failed task to pending.
func (s *Store) RetryAllFailed(ctx context.Context) (int64, error) {
	return s.retrySet(ctx, `1 = 1`)
}

// RetryFailedBatch resets the given failed tasks to pending.
func (s *Store) RetryFailedBatch(ctx context.Context, taskIDs []int64) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	where, args := idSet(taskIDs)
	return s.retrySet(ctx, where, args...)
}

// deleteSet removes matched failed rows, returning the affected count.
func (s *Store) deleteSet(ctx context.Context, where string, args ...any) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM pipeline_queue WHERE status = ? AND %s`, where)
	allArgs := append([]any{StatusFailed}, args...)
	res, err := s.db.ExecContext(opCtx, query, allArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Info("%d failed task(s) deleted", n)
	}
	return n, nil
}

// DeleteFailed removes one failed task. Returns 0 when the task is missing
// or not failed.
func (s *Store) DeleteFailed(ctx context.Context, taskID int64) (int64, error) {
	return s.deleteSet(ctx, `id = ?`, taskID)
}

// DeleteAllFailed removes every failed task.
func (s *Store) DeleteAllFailed(ctx context.Context) (int64, error) {
	return s.deleteSet(ctx, `1 = 1`)
}

// DeleteFailedBatch removes the given failed tasks.
func (s *Store) DeleteFailedBatch(ctx context.Context, taskIDs []int64) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	where, args := idSet(taskIDs)
	return s.deleteSet(ctx, where, args...)
}

func idSet(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ",")), args
}

// Get returns a task by id.
func (s *Store) Get(ctx context.Context, taskID int64) (*Task, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(opCtx,
		`SELECT `+taskColumns+` FROM pipeline_queue WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %d: %w", taskID, err)
	}
	return task, nil
}

// CountByStatus returns the number of tasks per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx,
		`SELECT status, COUNT(*) FROM pipeline_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close status-count rows: %v", err)
		}
	}()

	counts := map[Status]int{
		StatusPending:    0,
		StatusInProgress: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating status counts: %w", err)
	}

	for status, count := range counts {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(count))
	}
	return counts, nil
}

// AverageAttempts returns the mean attempt count across all tasks, 0 when
// the queue is empty.
func (s *Store) AverageAttempts(ctx context.Context) (float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(opCtx,
		`SELECT AVG(attempts) FROM pipeline_queue`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average attempts: %w", err)
	}
	return avg.Float64, nil
}
