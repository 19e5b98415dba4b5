// Package queue implements the durable task queue (component E): a single
// SQLite table recording interaction-analysis work for the reflection
// worker to pick up, with an explicit pending -> processing -> {done,
// failed} state machine. Schema and state names are ported directly from
// original_source/src/ace_rm/memory/queue.py's TaskQueue.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"acemem/internal/logging"
)

// Status values for task_queue.status.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task is one row of the task_queue table.
type Task struct {
	ID          int64
	UserInput   string
	AgentOutput string
	Status      string
	Retries     int
	ErrorMsg    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Queue is a mutex-guarded handle on the task_queue table. Safe for
// concurrent use by multiple goroutines; FetchPending additionally
// serializes the fetch-then-mark-processing sequence inside one
// transaction so two competing workers never claim the same task
// (SPEC_FULL.md §4.E - a stronger guarantee than the original's two
// separate connections for fetch and mark).
type Queue struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the task_queue table on db. db is expected to be
// the same *sql.DB memstore.Open returns, colocating the queue in the
// memory store's database file per SPEC_FULL.md §6.
func Open(db *sql.DB) (*Queue, error) {
	q := &Queue{db: db}
	if err := q.ensureSchema(); err != nil {
		return nil, fmt.Errorf("queue: ensure schema: %w", err)
	}
	return q, nil
}

func (q *Queue) ensureSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_input TEXT,
			agent_output TEXT,
			status TEXT DEFAULT 'pending',
			retries INTEGER DEFAULT 0,
			error_msg TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(`CREATE INDEX IF NOT EXISTS idx_task_queue_status ON task_queue(status)`)
	return err
}

// Enqueue inserts a new pending task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, userInput, agentOutput string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.db.ExecContext(ctx,
		"INSERT INTO task_queue (user_input, agent_output, status, error_msg) VALUES (?, ?, ?, '')",
		userInput, agentOutput, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("queue: get inserted id: %w", err)
	}
	logging.QueueDebug("enqueued task %d", id)
	return id, nil
}

// FetchPending atomically claims the oldest pending task, marking it
// processing in the same transaction, and returns it. Returns (nil, nil)
// if there is no pending task.
func (q *Queue) FetchPending(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT id, user_input, agent_output, status, retries, error_msg, created_at, updated_at FROM task_queue WHERE status = ? ORDER BY id ASC LIMIT 1",
		StatusPending)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: fetch pending: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE task_queue SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StatusProcessing, t.ID); err != nil {
		return nil, fmt.Errorf("queue: mark processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: commit: %w", err)
	}

	t.Status = StatusProcessing
	logging.QueueDebug("claimed task %d", t.ID)
	return t, nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.UserInput, &t.AgentOutput, &t.Status, &t.Retries, &t.ErrorMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkDone marks a task complete.
func (q *Queue) MarkDone(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx,
		"UPDATE task_queue SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StatusDone, id)
	if err != nil {
		return fmt.Errorf("queue: mark done: %w", err)
	}
	logging.QueueDebug("task %d done", id)
	return nil
}

// MarkFailed marks a task failed, records errMsg, and increments retries.
func (q *Queue) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx,
		"UPDATE task_queue SET status = ?, error_msg = ?, retries = retries + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("queue: mark failed: %w", err)
	}
	logging.QueueError("task %d failed: %s", id, errMsg)
	return nil
}

// ListRecent returns the most recent tasks, newest first, up to limit.
// Unlike the original's hardcoded LIMIT 20, limit is caller-supplied.
func (q *Queue) ListRecent(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, user_input, agent_output, status, retries, error_msg, created_at, updated_at FROM task_queue ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("queue: list recent: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserInput, &t.AgentOutput, &t.Status, &t.Retries, &t.ErrorMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("queue: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Clear deletes every task.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx, "DELETE FROM task_queue")
	if err != nil {
		return fmt.Errorf("queue: clear: %w", err)
	}
	return nil
}

// RecoverStale resets tasks stuck in "processing" for longer than maxAge
// back to "pending", up to maxRetries attempts; beyond that they're marked
// failed. This is a supplemented operation - the original has no recovery
// path for a worker that crashes mid-task, leaving it stuck in
// "processing" forever. Optional: callers that run a single worker process
// with no crash-recovery requirement can skip calling this.
func (q *Queue) RecoverStale(ctx context.Context, maxAge time.Duration, maxRetries int) (recovered int, failed int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	rows, queryErr := q.db.QueryContext(ctx,
		"SELECT id, retries FROM task_queue WHERE status = ? AND updated_at < ?",
		StatusProcessing, cutoff)
	if queryErr != nil {
		return 0, 0, fmt.Errorf("queue: query stale tasks: %w", queryErr)
	}

	type stale struct {
		id      int64
		retries int
	}
	var staleTasks []stale
	for rows.Next() {
		var s stale
		if err := rows.Scan(&s.id, &s.retries); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("queue: scan stale task: %w", err)
		}
		staleTasks = append(staleTasks, s)
	}
	rows.Close()

	for _, s := range staleTasks {
		if s.retries >= maxRetries {
			if _, err := q.db.ExecContext(ctx,
				"UPDATE task_queue SET status = ?, error_msg = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				StatusFailed, "exceeded max retries after stale recovery", s.id); err != nil {
				return recovered, failed, fmt.Errorf("queue: marking stale task failed: %w", err)
			}
			failed++
			continue
		}
		if _, err := q.db.ExecContext(ctx,
			"UPDATE task_queue SET status = ?, retries = retries + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			StatusPending, s.id); err != nil {
			return recovered, failed, fmt.Errorf("queue: resetting stale task: %w", err)
		}
		recovered++
	}

	if recovered > 0 || failed > 0 {
		logging.QueueWarn("stale recovery: reset %d task(s) to pending, failed %d", recovered, failed)
	}
	return recovered, failed, nil
}
