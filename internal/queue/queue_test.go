package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q, err := Open(db)
	require.NoError(t, err)
	return q
}

func TestEnqueueAndFetchPending(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "what is X", "X is Y")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	task, err := q.FetchPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, StatusProcessing, task.Status)
}

func TestFetchPending_ReturnsNilWhenEmpty(t *testing.T) {
	q := testQueue(t)
	task, err := q.FetchPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestFetchPending_ClaimsOldestFirst(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "first", "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "second", "")
	require.NoError(t, err)

	task, err := q.FetchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, task.ID)
}

func TestFetchPending_DoesNotReturnAlreadyProcessingTask(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "only task", "")
	require.NoError(t, err)

	first, err := q.FetchPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.FetchPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
}

// taskFields projects the fields MarkFailed and RecoverStale actually
// modify, so the comparison below isn't tripped up by timestamp columns.
type taskFields struct {
	ID       int64
	Status   string
	Retries  int
	ErrorMsg string
}

func toFields(t Task) taskFields {
	return taskFields{ID: t.ID, Status: t.Status, Retries: t.Retries, ErrorMsg: t.ErrorMsg}
}

func TestEnqueue_PreservesUserInputAndAgentOutput(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "what is the capital of france", "paris")
	require.NoError(t, err)

	task, err := q.FetchPending(ctx)
	require.NoError(t, err)

	want := taskFields{ID: id, Status: StatusProcessing, Retries: 0, ErrorMsg: ""}
	got := toFields(*task)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("task fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "what is the capital of france", task.UserInput)
	assert.Equal(t, "paris", task.AgentOutput)
}

func TestMarkDone(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "x", "y")
	_, err := q.FetchPending(ctx)
	require.NoError(t, err)

	require.NoError(t, q.MarkDone(ctx, id))

	tasks, err := q.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusDone, tasks[0].Status)
}

func TestMarkFailed_IncrementsRetries(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "x", "y")
	_, err := q.FetchPending(ctx)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, id, "boom"))

	tasks, err := q.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusFailed, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].Retries)
	assert.Equal(t, "boom", tasks[0].ErrorMsg)
}

func TestListRecent_RespectsLimitAndOrder(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "task", "")
		require.NoError(t, err)
	}

	tasks, err := q.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Greater(t, tasks[0].ID, tasks[1].ID)
}

func TestClear_RemovesAllTasks(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "a", "")
	require.NoError(t, err)
	require.NoError(t, q.Clear(ctx))

	tasks, err := q.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRecoverStale_ResetsOldProcessingTasks(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "stuck task", "")
	_, err := q.FetchPending(ctx)
	require.NoError(t, err)

	_, err = q.db.ExecContext(ctx, "UPDATE task_queue SET updated_at = ? WHERE id = ?", time.Now().Add(-time.Hour), id)
	require.NoError(t, err)

	recovered, failed, err := q.RecoverStale(ctx, time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, 0, failed)

	tasks, err := q.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusPending, tasks[0].Status)
}

func TestRecoverStale_FailsTasksPastMaxRetries(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "stuck task", "")
	_, err := q.FetchPending(ctx)
	require.NoError(t, err)

	_, err = q.db.ExecContext(ctx, "UPDATE task_queue SET updated_at = ?, retries = ? WHERE id = ?",
		time.Now().Add(-time.Hour), 3, id)
	require.NoError(t, err)

	recovered, failed, err := q.RecoverStale(ctx, time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	assert.Equal(t, 1, failed)
}
