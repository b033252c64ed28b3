package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fallguard/fallguard/internal/platform/db"
)

type repoPG struct {
	pool        *pgxpool.Pool
	retryDelay  time.Duration
	maxAttempts int
}

// NewRepoPG creates the Postgres-backed task store. retryDelay and
// maxAttempts parameterize the Fail retry ladder.
func NewRepoPG(pool *pgxpool.Pool, retryDelay time.Duration, maxAttempts int) Repository {
	return &repoPG{pool: pool, retryDelay: retryDelay, maxAttempts: maxAttempts}
}

// Enqueues join a caller's transaction when one is carried on the context,
// so a schedule advance and its follow-up task commit together.
func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const taskCols = `id, task_key, task_type, status, payload, run_at, attempts, last_error, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.TaskKey, &t.Type, &t.Status, &t.Payload,
		&t.RunAt, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *repoPG) Enqueue(ctx context.Context, task *Task) (bool, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tasks (id, task_key, task_type, status, payload, run_at)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		ON CONFLICT (task_key) DO NOTHING`,
		task.ID, task.TaskKey, task.Type, task.Payload, task.RunAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimBatch is a single atomic read-modify-write: the inner SELECT locks
// candidate rows with SKIP LOCKED so concurrent workers never claim the
// same task.
func (r *repoPG) ClaimBatch(ctx context.Context, n int, now time.Time) ([]*Task, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE tasks SET status = 'running', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskCols, now, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, t)
	}
	return claimed, rows.Err()
}

func (r *repoPG) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail applies the retry ladder in one statement: below the attempt cap the
// task returns to pending with run_at pushed forward; at the cap it becomes
// terminally failed and is never claimed again.
func (r *repoPG) Fail(ctx context.Context, id uuid.UUID, taskErr string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tasks SET
			status = CASE WHEN attempts >= $3 THEN 'failed' ELSE 'pending' END,
			run_at = CASE WHEN attempts >= $3 THEN run_at ELSE NOW() + $4::interval END,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		id, taskErr, r.maxAttempts, r.retryDelay.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return scanTask(r.conn(ctx).QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id))
}
