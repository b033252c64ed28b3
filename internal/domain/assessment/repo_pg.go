package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fallguard/fallguard/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const assessCols = `id, facility_id, resident_id, status, protocol, capture_method,
	assessment_date, scheduled_date, due_date, reassessment_due_date, completed_at,
	assigned_to, assigned_at, unit, created_at, updated_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.FacilityID, &a.ResidentID, &a.Status, &a.Protocol, &a.Capture,
		&a.AssessmentDate, &a.ScheduledDate, &a.DueDate, &a.ReassessmentDueDate, &a.CompletedAt,
		&a.AssignedTo, &a.AssignedAt, &a.Unit, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.conn(ctx).QueryRow(ctx, `SELECT `+assessCols+` FROM assessments WHERE id = $1`, id))
}

func (r *repoPG) Search(ctx context.Context, facilityID uuid.UUID, p SearchParams) ([]*Assessment, error) {
	where := []string{"facility_id = $1"}
	args := []interface{}{facilityID}

	if len(p.Statuses) > 0 {
		statuses := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	switch {
	case p.Unassigned:
		where = append(where, "assigned_to IS NULL")
	case p.AssignedTo != nil:
		args = append(args, *p.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if p.Unit != nil {
		args = append(args, *p.Unit)
		where = append(where, fmt.Sprintf("unit = $%d", len(args)))
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, p.Offset)
	q := fmt.Sprintf(`SELECT %s FROM assessments WHERE %s
		ORDER BY COALESCE(due_date, scheduled_date, assessment_date), created_at
		LIMIT $%d OFFSET $%d`,
		assessCols, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, a *Assessment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE assessments
		SET status = $2, completed_at = $3, reassessment_due_date = $4, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.CompletedAt, a.ReassessmentDueDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateAssignment(ctx context.Context, a *Assessment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE assessments
		SET assigned_to = $2, assigned_at = $3, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.AssignedTo, a.AssignedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
