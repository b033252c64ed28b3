package export

import (
	"context"
	"errors"
	"time"

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

const scheduleCols = `id, facility_id, export_type, frequency, day_of_week, hour, minute,
	status, last_run_at, next_run_at, created_at, updated_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.FacilityID, &s.ExportType, &s.Frequency, &s.DayOfWeek, &s.Hour,
		&s.Minute, &s.Status, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+scheduleCols+` FROM export_schedules WHERE id = $1`, id))
}

func (r *repoPG) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleCols+` FROM export_schedules WHERE facility_id = $1 ORDER BY created_at`, facilityID)
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleCols+` FROM export_schedules WHERE status = 'active' ORDER BY created_at`)
}

func (r *repoPG) list(ctx context.Context, q string, args ...interface{}) ([]*Schedule, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, s *Schedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO export_schedules (id, facility_id, export_type, frequency, day_of_week, hour, minute, status, next_run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.FacilityID, s.ExportType, s.Frequency, s.DayOfWeek, s.Hour, s.Minute, s.Status, s.NextRunAt)
	return err
}

func (r *repoPG) Update(ctx context.Context, s *Schedule) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE export_schedules
		SET export_type=$2, frequency=$3, day_of_week=$4, hour=$5, minute=$6, status=$7,
			next_run_at=$8, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.ExportType, s.Frequency, s.DayOfWeek, s.Hour, s.Minute, s.Status, s.NextRunAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time, next time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE export_schedules
		SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND (next_run_at IS NULL OR next_run_at < $3)`,
		id, ranAt, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type artifactRepoPG struct{ pool *pgxpool.Pool }

func NewArtifactRepoPG(pool *pgxpool.Pool) ArtifactRepository {
	return &artifactRepoPG{pool: pool}
}

func (r *artifactRepoPG) Create(ctx context.Context, a *Artifact) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO export_artifacts (id, schedule_id, facility_id, export_type, filename, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.ScheduleID, a.FacilityID, a.ExportType, a.Filename, a.SizeBytes)
	return err
}

func (r *artifactRepoPG) ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]*Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, facility_id, export_type, filename, size_bytes, created_at
		FROM export_artifacts WHERE schedule_id = $1
		ORDER BY created_at DESC LIMIT $2`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.FacilityID, &a.ExportType, &a.Filename, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
