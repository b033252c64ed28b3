package fallevent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const eventCols = `id, facility_id, resident_id, occurred_at, location, unit, notes,
	reported_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*FallEvent, error) {
	var e FallEvent
	err := row.Scan(&e.ID, &e.FacilityID, &e.ResidentID, &e.OccurredAt, &e.Location, &e.Unit,
		&e.Notes, &e.ReportedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*FallEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM fall_events WHERE id = $1`, id))
}

func (r *repoPG) Create(ctx context.Context, e *FallEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fall_events (id, facility_id, resident_id, occurred_at, location, unit, notes, reported_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.FacilityID, e.ResidentID, e.OccurredAt, e.Location, e.Unit, e.Notes, e.ReportedBy)
	return err
}

func (r *repoPG) ListOccurredSince(ctx context.Context, facilityID uuid.UUID, cutoff time.Time) ([]*FallEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventCols+` FROM fall_events
		WHERE facility_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at`, facilityID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*FallEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

type checkRepoPG struct{ pool *pgxpool.Pool }

func NewCheckRepoPG(pool *pgxpool.Pool) CheckRepository {
	return &checkRepoPG{pool: pool}
}

const checkCols = `id, fall_event_id, check_type, status, completed_at, completed_by, notes,
	created_at, updated_at`

func scanCheck(row pgx.Row) (*PostFallCheck, error) {
	var c PostFallCheck
	err := row.Scan(&c.ID, &c.FallEventID, &c.CheckType, &c.Status, &c.CompletedAt, &c.CompletedBy,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *checkRepoPG) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*PostFallCheck, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+checkCols+` FROM post_fall_checks
		WHERE fall_event_id = $1
		ORDER BY check_type`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PostFallCheck
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *checkRepoPG) Upsert(ctx context.Context, c *PostFallCheck) (*PostFallCheck, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return scanCheck(r.pool.QueryRow(ctx, `
		INSERT INTO post_fall_checks (id, fall_event_id, check_type, status, completed_at, completed_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (fall_event_id, check_type) DO UPDATE
		SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at,
			completed_by = EXCLUDED.completed_by, notes = EXCLUDED.notes, updated_at = NOW()
		RETURNING `+checkCols,
		c.ID, c.FallEventID, c.CheckType, c.Status, c.CompletedAt, c.CompletedBy, c.Notes))
}

func (r *checkRepoPG) CompletedCounts(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(eventIDs))
	if len(eventIDs) == 0 {
		return counts, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT fall_event_id, COUNT(DISTINCT check_type)
		FROM post_fall_checks
		WHERE fall_event_id = ANY($1) AND status = 'completed'
		GROUP BY fall_event_id`, eventIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
