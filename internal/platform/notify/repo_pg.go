package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const notifCols = `id, facility_id, user_id, type, title, body, data, event_key, channel,
	delivery, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.FacilityID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Data,
		&n.EventKey, &n.Channel, &n.Delivery, &n.ReadAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, facility_id, user_id, type, title, body, data, event_key, channel, delivery)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (event_key) DO NOTHING`,
		n.ID, n.FacilityID, n.UserID, n.Type, n.Title, n.Body, n.Data, n.EventKey, n.Channel, n.Delivery)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetDelivery(ctx context.Context, id uuid.UUID, status DeliveryStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET delivery = $2 WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) ListByUser(ctx context.Context, facilityID, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + notifCols + ` FROM notifications
		WHERE facility_id = $1 AND user_id = $2 AND channel = 'in_app'`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, q, facilityID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`, id, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}
