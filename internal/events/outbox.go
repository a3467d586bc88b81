package events

import (
	"context"
	"fmt"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
)

type Outbox interface {
	Recorder
	Store
}

type postgresOutbox struct {
	db db.DBTX
}

func NewOutbox(db db.DBTX) Outbox {
	return &postgresOutbox{db: db}
}

func (o *postgresOutbox) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO outbox (event_id, event_type, key, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := o.db.QueryRow(ctx, query, rec.EventID, rec.EventType, rec.Key, []byte(rec.Payload)).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("outbox: failed to append %s event: %w", rec.EventType, err)
	}
	return nil
}

// Pending returns unsent records oldest first.
func (o *postgresOutbox) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, event_id, event_type, key, payload, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to query pending events: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.Key, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: failed to scan event: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: failed iterating pending events: %w", err)
	}
	return records, nil
}

func (o *postgresOutbox) MarkSent(ctx context.Context, id int64) error {
	tag, err := o.db.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("outbox: failed to mark event %d sent: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox: event %d: %w", id, ErrNotPending)
	}
	return nil
}
