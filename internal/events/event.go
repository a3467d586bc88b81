package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

const TypeOrderPlaced = "order.placed"

var ErrNotPending = errors.New("event is not pending")

// Record is one row of the transactional outbox.
type Record struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	EventType string          `json:"event_type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	OrderID    int64             `json:"order_id"`
	UserID     int64             `json:"user_id"`
	Email      string            `json:"email"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	Items      []OrderPlacedItem `json:"items"`
	PlacedAt   time.Time         `json:"placed_at"`
}

// NewOrderPlaced builds an outbox record keyed by order id so all events for
// one order land on the same partition.
func NewOrderPlaced(evt OrderPlaced) (*Record, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("events: failed to generate event id: %w", err)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("events: failed to marshal order placed: %w", err)
	}
	return &Record{
		EventID:   id,
		EventType: TypeOrderPlaced,
		Key:       strconv.FormatInt(evt.OrderID, 10),
		Payload:   payload,
	}, nil
}

// Recorder appends events as part of the caller's unit of work.
type Recorder interface {
	Append(ctx context.Context, rec *Record) error
}

// Store is the relay's view of the outbox.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}
