package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists events into the notifications table read by the inbox UI.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Publish implements Publisher by inserting the event directly.
func (s *Store) Publish(ctx context.Context, event Event) error {
	meta := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var role any
	if event.TargetRole != "" {
		role = event.TargetRole
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO notifications (id, type, title, message, user_id, target_role, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.New(), string(event.Type), event.Title, event.Message, event.UserID, role, meta, at)
	return err
}
