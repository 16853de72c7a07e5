package repository

import (
	"context"
	"fmt"

	"github.com/merchantkit/backoffice/internal/domain/audit"
)

const appendHistorySQL = `INSERT INTO order_history
	(tenant_id, order_id, actor_id, action, status, reason, snapshot, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var _ audit.Recorder = (*HistoryRepository)(nil)

// HistoryRepository implements audit.Recorder backed by PostgreSQL. Rows are
// insert-only; nothing in the application updates or deletes them.
type HistoryRepository struct {
	db DB
}

// NewHistoryRepository returns a HistoryRepository over the given DB.
func NewHistoryRepository(db DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append writes one history record.
func (r *HistoryRepository) Append(ctx context.Context, rec audit.Record) error {
	_, err := r.db.Exec(ctx, appendHistorySQL,
		rec.TenantID, rec.OrderID, rec.ActorID, rec.Action, rec.Status, rec.Reason,
		[]byte(rec.Snapshot), rec.At,
	)
	if err != nil {
		return fmt.Errorf("appending history for order %q: %w", rec.OrderID, err)
	}
	return nil
}
