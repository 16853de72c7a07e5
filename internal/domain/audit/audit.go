// Package audit defines the append-only history sink consumed by order
// workflows. Records exist for audit, not for business logic.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one immutable history entry for an order.
type Record struct {
	TenantID string
	OrderID  string
	ActorID  string
	Action   string
	Status   string
	Reason   string
	// Snapshot is a serialized copy of the order at the time of the action.
	Snapshot json.RawMessage
	At       time.Time
}

// Recorder appends history records. Implementations write within the caller's
// transaction so a rolled-back order leaves no history behind.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}
