// Package remote defines the consumed contract of the shared record store:
// one relational table plus a change-notification feed. The store assigns its
// own primary keys; the client never sends an id on insert.
package remote

import (
	"context"
	"time"
)

// Record is a row as returned by the store, id included.
type Record struct {
	ID           string
	Exporter     string
	Product      string
	Quantity     int
	MaterialID   string
	ImageDataURL string
	Timestamp    time.Time
	Verified     bool
}

// NewRecord is an insert payload. It deliberately has no id field.
type NewRecord struct {
	Exporter     string
	Product      string
	Quantity     int
	MaterialID   string
	ImageDataURL string
	Timestamp    time.Time
	Verified     bool
}

// Store is the capability set the sync core consumes.
//
// Insert fails as a unit: on error no inserted row is visible to the caller.
// Subscribe delivers a bare "something changed" signal whenever any client
// touches the table; delivery order carries no causal guarantee, so a
// notification means "re-select and reconcile", never "apply this delta".
type Store interface {
	Select(ctx context.Context) ([]Record, error)
	Insert(ctx context.Context, records []NewRecord) ([]Record, error)
	UpdateVerified(ctx context.Context, id string, verified bool) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Subscribe(ctx context.Context, notify func()) error
	Ping(ctx context.Context) error
}
