// Package syncer drains offline-parked records into the remote store when
// connectivity is available. It is the only component that mutates the
// cache's pending subset.
package syncer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dsporty/prodtrack/internal/domain"
	"github.com/dsporty/prodtrack/internal/remote"
)

// pendingCache is the subset of cache.Store the engine requires.
type pendingCache interface {
	Load(ctx context.Context) []domain.ProductionRecord
	Save(ctx context.Context, records []domain.ProductionRecord)
}

// inserter is the subset of remote.Store the engine requires.
type inserter interface {
	Insert(ctx context.Context, records []remote.NewRecord) ([]remote.Record, error)
}

// listState is the reconciler surface the engine is allowed to touch.
type listState interface {
	RemoveByID(id string)
	SetSyncing(v bool)
}

type Engine struct {
	cache  pendingCache
	remote inserter
	state  listState
	logger *slog.Logger
}

func New(cache pendingCache, remote inserter, state listState, logger *slog.Logger) *Engine {
	return &Engine{
		cache:  cache,
		remote: remote,
		state:  state,
		logger: logger,
	}
}

// Drain pushes every cached local_-namespaced record to the remote store and
// returns how many landed. Records are sent one at a time, in cache order:
// sequential inserts bound remote load during a reconnect burst and keep
// submission order deterministic. With no pending records Drain is a no-op,
// so running it twice in a row is safe.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	cached := e.cache.Load(ctx)

	var pending []domain.ProductionRecord
	for _, rec := range cached {
		if domain.IsLocalID(rec.ID) {
			pending = append(pending, rec)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	// The cache holds the list newest first; replay in submission order.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	e.state.SetSyncing(true)
	defer e.state.SetSyncing(false)

	e.logger.Info("draining pending records", "pending", len(pending))

	synced := 0
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			e.prune(ctx, cached, synced)
			return synced, err
		}

		payload := remote.NewRecord{
			Exporter:     rec.Exporter,
			Product:      rec.Product,
			Quantity:     rec.Quantity,
			MaterialID:   rec.MaterialID,
			ImageDataURL: rec.ImageDataURL,
			Timestamp:    rec.CreatedAt,
			Verified:     false, // verification never rides along on a sync
		}
		if _, err := e.remote.Insert(ctx, []remote.NewRecord{payload}); err != nil {
			e.logger.Warn("failed to sync pending record", "id", rec.ID, "error", err)
			continue
		}

		// The change feed delivers the authoritative copy; drop the local one
		// from the list now so the two never show together.
		e.state.RemoveByID(rec.ID)
		synced++
	}

	e.prune(ctx, cached, synced)
	e.logger.Info("drain complete", "pending", len(pending), "synced", synced)
	return synced, nil
}

// prune rewrites the cache without any local_-namespaced records once at
// least one of them synced. Conservative: it does not re-verify each synced
// id, it just drops the pending subset wholesale.
func (e *Engine) prune(ctx context.Context, cached []domain.ProductionRecord, synced int) {
	if synced == 0 {
		return
	}
	remaining := make([]domain.ProductionRecord, 0, len(cached))
	for _, rec := range cached {
		if !domain.IsLocalID(rec.ID) {
			remaining = append(remaining, rec)
		}
	}
	e.cache.Save(ctx, remaining)
}
