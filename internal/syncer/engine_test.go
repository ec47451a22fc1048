package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsporty/prodtrack/internal/cache"
	"github.com/dsporty/prodtrack/internal/domain"
	"github.com/dsporty/prodtrack/internal/remote"
)

// stubInserter records insert payloads and can be told to fail.
type stubInserter struct {
	inserted  []remote.NewRecord
	insertErr error
	nextID    int
}

func (s *stubInserter) Insert(_ context.Context, records []remote.NewRecord) ([]remote.Record, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	out := make([]remote.Record, 0, len(records))
	for _, r := range records {
		s.nextID++
		s.inserted = append(s.inserted, r)
		out = append(out, remote.Record{ID: fmt.Sprintf("remote-%d", s.nextID)})
	}
	return out, nil
}

// stubState records reconciler interactions.
type stubState struct {
	removed      []string
	syncingCalls []bool
}

func (s *stubState) RemoveByID(id string) { s.removed = append(s.removed, id) }
func (s *stubState) SetSyncing(v bool)    { s.syncingCalls = append(s.syncingCalls, v) }

func openTestCache(t *testing.T) *cache.Store {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func pendingRecord(id, exporter string, createdAt time.Time) domain.ProductionRecord {
	return domain.ProductionRecord{
		ID:         id,
		Exporter:   exporter,
		Product:    "Short",
		Quantity:   1,
		MaterialID: "L1",
		CreatedAt:  createdAt,
	}
}

func TestDrainNothingPending(t *testing.T) {
	c := openTestCache(t)
	ins := &stubInserter{}
	st := &stubState{}
	engine := New(c, ins, st, slog.Default())

	synced, err := engine.Drain(context.Background())

	require.NoError(t, err)
	assert.Zero(t, synced)
	assert.Empty(t, ins.inserted)
	assert.Empty(t, st.syncingCalls, "a no-op drain must not toggle the syncing flag")
}

func TestDrainSendsPendingInSubmissionOrder(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	// Cache holds the list newest first, as the reconciler persists it.
	c.Save(ctx, []domain.ProductionRecord{
		pendingRecord("local_2_0", "BETO", base.Add(time.Minute)),
		pendingRecord("local_1_0", "ANA", base),
	})

	ins := &stubInserter{}
	st := &stubState{}
	engine := New(c, ins, st, slog.Default())

	synced, err := engine.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	require.Len(t, ins.inserted, 2)
	assert.Equal(t, "ANA", ins.inserted[0].Exporter)
	assert.Equal(t, "BETO", ins.inserted[1].Exporter)
	assert.Equal(t, []string{"local_1_0", "local_2_0"}, st.removed)

	// The cache's pending subset is empty after a full drain.
	for _, rec := range c.Load(ctx) {
		assert.False(t, domain.IsLocalID(rec.ID))
	}
}

func TestDrainTwiceIsIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	c.Save(ctx, []domain.ProductionRecord{pendingRecord("local_1_0", "ANA", time.Now())})

	ins := &stubInserter{}
	engine := New(c, ins, &stubState{}, slog.Default())

	synced, err := engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	synced, err = engine.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, synced, "second drain with nothing pending must be a no-op")
	assert.Len(t, ins.inserted, 1)
}

func TestDrainKeepsPendingOnFailure(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	c.Save(ctx, []domain.ProductionRecord{pendingRecord("local_1_0", "ANA", time.Now())})

	ins := &stubInserter{insertErr: errors.New("still down")}
	st := &stubState{}
	engine := New(c, ins, st, slog.Default())

	synced, err := engine.Drain(ctx)

	require.NoError(t, err)
	assert.Zero(t, synced)
	assert.Empty(t, st.removed)

	// Nothing synced, so the cache is left untouched for the next attempt.
	cached := c.Load(ctx)
	require.Len(t, cached, 1)
	assert.Equal(t, "local_1_0", cached[0].ID)
}

func TestDrainResetsVerified(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	rec := pendingRecord("local_1_0", "ANA", time.Now())
	rec.Verified = true // degraded-mode verify flip that never reached the store
	c.Save(ctx, []domain.ProductionRecord{rec})

	ins := &stubInserter{}
	engine := New(c, ins, &stubState{}, slog.Default())

	_, err := engine.Drain(ctx)

	require.NoError(t, err)
	require.Len(t, ins.inserted, 1)
	assert.False(t, ins.inserted[0].Verified)
}

func TestDrainSkipsRemoteConfirmedRecords(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	c.Save(ctx, []domain.ProductionRecord{
		pendingRecord("local_1_0", "ANA", time.Now()),
		pendingRecord("9c5f2a10-0000-0000-0000-000000000000", "BETO", time.Now()),
	})

	ins := &stubInserter{}
	engine := New(c, ins, &stubState{}, slog.Default())

	synced, err := engine.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	require.Len(t, ins.inserted, 1)
	assert.Equal(t, "ANA", ins.inserted[0].Exporter)

	// The conservative prune keeps the remote-confirmed record cached.
	cached := c.Load(ctx)
	require.Len(t, cached, 1)
	assert.Equal(t, "BETO", cached[0].Exporter)
}

func TestDrainAlwaysClearsSyncingFlag(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	c.Save(ctx, []domain.ProductionRecord{pendingRecord("local_1_0", "ANA", time.Now())})

	ins := &stubInserter{insertErr: errors.New("boom")}
	st := &stubState{}
	engine := New(c, ins, st, slog.Default())

	_, err := engine.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, st.syncingCalls)
}
