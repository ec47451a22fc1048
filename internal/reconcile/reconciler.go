// Package reconcile owns the canonical in-memory record list. Everything the
// view renders comes from here; user actions, the remote change feed and
// cache hydration all flow in, and the list flows out as read-only snapshots.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsporty/prodtrack/internal/domain"
	"github.com/dsporty/prodtrack/internal/remote"
)

// remoteStore is the subset of remote.Store the reconciler requires.
type remoteStore interface {
	Select(ctx context.Context) ([]remote.Record, error)
	Insert(ctx context.Context, records []remote.NewRecord) ([]remote.Record, error)
	UpdateVerified(ctx context.Context, id string, verified bool) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Ping(ctx context.Context) error
}

// offlineCache is the subset of cache.Store the reconciler requires.
type offlineCache interface {
	Save(ctx context.Context, records []domain.ProductionRecord)
	Load(ctx context.Context) []domain.ProductionRecord
	Clear(ctx context.Context) error
}

// Validation errors block the operation before any state mutation and are
// never retried automatically.
var (
	ErrNameRequired      = errors.New("submitter name is required")
	ErrPhotoRequired     = errors.New("a photo must be attached")
	ErrPhotoTooLarge     = errors.New("photo is too large")
	ErrNoItems           = errors.New("at least one item is required")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrBadQuantity       = errors.New("quantity must be a positive number")
	ErrReferenceRequired = errors.New("batch reference is required")
)

var (
	// ErrOffline refuses trust/audit actions that must land authoritatively.
	ErrOffline = errors.New("action unavailable offline")
	// ErrBadCredential aborts a destructive admin operation with no effect.
	ErrBadCredential = errors.New("incorrect admin password")
	ErrNotFound      = errors.New("record not found")
)

var validationErrs = []error{
	ErrNameRequired, ErrPhotoRequired, ErrPhotoTooLarge,
	ErrNoItems, ErrUnknownProduct, ErrBadQuantity, ErrReferenceRequired,
}

// IsValidationError reports whether err is user-correctable input.
func IsValidationError(err error) bool {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// Notice is the user-visible outcome of a submission.
type Notice int

const (
	// NoticeSynced: the batch is durable in the remote store.
	NoticeSynced Notice = iota
	// NoticeSavedOffline: no connectivity; parked locally, will sync.
	NoticeSavedOffline
	// NoticeSavedDegraded: online insert failed; parked locally, will sync.
	NoticeSavedDegraded
)

func (n Notice) Message() string {
	switch n {
	case NoticeSavedOffline:
		return "no connection: saved locally, will sync when back online"
	case NoticeSavedDegraded:
		return "connection error: saved locally, will sync when back online"
	default:
		return "record saved"
	}
}

// offlineUserID is the fallback identity used when session bootstrap fails.
// Deletes are persisted to the offline cache only under this identity.
const offlineUserID = "offline-user"

// Status is a read-only snapshot of the sync state and session.
type Status struct {
	Online           bool   `json:"online"`
	Syncing          bool   `json:"syncing"`
	UserID           string `json:"userId"`
	FallbackIdentity bool   `json:"fallbackIdentity"`
}

// Reconciler merges optimistic local writes, remote-confirmed writes and
// cached offline writes into one canonical ordered list. The mutex guards the
// list and flags; it is never held across a network or storage call, and
// every mutation replaces the whole slice so a slow call that completes late
// reconciles against current state by id rather than by position.
type Reconciler struct {
	remote   remoteStore
	cache    offlineCache
	adminKey string
	logger   *slog.Logger

	mu       sync.Mutex
	records  []domain.ProductionRecord
	state    domain.SyncState
	userID   string
	fallback bool
}

func New(remote remoteStore, cache offlineCache, adminKey string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		remote:   remote,
		cache:    cache,
		adminKey: adminKey,
		logger:   logger,
	}
}

// Bootstrap establishes the anonymous session. When the remote store cannot
// be reached the process continues under the offline fallback identity.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.remote.Ping(ctx); err != nil {
		r.logger.Warn("session bootstrap failed, using offline identity", "error", err)
		r.userID = offlineUserID
		r.fallback = true
		return
	}
	r.userID = uuid.NewString()
	r.fallback = false
	r.logger.Info("anonymous session established", "user_id", r.userID)
}

// SetOnline is called by the connectivity monitor only.
func (r *Reconciler) SetOnline(v bool) {
	r.mu.Lock()
	r.state.Online = v
	r.mu.Unlock()
}

// SetSyncing is called by the sync engine only.
func (r *Reconciler) SetSyncing(v bool) {
	r.mu.Lock()
	r.state.Syncing = v
	r.mu.Unlock()
}

func (r *Reconciler) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Online
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Online:           r.state.Online,
		Syncing:          r.state.Syncing,
		UserID:           r.userID,
		FallbackIdentity: r.fallback,
	}
}

// Records returns a copy of the canonical list, newest first.
func (r *Reconciler) Records() []domain.ProductionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProductionRecord(nil), r.records...)
}

// RemoveByID drops one record from the in-memory list. Used by the sync
// engine after a pending record lands remotely; the change feed delivers the
// authoritative copy.
func (r *Reconciler) RemoveByID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = removeID(r.records, id)
}

// Hydrate loads the initial list: from the remote store when online (falling
// back to the offline cache if the select fails), from the cache otherwise.
func (r *Reconciler) Hydrate(ctx context.Context) {
	if !r.Online() {
		records := r.cache.Load(ctx)
		domain.SortByCreatedAtDesc(records)
		r.replace(records)
		r.logger.Info("hydrated from offline cache", "records", len(records))
		return
	}

	rows, err := r.remote.Select(ctx)
	if err != nil {
		r.logger.Warn("remote select failed, hydrating from offline cache", "error", err)
		records := r.cache.Load(ctx)
		domain.SortByCreatedAtDesc(records)
		r.replace(records)
		return
	}
	r.replace(fromRemote(rows))
	r.logger.Info("hydrated from remote store", "records", len(rows))
}

// Refetch re-selects the table after a change notification. The feed is a
// bare signal with no ordering guarantee, so the whole list is replaced with
// the authoritative copy; on failure the current list is kept.
func (r *Reconciler) Refetch(ctx context.Context) {
	if !r.Online() {
		return
	}
	rows, err := r.remote.Select(ctx)
	if err != nil {
		r.logger.Warn("refetch after change notification failed", "error", err)
		return
	}
	r.replace(fromRemote(rows))
}

// Submit validates the batch, prepends optimistic records synchronously, then
// either confirms them against the remote store or parks them in the offline
// cache. A submission is never lost to a transient network failure.
func (r *Reconciler) Submit(ctx context.Context, exporter string, items []domain.BatchItem, photo string) (Notice, error) {
	exporter = strings.ToUpper(strings.TrimSpace(exporter))
	if exporter == "" {
		return 0, ErrNameRequired
	}
	if photo == "" {
		return 0, ErrPhotoRequired
	}
	if len(photo) > domain.MaxImageBytes {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPhotoTooLarge, len(photo), domain.MaxImageBytes)
	}
	if len(items) == 0 {
		return 0, ErrNoItems
	}
	normalized := make([]domain.BatchItem, 0, len(items))
	for _, item := range items {
		if !domain.KnownProduct(item.Product) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownProduct, item.Product)
		}
		if item.Quantity <= 0 {
			return 0, ErrBadQuantity
		}
		item.MaterialID = strings.ToUpper(strings.TrimSpace(item.MaterialID))
		if item.MaterialID == "" {
			return 0, ErrReferenceRequired
		}
		normalized = append(normalized, item)
	}

	now := time.Now()
	tempBase := domain.NewTempIDBase(now)
	optimistic := make([]domain.ProductionRecord, 0, len(normalized))
	for i, item := range normalized {
		optimistic = append(optimistic, domain.ProductionRecord{
			ID:           domain.BatchID(tempBase, i),
			Exporter:     exporter,
			Product:      item.Product,
			Quantity:     item.Quantity,
			MaterialID:   item.MaterialID,
			ImageDataURL: photo,
			CreatedAt:    now,
		})
	}

	// Optimistic insert before any network call: the snapshot reflects the
	// submission with zero latency.
	r.mu.Lock()
	merged := append(append([]domain.ProductionRecord(nil), optimistic...), r.records...)
	domain.SortByCreatedAtDesc(merged)
	r.records = merged
	online := r.state.Online
	r.mu.Unlock()

	if !online {
		r.parkBatch(ctx, tempBase)
		return NoticeSavedOffline, nil
	}

	payload := make([]remote.NewRecord, 0, len(normalized))
	for _, item := range normalized {
		payload = append(payload, remote.NewRecord{
			Exporter:     exporter,
			Product:      item.Product,
			Quantity:     item.Quantity,
			MaterialID:   item.MaterialID,
			ImageDataURL: photo,
			Timestamp:    now,
		})
	}
	inserted, err := r.remote.Insert(ctx, payload)
	if err != nil {
		r.logger.Warn("remote insert failed, parking batch locally", "error", err, "items", len(payload))
		r.parkBatch(ctx, tempBase)
		return NoticeSavedDegraded, nil
	}

	// Swap this batch's temp records for the store-confirmed copies in one
	// step so the change feed firing in between cannot produce duplicates.
	confirmed := fromRemote(inserted)
	r.mu.Lock()
	kept := make([]domain.ProductionRecord, 0, len(r.records))
	for _, rec := range r.records {
		if !domain.InBatch(rec.ID, tempBase) {
			kept = append(kept, rec)
		}
	}
	merged = append(confirmed, kept...)
	domain.SortByCreatedAtDesc(merged)
	r.records = merged
	r.mu.Unlock()

	r.logger.Info("batch confirmed by remote store", "exporter", exporter, "items", len(confirmed))
	return NoticeSynced, nil
}

// parkBatch rewrites one batch's temp ids to the local namespace and persists
// the whole list so the batch survives a reload while it awaits sync.
func (r *Reconciler) parkBatch(ctx context.Context, tempBase string) {
	localBase := domain.NewLocalIDBase(time.Now())
	r.mu.Lock()
	next := make([]domain.ProductionRecord, len(r.records))
	for i, rec := range r.records {
		rec.ID = domain.Relocalize(rec.ID, tempBase, localBase)
		next[i] = rec
	}
	r.records = next
	snapshot := append([]domain.ProductionRecord(nil), next...)
	r.mu.Unlock()
	r.cache.Save(ctx, snapshot)
}

// ToggleVerify flips a record's verified flag. Verification is a trust
// action, so it is refused outright while offline; when the remote update
// fails despite being online the flip is applied anyway and persisted so the
// admin's action is not silently dropped.
func (r *Reconciler) ToggleVerify(ctx context.Context, id string) error {
	if !r.Online() {
		return ErrOffline
	}

	r.mu.Lock()
	current, found := false, false
	for _, rec := range r.records {
		if rec.ID == id {
			current = rec.Verified
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return ErrNotFound
	}

	err := r.remote.UpdateVerified(ctx, id, !current)

	r.mu.Lock()
	next := make([]domain.ProductionRecord, len(r.records))
	for i, rec := range r.records {
		if rec.ID == id {
			rec.Verified = !current
		}
		next[i] = rec
	}
	r.records = next
	snapshot := append([]domain.ProductionRecord(nil), next...)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("verify update failed, keeping optimistic flip", "id", id, "error", err)
		r.cache.Save(ctx, snapshot)
	}
	return nil
}

// Delete removes a record. A local_-namespaced record never reached the
// remote store, so its delete is purely local. For remote records the delete
// is best effort: the list must not keep showing a record the user removed.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	if domain.IsLocalID(id) {
		snapshot := r.removeAndSnapshot(id)
		r.cache.Save(ctx, snapshot)
		return nil
	}

	if err := r.remote.Delete(ctx, id); err != nil {
		r.logger.Warn("remote delete failed, removing from list anyway", "id", id, "error", err)
	}
	snapshot := r.removeAndSnapshot(id)

	r.mu.Lock()
	fallback := r.fallback
	r.mu.Unlock()
	if fallback {
		r.cache.Save(ctx, snapshot)
	}
	return nil
}

// Wipe destroys every record everywhere. Requires connectivity and the admin
// master key; a rejected credential aborts before any remote call.
func (r *Reconciler) Wipe(ctx context.Context, password string) error {
	if !r.Online() {
		return ErrOffline
	}
	if strings.TrimSpace(password) != r.adminKey {
		return ErrBadCredential
	}

	if err := r.remote.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to wipe remote store: %w", err)
	}

	r.replace(nil)
	if err := r.cache.Clear(ctx); err != nil {
		r.logger.Error("failed to clear offline cache after wipe", "error", err)
	}
	r.logger.Info("database wiped by admin")
	return nil
}

func (r *Reconciler) replace(records []domain.ProductionRecord) {
	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
}

func (r *Reconciler) removeAndSnapshot(id string) []domain.ProductionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = removeID(r.records, id)
	return append([]domain.ProductionRecord(nil), r.records...)
}

func removeID(records []domain.ProductionRecord, id string) []domain.ProductionRecord {
	kept := make([]domain.ProductionRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	return kept
}

func fromRemote(rows []remote.Record) []domain.ProductionRecord {
	records := make([]domain.ProductionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.ProductionRecord{
			ID:           row.ID,
			Exporter:     row.Exporter,
			Product:      row.Product,
			Quantity:     row.Quantity,
			MaterialID:   row.MaterialID,
			ImageDataURL: row.ImageDataURL,
			CreatedAt:    row.Timestamp,
			Verified:     row.Verified,
		})
	}
	domain.SortByCreatedAtDesc(records)
	return records
}
