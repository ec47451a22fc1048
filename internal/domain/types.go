package domain

import (
	"sort"
	"time"
)

// ProductionRecord is one unit of recorded work. Exporter and MaterialID are
// stored upper-cased; ImageDataURL carries the photo inline as a data URL.
type ProductionRecord struct {
	ID           string
	Exporter     string
	Product      string
	Quantity     int
	MaterialID   string
	ImageDataURL string
	CreatedAt    time.Time
	Verified     bool
}

// BatchItem is an uncommitted line item staged before submission. TempID is a
// process-local counter used only to key staged rows; it is never persisted.
type BatchItem struct {
	Product    string
	Quantity   int
	MaterialID string
	TempID     int64
}

// SyncState is the process-wide connectivity snapshot. It is mutated only by
// the connectivity monitor and the sync engine.
type SyncState struct {
	Online  bool
	Syncing bool
}

// SortByCreatedAtDesc orders records newest first. The sort is stable, so two
// records sharing an instant keep their insertion order within this process;
// no stronger tie-break is guaranteed.
func SortByCreatedAtDesc(records []ProductionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
