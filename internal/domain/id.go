package domain

import (
	"fmt"
	"strings"
	"time"
)

// Record ids live in exactly one of three namespaces:
//
//   - temp_<ts>_<index>: in-flight optimistic record, not durable anywhere.
//   - local_<ts>_<index>: durable only in the offline cache, pending sync.
//   - anything else: an opaque id assigned by the remote store.
//
// A record moves temp→local (offline save, or online insert failure) or
// temp→remote (online insert success), and never back.
const (
	tempIDPrefix  = "temp_"
	localIDPrefix = "local_"
)

// NewTempIDBase returns the shared id prefix for one submission batch.
// Nanosecond resolution keeps bases from colliding across rapid submissions.
func NewTempIDBase(now time.Time) string {
	return fmt.Sprintf("%s%d", tempIDPrefix, now.UnixNano())
}

// NewLocalIDBase returns the base that replaces a batch's temp base when the
// batch is parked in the offline cache.
func NewLocalIDBase(now time.Time) string {
	return fmt.Sprintf("%s%d", localIDPrefix, now.UnixNano())
}

// BatchID appends the per-item suffix to a batch base.
func BatchID(base string, index int) string {
	return fmt.Sprintf("%s_%d", base, index)
}

// Relocalize rewrites an id from tempBase to localBase, preserving the
// per-item suffix. Ids outside the batch are returned unchanged.
func Relocalize(id, tempBase, localBase string) string {
	if !strings.HasPrefix(id, tempBase) {
		return id
	}
	return strings.Replace(id, tempBase, localBase, 1)
}

// IsTempID reports whether the id is in the in-flight namespace.
func IsTempID(id string) bool { return strings.HasPrefix(id, tempIDPrefix) }

// IsLocalID reports whether the id is in the offline-pending namespace.
func IsLocalID(id string) bool { return strings.HasPrefix(id, localIDPrefix) }

// InBatch reports whether the id belongs to the batch identified by base.
func InBatch(id, base string) bool { return strings.HasPrefix(id, base) }
