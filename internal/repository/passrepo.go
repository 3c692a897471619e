// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/onepass/internal/model"
)

// PassDocRepository stores loosely typed pass documents keyed by owner uid.
type PassDocRepository interface {
	// Get returns the document for uid or errs.ErrNotFound.
	Get(ctx context.Context, uid string) (model.RawRecord, error)

	// Put creates or replaces the whole document.
	Put(ctx context.Context, uid string, doc model.RawRecord) error

	// Merge shallow-merges fields into an existing document (errs.ErrNotFound if absent).
	Merge(ctx context.Context, uid string, fields model.RawRecord) error

	// Revoke sets active=false and records revocation time and reason unless already recorded.
	Revoke(ctx context.Context, uid string, at time.Time, reason string) error
}

// ChangeNotifier fans out "document changed" signals per uid.
type ChangeNotifier interface {
	// Publish signals that the document for uid changed.
	Publish(ctx context.Context, uid string) error

	// Subscribe delivers a signal per change until ctx is done; the channel is then closed.
	Subscribe(ctx context.Context, uid string) (<-chan struct{}, error)
}

// SnapshotSource yields a live sequence of document snapshots for a uid.
type SnapshotSource interface {
	// Snapshots emits the current document and every subsequent change in order until ctx is done.
	Snapshots(ctx context.Context, uid string) (<-chan model.Snapshot, error)
}
