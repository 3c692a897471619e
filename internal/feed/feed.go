// Package feed turns a document repository plus change notifications into a live snapshot stream.
package feed

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/repository"
)

// Feed implements repository.SnapshotSource.
type Feed struct {
	docs     repository.PassDocRepository
	notifier repository.ChangeNotifier
	log      *zap.Logger
}

var _ repository.SnapshotSource = (*Feed)(nil)

// New constructs a Feed.
func New(docs repository.PassDocRepository, notifier repository.ChangeNotifier, log *zap.Logger) *Feed {
	return &Feed{docs: docs, notifier: notifier, log: log}
}

// Snapshots emits the current document, then one snapshot per change signal.
// The channel closes when ctx is done or a read fails.
func (f *Feed) Snapshots(ctx context.Context, uid string) (<-chan model.Snapshot, error) {
	// subscribe before the first read so a concurrent write is never lost
	signals, err := f.notifier.Subscribe(ctx, uid)
	if err != nil {
		return nil, err
	}

	out := make(chan model.Snapshot)
	go func() {
		defer close(out)
		if !f.emit(ctx, uid, out) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				if !f.emit(ctx, uid, out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *Feed) emit(ctx context.Context, uid string, out chan<- model.Snapshot) bool {
	snap, err := f.read(ctx, uid)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("pass feed read failed", zap.String("uid", uid), zap.Error(err))
		}
		return false
	}
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Feed) read(ctx context.Context, uid string) (model.Snapshot, error) {
	doc, err := f.docs.Get(ctx, uid)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{Record: doc, Exists: true}, nil
}
