// Package memory provides in-process implementations of the pass document store and change notifier,
// used by the dev server mode and by tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/passmap"
)

// Store is a concurrency-safe PassDocRepository kept in memory.
type Store struct {
	mu   sync.Mutex
	docs map[string]model.RawRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string]model.RawRecord)}
}

// Get returns a copy of the document for uid.
func (s *Store) Get(_ context.Context, uid string) (model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uid]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return maps.Clone(doc), nil
}

// Put creates or replaces the document for uid.
func (s *Store) Put(_ context.Context, uid string, doc model.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uid] = maps.Clone(doc)
	return nil
}

// Merge shallow-merges fields into an existing document.
func (s *Store) Merge(_ context.Context, uid string, fields model.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uid]
	if !ok {
		return errs.ErrNotFound
	}
	maps.Copy(doc, fields)
	return nil
}

// Revoke sets active=false, keeping an existing revokedAt when it reads as a timestamp and any existing revokedReason.
func (s *Store) Revoke(_ context.Context, uid string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uid]
	if !ok {
		return errs.ErrNotFound
	}
	doc[model.FieldActive] = false
	if _, ok := passmap.EpochSeconds(doc[model.FieldRevokedAt]); !ok {
		doc[model.FieldRevokedAt] = timestamppb.New(at)
	}
	if doc[model.FieldRevokedReason] == nil {
		doc[model.FieldRevokedReason] = reason
	}
	return nil
}

// Notifier is an in-process ChangeNotifier.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewNotifier creates a notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every subscriber of uid; pending signals coalesce.
func (n *Notifier) Publish(_ context.Context, uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[uid] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for uid until ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, uid string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs[uid] == nil {
		n.subs[uid] = make(map[chan struct{}]struct{})
	}
	n.subs[uid][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs[uid], ch)
		if len(n.subs[uid]) == 0 {
			delete(n.subs, uid)
		}
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers reports the number of live subscriptions for uid.
func (n *Notifier) Subscribers(uid string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[uid])
}
