// Package watch exposes live Pass streams per uid, sharing one upstream subscription between observers.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/metrics"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/passmap"
	"github.com/and161185/onepass/internal/repository"
)

// Hub multiplexes document subscriptions.
type Hub struct {
	src repository.SnapshotSource
	log *zap.Logger

	mu    sync.Mutex
	feeds map[string]*upstream
}

type upstream struct {
	uid       string
	cancel    context.CancelFunc
	ready     chan struct{}
	err       error
	observers map[*observer]struct{}
	pending   int // observers waiting for ready
	latest    *model.Pass
	hasLatest bool
	done      bool
}

type observer struct {
	ch     chan *model.Pass
	done   chan struct{} // closed with ch
	closed bool
}

// NewHub constructs a Hub over src.
func NewHub(src repository.SnapshotSource, log *zap.Logger) *Hub {
	return &Hub{src: src, log: log, feeds: make(map[string]*upstream)}
}

// Watch returns a stream of passes for uid: nil when there is no usable pass.
// The stream starts with the latest known value and closes when ctx is done or the upstream ends.
// A blank uid fails with errs.ErrInvalidArgument before anything is subscribed.
func (h *Hub) Watch(ctx context.Context, uid string) (<-chan *model.Pass, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("watch: blank uid: %w", errs.ErrInvalidArgument)
	}

	for {
		h.mu.Lock()
		f, ok := h.feeds[uid]
		starter := !ok
		if starter {
			f = &upstream{uid: uid, ready: make(chan struct{}), observers: make(map[*observer]struct{})}
			h.feeds[uid] = f
		}
		f.pending++
		h.mu.Unlock()

		if starter {
			h.start(f)
		} else {
			select {
			case <-f.ready:
			case <-ctx.Done():
				h.mu.Lock()
				f.pending--
				h.stopIfIdle(f)
				h.mu.Unlock()
				return nil, ctx.Err()
			}
		}

		h.mu.Lock()
		f.pending--
		if f.err != nil {
			err := f.err
			h.mu.Unlock()
			return nil, err
		}
		if f.done {
			// upstream ended between ready and attach; open a fresh subscription
			h.mu.Unlock()
			continue
		}
		obs := &observer{ch: make(chan *model.Pass, 1), done: make(chan struct{})}
		f.observers[obs] = struct{}{}
		if f.hasLatest {
			obs.ch <- f.latest
		}
		h.mu.Unlock()
		metrics.WatchObservers.Inc()

		go func() {
			select {
			case <-ctx.Done():
				h.detach(f, obs)
			case <-obs.done:
			}
		}()
		return obs.ch, nil
	}
}

// start opens the upstream subscription and the delivery loop, then releases waiters.
func (h *Hub) start(f *upstream) {
	upCtx, cancel := context.WithCancel(context.Background())
	snaps, err := h.src.Snapshots(upCtx, f.uid)

	h.mu.Lock()
	if err != nil {
		cancel()
		f.err = fmt.Errorf("watch %s: %w", f.uid, err)
		f.done = true
		if h.feeds[f.uid] == f {
			delete(h.feeds, f.uid)
		}
	} else {
		f.cancel = cancel
		metrics.ActiveWatches.Inc()
		go h.run(f, snaps)
	}
	close(f.ready)
	h.mu.Unlock()
}

// run maps every upstream snapshot and broadcasts it in order.
func (h *Hub) run(f *upstream, snaps <-chan model.Snapshot) {
	defer metrics.ActiveWatches.Dec()
	for snap := range snaps {
		p := passmap.MapSnapshot(snap)
		h.mu.Lock()
		f.latest, f.hasLatest = p, true
		for obs := range f.observers {
			offer(obs.ch, p)
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !f.done {
		h.log.Info("pass stream ended by upstream", zap.String("uid", f.uid))
	}
	f.done = true
	if h.feeds[f.uid] == f {
		delete(h.feeds, f.uid)
	}
	for obs := range f.observers {
		h.closeObserver(f, obs)
	}
	f.cancel()
}

// offer replaces any undelivered value with p; the buffer holds at most the newest pass.
func offer(ch chan *model.Pass, p *model.Pass) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- p
}

func (h *Hub) detach(f *upstream, obs *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeObserver(f, obs)
	h.stopIfIdle(f)
}

// closeObserver must be called with h.mu held.
func (h *Hub) closeObserver(f *upstream, obs *observer) {
	if obs.closed {
		return
	}
	obs.closed = true
	delete(f.observers, obs)
	close(obs.ch)
	close(obs.done)
	metrics.WatchObservers.Dec()
}

// stopIfIdle releases the upstream subscription once nobody observes or waits. Called with h.mu held.
func (h *Hub) stopIfIdle(f *upstream) {
	if f.done || len(f.observers) > 0 || f.pending > 0 || f.cancel == nil {
		return
	}
	f.done = true
	if h.feeds[f.uid] == f {
		delete(h.feeds, f.uid)
	}
	f.cancel()
}

// Subscriptions reports the number of open upstream subscriptions.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}
