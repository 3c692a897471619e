package watch

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/feed"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/repository/memory"
)

type countingSource struct {
	inner interface {
		Snapshots(ctx context.Context, uid string) (<-chan model.Snapshot, error)
	}
	calls atomic.Int32
}

func (c *countingSource) Snapshots(ctx context.Context, uid string) (<-chan model.Snapshot, error) {
	c.calls.Add(1)
	return c.inner.Snapshots(ctx, uid)
}

type env struct {
	store    *memory.Store
	notifier *memory.Notifier
	src      *countingSource
	hub      *Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	notifier := memory.NewNotifier()
	src := &countingSource{inner: feed.New(store, notifier, zaptest.NewLogger(t))}
	return &env{store: store, notifier: notifier, src: src, hub: NewHub(src, zaptest.NewLogger(t))}
}

func (e *env) put(t *testing.T, uid string, doc model.RawRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.Put(ctx, uid, doc))
	require.NoError(t, e.notifier.Publish(ctx, uid))
}

func validDoc(uid string) model.RawRecord {
	return model.RawRecord{"uid": uid, "kid": "k1", "issuedAt": int64(1700000000), "signature": "A_-0"}
}

func next(t *testing.T, ch <-chan *model.Pass) *model.Pass {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "stream closed")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pass")
	}
	return nil
}

// nextNonNil skips values until a pass arrives; latest-wins delivery may coalesce intermediate values.
func nextNonNil(t *testing.T, ch <-chan *model.Pass) *model.Pass {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			require.True(t, ok, "stream closed")
			if p != nil {
				return p
			}
		case <-deadline:
			t.Fatal("timeout waiting for non-nil pass")
		}
	}
}

func TestWatch_BlankUIDRejectedBeforeSubscribe(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	for _, uid := range []string{"", "   ", "\t\n"} {
		_, err := e.hub.Watch(context.Background(), uid)
		require.ErrorIs(t, err, errs.ErrInvalidArgument)
	}
	require.Equal(t, int32(0), e.src.calls.Load())
}

func TestWatch_EmitsNilThenPass(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := e.hub.Watch(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, next(t, ch))

	e.put(t, "u1", validDoc("u1"))
	p := nextNonNil(t, ch)
	require.Equal(t, "u1", p.UID)
	require.Equal(t, model.StatusActive, p.StatusText())
}

func TestWatch_InvalidDocumentIsNil(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	doc := validDoc("u1")
	doc["kid"] = ""
	require.NoError(t, e.store.Put(context.Background(), "u1", doc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := e.hub.Watch(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, next(t, ch))
}

func TestWatch_SharesUpstreamBetweenObservers(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.put(t, "u1", validDoc("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := e.hub.Watch(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, next(t, a))

	b, err := e.hub.Watch(ctx, "u1")
	require.NoError(t, err)
	late := next(t, b)
	require.NotNil(t, late, "late observer gets the latest value immediately")

	require.Equal(t, int32(1), e.src.calls.Load())
	require.Equal(t, 1, e.notifier.Subscribers("u1"))

	doc := validDoc("u1")
	doc["active"] = false
	e.put(t, "u1", doc)
	for _, ch := range []<-chan *model.Pass{a, b} {
		p := next(t, ch)
		require.NotNil(t, p)
		require.Equal(t, model.StatusInactive, p.StatusText())
	}
}

func TestWatch_ReleasesUpstreamWhenLastObserverLeaves(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	a, err := e.hub.Watch(ctxA, "u1")
	require.NoError(t, err)
	b, err := e.hub.Watch(ctxB, "u1")
	require.NoError(t, err)

	cancelA()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-a:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, e.hub.Subscriptions())

	cancelB()
	require.Eventually(t, func() bool { return e.hub.Subscriptions() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.notifier.Subscribers("u1") == 0 }, 2*time.Second, 5*time.Millisecond)
	for range b {
	}

	// a new observer opens a new subscription
	ctxC, cancelC := context.WithCancel(context.Background())
	defer cancelC()
	_, err = e.hub.Watch(ctxC, "u1")
	require.NoError(t, err)
	require.Equal(t, int32(2), e.src.calls.Load())
}

func TestWatch_IndependentUIDs(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := e.hub.Watch(ctx, "u1")
	require.NoError(t, err)
	b, err := e.hub.Watch(ctx, "u2")
	require.NoError(t, err)
	require.Nil(t, next(t, a))
	require.Nil(t, next(t, b))

	e.put(t, "u2", validDoc("u2"))
	require.Equal(t, "u2", nextNonNil(t, b).UID)
	select {
	case p := <-a:
		t.Fatalf("u1 observer got unrelated value %v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

type errSource struct{}

func (errSource) Snapshots(context.Context, string) (<-chan model.Snapshot, error) {
	return nil, errors.New("redis down")
}

func TestWatch_SubscribeErrorPropagates(t *testing.T) {
	t.Parallel()
	h := NewHub(errSource{}, zaptest.NewLogger(t))

	_, err := h.Watch(context.Background(), "u1")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrInvalidArgument)
	require.Equal(t, 0, h.Subscriptions())
}

type chanSource struct{ ch chan model.Snapshot }

func (c chanSource) Snapshots(context.Context, string) (<-chan model.Snapshot, error) {
	return c.ch, nil
}

func TestWatch_UpstreamEndClosesObservers(t *testing.T) {
	t.Parallel()
	src := chanSource{ch: make(chan model.Snapshot, 4)}
	h := NewHub(src, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.Watch(ctx, "u1")
	require.NoError(t, err)

	src.ch <- model.Snapshot{Exists: true, Record: validDoc("u1")}
	require.NotNil(t, next(t, ch))
	close(src.ch)

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not closed")
	}
	require.Eventually(t, func() bool { return h.Subscriptions() == 0 }, time.Second, 5*time.Millisecond)
}

// Not parallel: it counts goroutines.
func TestWatch_UpstreamEndReleasesObserverGoroutines(t *testing.T) {
	src := chanSource{ch: make(chan model.Snapshot)}
	h := NewHub(src, zaptest.NewLogger(t))
	baseline := runtime.NumGoroutine()

	streams := make([]<-chan *model.Pass, 0, 20)
	for i := 0; i < 20; i++ {
		ch, err := h.Watch(context.Background(), "u1")
		require.NoError(t, err)
		streams = append(streams, ch)
	}
	close(src.ch)
	for _, ch := range streams {
		for range ch {
		}
	}

	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= baseline }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, h.Subscriptions())
}

func TestWatch_SlowObserverSeesNewestInOrder(t *testing.T) {
	t.Parallel()
	src := chanSource{ch: make(chan model.Snapshot)}
	h := NewHub(src, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.Watch(ctx, "u1")
	require.NoError(t, err)

	for v := int64(1); v <= 5; v++ {
		doc := validDoc("u1")
		doc["version"] = v
		src.ch <- model.Snapshot{Exists: true, Record: doc}
	}
	// the unbuffered upstream guarantees versions 1..4 were handled before 5 was accepted
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, f := range h.feeds {
			return f.latest != nil && f.latest.Version == 5
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	p := next(t, ch)
	require.Equal(t, int64(5), p.Version)
}
