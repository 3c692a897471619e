// Package service contains application services for passes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/limiter"
	"github.com/and161185/onepass/internal/metrics"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/passmap"
	"github.com/and161185/onepass/internal/repository"
)

// DefaultProvisionWait bounds GetOrCreate when no wait is configured.
const DefaultProvisionWait = 10 * time.Second

// resubscribeDelay spaces out new subscriptions when a stream ends before the wait is over.
const resubscribeDelay = 100 * time.Millisecond

// PassService defines pass lifecycle operations.
type PassService interface {
	// Watch streams the caller's pass; nil values mean "no usable pass".
	Watch(ctx context.Context, uid string) (<-chan *model.Pass, error)
	// Current returns the pass as stored now, or nil when absent or invalid.
	Current(ctx context.Context, uid string) (*model.Pass, error)
	// GetOrCreate returns a valid pass, provisioning one and waiting for it when needed.
	GetOrCreate(ctx context.Context, uid string) (model.Pass, error)
	// Revoke deactivates the pass; repeated calls keep the first revocation.
	Revoke(ctx context.Context, uid, reason string) error
	// MarkScanned records a verified scan of uid's pass by scanner.
	MarkScanned(ctx context.Context, uid, scanner, signature string) error
}

// Watcher opens live pass streams.
type Watcher interface {
	Watch(ctx context.Context, uid string) (<-chan *model.Pass, error)
}

// Provisioner asks the issuing side to create a pass.
type Provisioner interface {
	Provision(ctx context.Context, uid string) error
}

// Verifier checks a presented pass signature.
type Verifier interface {
	Verify(p model.Pass, signature string) bool
}

// Clock supplies server timestamps.
type Clock interface {
	Now() time.Time
}

// PassDeps groups PassServiceImpl collaborators.
type PassDeps struct {
	Docs          repository.PassDocRepository
	Notifier      repository.ChangeNotifier
	Watcher       Watcher
	Provisioner   Provisioner
	Verifier      Verifier
	Limiter       limiter.Limiter
	Clock         Clock
	Log           *zap.Logger
	ProvisionWait time.Duration
}

type PassServiceImpl struct {
	docs     repository.PassDocRepository
	notifier repository.ChangeNotifier
	watcher  Watcher
	prov     Provisioner
	verifier Verifier
	lim      limiter.Limiter
	clock    Clock
	log      *zap.Logger
	wait     time.Duration
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewPassService constructs PassServiceImpl.
func NewPassService(d PassDeps) *PassServiceImpl {
	s := &PassServiceImpl{
		docs: d.Docs, notifier: d.Notifier, watcher: d.Watcher, prov: d.Provisioner,
		verifier: d.Verifier, lim: d.Limiter, clock: d.Clock, log: d.Log, wait: d.ProvisionWait,
	}
	if s.clock == nil {
		s.clock = wallClock{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.wait <= 0 {
		s.wait = DefaultProvisionWait
	}
	return s
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func observe(op string, err error) {
	metrics.PassOps.WithLabelValues(op, metrics.Result(err)).Inc()
}

// Watch delegates to the stream hub.
func (s *PassServiceImpl) Watch(ctx context.Context, uid string) (<-chan *model.Pass, error) {
	return s.watcher.Watch(ctx, uid)
}

// Current reads and maps the stored document once.
func (s *PassServiceImpl) Current(ctx context.Context, uid string) (*model.Pass, error) {
	if blank(uid) {
		return nil, fmt.Errorf("current: blank uid: %w", errs.ErrInvalidArgument)
	}
	doc, err := s.docs.Get(ctx, uid)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current %s: %w", uid, err)
	}
	return passmap.Map(doc), nil
}

// GetOrCreate returns the existing valid pass or provisions one and waits for it to appear on the stream.
func (s *PassServiceImpl) GetOrCreate(ctx context.Context, uid string) (p model.Pass, err error) {
	defer func() { observe("ensure", err) }()
	if blank(uid) {
		return model.Pass{}, fmt.Errorf("ensure: blank uid: %w", errs.ErrInvalidArgument)
	}
	cur, err := s.Current(ctx, uid)
	if err != nil {
		return model.Pass{}, err
	}
	if cur != nil && cur.IsValidNow() {
		return *cur, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	// subscribe before provisioning so the write cannot be missed
	stream, err := s.watcher.Watch(waitCtx, uid)
	if err != nil {
		return model.Pass{}, fmt.Errorf("ensure %s: watch: %w", uid, err)
	}
	if err := s.prov.Provision(waitCtx, uid); err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return model.Pass{}, fmt.Errorf("ensure %s: %w", uid, errs.ErrProvisionTimeout)
		}
		return model.Pass{}, fmt.Errorf("ensure %s: provision: %w", uid, err)
	}

wait:
	for {
		// stream values only signal a change; the stored document decides
		for range stream {
			cur, err := s.Current(waitCtx, uid)
			if err != nil {
				if waitCtx.Err() != nil {
					break wait
				}
				return model.Pass{}, err
			}
			if cur != nil && cur.IsValidNow() {
				s.log.Debug("pass ready", zap.String("uid", uid), zap.String("kid", cur.KID))
				return *cur, nil
			}
		}
		if waitCtx.Err() != nil {
			break
		}
		s.log.Warn("pass stream ended while waiting, resubscribing", zap.String("uid", uid))
		select {
		case <-waitCtx.Done():
			break wait
		case <-time.After(resubscribeDelay):
		}
		if stream, err = s.watcher.Watch(waitCtx, uid); err != nil {
			if waitCtx.Err() != nil {
				break
			}
			return model.Pass{}, fmt.Errorf("ensure %s: watch: %w", uid, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Pass{}, err
	}
	return model.Pass{}, fmt.Errorf("ensure %s: no valid pass within %s: %w", uid, s.wait, errs.ErrProvisionTimeout)
}

// Revoke marks the pass inactive with a server timestamp and reason, then notifies observers.
func (s *PassServiceImpl) Revoke(ctx context.Context, uid, reason string) (err error) {
	defer func() { observe("revoke", err) }()
	if blank(uid) {
		return fmt.Errorf("revoke: blank uid: %w", errs.ErrInvalidArgument)
	}
	if blank(reason) {
		return fmt.Errorf("revoke: blank reason: %w", errs.ErrInvalidArgument)
	}
	if err := s.docs.Revoke(ctx, uid, s.clock.Now(), strings.TrimSpace(reason)); err != nil {
		return fmt.Errorf("revoke %s: %w", uid, err)
	}
	if err := s.notifier.Publish(ctx, uid); err != nil {
		return fmt.Errorf("revoke %s: notify: %w", uid, err)
	}
	s.log.Info("pass revoked", zap.String("uid", uid))
	return nil
}

// MarkScanned verifies the presented signature against uid's valid pass and records the scan.
func (s *PassServiceImpl) MarkScanned(ctx context.Context, uid, scanner, signature string) (err error) {
	defer func() { observe("scan", err) }()
	if blank(uid) {
		return fmt.Errorf("scan: blank uid: %w", errs.ErrInvalidArgument)
	}
	if blank(scanner) {
		return fmt.Errorf("scan: blank scanner: %w", errs.ErrInvalidArgument)
	}
	sh := limiter.HashScanner(scanner)

	allowed, _, err := s.lim.Allow(ctx, sh)
	if err != nil {
		return fmt.Errorf("scan: limiter: %w", err)
	}
	if !allowed {
		return errs.ErrRateLimited
	}

	pass, err := s.Current(ctx, uid)
	if err != nil {
		return err
	}
	if pass == nil {
		return fmt.Errorf("scan %s: %w", uid, errs.ErrNotFound)
	}
	if !pass.IsValidNow() {
		return fmt.Errorf("scan %s: %s: %w", uid, pass.StatusText(), errs.ErrPassNotValid)
	}
	if !s.verifier.Verify(*pass, signature) {
		if blocked, _, ferr := s.lim.Failure(ctx, sh); ferr == nil && blocked {
			return errs.ErrRateLimited
		}
		s.log.Warn("signature mismatch", zap.String("uid", uid), zap.String("scanner", scanner))
		return errs.ErrUnauthorized
	}
	_ = s.lim.Success(ctx, sh)

	fields := model.RawRecord{
		model.FieldLastScannedAt: timestamppb.New(s.clock.Now()),
		model.FieldScannedBy:     scanner,
	}
	if err := s.docs.Merge(ctx, uid, fields); err != nil {
		return fmt.Errorf("scan %s: %w", uid, err)
	}
	if err := s.notifier.Publish(ctx, uid); err != nil {
		return fmt.Errorf("scan %s: notify: %w", uid, err)
	}
	return nil
}
