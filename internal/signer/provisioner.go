package signer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/passmap"
	"github.com/and161185/onepass/internal/repository"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Provisioner writes freshly signed passes for users that have no valid one.
type Provisioner struct {
	docs     repository.PassDocRepository
	notifier repository.ChangeNotifier
	signer   *Signer
	clock    Clock
	log      *zap.Logger
	newKID   func() (uuid.UUID, error)
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(docs repository.PassDocRepository, notifier repository.ChangeNotifier, s *Signer, clock Clock, log *zap.Logger) *Provisioner {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Provisioner{docs: docs, notifier: notifier, signer: s, clock: clock, log: log, newKID: uuid.NewV4}
}

// Provision issues a new pass for uid unless the stored document already maps to a valid pass.
// Observers are notified after the write.
func (p *Provisioner) Provision(ctx context.Context, uid string) error {
	doc, err := p.docs.Get(ctx, uid)
	switch {
	case err == nil:
		if cur := passmap.Map(doc); cur != nil && cur.IsValidNow() {
			return nil
		}
	case errors.Is(err, errs.ErrNotFound):
	default:
		return fmt.Errorf("provision %s: read: %w", uid, err)
	}

	id, err := p.newKID()
	if err != nil {
		return fmt.Errorf("provision %s: key id: %w", uid, err)
	}
	kid := id.String()
	issuedAt := p.clock.Now().Unix()
	const version = int64(1)
	sig, err := p.signer.Sign(uid, kid, issuedAt, version)
	if err != nil {
		return fmt.Errorf("provision %s: sign: %w", uid, err)
	}

	fresh := model.RawRecord{
		model.FieldUID:       uid,
		model.FieldKID:       kid,
		model.FieldIssuedAt:  issuedAt,
		model.FieldVersion:   version,
		model.FieldActive:    true,
		model.FieldSignature: sig,
	}
	if err := p.docs.Put(ctx, uid, fresh); err != nil {
		return fmt.Errorf("provision %s: write: %w", uid, err)
	}
	if err := p.notifier.Publish(ctx, uid); err != nil {
		return fmt.Errorf("provision %s: notify: %w", uid, err)
	}
	p.log.Info("pass provisioned", zap.String("uid", uid), zap.String("kid", kid))
	return nil
}
