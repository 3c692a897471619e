package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter with a sliding failure window and lockout.
type PG struct {
	db       pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over any pgx querier (pool, mock).
func NewPG(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	if maxFails <= 0 {
		maxFails = 5
	}
	return &PG{db: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether scanning is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, scannerHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM scan_limiter WHERE scanner_hash=$1`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, scannerHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for the scanner.
func (l *PG) Success(ctx context.Context, scannerHash []byte) error {
	const q = `
INSERT INTO scan_limiter (scanner_hash, fail_count, blocked_until, updated_at)
VALUES ($1,0,'epoch',now())
ON CONFLICT (scanner_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.db.Exec(ctx, q, scannerHash)
	return err
}

// Failure records a rejected scan; reaching maxFails within the window blocks the scanner.
func (l *PG) Failure(ctx context.Context, scannerHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO scan_limiter (scanner_hash, fail_count, blocked_until, updated_at)
VALUES ($1,1,'epoch',now())
ON CONFLICT (scanner_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - scan_limiter.updated_at > $2::interval THEN 1 ELSE scan_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, scannerHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE scan_limiter SET blocked_until=$2 WHERE scanner_hash=$1`
	if _, err := l.db.Exec(ctx, upd, scannerHash, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
