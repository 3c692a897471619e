package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
)

// PassRepo implements PassDocRepository using a JSONB column.
type PassRepo struct{ db *DB }

// NewPassRepo constructs a pass document repository.
func NewPassRepo(db *DB) *PassRepo { return &PassRepo{db: db} }

// Get returns the stored document for uid.
func (r *PassRepo) Get(ctx context.Context, uid string) (model.RawRecord, error) {
	const q = `SELECT doc FROM pass_docs WHERE uid=$1`
	var b []byte
	if err := r.db.Pool.QueryRow(ctx, q, uid).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	doc, err := decodeDoc(b)
	if err != nil {
		return nil, fmt.Errorf("decode pass doc: %w", err)
	}
	return doc, nil
}

// Put creates or replaces the document for uid.
func (r *PassRepo) Put(ctx context.Context, uid string, doc model.RawRecord) error {
	enc, err := encodeDoc(doc)
	if err != nil {
		return fmt.Errorf("encode pass doc: %w", err)
	}
	const q = `
INSERT INTO pass_docs (uid, doc) VALUES ($1, $2::jsonb)
ON CONFLICT (uid) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()`
	_, err = r.db.Pool.Exec(ctx, q, uid, enc)
	return err
}

// Merge shallow-merges fields into the existing document.
func (r *PassRepo) Merge(ctx context.Context, uid string, fields model.RawRecord) error {
	enc, err := encodeDoc(fields)
	if err != nil {
		return fmt.Errorf("encode pass fields: %w", err)
	}
	const q = `UPDATE pass_docs SET doc = doc || $2::jsonb, updated_at=now() WHERE uid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, uid, enc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Revoke marks the pass inactive. An existing revokedAt is kept only when it reads as a timestamp
// (a non-negative number or a typed timestamp object); an existing revokedReason is always kept.
func (r *PassRepo) Revoke(ctx context.Context, uid string, at time.Time, reason string) error {
	ts, err := encodeDoc(model.RawRecord{model.FieldRevokedAt: at})
	if err != nil {
		return fmt.Errorf("encode revokedAt: %w", err)
	}
	const q = `
UPDATE pass_docs SET doc = doc || jsonb_build_object(
  'active', false,
  'revokedAt', COALESCE(
    CASE jsonb_typeof(doc->'revokedAt')
      WHEN 'number' THEN
        CASE WHEN (doc->>'revokedAt')::numeric >= 0 THEN doc->'revokedAt' END
      WHEN 'object' THEN
        CASE WHEN jsonb_typeof(doc->'revokedAt'->'timestampValue') = 'string'
          AND (doc->'revokedAt'->>'timestampValue') ~ '^\d{4}-\d{2}-\d{2}T'
          AND (SELECT count(*) FROM jsonb_object_keys(doc->'revokedAt')) = 1
        THEN doc->'revokedAt' END
    END,
    $2::jsonb->'revokedAt'),
  'revokedReason', COALESCE(NULLIF(doc->'revokedReason', 'null'::jsonb), to_jsonb($3::text))
), updated_at=now()
WHERE uid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, uid, ts, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
