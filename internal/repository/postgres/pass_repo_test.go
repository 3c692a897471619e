package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/passmap"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestPassRepo_Get_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	doc := []byte(`{"uid":"u1","kid":"k1","issuedAt":1700000000,"version":2.5,"signature":"abc",` +
		`"revokedAt":{"timestampValue":"2023-11-14T22:15:00.5Z"},"extra":{"a":1}}`)
	mock.ExpectQuery(`SELECT doc FROM pass_docs WHERE uid=\$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", got["uid"])
	require.Equal(t, int64(1700000000), got["issuedAt"])
	require.Equal(t, 2.5, got["version"])
	ts, ok := got["revokedAt"].(*timestamppb.Timestamp)
	require.True(t, ok)
	require.Equal(t, int64(1700000100), ts.GetSeconds())
	require.IsType(t, map[string]any{}, got["extra"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectQuery(`SELECT doc FROM pass_docs WHERE uid=\$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPassRepo_Get_DBError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	boom := errors.New("boom")
	mock.ExpectQuery(`SELECT doc FROM pass_docs WHERE uid=\$1`).
		WithArgs("u1").
		WillReturnError(boom)

	_, err := r.Get(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
}

func TestPassRepo_Get_BadJSON(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectQuery(`SELECT doc FROM pass_docs WHERE uid=\$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow([]byte(`[1,2]`)))

	_, err := r.Get(context.Background(), "u1")
	require.Error(t, err)
}

func TestPassRepo_Put(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectExec(`INSERT INTO pass_docs`).
		WithArgs("u1", `{"issuedAt":1700000000,"kid":"k1","uid":"u1"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.Put(context.Background(), "u1", model.RawRecord{"uid": "u1", "kid": "k1", "issuedAt": int64(1700000000)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepo_Merge(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectExec(`UPDATE pass_docs SET doc = doc`).
		WithArgs("u1", `{"lastScannedAt":{"timestampValue":"2023-11-14T22:13:20Z"}}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := r.Merge(context.Background(), "u1", model.RawRecord{"lastScannedAt": time.Unix(1700000000, 0)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepo_Merge_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectExec(`UPDATE pass_docs SET doc = doc`).
		WithArgs("u1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := r.Merge(context.Background(), "u1", model.RawRecord{"active": true})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPassRepo_Revoke(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	at := time.Unix(1700000100, 0)
	mock.ExpectExec(`jsonb_build_object`).
		WithArgs("u1", `{"revokedAt":{"timestampValue":"2023-11-14T22:15:00Z"}}`, "lost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.Revoke(context.Background(), "u1", at, "lost"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepo_Revoke_KeepsOnlyReadableRevokedAt(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectExec(`CASE jsonb_typeof\(doc->'revokedAt'\)\s+WHEN 'number' THEN\s+CASE WHEN \(doc->>'revokedAt'\)::numeric >= 0 .+WHEN 'object' THEN.+'timestampValue'.+\$2::jsonb->'revokedAt'\)`).
		WithArgs("u1", pgxmock.AnyArg(), "lost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.Revoke(context.Background(), "u1", time.Unix(1700000100, 0), "lost"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepo_Revoke_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPassRepo(db)

	mock.ExpectExec(`jsonb_build_object`).
		WithArgs("u1", pgxmock.AnyArg(), "lost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := r.Revoke(context.Background(), "u1", time.Now(), "lost")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDocCodec_TimestampRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := encodeDoc(model.RawRecord{
		"uid":       "u1",
		"kid":       "k1",
		"signature": "sig",
		"issuedAt":  timestamppb.New(time.Unix(1700000000, 250)),
	})
	require.NoError(t, err)

	doc, err := decodeDoc([]byte(enc))
	require.NoError(t, err)

	p := passmap.Map(doc)
	require.NotNil(t, p)
	require.Equal(t, int64(1700000000), p.IssuedAt)
}

func TestDocCodec_LeavesOtherObjects(t *testing.T) {
	t.Parallel()

	doc, err := decodeDoc([]byte(`{"a":{"timestampValue":"nope"},"b":{"timestampValue":"2023-11-14T22:13:20Z","x":1},"c":null}`))
	require.NoError(t, err)
	require.IsType(t, map[string]any{}, doc["a"])
	require.IsType(t, map[string]any{}, doc["b"])
	v, ok := doc["c"]
	require.True(t, ok)
	require.Nil(t, v)
}
